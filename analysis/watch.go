package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 750 * time.Millisecond

// Watch analyzes screenshotDir once and again whenever new screenshots
// settle, until ctx is done. Each pass is reported through onReport. The
// pipeline's cache keeps repeat passes from re-querying old screenshots.
func (p *Pipeline) Watch(ctx context.Context, screenshotDir string, debounce time.Duration, onReport func(*Report, error)) error {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(screenshotDir); err != nil {
		return fmt.Errorf("watch %s: %w", screenshotDir, err)
	}

	onReport(p.Analyze(ctx, screenshotDir))

	timer := time.NewTimer(debounce)
	timer.Stop()
	pending := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if skipName(ev.Name) {
				continue
			}
			p.logger.Debug("screenshot changed", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(debounce)
			pending = true
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("watch error", "error", err)
		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			rep, err := p.Analyze(ctx, screenshotDir)
			if ctx.Err() != nil {
				return nil
			}
			onReport(rep, err)
		}
	}
}
