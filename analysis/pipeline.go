// Package analysis turns a finished run's screenshots into deduplicated,
// classified email records and writes the text and JSON reports.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"mobilepilot/agent"
	"mobilepilot/streamers"
)

// Pipeline runs extraction over one screenshot directory at a time. Items
// are processed strictly in order with at most one oracle call in flight.
type Pipeline struct {
	oracle    agent.Oracle
	logger    hclog.Logger
	handler   streamers.AnalysisHandler
	limiter   *rate.Limiter
	cache     *Cache
	max       int
	outputDir string
	timeout   time.Duration
	now       func() time.Time
}

type Option func(*Pipeline)

func WithLogger(l hclog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func WithHandler(h streamers.AnalysisHandler) Option {
	return func(p *Pipeline) { p.handler = h }
}

// WithRequestsPerMinute throttles oracle calls; zero or less disables it.
func WithRequestsPerMinute(n int) Option {
	return func(p *Pipeline) {
		if n <= 0 {
			p.limiter = nil
			return
		}
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}
}

func WithCache(c *Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithMaxScreenshots caps how many screenshots are examined; zero means all.
func WithMaxScreenshots(n int) Option {
	return func(p *Pipeline) { p.max = n }
}

// WithOutputDir overrides where the reports go. The default is the parent
// of the screenshot directory, i.e. the task directory.
func WithOutputDir(dir string) Option {
	return func(p *Pipeline) { p.outputDir = dir }
}

// WithCallTimeout bounds each oracle call.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func NewPipeline(oracle agent.Oracle, opts ...Option) *Pipeline {
	p := &Pipeline{
		oracle:  oracle,
		logger:  hclog.NewNullLogger(),
		handler: streamers.Discard{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Paths returns where Analyze writes its artifacts for screenshotDir.
func (p *Pipeline) Paths(screenshotDir string) (report, data string) {
	dir := p.outputDir
	if dir == "" {
		dir = filepath.Dir(filepath.Clean(screenshotDir))
	}
	return filepath.Join(dir, ReportFile), filepath.Join(dir, DataFile)
}

// Analyze extracts, deduplicates and aggregates the screenshots in
// screenshotDir and writes both reports. A failed extraction degrades to an
// error record; only cancellation and write failures end the run early.
func (p *Pipeline) Analyze(ctx context.Context, screenshotDir string) (*Report, error) {
	items, err := Enumerate(screenshotDir, p.max)
	if err != nil {
		return nil, err
	}
	reportPath, dataPath := p.Paths(screenshotDir)
	base := filepath.Dir(reportPath)

	p.logger.Info("analysis started", "dir", screenshotDir, "screenshots", len(items))
	p.handler.AnalysisStarted(streamers.AnalysisStarted{Dir: screenshotDir, Total: len(items)})

	var (
		records []EmailRecord
		skipped int
		seen    = make(map[string]bool)
	)
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		event := streamers.ItemAnalyzed{Index: i + 1, Total: len(items), Path: it.Path}

		rel := it.Path
		if r, err := filepath.Rel(base, it.Path); err == nil {
			rel = r
		}

		rec, err := p.extract(ctx, it.Path, rel)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("extraction failed", "screenshot", it.Name, "error", err)
			event.Error = err.Error()
		}

		switch {
		case rec == nil:
			skipped++
			event.Status = "error"
		case rec.Error == "" && !rec.IsEmailContent():
			skipped++
			event.Status = "skipped"
		default:
			records = append(records, *rec)
			event.Sender = rec.Sender
			event.Status = "record"
			if rec.Error != "" {
				event.Status = "error"
			} else if key := rec.DedupKey(); known(rec.Sender) || known(rec.Subject) {
				if seen[key] {
					event.Status = "duplicate"
				}
				seen[key] = true
			}
		}
		p.logger.Debug("screenshot analyzed", "index", i+1, "screenshot", it.Name, "status", event.Status)
		p.handler.ItemAnalyzed(event)
	}

	unique, dropped := Dedup(records)
	rep := Aggregate(unique, p.now())
	rep.Examined = len(items)
	rep.Skipped = skipped
	rep.Duplicates = dropped

	if err := p.write(rep, reportPath, dataPath); err != nil {
		return nil, err
	}

	p.logger.Info("analysis completed", "records", len(unique), "skipped", skipped, "duplicates", dropped, "report", reportPath)
	p.handler.AnalysisCompleted(streamers.AnalysisCompleted{
		Records:    len(unique),
		Skipped:    skipped,
		ReportPath: reportPath,
		DataPath:   dataPath,
	})
	return rep, nil
}

// extract returns nil only when the image could not be read at all. Oracle
// failures yield an error record along with the error.
func (p *Pipeline) extract(ctx context.Context, path, rel string) (*EmailRecord, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read screenshot: %w", err)
	}

	key := ImageKey(image)
	if ex, ok := p.cache.Get(key); ok {
		rec := NewRecord(ex, rel)
		return &rec, nil
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	resp, err := p.oracle.Query(callCtx, agent.Request{
		Mode:        agent.ModeExtract,
		Instruction: agent.ExtractInstruction(),
		Images:      [][]byte{image},
	})
	if err == nil && resp == nil {
		err = errors.New("empty oracle response")
	}
	if err == nil && resp.Extraction == nil {
		err = resp.ParseErr
		if err == nil {
			err = errors.New("no extraction in response")
		}
	}
	if err != nil {
		rec := ErrorRecord(err, rel)
		return &rec, err
	}

	p.cache.Add(key, resp.Extraction)
	rec := NewRecord(resp.Extraction, rel)
	return &rec, nil
}

func (p *Pipeline) write(rep *Report, reportPath, dataPath string) error {
	if err := WriteFileAtomic(reportPath, []byte(rep.Text())); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	data, err := rep.JSON()
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(dataPath, data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}
