package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var screenshotNameRe = regexp.MustCompile(`^screenshot-(\d+)-(\d+)-([A-Za-z0-9_]+)\.png$`)

// Item is one captured screenshot in the order the pipeline reads them.
type Item struct {
	Path string
	Name string

	// Indexed is false for files that do not follow the
	// screenshot-<round>-<unix>-<tag>.png scheme; Round, Unix and Tag are
	// then zero.
	Indexed bool
	Round   int
	Unix    int64
	Tag     string
}

// ParseItem reads the round, timestamp and tag from a screenshot file name.
func ParseItem(path string) Item {
	name := filepath.Base(path)
	it := Item{Path: path, Name: name}
	m := screenshotNameRe.FindStringSubmatch(name)
	if m == nil {
		return it
	}
	round, err := strconv.Atoi(m[1])
	if err != nil {
		return it
	}
	unix, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return it
	}
	it.Indexed = true
	it.Round = round
	it.Unix = unix
	it.Tag = m[3]
	return it
}

// skipName reports files that are never email views: labelled copies and
// end-of-run captures.
func skipName(name string) bool {
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".png") {
		return true
	}
	base := strings.TrimSuffix(lower, ".png")
	if strings.HasSuffix(base, "labeled") || strings.HasSuffix(base, "labelled") {
		return true
	}
	return strings.HasSuffix(base, "-end") || strings.HasSuffix(base, "_end")
}

// Enumerate lists the screenshots in dir in capture order: by round, then
// timestamp, then name. Unindexed files follow, by name. A max above zero
// caps the result. A missing directory yields no items.
func Enumerate(dir string, max int) ([]Item, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read screenshot directory: %w", err)
	}

	var items []Item
	for _, e := range entries {
		if e.IsDir() || skipName(e.Name()) {
			continue
		}
		items = append(items, ParseItem(filepath.Join(dir, e.Name())))
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Indexed != b.Indexed {
			return a.Indexed
		}
		if a.Indexed {
			if a.Round != b.Round {
				return a.Round < b.Round
			}
			if a.Unix != b.Unix {
				return a.Unix < b.Unix
			}
		}
		return a.Name < b.Name
	})

	if max > 0 && len(items) > max {
		items = items[:max]
	}
	return items, nil
}
