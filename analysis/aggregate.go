package analysis

import (
	"math"
	"slices"
	"sort"
	"time"
)

// CategorySummary groups the records of one category.
type CategorySummary struct {
	Category Category `json:"email_type"`
	Count    int      `json:"count"`
	Subjects []string `json:"subjects"`
}

// SenderCount is the modal sender and how often it appears.
type SenderCount struct {
	Sender string `json:"sender"`
	Count  int    `json:"count"`
}

// Report is the aggregate view over the deduplicated records of one task.
type Report struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Records     []EmailRecord `json:"records"`

	ByCategory   []CategorySummary `json:"by_category"`
	ByImportance map[int]int       `json:"by_importance"`
	// UnknownImportance counts records whose importance could not be read.
	UnknownImportance int `json:"unknown_importance"`
	// MeanImportance is over records with a known importance; nil when
	// there are none.
	MeanImportance *float64    `json:"mean_importance"`
	TopSender      *SenderCount `json:"top_sender"`

	Examined   int `json:"screenshots_examined"`
	Skipped    int `json:"screenshots_skipped"`
	Duplicates int `json:"duplicates_removed"`
}

var importanceLabels = map[int]string{
	5: "Critical/Urgent",
	4: "High",
	3: "Medium",
	2: "Low",
	1: "Very Low/Informational",
}

// ImportanceLabel names a level; unknown levels get "Unknown".
func ImportanceLabel(level int) string {
	if l, ok := importanceLabels[level]; ok {
		return l
	}
	return Unknown
}

// Aggregate builds a report from deduplicated records. It does not touch
// the examined/skipped counters.
func Aggregate(records []EmailRecord, at time.Time) *Report {
	if records == nil {
		records = []EmailRecord{}
	}
	rep := &Report{
		GeneratedAt:  at,
		Records:      records,
		ByImportance: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
	}

	byCat := make(map[Category]*CategorySummary)
	var sum, n int
	senders := make(map[string]int)
	var senderOrder []string
	for _, r := range records {
		cs, ok := byCat[r.Category]
		if !ok {
			cs = &CategorySummary{Category: r.Category, Subjects: []string{}}
			byCat[r.Category] = cs
		}
		cs.Count++
		cs.Subjects = append(cs.Subjects, r.Subject)

		if r.Importance >= 1 && r.Importance <= 5 {
			rep.ByImportance[r.Importance]++
			sum += r.Importance
			n++
		} else {
			rep.UnknownImportance++
		}

		if known(r.Sender) {
			if senders[r.Sender] == 0 {
				senderOrder = append(senderOrder, r.Sender)
			}
			senders[r.Sender]++
		}
	}

	for _, c := range categoryOrder(byCat) {
		rep.ByCategory = append(rep.ByCategory, *byCat[c])
	}
	if rep.ByCategory == nil {
		rep.ByCategory = []CategorySummary{}
	}

	if n > 0 {
		mean := math.Round(float64(sum)/float64(n)*100) / 100
		rep.MeanImportance = &mean
	}

	// first seen wins a tie
	for _, s := range senderOrder {
		if rep.TopSender == nil || senders[s] > rep.TopSender.Count {
			rep.TopSender = &SenderCount{Sender: s, Count: senders[s]}
		}
	}
	return rep
}

// categoryOrder lists the present categories in report order. Anything
// outside the closed set follows, sorted.
func categoryOrder(m map[Category]*CategorySummary) []Category {
	out := make([]Category, 0, len(m))
	for _, c := range Categories() {
		if _, ok := m[c]; ok {
			out = append(out, c)
		}
	}
	var extra []Category
	for c := range m {
		if !slices.Contains(out, c) {
			extra = append(extra, c)
		}
	}
	slices.Sort(extra)
	return append(out, extra...)
}

// ByImportanceDesc returns the records ordered by importance, highest
// first; unknown importance sorts last and ties keep their order.
func (r *Report) ByImportanceDesc() []EmailRecord {
	out := append([]EmailRecord(nil), r.Records...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Importance > out[j].Importance
	})
	return out
}

// Critical returns the level 5 records in importance order.
func (r *Report) Critical() []EmailRecord {
	var out []EmailRecord
	for _, rec := range r.ByImportanceDesc() {
		if rec.Importance == 5 {
			out = append(out, rec)
		}
	}
	return out
}
