package analysis

import (
	"strings"

	"mobilepilot/agent"
)

// Category is the closed set of email types a record can carry.
type Category string

const (
	CategoryWork       Category = "Work/Business"
	CategoryPersonal   Category = "Personal/Social"
	CategoryNewsletter Category = "Newsletter/Marketing"
	CategoryOther      Category = "Other"
)

// Categories lists every category in report order.
func Categories() []Category {
	return []Category{CategoryWork, CategoryPersonal, CategoryNewsletter, CategoryOther}
}

// Unknown stands in for any text field the model did not provide.
const Unknown = "Unknown"

// EmailRecord is one extracted email. Importance is 1-5, or 0 when unknown.
type EmailRecord struct {
	Sender     string   `json:"sender"`
	Subject    string   `json:"subject"`
	Summary    string   `json:"content_summary"`
	Category   Category `json:"email_type"`
	Importance int      `json:"importance_level"`
	DateTime   string   `json:"date_time"`
	KeyInfo    string   `json:"key_information"`

	Screenshot  string   `json:"screenshot_path"`
	Screenshots []string `json:"screenshots,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// ParseCategory maps a model label onto the closed set; anything
// unrecognised is Other.
func ParseCategory(s string) Category {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return CategoryOther
	case strings.HasPrefix(s, "work"), strings.HasPrefix(s, "business"):
		return CategoryWork
	case strings.HasPrefix(s, "personal"), strings.HasPrefix(s, "social"):
		return CategoryPersonal
	case strings.HasPrefix(s, "newsletter"), strings.HasPrefix(s, "marketing"), strings.HasPrefix(s, "promotion"):
		return CategoryNewsletter
	}
	return CategoryOther
}

// ValidImportance returns n when it is in 1-5 and 0 otherwise.
func ValidImportance(n int) int {
	if n < 1 || n > 5 {
		return 0
	}
	return n
}

func known(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "n/a", "na", "null", "none", "unknown", "not visible":
		return false
	}
	return true
}

func textOrUnknown(s string) string {
	if !known(s) {
		return Unknown
	}
	return strings.TrimSpace(s)
}

// NewRecord normalises an extraction into a record for the given screenshot.
func NewRecord(ex *agent.Extraction, screenshot string) EmailRecord {
	if ex == nil {
		ex = &agent.Extraction{}
	}
	return EmailRecord{
		Sender:      textOrUnknown(ex.Sender),
		Subject:     textOrUnknown(ex.Subject),
		Summary:     textOrUnknown(ex.Summary),
		Category:    ParseCategory(ex.Category),
		Importance:  ValidImportance(ex.Importance),
		DateTime:    textOrUnknown(ex.DateTime),
		KeyInfo:     textOrUnknown(ex.KeyInfo),
		Screenshot:  screenshot,
		Screenshots: []string{screenshot},
	}
}

// ErrorRecord is what a failed extraction degrades to.
func ErrorRecord(err error, screenshot string) EmailRecord {
	r := NewRecord(nil, screenshot)
	r.Summary = "Error analyzing screenshot: " + err.Error()
	r.Error = err.Error()
	return r
}

func (r EmailRecord) HasKeyInfo() bool {
	return known(r.KeyInfo)
}

var (
	emailIndicators = []string{"email", "mail", "message", "sent", "received", "subject", "from"}
	listIndicators  = []string{"list", "inbox", "folder"}
)

// IsEmailContent guesses whether the record came from an open email rather
// than a list, home screen or other view.
func (r EmailRecord) IsEmailContent() bool {
	subject := strings.ToLower(r.Subject)
	summary := strings.ToLower(r.Summary)
	if !known(r.Summary) {
		summary = ""
	}

	if known(r.Subject) && len([]rune(subject)) > 3 {
		return true
	}
	for _, w := range emailIndicators {
		if strings.Contains(summary, w) {
			return true
		}
	}
	for _, w := range listIndicators {
		if strings.Contains(summary, w) {
			return false
		}
	}
	return len([]rune(summary)) > 20
}

// DedupKey identifies an email by sender and subject, case and whitespace
// insensitive.
func (r EmailRecord) DedupKey() string {
	return normalizeKey(r.Sender) + "|||" + normalizeKey(r.Subject)
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Dedup collapses records with the same key. The survivor is the one with
// the longer summary and takes the position of the first occurrence; its
// Screenshots list every source. Records with neither sender nor subject
// are never merged. The number of dropped records is returned.
func Dedup(records []EmailRecord) ([]EmailRecord, int) {
	out := make([]EmailRecord, 0, len(records))
	pos := make(map[string]int)
	dropped := 0
	for _, r := range records {
		if !known(r.Sender) && !known(r.Subject) {
			out = append(out, r)
			continue
		}
		key := r.DedupKey()
		i, seen := pos[key]
		if !seen {
			pos[key] = len(out)
			out = append(out, r)
			continue
		}
		dropped++
		kept := out[i]
		sources := append(append([]string{}, kept.Screenshots...), r.Screenshots...)
		if len([]rune(r.Summary)) > len([]rune(kept.Summary)) {
			kept = r
		}
		kept.Screenshots = sources
		out[i] = kept
	}
	return out, dropped
}
