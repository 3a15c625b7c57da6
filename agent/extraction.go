package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Extraction holds the email fields read from one screenshot, as the model
// reported them. Validation against the category set happens downstream.
type Extraction struct {
	Sender     string `json:"sender"`
	Subject    string `json:"subject"`
	Summary    string `json:"content_summary"`
	Category   string `json:"email_type"`
	Importance int    `json:"importance_level"`
	DateTime   string `json:"date_time"`
	KeyInfo    string `json:"key_information"`

	// Fallback is set when the fields were scraped from free text.
	Fallback bool `json:"-"`
}

const fallbackSummaryLen = 500

var (
	senderLineRe  = regexp.MustCompile(`(?i)sender[:\s]+([^\n]+)`)
	subjectLineRe = regexp.MustCompile(`(?i)subject[:\s]+([^\n]+)`)
)

// rawExtraction tolerates loose types; models put numbers in strings and vice versa.
type rawExtraction struct {
	Sender        any `json:"sender"`
	Subject       any `json:"subject"`
	Summary       any `json:"content_summary"`
	Type          any `json:"email_type"`
	Category      any `json:"category"`
	Importance    any `json:"importance_level"`
	ImportanceAlt any `json:"importance"`
	DateTime      any `json:"date_time"`
	KeyInfo       any `json:"key_information"`
}

// ParseExtraction reads an extract-mode response: strict JSON first, then a
// repaired JSON object, then sender/subject lines scraped from the text.
func ParseExtraction(raw string) (*Extraction, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty extraction response")
	}

	block := jsonBlock(raw)
	if block != "" {
		var r rawExtraction
		if err := json.Unmarshal([]byte(block), &r); err == nil {
			return r.normalize(), nil
		}
		if repaired, err := jsonrepair.JSONRepair(block); err == nil {
			if err := json.Unmarshal([]byte(repaired), &r); err == nil {
				return r.normalize(), nil
			}
		}
	}

	ex := &Extraction{Fallback: true, Summary: truncateRunes(raw, fallbackSummaryLen)}
	if m := senderLineRe.FindStringSubmatch(raw); m != nil {
		ex.Sender = cleanField(m[1])
	}
	if m := subjectLineRe.FindStringSubmatch(raw); m != nil {
		ex.Subject = cleanField(m[1])
	}
	return ex, nil
}

// jsonBlock returns the text between the first '{' and the last '}'.
func jsonBlock(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	end := strings.LastIndexByte(s, '}')
	if end < start {
		// truncated output; let the repair pass close it
		return s[start:]
	}
	return s[start : end+1]
}

func (r rawExtraction) normalize() *Extraction {
	category := str(r.Type)
	if category == "" {
		category = str(r.Category)
	}
	importance := r.Importance
	if importance == nil {
		importance = r.ImportanceAlt
	}
	return &Extraction{
		Sender:     str(r.Sender),
		Subject:    str(r.Subject),
		Summary:    str(r.Summary),
		Category:   category,
		Importance: toInt(importance),
		DateTime:   str(r.DateTime),
		KeyInfo:    str(r.KeyInfo),
	}
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			if s := str(p); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// toInt returns 0 for anything that is not a whole number.
func toInt(v any) int {
	switch t := v.(type) {
	case float64:
		if t == float64(int(t)) {
			return int(t)
		}
	case string:
		s := strings.TrimSpace(t)
		if i := strings.IndexByte(s, '/'); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}

func cleanField(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"',*`)
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
