package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ReportFile = "mail_analysis_report.txt"
	DataFile   = "mail_analysis_data.json"
)

var (
	rule  = strings.Repeat("=", 80)
	thinr = strings.Repeat("-", 80)
)

func importanceText(level int) string {
	if level < 1 || level > 5 {
		return Unknown
	}
	return fmt.Sprintf("%d/5", level)
}

// Text renders the human-readable report.
func (r *Report) Text() string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("%s", rule)
	line("MAIL CONTENT ANALYSIS REPORT")
	line("%s", rule)
	line("Generated: %s", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	line("Total Emails Analyzed: %d", len(r.Records))
	line("")

	line("SUMMARY BY EMAIL TYPE")
	line("%s", thinr)
	for _, c := range r.ByCategory {
		line("%s: %d email(s)", c.Category, c.Count)
	}
	line("")

	line("SUMMARY BY IMPORTANCE LEVEL")
	line("%s", thinr)
	for level := 5; level >= 1; level-- {
		if n := r.ByImportance[level]; n > 0 {
			line("Level %d (%s): %d email(s)", level, ImportanceLabel(level), n)
		}
	}
	if r.UnknownImportance > 0 {
		line("Unknown: %d email(s)", r.UnknownImportance)
	}
	line("")

	if critical := r.Critical(); len(critical) > 0 {
		line("HIGHEST IMPORTANCE EMAILS (LEVEL 5)")
		line("%s", thinr)
		for i, rec := range critical {
			line("\nHigh-Priority Email #%d", i+1)
			line("  Sender: %s", rec.Sender)
			line("  Subject: %s", rec.Subject)
			line("  Type: %s", rec.Category)
			line("  Date/Time: %s", rec.DateTime)
			line("  Importance: %s", importanceText(rec.Importance))
			line("  Content Summary: %s", rec.Summary)
			if rec.HasKeyInfo() {
				line("  Key Information: %s", rec.KeyInfo)
			}
			if rec.Screenshot != "" {
				line("  Screenshot: %s", rec.Screenshot)
			}
			line("")
		}
		line("")
	}

	line("DETAILED EMAIL INFORMATION")
	line("%s", thinr)
	for i, rec := range r.ByImportanceDesc() {
		line("\nEmail #%d", i+1)
		line("  Sender: %s", rec.Sender)
		line("  Subject: %s", rec.Subject)
		line("  Type: %s", rec.Category)
		line("  Importance: %s", importanceText(rec.Importance))
		line("  Date/Time: %s", rec.DateTime)
		line("  Content Summary: %s", rec.Summary)
		if rec.HasKeyInfo() {
			line("  Key Information: %s", rec.KeyInfo)
		}
		line("")
	}

	line("STATISTICS")
	line("%s", thinr)
	if r.MeanImportance != nil {
		line("Average Importance Level: %.2f/5", *r.MeanImportance)
	} else {
		line("Average Importance Level: N/A")
	}
	if r.TopSender != nil {
		line("Most Common Sender: %s (%d email(s))", r.TopSender.Sender, r.TopSender.Count)
	}
	line("Screenshots Examined: %d", r.Examined)
	line("Screenshots Skipped: %d", r.Skipped)

	line("")
	b.WriteString(rule)
	return b.String()
}

// JSON renders the structured document: the same facts as Text.
func (r *Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return append(data, '\n'), nil
}

// Markdown is a short summary for terminal rendering.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Mail analysis\n\n**%d** email(s) from %d screenshot(s), %d skipped.\n\n",
		len(r.Records), r.Examined, r.Skipped)
	if len(r.ByCategory) > 0 {
		b.WriteString("| Type | Count |\n|---|---|\n")
		for _, c := range r.ByCategory {
			fmt.Fprintf(&b, "| %s | %d |\n", c.Category, c.Count)
		}
		b.WriteString("\n")
	}
	if critical := r.Critical(); len(critical) > 0 {
		b.WriteString("## Critical\n\n")
		for _, rec := range critical {
			fmt.Fprintf(&b, "- **%s** from %s\n", rec.Subject, rec.Sender)
		}
		b.WriteString("\n")
	}
	if r.MeanImportance != nil {
		fmt.Fprintf(&b, "Average importance: %.2f/5\n", *r.MeanImportance)
	}
	return b.String()
}
