package qa

import (
	"fmt"
	"strings"
)

// Markdown renders qa_summary.md: counts, the ranked suspicious list,
// conflicts and the regression table.
func (r *Report) Markdown(title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# QA summary: %s\n\n", title)
	fmt.Fprintf(&b, "- mode: %s\n", r.Mode)
	fmt.Fprintf(&b, "- files: %d\n", r.Total)
	fmt.Fprintf(&b, "- in review queue: %d\n", len(r.Queue))
	for _, f := range AllFlags {
		if n := r.Counts[f]; n > 0 {
			fmt.Fprintf(&b, "- %s: %d\n", f, n)
		}
	}

	b.WriteString("\n## Review queue\n\n")
	if len(r.Queue) == 0 {
		b.WriteString("Nothing flagged.\n")
	} else {
		b.WriteString("| rank | file | score | flags | contact | offset |\n")
		b.WriteString("|---:|---|---:|---|---:|---|\n")
		for _, q := range r.Queue {
			m := r.Files[q.File].Metrics
			fmt.Fprintf(&b, "| %d | %s | %.3f | %s | %d | (%.1f, %.1f) |\n",
				q.Rank, q.File, q.Score, joinFlags(q.Flags),
				m.OuterRingContactInk, m.CenterOffset[0], m.CenterOffset[1])
		}
	}

	if len(r.Conflicts) > 0 {
		b.WriteString("\n## Conflicts\n\n")
		for _, c := range r.Conflicts {
			fmt.Fprintf(&b, "- `%s` %s\n", c.Code, describe(c.Page, c.Lane, c.Position, c.File, c.Message))
		}
	}

	if len(r.Regression) > 0 {
		b.WriteString("\n## Regression cases\n\n")
		b.WriteString("| file | status | flags |\n|---|---|---|\n")
		for _, rr := range r.Regression {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", rr.File, rr.Status, joinFlags(rr.Flags))
		}
	}
	return b.String()
}

func joinFlags(fs Flags) string {
	if len(fs) == 0 {
		return "-"
	}
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}

func describe(page string, lane, pos int, file, msg string) string {
	var where []string
	if page != "" {
		where = append(where, "page "+page)
	}
	if lane >= 0 {
		where = append(where, fmt.Sprintf("lane %d", lane))
	}
	if pos >= 0 {
		where = append(where, fmt.Sprintf("pos %d", pos))
	}
	if file != "" {
		where = append(where, file)
	}
	if len(where) == 0 {
		return msg
	}
	return "(" + strings.Join(where, ", ") + ") " + msg
}
