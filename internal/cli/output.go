package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/conorfennell/prepdeck/internal/domain"
	"github.com/conorfennell/prepdeck/internal/interchange"
	"github.com/spf13/cobra"
)

const formatText = "text"

// screenFormat returns the --format value for output to the terminal.
func screenFormat(cmd *cobra.Command) string {
	f, _ := cmd.Flags().GetString("format")
	if f == "" {
		return formatText
	}
	return strings.ToLower(f)
}

// writeRecords prints records as a table, or in an interchange format.
func writeRecords(w io.Writer, format string, recs []domain.Record, now time.Time) error {
	if format != formatText {
		f, err := interchange.ParseFormat(format)
		if err != nil {
			return err
		}
		return interchange.Encode(w, f, recs)
	}

	if len(recs) == 0 {
		fmt.Fprintln(w, "No entries found.")
		return nil
	}
	fmt.Fprintf(w, "%-24s  %-20s  %-4s  %-10s  %s\n", "ID", "Category", "Diff", "Next due", "Prompt")
	fmt.Fprintln(w, strings.Repeat("─", 90))
	for _, rec := range recs {
		due := rec.Review.NextDue.Format("2006-01-02")
		if rec.Review.IsDue(now) {
			due = "now"
		}
		fmt.Fprintf(w, "%-24s  %-20s  %-4d  %-10s  %s\n",
			truncate(rec.Entry.ID, 24),
			truncate(rec.Entry.Category, 20),
			rec.Entry.Difficulty,
			due,
			truncate(firstLine(rec.Entry.Prompt), 40),
		)
	}
	return nil
}

// writeRecord prints one record in full.
func writeRecord(w io.Writer, format string, rec domain.Record) error {
	if format != formatText {
		return writeRecords(w, format, []domain.Record{rec}, time.Time{})
	}

	e, rs := rec.Entry, rec.Review
	fmt.Fprintf(w, "ID:          %s\n", e.ID)
	fmt.Fprintf(w, "Category:    %s\n", e.Category)
	fmt.Fprintf(w, "Difficulty:  %d\n", e.Difficulty)
	if len(e.Tags) > 0 {
		fmt.Fprintf(w, "Tags:        %s\n", strings.Join(e.Tags, ", "))
	}
	if e.Source != "" {
		fmt.Fprintf(w, "Source:      %s\n", e.Source)
	}
	fmt.Fprintf(w, "Created:     %s\n", formatWhen(e.CreatedAt))
	fmt.Fprintf(w, "\nQ: %s\n\nA: %s\n\n", e.Prompt, e.Answer)
	writeReview(w, rs)
	return nil
}

func writeReview(w io.Writer, rs domain.ReviewState) {
	fmt.Fprintf(w, "Reviews:     %d (streak %d)\n", rs.Reviews, rs.Streak)
	fmt.Fprintf(w, "Ease:        %.2f\n", rs.Ease)
	fmt.Fprintf(w, "Interval:    %.2f days\n", rs.Interval)
	fmt.Fprintf(w, "Last review: %s\n", formatWhen(rs.LastReviewed))
	fmt.Fprintf(w, "Next due:    %s\n", formatWhen(rs.NextDue))
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("category", "", "Only entries in this category")
	cmd.Flags().StringSlice("tag", nil, "Only entries carrying this tag (repeatable)")
}

func filterFrom(cmd *cobra.Command) domain.Filter {
	category, _ := cmd.Flags().GetString("category")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	return domain.Filter{Category: category, Tags: tags}
}
