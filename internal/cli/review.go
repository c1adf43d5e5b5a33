package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/conorfennell/prepdeck/internal/domain"
	"github.com/conorfennell/prepdeck/internal/schedule"
	"github.com/conorfennell/prepdeck/internal/session"
	"github.com/spf13/cobra"
)

func newReviewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "review <id> <grade>",
		Short: "Record a grade (fail, hard, good, easy) for an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.repo.Get(cmd.Context(), args[0]); err != nil {
				return err
			}
			g, err := schedule.ParseGrade(args[1])
			if err != nil {
				return err
			}
			rs, err := a.repo.Review(cmd.Context(), args[0], g, a.now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s graded %s\n", args[0], g)
			writeReview(out, rs)
			return nil
		},
	}
}

func addSessionFlags(cmd *cobra.Command) {
	addFilterFlags(cmd)
	cmd.Flags().Int("limit", 0, "Maximum number of entries (0 for no limit)")
}

// buildSession collects the due entries for the session flags.
func buildSession(a *app, cmd *cobra.Command) session.Session {
	recs := a.repo.List(cmd.Context(), filterFrom(cmd))
	return session.Build(recs, a.now(), session.Options{Limit: a.cfg.Session.Limit})
}

func newDueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List the entries due for review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := buildSession(a, cmd)
			out := cmd.OutOrStdout()
			if format := screenFormat(cmd); format != formatText {
				recs := make([]domain.Record, 0, s.Len())
				for _, it := range s.Items {
					recs = append(recs, it.Record)
				}
				return writeRecords(out, format, recs, s.At)
			}
			if s.Empty() {
				fmt.Fprintln(out, "Nothing is due.")
				return nil
			}
			fmt.Fprintf(out, "%-24s  %-20s  %-9s  %s\n", "ID", "Category", "Overdue", "Prompt")
			fmt.Fprintln(out, strings.Repeat("─", 90))
			for _, it := range s.Items {
				e := it.Record.Entry
				fmt.Fprintf(out, "%-24s  %-20s  %-9s  %s\n",
					truncate(e.ID, 24),
					truncate(e.Category, 20),
					formatOverdue(it),
					truncate(firstLine(e.Prompt), 40),
				)
			}
			fmt.Fprintf(out, "\n%d due\n", s.Len())
			return nil
		},
	}
	addSessionFlags(cmd)
	return cmd
}

func formatOverdue(it session.Item) string {
	if it.Record.Review.Reviews == 0 {
		return "new"
	}
	days := int(it.Overdue.Hours() / 24)
	if days == 0 {
		return "today"
	}
	return fmt.Sprintf("%dd", days)
}

// errQuit ends a drill early.
var errQuit = errors.New("quit")

func newDrillCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drill",
		Short: "Walk through the due entries interactively",
		Long: "Walk through the due entries. Each prompt is shown first; press Enter to see\n" +
			"the model answer, then grade yourself. Type q at any point to stop.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := buildSession(a, cmd)
			out := cmd.OutOrStdout()
			if s.Empty() {
				fmt.Fprintln(out, "Nothing is due.")
				return nil
			}

			in := bufio.NewScanner(cmd.InOrStdin())
			reviewed := 0
			for i, it := range s.Items {
				g, err := drillOne(in, out, i+1, s.Len(), it)
				if errors.Is(err, errQuit) || errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}
				rs, err := a.repo.Review(cmd.Context(), it.Record.Entry.ID, g, a.now())
				if err != nil {
					return err
				}
				reviewed++
				fmt.Fprintf(out, "Next due %s.\n\n", formatWhen(rs.NextDue))
			}
			fmt.Fprintf(out, "Reviewed %d of %d.\n", reviewed, s.Len())
			return nil
		},
	}
	addSessionFlags(cmd)
	return cmd
}

// drillOne shows one entry and reads a grade for it.
func drillOne(in *bufio.Scanner, out io.Writer, n, total int, it session.Item) (schedule.Grade, error) {
	e := it.Record.Entry
	fmt.Fprintf(out, "[%d/%d] %s  (difficulty %d)\n", n, total, e.Category, e.Difficulty)
	fmt.Fprintf(out, "Q: %s\n", e.Prompt)
	fmt.Fprint(out, "Press Enter for the answer: ")

	line, err := readLine(in)
	if err != nil {
		return 0, err
	}
	if line == "q" {
		return 0, errQuit
	}
	fmt.Fprintf(out, "A: %s\n", e.Answer)

	for {
		fmt.Fprint(out, "Grade (fail, hard, good, easy or 1-4): ")
		line, err := readLine(in)
		if err != nil {
			return 0, err
		}
		if line == "q" {
			return 0, errQuit
		}
		g, err := schedule.ParseGrade(line)
		if err == nil {
			return g, nil
		}
		fmt.Fprintln(out, err)
	}
}

func readLine(in *bufio.Scanner) (string, error) {
	if !in.Scan() {
		if err := in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.ToLower(strings.TrimSpace(in.Text())), nil
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show review statistics per category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := session.Stats(a.repo.List(cmd.Context(), domain.Filter{}), a.now())
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No entries yet.")
				return nil
			}
			fmt.Fprintf(out, "%-20s  %7s  %5s  %5s  %9s\n", "Category", "Entries", "Due", "New", "Mean ease")
			fmt.Fprintln(out, strings.Repeat("─", 54))
			var total, due, fresh int
			for _, r := range rows {
				fmt.Fprintf(out, "%-20s  %7d  %5d  %5d  %9.2f\n", truncate(r.Category, 20), r.Entries, r.Due, r.New, r.MeanEase)
				total += r.Entries
				due += r.Due
				fresh += r.New
			}
			fmt.Fprintf(out, "%-20s  %7d  %5d  %5d\n", "total", total, due, fresh)
			return nil
		},
	}
}
