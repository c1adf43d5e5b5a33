package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/conorfennell/prepdeck/internal/domain"
	"github.com/conorfennell/prepdeck/internal/gitsource"
	"github.com/conorfennell/prepdeck/internal/importer"
	"github.com/conorfennell/prepdeck/internal/interchange"
	"github.com/spf13/cobra"
)

// dataFormat resolves the interchange format from --format, then from the
// file name, then falls back to CSV.
func dataFormat(cmd *cobra.Command, path string) (interchange.Format, error) {
	if f, _ := cmd.Flags().GetString("format"); f != "" {
		return interchange.ParseFormat(f)
	}
	if f, ok := interchange.FormatFromPath(path); ok {
		return f, nil
	}
	return interchange.CSV, nil
}

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file|dir|git-url|->",
		Short: "Import entries from CSV, YAML or markdown notes",
		Long: "Import entries from a file, a directory walked for .csv, .yaml, .yml and .md files,\n" +
			"or a git repository that is cloned (or pulled) into the cache dir. Use - to read\n" +
			"stdin. Records carrying review columns keep their review state. Entries already\n" +
			"present with the same content are skipped.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			im := importer.New(a.repo,
				importer.WithGit(gitsource.New(a.log.Named("git"), nil), a.cfg.Import.CacheDir),
				importer.WithLogger(a.log.Named("import")),
			)

			var (
				sum importer.Summary
				err error
			)
			formatSet := cmd.Flags().Changed("format")
			switch {
			case target == "-":
				f, ferr := dataFormat(cmd, "")
				if ferr != nil {
					return ferr
				}
				sum, err = im.ImportReader(cmd.Context(), cmd.InOrStdin(), f, "stdin")
			case formatSet && isRegularFile(target):
				sum, err = importFileAs(cmd, im, target)
			default:
				sum, err = im.Import(cmd.Context(), target)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "added %d, restored %d, unchanged %d, rejected %d\n",
				sum.Added, sum.Restored, sum.Unchanged, len(sum.Rejected))
			for _, rerr := range sum.Rejected {
				fmt.Fprintf(cmd.ErrOrStderr(), "rejected: %v\n", rerr)
			}
			if err != nil {
				return err
			}
			if n := len(sum.Rejected); n > 0 {
				return fmt.Errorf("%d record(s) rejected: %w", n, domain.ErrValidation)
			}
			return nil
		},
	}
	cmd.Flags().String("cache-dir", "", "Where git sources are checked out")
	return cmd
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func importFileAs(cmd *cobra.Command, im *importer.Importer, path string) (importer.Summary, error) {
	f, err := dataFormat(cmd, path)
	if err != nil {
		return importer.Summary{}, err
	}
	file, err := os.Open(path)
	if err != nil {
		return importer.Summary{}, err
	}
	defer file.Close()
	return im.ImportReader(cmd.Context(), file, f, path)
}

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export entries with their review state",
		Long: "Export entries as CSV (default), YAML or markdown. The format follows --format,\n" +
			"then the file extension. Without a file the export goes to stdout.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			f, err := dataFormat(cmd, path)
			if err != nil {
				return err
			}
			recs := a.repo.List(cmd.Context(), filterFrom(cmd))

			if path == "" {
				return interchange.Encode(cmd.OutOrStdout(), f, recs)
			}
			if err := writeFile(path, func(w io.Writer) error {
				return interchange.Encode(w, f, recs)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d entries to %s\n", len(recs), path)
			return nil
		},
	}
	addFilterFlags(cmd)
	return cmd
}

// writeFile writes through a temp file renamed into place. A failed export
// leaves any existing file untouched.
func writeFile(path string, fn func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".prepdeck-export-*")
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := fn(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	return nil
}
