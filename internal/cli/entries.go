package cli

import (
	"fmt"

	"github.com/conorfennell/prepdeck/internal/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func addEntryFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("id", "", "Entry id")
	f.String("category", "", "Category, e.g. behavioral or domain-technical")
	f.String("prompt", "", "Question to rehearse")
	f.String("answer", "", "Model answer")
	f.StringSlice("tags", nil, "Comma-separated tags")
	f.Int("difficulty", 0, "Difficulty from 1 (easy) to 5 (hard)")
	f.String("source", "", "Where the material came from")
}

func newAddCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an entry",
		Long:  "Add an entry. A random id is generated when --id is not given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			var e domain.Entry
			e.ID, _ = f.GetString("id")
			e.Category, _ = f.GetString("category")
			e.Prompt, _ = f.GetString("prompt")
			e.Answer, _ = f.GetString("answer")
			e.Tags, _ = f.GetStringSlice("tags")
			e.Difficulty, _ = f.GetInt("difficulty")
			e.Source, _ = f.GetString("source")
			if e.ID == "" {
				e.ID = uuid.NewString()
			}

			added, err := a.repo.Add(cmd.Context(), e)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", added.ID)
			return nil
		},
	}
	addEntryFlags(cmd)
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show an entry and its review state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.repo.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeRecord(cmd.OutOrStdout(), screenFormat(cmd), rec)
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries in insertion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs := a.repo.List(cmd.Context(), filterFrom(cmd))
			return writeRecords(cmd.OutOrStdout(), screenFormat(cmd), recs, a.now())
		},
	}
	addFilterFlags(cmd)
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change the content of an entry",
		Long:  "Change the content of an entry. Only the flags given are changed; the review state is kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := fieldsFrom(cmd)
			if err != nil {
				return err
			}
			if fields == (domain.Fields{}) {
				return &domain.ValidationError{ID: args[0], Field: "fields", Reason: "nothing to update"}
			}
			e, err := a.repo.Update(cmd.Context(), args[0], fields)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", e.ID)
			return nil
		},
	}
	addEntryFlags(cmd)
	return cmd
}

// fieldsFrom collects the entry flags set on the command line.
func fieldsFrom(cmd *cobra.Command) (domain.Fields, error) {
	f := cmd.Flags()
	var fields domain.Fields
	str := func(name string) *string {
		if !f.Changed(name) {
			return nil
		}
		v, _ := f.GetString(name)
		return &v
	}
	fields.ID = str("id")
	fields.Category = str("category")
	fields.Prompt = str("prompt")
	fields.Answer = str("answer")
	fields.Source = str("source")
	if f.Changed("tags") {
		tags, err := f.GetStringSlice("tags")
		if err != nil {
			return fields, err
		}
		fields.Tags = &tags
	}
	if f.Changed("difficulty") {
		d, err := f.GetInt("difficulty")
		if err != nil {
			return fields, err
		}
		fields.Difficulty = &d
	}
	return fields, nil
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an entry and its review state",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.repo.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}
