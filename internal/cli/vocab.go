package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/signbridge/internal/store"
	"github.com/ayusman/signbridge/internal/vocabulary"
)

// StoreOptions selects the database for commands that edit it offline.
type StoreOptions struct {
	*RootOptions
	Database string
}

func (o *StoreOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "SQLite database path (defaults to the configured store)")
}

// openStore opens --db, or the configured store path.
func (o *StoreOptions) openStore() (*store.Store, error) {
	path := o.Database
	if path == "" {
		cfg, err := o.loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Store.Path
	}
	if path == "" {
		return nil, WrapExitError(ExitCommandError, "no database", errors.New("set --db or store.path"))
	}
	s, err := store.New(path)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "open store", err)
	}
	return s, nil
}

// NewVocabCommand creates the vocab command group.
func NewVocabCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Manage the sign vocabulary",
	}
	cmd.AddCommand(newVocabImportCommand(rootOpts))
	cmd.AddCommand(newVocabListCommand(rootOpts))
	return cmd
}

func newVocabImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Compile a YAML sign catalog into the store",
		Long: `Compile a YAML sign catalog and replace the stored catalog with it.
A running bridge picks it up on POST /api/vocabulary/reload.

Example:
  signbridge vocab import signs.yaml --db ./signbridge.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := vocabulary.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "read catalog", err)
			}
			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			v, err := vocabulary.Import(s, f)
			if err != nil {
				return WrapExitError(ExitFailure, "import catalog", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d signs, version %s\n", v.Len(), v.Version)
			return nil
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func newVocabListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}
	var builtin bool

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List the stored sign catalog",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var v *vocabulary.Vocabulary
			if builtin {
				v = vocabulary.Default()
			} else {
				s, err := opts.openStore()
				if err != nil {
					return err
				}
				defer s.Close()

				v, err = vocabulary.FromStore(s)
				if errors.Is(err, vocabulary.ErrEmptyCatalog) {
					fmt.Fprintln(cmd.OutOrStdout(), "no catalog imported; the bridge uses the built-in signs (--builtin)")
					return nil
				}
				if err != nil {
					return WrapExitError(ExitFailure, "read catalog", err)
				}
			}
			return printVocabulary(cmd, v)
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().BoolVar(&builtin, "builtin", false, "list the built-in signs instead")
	return cmd
}

func printVocabulary(cmd *cobra.Command, v *vocabulary.Vocabulary) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "version %s\n", v.Version)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tKIND\tTOLERANCE")
	for _, e := range v.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\n", e.Name, e.Category, e.Kind, e.Tolerance)
	}
	return tw.Flush()
}
