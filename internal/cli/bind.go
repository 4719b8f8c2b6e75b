package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ayusman/signbridge/internal/store"
)

// NewBindCommand creates the bind command group, which maps signs to
// plugin actions in the store.
func NewBindCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bind",
		Short: "Manage sign to plugin bindings",
	}
	cmd.AddCommand(newBindSetCommand(rootOpts))
	cmd.AddCommand(newBindListCommand(rootOpts))
	cmd.AddCommand(newBindRemoveCommand(rootOpts))
	return cmd
}

func newBindSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}
	var (
		config   string
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "set <sign> <plugin> <action>",
		Short: "Create or replace the binding for a sign",
		Long: `Create or replace the binding for a sign.

Example:
  signbridge bind set Hello caption-writer append --config '{"file":"captions.txt"}'`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(config)) {
				return WrapExitError(ExitCommandError, "invalid --config", errors.New("not valid JSON"))
			}
			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			b := &store.Binding{
				ID:         uuid.NewString(),
				SignName:   args[0],
				PluginName: args[1],
				ActionName: args[2],
				Config:     json.RawMessage(config),
				Enabled:    !disabled,
			}
			if err := s.Bindings().Save(b); err != nil {
				return WrapExitError(ExitFailure, "save binding", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s/%s\n", b.SignName, b.PluginName, b.ActionName)
			return nil
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().StringVar(&config, "config", "{}", "plugin config JSON")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "store the binding disabled")
	return cmd
}

func newBindListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List bindings",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			bindings, err := s.Bindings().List()
			if err != nil {
				return WrapExitError(ExitFailure, "list bindings", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SIGN\tPLUGIN\tACTION\tENABLED\tCONFIG")
			for _, b := range bindings {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", b.SignName, b.PluginName, b.ActionName, b.Enabled, b.Config)
			}
			return tw.Flush()
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func newBindRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "rm <sign>",
		Short:         "Remove the binding for a sign",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Bindings().Delete(args[0]); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return WrapExitError(ExitCommandError, "no binding for "+args[0], err)
				}
				return WrapExitError(ExitFailure, "remove binding", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed binding for %s\n", args[0])
			return nil
		},
	}
	opts.addFlags(cmd)
	return cmd
}
