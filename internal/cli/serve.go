package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/signbridge/internal/app"
	"github.com/ayusman/signbridge/internal/config"
)

// ServeOptions holds flags for the serve command. Set flags override the
// loaded configuration.
type ServeOptions struct {
	*RootOptions
	UDPAddress      string
	HTTPAddress     string
	Database        string
	VocabularyFile  string
	PluginDir       string
	StaticDir       string
	Scale           float64
	ShutdownTimeout time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge",
		Long: `Bind the UDP landmark endpoint and the HTTP control surface and run
until interrupted.

Example:
  signbridge serve --udp :5052 --http 127.0.0.1:8080 --db ./signbridge.db
  signbridge serve -c signbridge.yaml --scale 1000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.UDPAddress, "udp", "", "UDP listen address")
	cmd.Flags().StringVar(&opts.HTTPAddress, "http", "", "HTTP control surface address (empty string disables)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database path")
	cmd.Flags().StringVar(&opts.VocabularyFile, "vocabulary", "", "YAML sign catalog")
	cmd.Flags().StringVar(&opts.PluginDir, "plugins", "", "plugin directory")
	cmd.Flags().StringVar(&opts.StaticDir, "static", "", "directory served at /")
	cmd.Flags().Float64Var(&opts.Scale, "scale", 0, "coordinate scale of incoming frames (1000 for milli-units)")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 5*time.Second, "grace period for shutdown")

	return cmd
}

// apply copies every flag the user set onto cfg.
func (o *ServeOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("udp") {
		cfg.UDP.Address = o.UDPAddress
	}
	if flags.Changed("http") {
		cfg.HTTP.Address = o.HTTPAddress
	}
	if flags.Changed("db") {
		cfg.Store.Path = o.Database
	}
	if flags.Changed("vocabulary") {
		cfg.Vocabulary.File = o.VocabularyFile
	}
	if flags.Changed("plugins") {
		cfg.Plugins.Dir = o.PluginDir
	}
	if flags.Changed("static") {
		cfg.HTTP.StaticDir = o.StaticDir
	}
	if flags.Changed("scale") {
		cfg.UDP.Scale = o.Scale
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if err := opts.apply(cmd, &cfg); err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	bridge, err := app.New(cfg, log)
	if err != nil {
		return WrapExitError(ExitFailure, "create bridge", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bridge.Start(ctx); err != nil {
		bridge.Close()
		return WrapExitError(ExitFailure, "start bridge", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "signbridge listening on udp %s\n", bridge.UDPAddr())
	if addr := bridge.HTTPAddr(); addr != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "control surface on http://%s\n", addr)
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	if err := bridge.Stop(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "stop bridge", err)
	}
	return nil
}
