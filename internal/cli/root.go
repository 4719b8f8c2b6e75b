// Package cli implements the signbridge command line.
package cli

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ayusman/signbridge/internal/config"
	"github.com/ayusman/signbridge/internal/logging"
)

// Exit codes returned by the signbridge binary.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // runtime failure
	ExitCommandError = 2 // bad configuration or arguments
)

// ExitError carries the exit code for an error.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode extracts the exit code from err. Plain errors map to ExitFailure.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	EnvFile    string
	LogLevel   string
}

// NewRootCommand creates the signbridge root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "signbridge",
		Short: "Hand-landmark to sign event bridge",
		Long: `signbridge receives 3D hand landmarks from a vision tracker over UDP,
recognizes signs while a session is active and publishes them to the
conversation log, websocket clients and plugins.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file (ignored when missing)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log level (trace|debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSendCommand(opts))
	cmd.AddCommand(NewVocabCommand(opts))
	cmd.AddCommand(NewBindCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))

	return cmd
}

// loadConfig reads the layered configuration and applies global flags.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(config.Options{File: o.ConfigFile, EnvFile: o.EnvFile})
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "load config", err)
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
		if err := cfg.Validate(); err != nil {
			return cfg, WrapExitError(ExitCommandError, "load config", err)
		}
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (*logrus.Logger, error) {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configure logging", err)
	}
	return log, nil
}
