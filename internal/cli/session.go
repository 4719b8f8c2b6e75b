package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// SessionOptions holds flags for the session commands.
type SessionOptions struct {
	*RootOptions
	Server  string
	Timeout time.Duration
}

// NewSessionCommand creates the session command group, a client for a
// running bridge's control surface.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Start, stop or inspect the recognition session of a running bridge",
	}
	cmd.PersistentFlags().StringVar(&opts.Server, "server", "", "control surface URL (defaults to the configured http address)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "request timeout")

	cmd.AddCommand(&cobra.Command{
		Use:           "start",
		Short:         "Start a new session and print its id",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, http.MethodPost, "/api/session/start", nil)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "stop [session-id]",
		Short:         "Stop the given session, or the current one",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var body any
			if len(args) == 1 {
				body = map[string]string{"session_id": args[0]}
			}
			return opts.call(cmd, http.MethodPost, "/api/session/stop", body)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "state",
		Short:         "Print the session state",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, http.MethodGet, "/api/session", nil)
		},
	})

	return cmd
}

func (o *SessionOptions) baseURL() (string, error) {
	server := o.Server
	if server == "" {
		cfg, err := o.loadConfig()
		if err != nil {
			return "", err
		}
		if cfg.HTTP.Address == "" {
			return "", WrapExitError(ExitCommandError, "no control surface", fmt.Errorf("set --server or http.address"))
		}
		server = cfg.HTTP.Address
	}
	if strings.HasPrefix(server, ":") {
		server = "127.0.0.1" + server
	}
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	return strings.TrimRight(server, "/"), nil
}

// call sends one request and prints the JSON response body.
func (o *SessionOptions) call(cmd *cobra.Command, method, path string, body any) error {
	base, err := o.baseURL()
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return WrapExitError(ExitFailure, "encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(cmd.Context(), method, base+path, reader)
	if err != nil {
		return WrapExitError(ExitCommandError, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: o.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return WrapExitError(ExitFailure, "contact bridge", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return WrapExitError(ExitFailure, "read response", err)
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return WrapExitError(ExitFailure, resp.Status, fmt.Errorf("%s", e.Error))
		}
		return WrapExitError(ExitFailure, resp.Status, nil)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		out.Reset()
		out.Write(data)
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(out.String()))
	return nil
}
