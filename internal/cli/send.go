package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/ayusman/signbridge/internal/codec"
	"github.com/ayusman/signbridge/internal/landmark"
	"github.com/ayusman/signbridge/internal/transport"
)

// SendOptions holds flags for the send command.
type SendOptions struct {
	*RootOptions
	To        string
	Pose      string
	FPS       float64
	Count     int
	Scale     float64
	Side      string
	SessionID string
	Binary    bool
}

// NewSendCommand creates the send command, a stand-in tracker that replays
// a reference pose at a fixed rate.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send reference pose frames to a bridge",
		Long: fmt.Sprintf(`Encode a reference pose and send it to a bridge over UDP, paced at
--fps. Available poses: %s.

Example:
  signbridge send --pose open_palm --count 60
  signbridge send --to 10.0.0.5:5052 --pose fist --scale 1000 --side R`, strings.Join(poseNames(), ", ")),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.To, "to", fmt.Sprintf("127.0.0.1:%d", transport.DefaultPort), "bridge UDP address")
	cmd.Flags().StringVar(&opts.Pose, "pose", "open_palm", "reference pose to send")
	cmd.Flags().Float64Var(&opts.FPS, "fps", 30, "frames per second")
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 30, "number of frames")
	cmd.Flags().Float64Var(&opts.Scale, "scale", 1, "coordinate scale (1000 sends milli-units)")
	cmd.Flags().StringVar(&opts.Side, "side", "", "hand side tag (L or R)")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "session id tag")
	cmd.Flags().BoolVar(&opts.Binary, "binary", false, "use the binary wire form")

	return cmd
}

func poseNames() []string {
	names := make([]string, 0, len(landmark.Poses))
	for name := range landmark.Poses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runSend(cmd *cobra.Command, opts *SendOptions) error {
	pose, ok := landmark.Poses[opts.Pose]
	if !ok {
		return WrapExitError(ExitCommandError, "unknown pose", fmt.Errorf("%q (have %s)", opts.Pose, strings.Join(poseNames(), ", ")))
	}
	side, err := landmark.ParseSide(opts.Side)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid side", err)
	}
	if opts.FPS <= 0 || opts.Count <= 0 || opts.Scale <= 0 {
		return WrapExitError(ExitCommandError, "invalid flags", fmt.Errorf("fps, count and scale must be positive"))
	}

	c := codec.Codec{Scale: opts.Scale}
	if opts.Binary {
		c.Format = codec.FormatBinary
	}
	sender, err := transport.Dial(opts.To, c)
	if err != nil {
		return WrapExitError(ExitFailure, "dial bridge", err)
	}
	defer sender.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	limiter := rate.NewLimiter(rate.Limit(opts.FPS), 1)

	sent := 0
	for sent < opts.Count {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		f := pose()
		f.Timestamp = time.Now()
		f.Side = side
		f.SessionID = opts.SessionID
		if err := sender.Send(f); err != nil {
			return WrapExitError(ExitFailure, "send frame", err)
		}
		sent++
	}

	fmt.Fprintf(cmd.OutOrStdout(), "sent %d %s frames to %s\n", sent, opts.Pose, opts.To)
	return nil
}
