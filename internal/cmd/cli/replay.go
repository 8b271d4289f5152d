package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rzbill/vizsync/internal/cmd/replay"
	"github.com/rzbill/vizsync/internal/filter"
)

func newReplayCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay NAME",
		Short: "Replay a session as JSON lines of synchronized frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			mode, _ := flags.GetString("mode")
			rate, _ := flags.GetFloat64("rate")
			speed, _ := flags.GetFloat64("speed")
			lookAhead, _ := flags.GetFloat64("look-ahead")
			streams, _ := flags.GetStringSlice("streams")
			expr, _ := flags.GetString("filter")
			track, _ := flags.GetString("track")
			follow, _ := flags.GetBool("follow")
			group, _ := flags.GetString("group")
			resume, _ := flags.GetBool("resume")
			metricsAddr, _ := flags.GetString("metrics-addr")

			if len(streams) > 0 && expr != "" {
				return fmt.Errorf("--streams and --filter are mutually exclusive")
			}
			var f filter.Filter
			switch {
			case len(streams) > 0:
				f = filter.Streams(streams...)
			case expr != "":
				cf, err := filter.CEL(expr)
				if err != nil {
					return err
				}
				f = cf
			}

			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			opts := replay.Options{
				Config:        cfg,
				Session:       args[0],
				Mode:          replay.Mode(mode),
				FrameRate:     rate,
				Speed:         speed,
				LookAhead:     lookAhead,
				Filter:        f,
				TrackedObject: track,
				Follow:        follow,
				Group:         group,
				Resume:        resume,
				MetricsAddr:   metricsAddr,
				Out:           cmd.OutOrStdout(),
				Logger:        logger,
			}
			if follow {
				opts.Input = cmd.InOrStdin()
			}
			if flags.Changed("start") {
				v, _ := flags.GetFloat64("start")
				opts.Start = &v
			}
			if flags.Changed("end") {
				v, _ := flags.GetFloat64("end")
				opts.End = &v
			}
			_, err = replay.Run(cmd.Context(), opts)
			return err
		},
	}
	f := cmd.Flags()
	f.String("mode", string(replay.ModeLog), "Synchronizer: log|buffer")
	f.Float64("start", 0, "Playback start time (default: first timeslice)")
	f.Float64("end", 0, "Playback end time (default: last timeslice)")
	f.Float64("rate", 0, "Frames per second of session time (default: playbackFrameRate)")
	f.Float64("speed", 0, "Wall-clock pacing multiple; 0 plays as fast as possible")
	f.Float64("look-ahead", 0, "Look-ahead offset in seconds")
	f.StringSlice("streams", nil, "Only include these streams")
	f.String("filter", "", "CEL expression over stream and segments selecting streams")
	f.String("track", "", "Tracked object id")
	f.Bool("follow", false, "Ingest JSON timeslices from stdin and keep playing (buffer mode)")
	f.String("group", "", "Commit the playhead under this cursor group")
	f.Bool("resume", false, "Start from the playhead committed for --group")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}
