package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/vizsync/internal/ingest"
	"github.com/rzbill/vizsync/internal/session"
)

func newSessionCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Session operations"}
	cmd.AddCommand(
		newSessionCreateCommand(g),
		newSessionImportCommand(g),
		newSessionListCommand(g),
		newSessionInspectCommand(g),
		newSessionTrimCommand(g),
		newSessionDeleteCommand(g),
	)
	return cmd
}

func newSessionCreateCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "create NAME",
		Short: "Create a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, err := g.openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			m, err := rt.EnsureSession(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session: %s id: %s\n", m.Name, m.ID)
			return nil
		},
	}
}

func newSessionImportCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import NAME [FILE]",
		Short: "Import JSON timeslices into a session (stdin when FILE is - or omitted)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, _ := cmd.Flags().GetInt("batch")

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 2 && args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			rt, logger, err := g.openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			if _, err := rt.EnsureSession(args[0]); err != nil {
				return err
			}
			l, err := rt.OpenLog(args[0])
			if err != nil {
				return err
			}
			im := ingest.New(rt.DB(), l, ingest.Options{
				BatchSize:   batch,
				Blacklisted: rt.Config().Blacklisted,
				Logger:      logger,
			})
			res, err := im.Import(cmd.Context(), in)
			fmt.Fprintf(cmd.OutOrStdout(), "imported: %d timeslices (%d new records, %d streams dropped)\n",
				res.Timeslices, res.NewRecords, res.DroppedStreams)
			return err
		},
	}
	cmd.Flags().Int("batch", 512, "Timeslices per atomic append")
	return cmd
}

func newSessionListCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			rt, _, err := g.openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			list, err := session.List(rt.DB())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTIMESLICES\tSTART\tEND\tSTREAMS\tUPDATED")
			now := time.Now()
			for _, m := range list {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s ago\n", m.Name, m.Timeslices,
					formatTime(m.StartTime), formatTime(m.EndTime), len(m.Streams),
					m.Age(now).Truncate(time.Second))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

type inspectOutput struct {
	Session session.Meta       `json:"session"`
	Records int                `json:"records"`
	First   float64            `json:"first"`
	Last    float64            `json:"last"`
	Cursors map[string]float64 `json:"cursors,omitempty"`
	DiskMiB float64            `json:"diskMiB"`
}

func newSessionInspectCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect NAME",
		Short: "Show session metadata, log statistics and playhead cursors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, _ := cmd.Flags().GetStringSlice("group")
			rt, _, err := g.openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			m, err := rt.Session(args[0])
			if err != nil {
				return err
			}
			l, err := rt.OpenLog(args[0])
			if err != nil {
				return err
			}
			st := l.Stats()
			out := inspectOutput{
				Session: m,
				Records: st.Count,
				First:   st.First,
				Last:    st.Last,
				DiskMiB: float64(rt.DB().DiskUsage()) / (1 << 20),
			}
			for _, grp := range groups {
				if t, err := l.GetCursor(grp); err == nil {
					if out.Cursors == nil {
						out.Cursors = map[string]float64{}
					}
					out.Cursors[grp] = t
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringSlice("group", nil, "Cursor groups to show")
	return cmd
}

func newSessionTrimCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trim NAME",
		Short: "Delete old timeslices by time or by total size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, _ := cmd.Flags().GetString("before")
			maxBytes, _ := cmd.Flags().GetInt64("max-bytes")
			batch, _ := cmd.Flags().GetInt("batch")
			throttle, _ := cmd.Flags().GetDuration("throttle")
			if (before == "") == (maxBytes < 0) {
				return fmt.Errorf("exactly one of --before or --max-bytes is required")
			}

			rt, _, err := g.openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			l, err := rt.OpenLog(args[0])
			if err != nil {
				return err
			}
			var n int
			if before != "" {
				cutoff, perr := strconv.ParseFloat(before, 64)
				if perr != nil {
					return fmt.Errorf("invalid --before: %w", perr)
				}
				n, err = l.TrimBefore(cmd.Context(), cutoff, batch, throttle)
			} else {
				n, err = l.TrimToMaxBytes(cmd.Context(), maxBytes, batch, throttle)
			}
			if err != nil {
				return err
			}
			st := l.Stats()
			if _, err := session.Update(rt.DB(), args[0], func(m *session.Meta) error {
				m.Timeslices, m.StartTime, m.EndTime = st.Count, st.First, st.Last
				return nil
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "trimmed: %d timeslices, %d remaining\n", n, st.Count)
			return nil
		},
	}
	cmd.Flags().String("before", "", "Delete timeslices with timestamp < this value")
	cmd.Flags().Int64("max-bytes", -1, "Delete the oldest timeslices until the log fits in this many bytes")
	cmd.Flags().Int("batch", 1024, "Deletes per committed batch")
	cmd.Flags().Duration("throttle", 0, "Pause between batches")
	return cmd
}

func newSessionDeleteCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a session and its timeslices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, err := g.openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := session.Delete(cmd.Context(), rt.DB(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted:", args[0])
			return nil
		},
	}
}

func formatTime(t float64) string {
	return strings.TrimRight(strings.TrimRight(strconv.FormatFloat(t, 'f', 3, 64), "0"), ".")
}
