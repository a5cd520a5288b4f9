package cmd

import (
	"fmt"
	"time"

	"github.com/sarchlab/actsim/config"
	"github.com/sarchlab/actsim/datarecording"
	"github.com/spf13/cobra"
)

type eventsOptions struct {
	kind  string
	limit int
	info  bool
}

var eventsOpts eventsOptions

var eventsCmd = &cobra.Command{
	Use:   "events [recording]",
	Short: "List the simulation events of a recorded run.",
	Long: `List the simulation events of a run recorded with --record. ` +
		`Without an argument, the recording path from the config is read.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := ""
		if len(args) == 1 {
			file = args[0]
		} else {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if cfg.Recording.Path == "" {
				return fmt.Errorf("no recording given and no recording path configured")
			}

			file = cfg.Recording.Path + ".sqlite3"
		}

		return listEvents(cmd, file, eventsOpts)
	},
}

func listEvents(cmd *cobra.Command, file string, opts eventsOptions) error {
	reader, err := datarecording.OpenReader(file)
	if err != nil {
		return err
	}
	defer reader.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if opts.info {
		info, err := reader.ExecInfo(ctx)
		if err != nil {
			return err
		}

		for _, i := range info {
			fmt.Fprintf(out, "%-12s %s\n", i.Property+":", i.Value)
		}
		fmt.Fprintln(out)
	}

	events, total, err := reader.Events(ctx, opts.kind, opts.limit)
	if err != nil {
		return err
	}

	for _, e := range events {
		at := time.Unix(0, int64(e.Time*1e9)).Format("15:04:05.000")
		fmt.Fprintf(out, "%s  %-13s speed=%-3d cycles=%-6d paused=%t\n",
			at, e.Kind, e.Speed, e.Cycles, e.Paused)
	}

	if len(events) < total {
		fmt.Fprintf(out, "... %d of %d events shown\n", len(events), total)
	}

	return nil
}

func init() {
	f := eventsCmd.Flags()
	f.StringVar(&eventsOpts.kind, "kind", "",
		"Only list events of this kind (started, stopped, disabled, speed_changed, new_act_cycle)")
	f.IntVar(&eventsOpts.limit, "limit", 0, "List at most this many events")
	f.BoolVar(&eventsOpts.info, "info", false, "Also print how the run was started")

	rootCmd.AddCommand(eventsCmd)
}
