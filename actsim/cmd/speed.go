package cmd

import (
	"fmt"
	"strconv"

	"github.com/sarchlab/actsim/config"
	"github.com/sarchlab/actsim/datarecording"
	"github.com/sarchlab/actsim/sim"
	"github.com/spf13/cobra"
)

var speedCmd = &cobra.Command{
	Use:   "speed [value]",
	Short: "Show or set the speed the next run starts with.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		if cfg.Recording.SpeedPath == "" {
			return fmt.Errorf("no speed_path configured")
		}

		store, err := datarecording.OpenSpeedStore(cfg.Recording.SpeedPath, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()

		if len(args) == 1 {
			speed, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid speed %q: %w", args[0], err)
			}

			speed = sim.ClampSpeed(speed)
			if err := store.Save(speed); err != nil {
				return err
			}

			fmt.Fprintf(out, "speed set to %d\n", speed)

			return nil
		}

		speed, ok, err := store.Load()
		if err != nil {
			return err
		}

		if !ok {
			fmt.Fprintf(out, "no speed stored, runs start at %d\n",
				cfg.Simulation.InitialSpeed)
			return nil
		}

		fmt.Fprintf(out, "speed %d (delay %v)\n", speed, sim.Delay(speed))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(speedCmd)
}
