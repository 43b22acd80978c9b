package command

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/mynul56/smart-parking-ai/internal/simulation"
)

var simulateSeed int64

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a synthetic AI detection agent against the API",
	Long: `Log in with SIM_EMAIL/SIM_PASSWORD, pick the first parking lot and
push weighted random slot observations to it every SIM_INTERVAL, with a
burst of 2 to 4 updates every SIM_BURST_INTERVAL.`,
	RunE: simulate,
}

func init() {
	simulateCmd.Flags().Int64Var(&simulateSeed, "seed", 0, "random seed (default: current time)")
	rootCmd.AddCommand(simulateCmd)
}

func simulate(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Simulation.Password == "" {
		return errors.New("SIM_PASSWORD is required")
	}
	seed := simulateSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	ctx, stop := signalContext()
	defer stop()
	return simulation.NewDriver(cfg.Simulation, nil, seed).Run(ctx)
}
