package command

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mynul56/smart-parking-ai/internal/service"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [lot-id]",
	Short: "Recompute available_slots from slot statuses",
	Long: `Recompute the cached available_slots counter of one lot, or of every
lot when no id is given, from the statuses of its slots. Corrected lots
are printed as JSON drift records.`,
	Args: cobra.MaximumNArgs(1),
	RunE: reconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func reconcile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	// no broadcaster: nobody is connected to this process
	r := service.NewReconciler(store.lots, store.slotState, nil)

	drifts := []service.Drift{}
	if len(args) == 1 {
		lotID, err := strconv.Atoi(args[0])
		if err != nil || lotID <= 0 {
			return fmt.Errorf("invalid lot id %q", args[0])
		}
		d, err := r.ReconcileLot(ctx, lotID)
		if err != nil {
			return err
		}
		if d != nil {
			drifts = append(drifts, *d)
		}
	} else {
		if drifts, err = r.ReconcileAll(ctx); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(drifts)
}
