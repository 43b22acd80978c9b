package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/logging"
	"github.com/mynul56/smart-parking-ai/internal/repository"
)

// Drift describes one lot whose cached counter disagreed with its slots.
type Drift struct {
	LotID  int `json:"lot_id"`
	Before int `json:"before"`
	After  int `json:"after"`
}

// Reconciler recomputes each lot's available_slots from its slot records.
type Reconciler struct {
	lotRepo  repository.ParkingLotRepository
	store    repository.SlotStateStore
	notifier *Notifier
}

func NewReconciler(lotRepo repository.ParkingLotRepository, store repository.SlotStateStore, notifier *Notifier) *Reconciler {
	return &Reconciler{lotRepo: lotRepo, store: store, notifier: notifier}
}

// ReconcileLot returns a nil Drift when the counter was already right.
func (r *Reconciler) ReconcileLot(ctx context.Context, lotID int) (*Drift, error) {
	before, after, err := r.store.RecountAvailable(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if before == after {
		return nil, nil
	}

	d := &Drift{LotID: lotID, Before: before, After: after}
	logging.Warn(ctx, "lot availability drift corrected",
		slog.Int("lot_id", lotID),
		slog.Int("before", before),
		slog.Int("after", after),
	)
	if r.notifier != nil {
		lot, err := r.lotRepo.FindByID(ctx, lotID)
		if err == nil {
			r.notifier.LotCorrected(ctx, *lot, after-before)
		}
	}
	return d, nil
}

func (r *Reconciler) ReconcileAll(ctx context.Context) ([]Drift, error) {
	lots, err := r.lotRepo.FindAll(ctx, domain.ParkingLotFilter{})
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	drifts := []Drift{}
	for _, lot := range lots {
		d, err := r.ReconcileLot(ctx, lot.ID)
		if err != nil {
			return drifts, fmt.Errorf("reconcile lot %d: %w", lot.ID, err)
		}
		if d != nil {
			drifts = append(drifts, *d)
		}
	}
	return drifts, nil
}

// Run reconciles every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logging.Info(ctx, "reconciler started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			logging.Info(ctx, "reconciler stopped")
			return nil
		case <-ticker.C:
			drifts, err := r.ReconcileAll(ctx)
			if err != nil {
				logging.Error(ctx, "reconciliation pass failed", logging.Err(err))
				continue
			}
			logging.Debug(ctx, "reconciliation pass done", slog.Int("drifted_lots", len(drifts)))
		}
	}
}
