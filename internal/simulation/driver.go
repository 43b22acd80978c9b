// Package simulation drives the public API the way an AI camera agent would:
// it logs in, watches one lot and pushes weighted random slot observations.
package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mynul56/smart-parking-ai/internal/config"
	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/logging"
)

var errUnauthorized = errors.New("unauthorized")

type weighted struct {
	status domain.SlotStatus
	weight float64
}

var transitions = map[domain.SlotStatus][]weighted{
	domain.StatusAvailable: {
		{domain.StatusOccupied, 0.3},
		{domain.StatusReserved, 0.05},
		{domain.StatusAvailable, 0.65},
	},
	domain.StatusOccupied: {
		{domain.StatusAvailable, 0.2},
		{domain.StatusOccupied, 0.8},
	},
	domain.StatusReserved: {
		{domain.StatusOccupied, 0.7},
		{domain.StatusAvailable, 0.1},
		{domain.StatusReserved, 0.2},
	},
	domain.StatusMaintenance: {
		{domain.StatusAvailable, 0.1},
		{domain.StatusMaintenance, 0.9},
	},
}

// NextStatus samples the status a slot moves to, given r uniform in [0,1).
func NextStatus(current domain.SlotStatus, r float64) domain.SlotStatus {
	options, ok := transitions[current]
	if !ok {
		options = transitions[domain.StatusAvailable]
	}
	cumulative := 0.0
	for _, o := range options {
		cumulative += o.weight
		if r <= cumulative {
			return o.status
		}
	}
	return current
}

// Confidence maps r uniform in [0,1) onto the detector's confidence band for status.
func Confidence(status domain.SlotStatus, r float64) float64 {
	if status == domain.StatusOccupied || status == domain.StatusAvailable {
		return 0.85 + r*0.14
	}
	return 0.70 + r*0.25
}

type Driver struct {
	cfg    config.Simulation
	client *http.Client

	mu    sync.Mutex
	rng   *rand.Rand
	token string
	lot   domain.ParkingLot
	slots []domain.ParkingSlot
}

func NewDriver(cfg config.Simulation, client *http.Client, seed int64) *Driver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Driver{
		cfg:    cfg,
		client: client,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (d *Driver) float() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Float64()
}

func (d *Driver) intn(n int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Intn(n)
}

func (d *Driver) Login(ctx context.Context) error {
	var resp domain.AuthResponseDTO
	body := domain.LoginUserDTO{Email: d.cfg.Email, Password: d.cfg.Password}
	if err := d.call(ctx, http.MethodPost, "/auth/login", "", body, &resp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	d.mu.Lock()
	d.token = resp.Token
	d.mu.Unlock()
	logging.Info(ctx, "simulation logged in", slog.String("email", resp.Email), slog.String("role", string(resp.Role)))
	return nil
}

// LoadSlots picks the first lot and caches all of its slots.
func (d *Driver) LoadSlots(ctx context.Context) error {
	var lots struct {
		Data []domain.ParkingLot `json:"data"`
	}
	if err := d.authed(ctx, http.MethodGet, "/lots", nil, &lots); err != nil {
		return fmt.Errorf("list lots: %w", err)
	}
	if len(lots.Data) == 0 {
		return errors.New("no parking lots found")
	}
	lot := lots.Data[0]

	var page domain.PageResult[domain.ParkingSlot]
	path := fmt.Sprintf("/lots/%d/slots?limit=%d", lot.ID, domain.MaxPageLimit)
	if err := d.authed(ctx, http.MethodGet, path, nil, &page); err != nil {
		return fmt.Errorf("list slots: %w", err)
	}

	d.mu.Lock()
	d.lot = lot
	d.slots = page.Data
	d.mu.Unlock()
	logging.Info(ctx, "simulation slots loaded", slog.Int("lot_id", lot.ID), slog.Int("slots", len(page.Data)))
	return nil
}

type slotUpdate struct {
	Status       domain.SlotStatus `json:"status"`
	Confidence   float64           `json:"confidence"`
	VehicleEntry any               `json:"vehicle_entry,omitempty"`
}

// Step updates one random slot. It returns false when the draw kept the
// status and the update was skipped.
func (d *Driver) Step(ctx context.Context) (bool, error) {
	slot, ok := d.pick()
	if !ok {
		return false, errors.New("no slots loaded")
	}
	next := NextStatus(slot.Status, d.float())
	// same-status observations only go out some of the time, as confidence refreshes
	if next == slot.Status && d.float() > 0.3 {
		return false, nil
	}

	upd := slotUpdate{Status: next, Confidence: Confidence(next, d.float())}
	switch {
	case next == domain.StatusOccupied && slot.Status != domain.StatusOccupied:
		upd.VehicleEntry = domain.VehicleEntry{
			VehicleID:    uuid.NewString(),
			EntryTime:    time.Now().UTC(),
			LicensePlate: fmt.Sprintf("SIM-%04d", d.intn(10000)),
		}
	case next == domain.StatusAvailable && slot.VehicleEntry != nil:
		upd.VehicleEntry = json.RawMessage("null")
	}

	var updated domain.ParkingSlot
	if err := d.authed(ctx, http.MethodPut, fmt.Sprintf("/slots/%d", slot.ID), upd, &updated); err != nil {
		return false, fmt.Errorf("update slot %d: %w", slot.ID, err)
	}

	d.mu.Lock()
	for i := range d.slots {
		if d.slots[i].ID == updated.ID {
			d.slots[i] = updated
		}
	}
	d.mu.Unlock()
	logging.Info(ctx, "simulated detection",
		slog.String("slot", updated.SlotNumber),
		slog.String("from", string(slot.Status)),
		slog.String("to", string(updated.Status)),
		slog.Float64("confidence", updated.Confidence),
	)
	return true, nil
}

func (d *Driver) pick() (domain.ParkingSlot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.slots) == 0 {
		return domain.ParkingSlot{}, false
	}
	return d.slots[d.rng.Intn(len(d.slots))], true
}

func (d *Driver) Lot() domain.ParkingLot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lot
}

// Slots returns a copy of the cached slots.
func (d *Driver) Slots() []domain.ParkingSlot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.ParkingSlot(nil), d.slots...)
}

// Burst fires 2 to 4 updates half a second apart.
func (d *Driver) Burst(ctx context.Context, gap time.Duration) error {
	n := 2 + d.intn(3)
	logging.Info(ctx, "simulation burst", slog.Int("updates", n))
	for i := 0; i < n; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(gap):
			}
		}
		if _, err := d.Step(ctx); err != nil {
			logging.Warn(ctx, "burst update failed", logging.Err(err))
		}
	}
	return nil
}

func (d *Driver) Run(ctx context.Context) error {
	if err := d.Login(ctx); err != nil {
		return err
	}
	if err := d.LoadSlots(ctx); err != nil {
		return err
	}

	step := time.NewTicker(d.cfg.Interval)
	burst := time.NewTicker(d.cfg.BurstInterval)
	refresh := time.NewTicker(d.cfg.RefreshInterval)
	defer func() {
		step.Stop()
		burst.Stop()
		refresh.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-step.C:
			if _, err := d.Step(ctx); err != nil {
				logging.Warn(ctx, "simulated update failed", logging.Err(err))
			}
		case <-burst.C:
			_ = d.Burst(ctx, 500*time.Millisecond)
		case <-refresh.C:
			if err := d.LoadSlots(ctx); err != nil {
				logging.Warn(ctx, "slot refresh failed", logging.Err(err))
			}
		}
	}
}

// authed performs an authenticated call and logs in again once when the
// token has expired.
func (d *Driver) authed(ctx context.Context, method, path string, in, out any) error {
	d.mu.Lock()
	token := d.token
	d.mu.Unlock()

	err := d.call(ctx, method, path, token, in, out)
	if !errors.Is(err, errUnauthorized) {
		return err
	}
	logging.Warn(ctx, "simulation token rejected, logging in again")
	if err := d.Login(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	token = d.token
	d.mu.Unlock()
	return d.call(ctx, method, path, token, in, out)
}

func (d *Driver) call(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(d.cfg.APIURL, "/")+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errUnauthorized
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
