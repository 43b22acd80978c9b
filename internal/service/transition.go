package service

import (
	"fmt"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/repository"
)

// Decision is the validator's verdict on one requested slot update.
type Decision struct {
	Accepted bool
	Delta    int
	Reason   string
}

// TransitionValidator accepts any of the four statuses as a target; there is
// no transition graph. Confidence never affects the verdict.
type TransitionValidator struct{}

// AvailabilityDelta is the change in a lot's available counter when one of
// its slots moves from one status to another.
func AvailabilityDelta(from, to domain.SlotStatus) int {
	delta := 0
	if from == domain.StatusAvailable {
		delta--
	}
	if to == domain.StatusAvailable {
		delta++
	}
	return delta
}

// Validate judges upd against the slot's current state. A rejected decision
// always comes with an error: ErrInvalidInput for a status outside the enum,
// repository.ErrConflict when ExpectedStatus no longer matches.
func (TransitionValidator) Validate(before *domain.ParkingSlot, upd domain.SlotUpdate) (Decision, error) {
	if upd.Status != nil && !upd.Status.Valid() {
		reason := fmt.Sprintf("unknown slot status %q", *upd.Status)
		return Decision{Reason: reason}, fmt.Errorf("%w: %s", ErrInvalidInput, reason)
	}
	if upd.Confidence != nil && (*upd.Confidence < 0 || *upd.Confidence > 1) {
		reason := fmt.Sprintf("confidence %v outside [0,1]", *upd.Confidence)
		return Decision{Reason: reason}, fmt.Errorf("%w: %s", ErrInvalidInput, reason)
	}
	if upd.ExpectedStatus != nil && before.Status != *upd.ExpectedStatus {
		reason := fmt.Sprintf("slot %d is %s, expected %s", before.ID, before.Status, *upd.ExpectedStatus)
		return Decision{Reason: reason}, fmt.Errorf("%w: %s", repository.ErrConflict, reason)
	}

	target := before.Status
	if upd.Status != nil {
		target = *upd.Status
	}
	return Decision{Accepted: true, Delta: AvailabilityDelta(before.Status, target)}, nil
}
