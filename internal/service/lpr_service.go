package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/google/uuid"
	"gopkg.in/guregu/null.v4"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/logging"
	"github.com/mynul56/smart-parking-ai/internal/repository"
)

// TextDetector is the subset of the Rekognition client the plate reader uses.
type TextDetector interface {
	DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

var plateRegex = regexp.MustCompile(`^[A-Z0-9]{2,4}-?[A-Z0-9]{3,6}$`)

type LPRService struct {
	detector  TextDetector
	slots     *SlotService
	eventRepo repository.AIEventRepository
	now       func() time.Time
}

// NewLPRService accepts a nil detector; every call then fails with ErrLPRDisabled.
func NewLPRService(detector TextDetector, slots *SlotService, eventRepo repository.AIEventRepository) *LPRService {
	return &LPRService{
		detector:  detector,
		slots:     slots,
		eventRepo: eventRepo,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ReadPlate returns the most confident plate-shaped text in the image with a
// confidence in [0,1].
func (s *LPRService) ReadPlate(ctx context.Context, image []byte) (string, float64, error) {
	if s.detector == nil {
		return "", 0, ErrLPRDisabled
	}
	out, err := s.detector.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: image},
	})
	if err != nil {
		return "", 0, fmt.Errorf("rekognition detect text: %w", err)
	}

	var plate string
	var best float32
	var seen []string
	for _, d := range out.TextDetections {
		if d.DetectedText == nil || d.Confidence == nil {
			continue
		}
		if d.Type != types.TextTypesLine && d.Type != types.TextTypesWord {
			continue
		}
		txt := normalizePlate(*d.DetectedText)
		seen = append(seen, txt)
		if plateRegex.MatchString(txt) && hasDigitAndLetter(txt) && *d.Confidence > best {
			best = *d.Confidence
			plate = txt
		}
	}
	if plate == "" {
		logging.Debug(ctx, "no plate in detected text", slog.String("texts", strings.Join(seen, ",")))
		return "", 0, ErrPlateNotFound
	}
	return plate, float64(best) / 100, nil
}

func normalizePlate(s string) string {
	s = strings.ToUpper(s)
	s = strings.NewReplacer(" ", "", ".", "", "_", "-").Replace(s)
	return strings.Trim(s, "-")
}

func hasDigitAndLetter(s string) bool {
	var digit, letter bool
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case r >= 'A' && r <= 'Z':
			letter = true
		}
	}
	return digit && letter
}

// RecordVehicleEntry reads the plate from a camera frame and marks the slot
// occupied by that vehicle.
func (s *LPRService) RecordVehicleEntry(ctx context.Context, slotID int, dto domain.PlateEntryDTO) (*domain.ParkingSlot, error) {
	image, err := base64.StdEncoding.DecodeString(dto.ImageBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: image_base64 is not valid base64", ErrInvalidInput)
	}
	plate, confidence, err := s.ReadPlate(ctx, image)
	if err != nil {
		return nil, err
	}

	vehicleID := dto.VehicleID
	if vehicleID == "" {
		vehicleID = uuid.NewString()
	}
	now := s.now()
	occupied := domain.StatusOccupied
	t, err := s.slots.ApplyTransition(ctx, slotID, domain.SlotUpdate{
		Status:       &occupied,
		Confidence:   &confidence,
		VehicleEntry: domain.SetVehicleEntry(&domain.VehicleEntry{VehicleID: vehicleID, EntryTime: now, LicensePlate: plate}),
		Source:       SourcePlateReader,
	})

	payload, _ := json.Marshal(map[string]any{"license_plate": plate, "vehicle_id": vehicleID})
	event := &domain.AIEventLog{
		EventID:    uuid.NewString(),
		SlotID:     null.IntFrom(int64(slotID)),
		EventType:  domain.AIEventPlateRead,
		Status:     string(occupied),
		Confidence: null.FloatFrom(confidence),
		Accepted:   err == nil,
		Payload:    payload,
		Timestamp:  now,
	}
	if err != nil {
		event.Notes = err.Error()
	} else {
		event.LotID = null.IntFrom(int64(t.After.LotID))
	}
	if rerr := s.eventRepo.Create(ctx, event); rerr != nil {
		logging.Error(ctx, "could not record plate read", logging.Err(rerr))
	}

	if err != nil {
		return nil, err
	}
	return &t.After, nil
}
