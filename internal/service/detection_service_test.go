package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mynul56/smart-parking-ai/internal/domain"
)

func TestDetectionAppliesTransitionAndLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot, slots := f.lotWithSlots(t, "Central", 2)
	det := NewDetectionService(f.slots, f.store.Slots(), f.store.AIEvents(), 0.5)

	body := fmt.Sprintf(`{"slot_id":%d,"status":"occupied","confidence":0.93,"device_id":"cam-1","detected_at":"2026-03-01T10:00:00Z"}`, slots[0].ID)
	require.NoError(t, det.HandleMessage(ctx, []byte(body)))

	slot, err := f.store.Slots().FindByID(ctx, slots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOccupied, slot.Status)
	assert.Equal(t, SourceAIDetection, slot.LastUpdateSource)
	assert.Equal(t, 1, f.lot(t, lot.ID).AvailableSlots)

	page, err := det.ListEvents(ctx, domain.AIEventFilter{LotID: lot.ID})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	ev := page.Data[0]
	assert.True(t, ev.Accepted)
	assert.False(t, ev.IsAnomaly)
	assert.Equal(t, "cam-1", ev.DeviceID)
	assert.Equal(t, 2026, ev.Timestamp.Year())
}

func TestDetectionFlagsAnomalies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot, slots := f.lotWithSlots(t, "Central", 1)
	det := NewDetectionService(f.slots, f.store.Slots(), f.store.AIEvents(), 0.5)

	lowConf := fmt.Sprintf(`{"slot_id":%d,"status":"occupied","confidence":0.2}`, slots[0].ID)
	require.NoError(t, det.HandleMessage(ctx, []byte(lowConf)))
	badStatus := fmt.Sprintf(`{"slot_id":%d,"status":"flying","confidence":0.9}`, slots[0].ID)
	require.NoError(t, det.HandleMessage(ctx, []byte(badStatus)))
	require.NoError(t, det.HandleMessage(ctx, []byte(`not json`)))
	require.NoError(t, det.HandleMessage(ctx, []byte(`{"slot_id":777,"status":"available"}`)))

	anomalous := true
	page, err := det.ListEvents(ctx, domain.AIEventFilter{IsAnomaly: &anomalous})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	// the low-confidence observation is still applied
	assert.Equal(t, 0, f.lot(t, lot.ID).AvailableSlots)

	invalid, err := det.ListEvents(ctx, domain.AIEventFilter{EventType: domain.AIEventInvalidPayload})
	require.NoError(t, err)
	require.Equal(t, 1, invalid.Total)
	assert.Nil(t, invalid.Data[0].Payload)

	all, err := det.ListEvents(ctx, domain.AIEventFilter{})
	require.NoError(t, err)
	accepted := 0
	for _, e := range all.Data {
		if e.Accepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestDetectionAvailableClearsVehicle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, slots := f.lotWithSlots(t, "Central", 1)
	det := NewDetectionService(f.slots, f.store.Slots(), f.store.AIEvents(), 0.5)

	in := fmt.Sprintf(`{"slot_id":%d,"status":"occupied","vehicle_entry":{"vehicle_id":"car-9","license_plate":"DHK-99","entry_time":"2026-03-01T10:00:00Z"}}`, slots[0].ID)
	require.NoError(t, det.HandleMessage(ctx, []byte(in)))
	slot, _ := f.store.Slots().FindByID(ctx, slots[0].ID)
	require.NotNil(t, slot.VehicleEntry)

	out := fmt.Sprintf(`{"slot_id":%d,"status":"available"}`, slots[0].ID)
	require.NoError(t, det.HandleMessage(ctx, []byte(out)))
	slot, _ = f.store.Slots().FindByID(ctx, slots[0].ID)
	assert.Nil(t, slot.VehicleEntry)
}

type fakeDetector struct {
	out *rekognition.DetectTextOutput
	err error
}

func (d fakeDetector) DetectText(context.Context, *rekognition.DetectTextInput, ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error) {
	return d.out, d.err
}

func detections(texts map[string]float32) *rekognition.DetectTextOutput {
	out := &rekognition.DetectTextOutput{}
	for txt, conf := range texts {
		out.TextDetections = append(out.TextDetections, types.TextDetection{
			DetectedText: aws.String(txt),
			Confidence:   aws.Float32(conf),
			Type:         types.TextTypesLine,
		})
	}
	return out
}

func TestReadPlatePicksMostConfidentPlate(t *testing.T) {
	lpr := NewLPRService(fakeDetector{out: detections(map[string]float32{
		"DHAKA METRO": 99,
		"GA 11-2345":  91,
		"ga-112345":   80,
		"PARKING":     97,
	})}, nil, nil)

	plate, conf, err := lpr.ReadPlate(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "GA11-2345", plate)
	assert.InDelta(t, 0.91, conf, 1e-6)
}

func TestReadPlateFailures(t *testing.T) {
	_, _, err := NewLPRService(nil, nil, nil).ReadPlate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrLPRDisabled)

	_, _, err = NewLPRService(fakeDetector{out: detections(map[string]float32{"EXIT": 99})}, nil, nil).
		ReadPlate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrPlateNotFound)

	boom := errors.New("throttled")
	_, _, err = NewLPRService(fakeDetector{err: boom}, nil, nil).ReadPlate(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestRecordVehicleEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot, slots := f.lotWithSlots(t, "Central", 1)
	lpr := NewLPRService(fakeDetector{out: detections(map[string]float32{"DHK-4521": 88})}, f.slots, f.store.AIEvents())

	_, err := lpr.RecordVehicleEntry(ctx, slots[0].ID, domain.PlateEntryDTO{ImageBase64: "%%%"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	img := base64.StdEncoding.EncodeToString([]byte("jpeg"))
	slot, err := lpr.RecordVehicleEntry(ctx, slots[0].ID, domain.PlateEntryDTO{ImageBase64: img, VehicleID: "car-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOccupied, slot.Status)
	require.NotNil(t, slot.VehicleEntry)
	assert.Equal(t, "DHK-4521", slot.VehicleEntry.LicensePlate)
	assert.Equal(t, "car-1", slot.VehicleEntry.VehicleID)
	assert.Equal(t, 0, f.lot(t, lot.ID).AvailableSlots)

	events, _, err := f.store.AIEvents().Find(ctx, domain.AIEventFilter{EventType: domain.AIEventPlateRead})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Accepted)
}
