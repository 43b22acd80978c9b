package iot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/logging"
)

type IoTDataAPI interface {
	Publish(ctx context.Context, params *iotdataplane.PublishInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error)
}

// SignagePayload is what the displays at a lot entrance render.
type SignagePayload struct {
	LotID          int              `json:"lot_id"`
	Name           string           `json:"name"`
	AvailableSlots int              `json:"available_slots"`
	TotalSlots     int              `json:"total_slots"`
	Status         domain.LotStatus `json:"status"`
	Timestamp      time.Time        `json:"timestamp"`
}

// SignagePublisher mirrors lot counters to MQTT. LotChanged never blocks the
// transition path; updates that do not fit in the queue are dropped and the
// next change for the lot carries the fresh counters anyway.
type SignagePublisher struct {
	client      IoTDataAPI
	topicPrefix string
	queue       chan domain.ParkingLot
	now         func() time.Time
}

func NewSignagePublisher(client IoTDataAPI, topicPrefix string, buffer int) *SignagePublisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &SignagePublisher{
		client:      client,
		topicPrefix: topicPrefix,
		queue:       make(chan domain.ParkingLot, buffer),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (p *SignagePublisher) Topic(lotID int) string {
	return fmt.Sprintf("%s/%d/availability", p.topicPrefix, lotID)
}

func (p *SignagePublisher) LotChanged(ctx context.Context, lot domain.ParkingLot) {
	select {
	case p.queue <- lot:
	default:
		logging.Warn(ctx, "signage queue full, dropping update", slog.Int("lot_id", lot.ID))
	}
}

// Run publishes queued updates until ctx is cancelled.
func (p *SignagePublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case lot := <-p.queue:
			if err := p.publish(ctx, lot); err != nil {
				logging.Error(ctx, "publish lot availability",
					slog.Int("lot_id", lot.ID),
					logging.Err(err),
				)
			}
		}
	}
}

func (p *SignagePublisher) publish(ctx context.Context, lot domain.ParkingLot) error {
	payload, err := json.Marshal(SignagePayload{
		LotID:          lot.ID,
		Name:           lot.Name,
		AvailableSlots: lot.AvailableSlots,
		TotalSlots:     lot.TotalSlots,
		Status:         lot.Status,
		Timestamp:      p.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal signage payload: %w", err)
	}
	_, err = p.client.Publish(ctx, &iotdataplane.PublishInput{
		Topic:   aws.String(p.Topic(lot.ID)),
		Qos:     1,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}
