package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gopkg.in/guregu/null.v4"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/repository"
)

type pgAIEventRepository struct {
	db *sql.DB
}

func NewPgAIEventRepository(db *sql.DB) repository.AIEventRepository {
	return &pgAIEventRepository{db: db}
}

func (r *pgAIEventRepository) Create(ctx context.Context, e *domain.AIEventLog) error {
	query := `INSERT INTO ai_event_logs (event_id, lot_id, slot_id, device_id, event_type, status, confidence,
	                                    is_anomaly, accepted, notes, payload, timestamp)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	           RETURNING id`
	var payload null.String
	if len(e.Payload) > 0 {
		payload = null.StringFrom(string(e.Payload))
	}
	err := r.db.QueryRowContext(ctx, query,
		e.EventID, e.LotID, e.SlotID, null.NewString(e.DeviceID, e.DeviceID != ""), e.EventType,
		null.NewString(e.Status, e.Status != ""), e.Confidence, e.IsAnomaly, e.Accepted,
		null.NewString(e.Notes, e.Notes != ""), payload, e.Timestamp,
	).Scan(&e.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: event %s already logged", repository.ErrDuplicateEntry, e.EventID)
		}
		return fmt.Errorf("AIEventRepository.Create: %w", err)
	}
	return nil
}

const aiEventFilterWhere = `
	           WHERE ($1 = 0 OR lot_id = $1) AND ($2 = 0 OR slot_id = $2) AND ($3 = '' OR event_type = $3)
	             AND ($4::boolean IS NULL OR is_anomaly = $4)`

func (r *pgAIEventRepository) Find(ctx context.Context, filter domain.AIEventFilter) ([]domain.AIEventLog, int, error) {
	page := filter.Paging.Normalize(domain.DefaultPageLimit)
	query := `SELECT id, event_id, lot_id, slot_id, device_id, event_type, status, confidence,
	                 is_anomaly, accepted, notes, payload, timestamp, COUNT(*) OVER ()
	           FROM ai_event_logs` + aiEventFilterWhere + `
	           ORDER BY timestamp DESC, id DESC
	           LIMIT $5 OFFSET $6`
	rows, err := r.db.QueryContext(ctx, query,
		filter.LotID, filter.SlotID, string(filter.EventType), null.BoolFromPtr(filter.IsAnomaly), page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("AIEventRepository.Find: %w", err)
	}
	defer rows.Close()

	events := []domain.AIEventLog{}
	total := 0
	for rows.Next() {
		var e domain.AIEventLog
		var deviceID, status, notes, payload null.String
		if err := rows.Scan(&e.ID, &e.EventID, &e.LotID, &e.SlotID, &deviceID, &e.EventType, &status, &e.Confidence,
			&e.IsAnomaly, &e.Accepted, &notes, &payload, &e.Timestamp, &total); err != nil {
			return nil, 0, fmt.Errorf("AIEventRepository.Find (scanning row): %w", err)
		}
		e.DeviceID = deviceID.String
		e.Status = status.String
		e.Notes = notes.String
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		e.Timestamp = e.Timestamp.In(time.UTC)
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("AIEventRepository.Find (rows error): %w", err)
	}
	if len(events) == 0 && page.Offset() > 0 {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ai_event_logs`+aiEventFilterWhere,
			filter.LotID, filter.SlotID, string(filter.EventType), null.BoolFromPtr(filter.IsAnomaly)).Scan(&total)
		if err != nil {
			return nil, 0, fmt.Errorf("AIEventRepository.Find (counting): %w", err)
		}
	}
	return events, total, nil
}
