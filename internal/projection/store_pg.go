// Package projection persists the registry event stream to Postgres and
// serves read-optimized queries over it. The in-memory ledger remains the
// source of truth; this is the durable audit archive the dashboard and
// external auditors query.
package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medchain/registry/internal/registry"
)

// StoredEvent is one archived registry event row.
type StoredEvent struct {
	Seq          uint64    `json:"seq"`
	EventID      string    `json:"event_id"`
	Type         string    `json:"type"`
	Actor        string    `json:"actor"`
	PatientID    string    `json:"patient_id,omitempty"`
	Doctor       string    `json:"doctor,omitempty"`
	Role         string    `json:"role,omitempty"`
	Target       string    `json:"target,omitempty"`
	RecordHash   string    `json:"record_hash,omitempty"`
	RecordType   string    `json:"record_type,omitempty"`
	IdentityHash string    `json:"identity_hash,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
	ArchivedAt   time.Time `json:"archived_at"`
}

// StorePG is the Postgres-backed event archive.
type StorePG struct {
	pool *pgxpool.Pool
}

func NewStorePG(pool *pgxpool.Pool) *StorePG {
	return &StorePG{pool: pool}
}

// InsertEvent archives one event. Replays of an already-archived sequence
// number are ignored, so projector restarts are safe.
func (s *StorePG) InsertEvent(ctx context.Context, ev registry.Event) error {
	const query = `
		INSERT INTO registry_event (
			seq, event_id, type, actor, patient_id, doctor, role,
			target, record_hash, record_type, identity_hash, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (seq) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		ev.Seq, ev.ID, string(ev.Type), string(ev.Actor), ev.PatientID,
		string(ev.Doctor), string(ev.Role), string(ev.Target),
		ev.RecordHash, ev.RecordType, ev.IdentityHash, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert event seq %d: %w", ev.Seq, err)
	}
	return nil
}

// MaxSeq returns the highest archived sequence number, 0 when empty.
func (s *StorePG) MaxSeq(ctx context.Context) (uint64, error) {
	var seq uint64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM registry_event`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query max seq: %w", err)
	}
	return seq, nil
}

// ListEvents returns archived events filtered by optional patient id and
// event type, newest first.
func (s *StorePG) ListEvents(ctx context.Context, patientID, eventType string, limit, offset int) ([]*StoredEvent, int, error) {
	const query = `
		SELECT seq, event_id, type, actor, patient_id, doctor, role,
		       target, record_hash, record_type, identity_hash,
		       occurred_at, archived_at
		FROM registry_event
		WHERE ($1 = '' OR patient_id = $1)
		  AND ($2 = '' OR type = $2)
		ORDER BY seq DESC
		LIMIT $3 OFFSET $4`

	rows, err := s.pool.Query(ctx, query, patientID, eventType, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*StoredEvent
	for rows.Next() {
		var ev StoredEvent
		if err := rows.Scan(
			&ev.Seq, &ev.EventID, &ev.Type, &ev.Actor, &ev.PatientID,
			&ev.Doctor, &ev.Role, &ev.Target, &ev.RecordHash,
			&ev.RecordType, &ev.IdentityHash, &ev.OccurredAt, &ev.ArchivedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM registry_event
		WHERE ($1 = '' OR patient_id = $1)
		  AND ($2 = '' OR type = $2)`, patientID, eventType).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	return events, total, nil
}

// CountByType returns archived event counts grouped by event type.
func (s *StorePG) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT type, COUNT(*) FROM registry_event GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("count by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}
