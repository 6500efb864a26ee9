package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) CreateSession(ctx context.Context, snap Snapshot) error {
	targets, _ := json.Marshal(snap.Targets)
	summary, _ := json.Marshal(snap.Summary)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, targets, status, started_at, summary)
		 VALUES ($1, $2, $3, $4, $5)`,
		snap.ID, targets, snap.Status, snap.StartedAt, summary)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PgStore) AppendRecord(ctx context.Context, sessionID string, rec Record) error {
	params, _ := json.Marshal(rec.Params)
	generation, _ := json.Marshal(rec.Generation)
	evaluation, _ := json.Marshal(rec.Evaluation)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attack_records
		 (id, session_id, attack_id, attack_name, category, complexity, target,
		  prompt, params, generation, evaluation, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		rec.ID, sessionID, rec.AttackID, rec.AttackName, rec.Category, rec.Complexity,
		rec.Target, rec.Prompt, params, generation, evaluation, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

func (s *PgStore) SealSession(ctx context.Context, sessionID, status string, summary Summary) error {
	summaryJSON, _ := json.Marshal(summary)
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status=$1, sealed_at=$2, summary=$3 WHERE id=$4`,
		status, time.Now().UTC(), summaryJSON, sessionID)
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return nil
}

func (s *PgStore) GetSession(ctx context.Context, sessionID string) (Snapshot, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, targets, status, started_at, sealed_at, summary
		 FROM sessions WHERE id=$1`, sessionID)
	var (
		snap        Snapshot
		targetsJSON []byte
		summaryJSON []byte
		sealedAt    *time.Time
	)
	if err := row.Scan(&snap.ID, &targetsJSON, &snap.Status, &snap.StartedAt, &sealedAt, &summaryJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("load session: %w", err)
	}
	_ = json.Unmarshal(targetsJSON, &snap.Targets)
	_ = json.Unmarshal(summaryJSON, &snap.Summary)
	if sealedAt != nil {
		snap.SealedAt = *sealedAt
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, attack_id, attack_name, category, complexity, target,
		        prompt, params, generation, evaluation, created_at
		 FROM attack_records WHERE session_id=$1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			rec            Record
			paramsJSON     []byte
			generationJSON []byte
			evaluationJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.AttackID, &rec.AttackName, &rec.Category,
			&rec.Complexity, &rec.Target, &rec.Prompt, &paramsJSON,
			&generationJSON, &evaluationJSON, &rec.CreatedAt); err != nil {
			return Snapshot{}, false, fmt.Errorf("scan record: %w", err)
		}
		_ = json.Unmarshal(paramsJSON, &rec.Params)
		_ = json.Unmarshal(generationJSON, &rec.Generation)
		_ = json.Unmarshal(evaluationJSON, &rec.Evaluation)
		snap.Records = append(snap.Records, rec)
	}
	return snap, true, rows.Err()
}

func (s *PgStore) ListSessions(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, targets, status, started_at, sealed_at, summary
		 FROM sessions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []Snapshot
	for rows.Next() {
		var (
			snap        Snapshot
			targetsJSON []byte
			summaryJSON []byte
			sealedAt    *time.Time
		)
		if err := rows.Scan(&snap.ID, &targetsJSON, &snap.Status, &snap.StartedAt, &sealedAt, &summaryJSON); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		_ = json.Unmarshal(targetsJSON, &snap.Targets)
		_ = json.Unmarshal(summaryJSON, &snap.Summary)
		if sealedAt != nil {
			snap.SealedAt = *sealedAt
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
