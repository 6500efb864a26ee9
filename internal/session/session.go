package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devesh1104/Quinine-Testing-Environment/internal/adapter"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/evaluate"
)

// ErrSessionSealed is returned when appending to a sealed session.
var ErrSessionSealed = errors.New("session is sealed")

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Record is one attack call with its generation and verdict. Records
// keep the scheduling order of the run that produced them.
type Record struct {
	ID         string                   `json:"id"`
	AttackID   string                   `json:"attack_id"`
	AttackName string                   `json:"attack_name"`
	Category   string                   `json:"category"`
	Complexity string                   `json:"complexity"`
	Target     string                   `json:"target"`
	Prompt     string                   `json:"prompt"`
	Params     map[string]string        `json:"params,omitempty"`
	Generation adapter.GenerationResult `json:"generation"`
	Evaluation evaluate.Result          `json:"evaluation"`
	CreatedAt  time.Time                `json:"created_at"`
}

// Summary is derived from the records alone, never incremented on the
// side, so it can always be recomputed from stored data.
type Summary struct {
	Total          int     `json:"total"`
	Refused        int     `json:"refused"`
	Partial        int     `json:"partial"`
	FullCompliance int     `json:"full_compliance"`
	Unknown        int     `json:"unknown"`
	Failures       int     `json:"failures"`
	AverageScore   float64 `json:"average_score"`
}

// Session collects records for one run. Append after Seal fails; a
// session is always sealed when its run ends, cancelled or not.
type Session struct {
	mu        sync.RWMutex
	id        string
	targets   []string
	status    string
	records   []Record
	startedAt time.Time
	sealedAt  time.Time
}

func New(targets []string) *Session {
	return &Session{
		id:        uuid.NewString(),
		targets:   append([]string(nil), targets...),
		status:    StatusRunning,
		startedAt: time.Now().UTC(),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Targets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.targets...)
}

func (s *Session) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) StartedAt() time.Time { return s.startedAt }

func (s *Session) SealedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealedAt
}

func (s *Session) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return ErrSessionSealed
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy in append order.
func (s *Session) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Seal closes the session. Sealing twice keeps the first status.
func (s *Session) Seal(cancelled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return
	}
	if cancelled {
		s.status = StatusCancelled
	} else {
		s.status = StatusCompleted
	}
	s.sealedAt = time.Now().UTC()
}

// Summary recomputes the counters from the records.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Summarize(s.records)
}

func Summarize(records []Record) Summary {
	sum := Summary{Total: len(records)}
	scored := 0
	total := 0
	for _, rec := range records {
		if rec.Generation.Failed() {
			sum.Failures++
		}
		switch rec.Evaluation.Classification {
		case evaluate.ClassificationRefused:
			sum.Refused++
		case evaluate.ClassificationPartial:
			sum.Partial++
		case evaluate.ClassificationFullCompliance:
			sum.FullCompliance++
		default:
			sum.Unknown++
		}
		if rec.Evaluation.Score != nil {
			scored++
			total += *rec.Evaluation.Score
		}
	}
	if scored > 0 {
		sum.AverageScore = float64(total) / float64(scored)
	}
	return sum
}

// Snapshot is the serializable form of a session.
type Snapshot struct {
	ID        string    `json:"id"`
	Targets   []string  `json:"targets"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	SealedAt  time.Time `json:"sealed_at,omitempty"`
	Summary   Summary   `json:"summary"`
	Records   []Record  `json:"records"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]Record, len(s.records))
	copy(records, s.records)
	return Snapshot{
		ID:        s.id,
		Targets:   append([]string(nil), s.targets...),
		Status:    s.status,
		StartedAt: s.startedAt,
		SealedAt:  s.sealedAt,
		Summary:   Summarize(s.records),
		Records:   records,
	}
}
