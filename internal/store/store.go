package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoDatabase is returned by read operations when the server runs
// without persistence configured.
var ErrNoDatabase = errors.New("no database configured")

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Enabled reports whether persistence is configured. Write operations
// silently no-op when it is not, so live sessions work without a DB.
func (s *Store) Enabled() bool {
	return s != nil && s.db != nil
}

// Session represents one live verification session.
type Session struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Source    string     `json:"source"` // "transcript" or "audio"
	Status    string     `json:"status"` // "active" or "completed"
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndedBy   *string    `json:"ended_by,omitempty"`
}

// SessionListItem is a session with its verdict tallies for list views.
type SessionListItem struct {
	Session
	VerdictCount      int `json:"verdict_count"`
	ContradictedCount int `json:"contradicted_count"`
}

// TranscriptSentence is one stored sentence of a session's transcript.
type TranscriptSentence struct {
	Text      string    `json:"text"`
	Sequence  int       `json:"sequence"`
	EmittedAt time.Time `json:"emitted_at"`
}

// VerdictRecord is one stored verdict row.
type VerdictRecord struct {
	ClaimID     string    `json:"claim_id"`
	SessionID   string    `json:"session_id"`
	ClaimText   string    `json:"claim"`
	Status      string    `json:"status"`
	Confidence  float64   `json:"confidence"`
	Rationale   string    `json:"rationale"`
	EvidenceURL *string   `json:"evidence_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionDetail is a session with its full transcript and verdicts.
type SessionDetail struct {
	Session
	Sentences []TranscriptSentence `json:"sentences"`
	Verdicts  []VerdictRecord      `json:"verdicts"`
}

// SessionEvent is one row of the session event log.
type SessionEvent struct {
	ID        string    `json:"id"`
	EventType string    `json:"event_type"`
	EventData []byte    `json:"event_data"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) CreateSession(ctx context.Context, id, title, source string) (*Session, error) {
	if !s.Enabled() {
		return &Session{ID: id, Title: title, Source: source, Status: "active", StartedAt: time.Now().UTC()}, nil
	}
	var out Session
	err := s.db.QueryRow(ctx, `
		INSERT INTO sessions (id, title, source, status, started_at)
		VALUES ($1, $2, $3, 'active', NOW())
		RETURNING id, title, source, status, started_at
	`, id, title, source).Scan(&out.ID, &out.Title, &out.Source, &out.Status, &out.StartedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	if !s.Enabled() {
		return nil, ErrNoDatabase
	}
	var out Session
	err := s.db.QueryRow(ctx, `
		SELECT id, title, source, status, started_at, ended_at, ended_by
		FROM sessions WHERE id = $1
	`, id).Scan(&out.ID, &out.Title, &out.Source, &out.Status, &out.StartedAt, &out.EndedAt, &out.EndedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) EndSession(ctx context.Context, id, endedBy string) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		UPDATE sessions
		SET status = 'completed',
		    ended_at = COALESCE(ended_at, NOW()),
		    ended_by = $2
		WHERE id = $1
	`, id, endedBy)
	return err
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionListItem, error) {
	if !s.Enabled() {
		return nil, ErrNoDatabase
	}
	rows, err := s.db.Query(ctx, `
		SELECT s.id, s.title, s.source, s.status, s.started_at, s.ended_at, s.ended_by,
		       COUNT(v.claim_id),
		       COUNT(v.claim_id) FILTER (WHERE v.status = 'contradicted')
		FROM sessions s
		LEFT JOIN session_verdicts v ON v.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionListItem
	for rows.Next() {
		var item SessionListItem
		err := rows.Scan(
			&item.ID, &item.Title, &item.Source, &item.Status, &item.StartedAt, &item.EndedAt, &item.EndedBy,
			&item.VerdictCount, &item.ContradictedCount,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// InsertSentence stores one transcript sentence.
func (s *Store) InsertSentence(ctx context.Context, sessionID string, sentence TranscriptSentence) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO session_sentences (id, session_id, text, sequence, emitted_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
	`, sessionID, sentence.Text, sentence.Sequence, sentence.EmittedAt)
	return err
}

// InsertVerdict stores one verdict. Claim IDs are unique so replays are
// idempotent.
func (s *Store) InsertVerdict(ctx context.Context, v VerdictRecord) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO session_verdicts (claim_id, session_id, claim_text, status, confidence, rationale, evidence_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (claim_id) DO NOTHING
	`, v.ClaimID, v.SessionID, v.ClaimText, v.Status, v.Confidence, v.Rationale, v.EvidenceURL, v.CreatedAt)
	return err
}

func (s *Store) GetSessionDetail(ctx context.Context, id string) (SessionDetail, error) {
	if !s.Enabled() {
		return SessionDetail{}, ErrNoDatabase
	}
	var out SessionDetail
	err := s.db.QueryRow(ctx, `
		SELECT id, title, source, status, started_at, ended_at, ended_by
		FROM sessions WHERE id = $1
	`, id).Scan(&out.ID, &out.Title, &out.Source, &out.Status, &out.StartedAt, &out.EndedAt, &out.EndedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionDetail{}, ErrNotFound
	}
	if err != nil {
		return SessionDetail{}, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT text, sequence, emitted_at
		FROM session_sentences
		WHERE session_id = $1
		ORDER BY sequence ASC
	`, id)
	if err != nil {
		return out, nil
	}
	defer rows.Close()
	for rows.Next() {
		var sent TranscriptSentence
		if err := rows.Scan(&sent.Text, &sent.Sequence, &sent.EmittedAt); err != nil {
			return out, nil
		}
		out.Sentences = append(out.Sentences, sent)
	}
	rows.Close()

	vrows, err := s.db.Query(ctx, `
		SELECT claim_id, session_id, claim_text, status, confidence, rationale, evidence_url, created_at
		FROM session_verdicts
		WHERE session_id = $1
		ORDER BY created_at ASC
	`, id)
	if err != nil {
		return out, nil
	}
	defer vrows.Close()
	for vrows.Next() {
		var v VerdictRecord
		if err := vrows.Scan(&v.ClaimID, &v.SessionID, &v.ClaimText, &v.Status, &v.Confidence, &v.Rationale, &v.EvidenceURL, &v.CreatedAt); err != nil {
			return out, nil
		}
		out.Verdicts = append(out.Verdicts, v)
	}

	return out, nil
}

// ListSessionEvents returns the event log for a session, newest first.
func (s *Store) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]SessionEvent, error) {
	if !s.Enabled() {
		return nil, ErrNoDatabase
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, event_type, event_data, created_at
		FROM session_events
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionEvent
	for rows.Next() {
		var e SessionEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.EventData, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ReapStaleSessions marks sessions still active after the cutoff as
// completed. Returns the number of sessions closed.
func (s *Store) ReapStaleSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE sessions
		SET status = 'completed',
		    ended_at = NOW(),
		    ended_by = 'reaper'
		WHERE status = 'active' AND started_at < NOW() - $1::interval
	`, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
