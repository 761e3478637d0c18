package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// SessionCostMetrics contains the raw usage metrics for a session used
// to calculate costs.
type SessionCostMetrics struct {
	AudioDurationSeconds int
	STTDurationSeconds   int
	LLMInputTokens       int
	LLMOutputTokens      int
	SearchQueries        int
	TTSCharacters        int
}

// SessionCosts contains the calculated costs for a session in cents.
type SessionCosts struct {
	SessionID            string    `json:"session_id"`
	STTCostCents         int       `json:"stt_cost_cents"`
	LLMCostCents         int       `json:"llm_cost_cents"`
	SearchCostCents      int       `json:"search_cost_cents"`
	TTSCostCents         int       `json:"tts_cost_cents"`
	TotalCostCents       int       `json:"total_cost_cents"`
	AudioDurationSeconds int       `json:"audio_duration_seconds"`
	STTDurationSeconds   int       `json:"stt_duration_seconds"`
	LLMInputTokens       int       `json:"llm_input_tokens"`
	LLMOutputTokens      int       `json:"llm_output_tokens"`
	SearchQueries        int       `json:"search_queries"`
	TTSCharacters        int       `json:"tts_characters"`
	CreatedAt            time.Time `json:"created_at"`
}

// CostSummary contains aggregated cost data over a calendar month.
type CostSummary struct {
	Period               string `json:"period"` // YYYY-MM format
	SessionCount         int    `json:"session_count"`
	TotalDurationSeconds int    `json:"total_duration_seconds"`
	STTCostCents         int    `json:"stt_cost_cents"`
	LLMCostCents         int    `json:"llm_cost_cents"`
	SearchCostCents      int    `json:"search_cost_cents"`
	TTSCostCents         int    `json:"tts_cost_cents"`
	TotalCostCents       int    `json:"total_cost_cents"`
	// Raw metrics for debugging
	TotalSTTSeconds      int `json:"total_stt_seconds"`
	TotalLLMInputTokens  int `json:"total_llm_input_tokens"`
	TotalLLMOutputTokens int `json:"total_llm_output_tokens"`
	TotalSearchQueries   int `json:"total_search_queries"`
	TotalTTSCharacters   int `json:"total_tts_characters"`
}

// RecordSessionCosts saves the cost metrics for a session.
func (s *Store) RecordSessionCosts(ctx context.Context, sessionID string, metrics SessionCostMetrics, costs SessionCosts) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO session_costs (
			session_id, stt_cost_cents, llm_cost_cents, search_cost_cents, tts_cost_cents,
			total_cost_cents, audio_duration_seconds, stt_duration_seconds,
			llm_input_tokens, llm_output_tokens, search_queries, tts_characters
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (session_id) DO UPDATE SET
			stt_cost_cents = $2, llm_cost_cents = $3, search_cost_cents = $4,
			tts_cost_cents = $5, total_cost_cents = $6, audio_duration_seconds = $7,
			stt_duration_seconds = $8, llm_input_tokens = $9, llm_output_tokens = $10,
			search_queries = $11, tts_characters = $12
	`, sessionID, costs.STTCostCents, costs.LLMCostCents, costs.SearchCostCents,
		costs.TTSCostCents, costs.TotalCostCents, metrics.AudioDurationSeconds,
		metrics.STTDurationSeconds, metrics.LLMInputTokens, metrics.LLMOutputTokens,
		metrics.SearchQueries, metrics.TTSCharacters)
	return err
}

// GetSessionCosts retrieves the costs for a specific session.
func (s *Store) GetSessionCosts(ctx context.Context, sessionID string) (*SessionCosts, error) {
	if !s.Enabled() {
		return nil, ErrNoDatabase
	}
	var c SessionCosts
	err := s.db.QueryRow(ctx, `
		SELECT session_id, stt_cost_cents, llm_cost_cents, search_cost_cents, tts_cost_cents,
		       total_cost_cents, COALESCE(audio_duration_seconds, 0), COALESCE(stt_duration_seconds, 0),
		       COALESCE(llm_input_tokens, 0), COALESCE(llm_output_tokens, 0),
		       COALESCE(search_queries, 0), COALESCE(tts_characters, 0), created_at
		FROM session_costs WHERE session_id = $1
	`, sessionID).Scan(
		&c.SessionID, &c.STTCostCents, &c.LLMCostCents, &c.SearchCostCents, &c.TTSCostCents,
		&c.TotalCostCents, &c.AudioDurationSeconds, &c.STTDurationSeconds,
		&c.LLMInputTokens, &c.LLMOutputTokens, &c.SearchQueries, &c.TTSCharacters, &c.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCostSummary retrieves aggregated costs for a specific month.
// period should be in YYYY-MM format.
func (s *Store) GetCostSummary(ctx context.Context, period string) (*CostSummary, error) {
	if !s.Enabled() {
		return nil, ErrNoDatabase
	}
	summary := &CostSummary{Period: period}

	// Parse period to get date range (uses index on created_at instead of TO_CHAR)
	periodStart, err := time.Parse("2006-01", period)
	if err != nil {
		return nil, fmt.Errorf("invalid period format: %w", err)
	}
	periodEnd := periodStart.AddDate(0, 1, 0) // First day of next month

	err = s.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(audio_duration_seconds), 0),
			COALESCE(SUM(stt_cost_cents), 0),
			COALESCE(SUM(llm_cost_cents), 0),
			COALESCE(SUM(search_cost_cents), 0),
			COALESCE(SUM(tts_cost_cents), 0),
			COALESCE(SUM(total_cost_cents), 0),
			COALESCE(SUM(stt_duration_seconds), 0),
			COALESCE(SUM(llm_input_tokens), 0),
			COALESCE(SUM(llm_output_tokens), 0),
			COALESCE(SUM(search_queries), 0),
			COALESCE(SUM(tts_characters), 0)
		FROM session_costs
		WHERE created_at >= $1 AND created_at < $2
	`, periodStart, periodEnd).Scan(
		&summary.SessionCount,
		&summary.TotalDurationSeconds,
		&summary.STTCostCents,
		&summary.LLMCostCents,
		&summary.SearchCostCents,
		&summary.TTSCostCents,
		&summary.TotalCostCents,
		&summary.TotalSTTSeconds,
		&summary.TotalLLMInputTokens,
		&summary.TotalLLMOutputTokens,
		&summary.TotalSearchQueries,
		&summary.TotalTTSCharacters,
	)
	if err != nil && err != pgx.ErrNoRows {
		return nil, err
	}

	return summary, nil
}
