package metrics

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PGStore persists records in Postgres. It is enabled by setting
// SORI_METRICS_DSN; the schema is migrated on startup.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects, runs pending migrations, and verifies the pool.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("metrics: open pg: %w", err)
	}
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, fmt.Errorf("metrics: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("metrics: migrate: %w", err)
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("metrics: close migration conn: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("metrics: pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("metrics: pg ping: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Append(rec Pipeline) error {
	_, err := s.pool.Exec(context.Background(), `
		INSERT INTO pipeline_metrics
		  (session_id, utterance_id, audio_duration_ms, vad_detect_ms,
		   stt_ms, emotion_ms, tts_ms, total_ms, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		rec.SessionID, rec.UtteranceID, rec.AudioDurationMS, rec.VADDetectMS,
		rec.STTMS, rec.EmotionMS, rec.TTSMS, rec.TotalMS)
	if err != nil {
		return fmt.Errorf("metrics: insert record: %w", err)
	}
	return nil
}

func (s *PGStore) History() ([]Pipeline, error) {
	rows, err := s.pool.Query(context.Background(), `
		SELECT session_id, utterance_id, audio_duration_ms, vad_detect_ms,
		       stt_ms, emotion_ms, tts_ms, total_ms,
		       to_char(recorded_at, 'YYYY-MM-DD"T"HH24:MI:SS')
		FROM pipeline_metrics ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("metrics: query history: %w", err)
	}
	defer rows.Close()

	recs := []Pipeline{}
	for rows.Next() {
		var rec Pipeline
		if err := rows.Scan(&rec.SessionID, &rec.UtteranceID, &rec.AudioDurationMS,
			&rec.VADDetectMS, &rec.STTMS, &rec.EmotionMS, &rec.TTSMS,
			&rec.TotalMS, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("metrics: scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metrics: iterate history: %w", err)
	}
	return recs, nil
}

func (s *PGStore) Stats() (map[string]StageStats, error) {
	recs, err := s.History()
	if err != nil {
		return nil, err
	}
	return aggregate(recs), nil
}

func (s *PGStore) Close() {
	s.pool.Close()
}
