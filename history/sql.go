package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Tutortoise/pneumonia-service/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore writes records to SQLite or PostgreSQL through sqlx.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

// NewSQLStore opens dsn with driver ("sqlite3" or "postgres") and creates
// the predictions table if needed. For sqlite3 the dsn is a file path.
func NewSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	switch driver {
	case "sqlite3":
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_journal_mode=WAL&_busy_timeout=5000"
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported history driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	timestamp := "DATETIME"
	if s.driver == "postgres" {
		timestamp = "TIMESTAMPTZ"
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS predictions (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		variant TEXT NOT NULL,
		filename TEXT NOT NULL,
		label TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		region_count INTEGER NOT NULL DEFAULT 0,
		annotation_ref TEXT NOT NULL DEFAULT '',
		created_at %s NOT NULL
	)`, timestamp)

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at)`)
	return err
}

func (s *SQLStore) Record(ctx context.Context, rec models.PredictionRecord) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO predictions
			(id, request_id, variant, filename, label, confidence, region_count, annotation_ref, created_at)
		VALUES
			(:id, :request_id, :variant, :filename, :label, :confidence, :region_count, :annotation_ref, :created_at)`,
		rec)
	if err != nil {
		return fmt.Errorf("insert prediction %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (models.PredictionRecord, error) {
	var rec models.PredictionRecord
	query := s.db.Rebind(`SELECT * FROM predictions WHERE id = ?`)
	if err := s.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PredictionRecord{}, ErrNotFound
		}
		return models.PredictionRecord{}, err
	}
	return rec, nil
}

func (s *SQLStore) Recent(ctx context.Context, limit int) ([]models.PredictionRecord, error) {
	recs := []models.PredictionRecord{}
	query := s.db.Rebind(`SELECT * FROM predictions ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &recs, query, ClampLimit(limit)); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
