package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/focusmon/screenwatch/internal/domain/screenshots"
	"github.com/focusmon/screenwatch/internal/domain/vision"
)

// ScreenshotRepository is the MySQL twin of the postgres repository; the
// analysis payload lives in a JSON column.
type ScreenshotRepository struct {
	db *sql.DB
}

func NewScreenshotRepository(db *sql.DB) *ScreenshotRepository {
	return &ScreenshotRepository{db: db}
}

func (r *ScreenshotRepository) Get(ctx context.Context, id domain.ScreenshotID) (*domain.Screenshot, error) {
	const q = `
SELECT id, file_path, processing_status, ai_analysis, processing_error, processed_at, created_at
FROM screenshots
WHERE id=? LIMIT 1;
`
	row := r.db.QueryRowContext(ctx, q, id)
	return scanScreenshot(row)
}

func (r *ScreenshotRepository) SetProcessing(ctx context.Context, id domain.ScreenshotID) error {
	const q = `UPDATE screenshots SET processing_status=? WHERE id=?;`
	res, err := r.db.ExecContext(ctx, q, domain.StatusProcessing, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *ScreenshotRepository) MarkCompleted(ctx context.Context, id domain.ScreenshotID, a *vision.Annotation, at time.Time) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding analysis: %w", err)
	}
	const q = `
UPDATE screenshots
SET processing_status=?, ai_analysis=?, processing_error=NULL, processed_at=?
WHERE id=? AND processing_status=?;`
	res, err := r.db.ExecContext(ctx, q, domain.StatusCompleted, payload, at, id, domain.StatusProcessing)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *ScreenshotRepository) MarkFailed(ctx context.Context, id domain.ScreenshotID, reason string, at time.Time) error {
	const q = `
UPDATE screenshots
SET processing_status=?, processing_error=?, ai_analysis=NULL, processed_at=?
WHERE id=? AND processing_status=?;`
	res, err := r.db.ExecContext(ctx, q, domain.StatusFailed, reason, at, id, domain.StatusProcessing)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *ScreenshotRepository) Reset(ctx context.Context, id domain.ScreenshotID) error {
	const q = `
UPDATE screenshots
SET processing_status=?, ai_analysis=NULL, processing_error=NULL, processed_at=NULL
WHERE id=?;`
	res, err := r.db.ExecContext(ctx, q, domain.StatusPending, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *ScreenshotRepository) ListPending(ctx context.Context, before time.Time, limit int) ([]*domain.Screenshot, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
SELECT id, file_path, processing_status, ai_analysis, processing_error, processed_at, created_at
FROM screenshots
WHERE processing_status=? AND created_at <= ?
ORDER BY created_at ASC
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, domain.StatusPending, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Screenshot
	for rows.Next() {
		s, err := scanScreenshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ScreenshotRepository) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	const q = `SELECT processing_status, COUNT(*) FROM screenshots GROUP BY processing_status;`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[domain.Status(status)] = n
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScreenshot(row rowScanner) (*domain.Screenshot, error) {
	var s domain.Screenshot
	var analysis []byte
	var procErr sql.NullString
	var processedAt sql.NullTime
	if err := row.Scan(&s.ID, &s.FilePath, &s.Status, &analysis, &procErr, &processedAt, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(analysis) > 0 {
		var a vision.Annotation
		if err := json.Unmarshal(analysis, &a); err != nil {
			return nil, fmt.Errorf("decoding analysis: %w", err)
		}
		s.Analysis = &a
	}
	if procErr.Valid {
		s.ProcessingError = procErr.String
	}
	if processedAt.Valid {
		t := processedAt.Time
		s.ProcessedAt = &t
	}
	return &s, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
