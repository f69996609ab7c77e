package calls

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"call-insights/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var schemaSQL string

const callColumns = `id, call_sid, from_number, to_number, duration, recording_url, transcription_id, status, metadata, created_at, updated_at`

const transcriptionColumns = `id, call_id, text, confidence, summary, categories, tags, created_at, updated_at`

// PostgresRepo stores calls and transcriptions in Postgres through database/sql (pgx stdlib driver).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// EnsureSchema creates the tables if they do not exist.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	return utils.ApplySchema(ctx, r.db, schemaSQL)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var (
		c        Call
		tid      sql.NullString
		status   string
		metadata []byte
	)
	if err := row.Scan(
		&c.ID,
		&c.CallSID,
		&c.From,
		&c.To,
		&c.Duration,
		&c.RecordingURL,
		&tid,
		&status,
		&metadata,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	c.TranscriptionID = tid.String
	c.Status = CallStatus(status)
	c.Metadata = map[string]any{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return Call{}, fmt.Errorf("decode call metadata: %w", err)
		}
	}
	return c, nil
}

func scanTranscription(row rowScanner) (Transcription, error) {
	var (
		t          Transcription
		categories []byte
		tags       []byte
	)
	if err := row.Scan(
		&t.ID,
		&t.CallID,
		&t.Text,
		&t.Confidence,
		&t.Summary,
		&categories,
		&tags,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transcription{}, ErrNotFound
		}
		return Transcription{}, err
	}
	if err := decodeLabels(categories, &t.Categories); err != nil {
		return Transcription{}, err
	}
	if err := decodeLabels(tags, &t.Tags); err != nil {
		return Transcription{}, err
	}
	return t, nil
}

func decodeLabels(raw []byte, dst *[]string) error {
	*dst = []string{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode labels: %w", err)
	}
	*dst = nonNil(*dst)
	return nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PostgresRepo) CreateCall(ctx context.Context, c Call) (Call, error) {
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	meta, err := encodeJSON(c.Metadata)
	if err != nil {
		return Call{}, fmt.Errorf("encode call metadata: %w", err)
	}
	const q = `
INSERT INTO calls (id, call_sid, from_number, to_number, duration, recording_url, transcription_id, status, metadata)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7::text, ''), $8, $9::jsonb)
RETURNING ` + callColumns
	out, err := scanCall(r.db.QueryRowContext(ctx, q,
		c.ID, c.CallSID, c.From, c.To, c.Duration, c.RecordingURL, c.TranscriptionID, string(c.Status), meta,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return Call{}, ErrDuplicateCallSID
		}
		return Call{}, err
	}
	return out, nil
}

func (r *PostgresRepo) GetCall(ctx context.Context, id string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	return scanCall(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) FindCallBySID(ctx context.Context, callSID string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE call_sid = $1`
	return scanCall(r.db.QueryRowContext(ctx, q, callSID))
}

func (r *PostgresRepo) ListCalls(ctx context.Context) ([]Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpdateCall(ctx context.Context, id string, u CallUpdate) (Call, error) {
	u = u.normalized()

	sets := make([]string, 0, 6)
	args := []any{id}
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}
	if u.Status != nil {
		add("status = $%d", string(*u.Status))
	}
	if u.TranscriptionID != nil {
		add("transcription_id = NULLIF($%d::text, '')", *u.TranscriptionID)
	}
	if u.RecordingURL != nil {
		add("recording_url = $%d", *u.RecordingURL)
	}
	if u.Duration != nil {
		add("duration = $%d", *u.Duration)
	}
	if len(u.Metadata) > 0 {
		meta, err := encodeJSON(u.Metadata)
		if err != nil {
			return Call{}, fmt.Errorf("encode call metadata: %w", err)
		}
		add("metadata = metadata || $%d::jsonb", meta)
	}
	sets = append(sets, "updated_at = now()")

	q := `UPDATE calls SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + callColumns
	return scanCall(r.db.QueryRowContext(ctx, q, args...))
}

func (r *PostgresRepo) DeleteCall(ctx context.Context, id string) error {
	// transcriptions go with it via ON DELETE CASCADE
	res, err := r.db.ExecContext(ctx, `DELETE FROM calls WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const detailQuery = `
SELECT c.id, c.call_sid, c.from_number, c.to_number, c.duration, c.recording_url, c.transcription_id,
       c.status, c.metadata, c.created_at, c.updated_at,
       t.id, t.call_id, t.text, t.confidence, t.summary, t.categories, t.tags, t.created_at, t.updated_at
FROM calls c
LEFT JOIN transcriptions t ON t.id = c.transcription_id
`

func scanDetail(row rowScanner) (CallDetail, error) {
	var (
		c        Call
		tid      sql.NullString
		status   string
		metadata []byte

		tID, tCallID, tText, tSummary sql.NullString
		tConfidence                   sql.NullFloat64
		tCategories, tTags            []byte
		tCreatedAt, tUpdatedAt        sql.NullTime
	)
	if err := row.Scan(
		&c.ID, &c.CallSID, &c.From, &c.To, &c.Duration, &c.RecordingURL, &tid,
		&status, &metadata, &c.CreatedAt, &c.UpdatedAt,
		&tID, &tCallID, &tText, &tConfidence, &tSummary, &tCategories, &tTags,
		&tCreatedAt, &tUpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallDetail{}, ErrNotFound
		}
		return CallDetail{}, err
	}
	c.TranscriptionID = tid.String
	c.Status = CallStatus(status)
	c.Metadata = map[string]any{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return CallDetail{}, fmt.Errorf("decode call metadata: %w", err)
		}
	}

	out := CallDetail{Call: c}
	if tID.Valid {
		t := Transcription{
			ID:         tID.String,
			CallID:     tCallID.String,
			Text:       tText.String,
			Confidence: tConfidence.Float64,
			Summary:    tSummary.String,
			CreatedAt:  tCreatedAt.Time,
			UpdatedAt:  tUpdatedAt.Time,
		}
		if err := decodeLabels(tCategories, &t.Categories); err != nil {
			return CallDetail{}, err
		}
		if err := decodeLabels(tTags, &t.Tags); err != nil {
			return CallDetail{}, err
		}
		out.Transcription = &t
	}
	return out, nil
}

func (r *PostgresRepo) GetCallDetail(ctx context.Context, id string) (CallDetail, error) {
	return scanDetail(r.db.QueryRowContext(ctx, detailQuery+` WHERE c.id = $1`, id))
}

func (r *PostgresRepo) ListCallDetails(ctx context.Context) ([]CallDetail, error) {
	rows, err := r.db.QueryContext(ctx, detailQuery+` ORDER BY c.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallDetail, 0)
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CreateTranscription(ctx context.Context, t Transcription) (Transcription, error) {
	categories, err := encodeJSON(nonNil(t.Categories))
	if err != nil {
		return Transcription{}, err
	}
	tags, err := encodeJSON(nonNil(t.Tags))
	if err != nil {
		return Transcription{}, err
	}

	var out Transcription
	err = utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the owning call so a concurrent delete cannot slip in between check and insert.
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM calls WHERE id = $1 FOR SHARE`, t.CallID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		const q = `
INSERT INTO transcriptions (id, call_id, text, confidence, summary, categories, tags)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb)
RETURNING ` + transcriptionColumns
		var err error
		out, err = scanTranscription(tx.QueryRowContext(ctx, q, t.ID, t.CallID, t.Text, t.Confidence, t.Summary, categories, tags))
		return err
	})
	if err != nil {
		return Transcription{}, err
	}
	return out, nil
}

func (r *PostgresRepo) GetTranscription(ctx context.Context, id string) (Transcription, error) {
	q := `SELECT ` + transcriptionColumns + ` FROM transcriptions WHERE id = $1`
	return scanTranscription(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) ListTranscriptions(ctx context.Context, callID string) ([]Transcription, error) {
	q := `SELECT ` + transcriptionColumns + ` FROM transcriptions`
	var args []any
	if callID != "" {
		q += ` WHERE call_id = $1`
		args = append(args, callID)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Transcription, 0)
	for rows.Next() {
		t, err := scanTranscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpdateTranscription(ctx context.Context, id string, u TranscriptionUpdate) (Transcription, error) {
	sets := make([]string, 0, 6)
	args := []any{id}
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}
	if u.Text != nil {
		add("text = $%d", *u.Text)
	}
	if u.Confidence != nil {
		add("confidence = $%d", *u.Confidence)
	}
	if u.Analysis != nil {
		categories, err := encodeJSON(nonNil(u.Analysis.Categories))
		if err != nil {
			return Transcription{}, err
		}
		tags, err := encodeJSON(nonNil(u.Analysis.Tags))
		if err != nil {
			return Transcription{}, err
		}
		add("summary = $%d", u.Analysis.Summary)
		add("categories = $%d::jsonb", categories)
		add("tags = $%d::jsonb", tags)
	}
	sets = append(sets, "updated_at = now()")

	q := `UPDATE transcriptions SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + transcriptionColumns
	return scanTranscription(r.db.QueryRowContext(ctx, q, args...))
}

func (r *PostgresRepo) DeleteTranscription(ctx context.Context, id string) (Transcription, error) {
	var out Transcription
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		q := `DELETE FROM transcriptions WHERE id = $1 RETURNING ` + transcriptionColumns
		var err error
		out, err = scanTranscription(tx.QueryRowContext(ctx, q, id))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
UPDATE calls
SET transcription_id = NULL, status = $3, updated_at = now()
WHERE id = $1 AND transcription_id = $2`, out.CallID, id, string(StatusTranscriptionDeleted))
		return err
	})
	if err != nil {
		return Transcription{}, err
	}
	return out, nil
}
