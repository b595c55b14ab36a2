// Package store persists the outcome of finished uploads in PostgreSQL.
//
// Only terminal uploads are stored: one upload_history row per file and one
// upload_errors row per UploadError. The accepted rows themselves are handed
// to the completion callback and are not stored here.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/bulkupload/internal/core"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ DBTX = (*pgxpool.Pool)(nil)

// Default and maximum page sizes for ListUploads and GetErrors.
const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

var errorColumns = []string{"upload_id", "row_index", "column_name", "message", "value", "line_number"}

// Upload is one row of upload history.
type Upload struct {
	ID             string               `json:"id"`
	ConfigKey      string               `json:"configKey"`
	FileName       string               `json:"fileName"`
	FileSize       int64                `json:"fileSize"`
	Status         core.FileStatus      `json:"status"`
	Message        string               `json:"message,omitempty"`
	TotalRows      int                  `json:"totalRows"`
	SuccessCount   int                  `json:"successCount"`
	ErrorCount     int                  `json:"errorCount"`
	DuplicateCount int                  `json:"duplicateCount"`
	Mapping        []core.ColumnMapping `json:"mapping,omitempty"`
	StartedAt      time.Time            `json:"startedAt"`
	FinishedAt     time.Time            `json:"finishedAt"`
}

// Entry is what SaveSummary records for one terminal file.
type Entry struct {
	ConfigKey string
	File      core.BulkUploadFile
	Summary   *core.UploadSummary // nil for failed uploads
	Mapping   []core.ColumnMapping
}

// ListFilter narrows ListUploads.
type ListFilter struct {
	ConfigKey string
	Limit     int
	Offset    int
}

// Store reads and writes upload history.
type Store struct {
	db  DBTX
	now func() time.Time
}

// New creates a store over db.
func New(db DBTX) *Store {
	return &Store{db: db, now: time.Now}
}

// PoolConfig sizes the connection pool. Zero fields keep pgx defaults.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect opens a pool and verifies the connection.
func Connect(ctx context.Context, url string, pc PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	if pc.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pc.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the history tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveSummary records a terminal upload and its errors in one transaction.
func (s *Store) SaveSummary(ctx context.Context, e Entry) error {
	if !e.File.Status.Terminal() {
		return fmt.Errorf("save summary: upload %s is %s", e.File.ID, e.File.Status)
	}
	id, err := toPgUUID(e.File.ID)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}

	var mapping []byte
	if e.Mapping != nil {
		if mapping, err = json.Marshal(e.Mapping); err != nil {
			return fmt.Errorf("save summary: encode mapping: %w", err)
		}
	}

	var sum core.UploadSummary
	if e.Summary != nil {
		sum = *e.Summary
	}

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertUploadSQL,
			id,
			e.ConfigKey,
			e.File.Name,
			e.File.Size,
			string(e.File.Status),
			toPgText(e.File.Message),
			sum.TotalRows,
			sum.SuccessCount,
			sum.ErrorCount,
			sum.DuplicateCount,
			mapping,
			pgtype.Timestamptz{Time: e.File.UploadDate, Valid: !e.File.UploadDate.IsZero()},
			pgtype.Timestamptz{Time: s.now(), Valid: true},
		)
		if err != nil {
			return fmt.Errorf("insert upload: %w", err)
		}

		if len(sum.Errors) == 0 {
			return nil
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"upload_errors"}, errorColumns, errorSource(id, sum.Errors))
		if err != nil {
			return fmt.Errorf("copy upload errors: %w", err)
		}
		if int(n) != len(sum.Errors) {
			return fmt.Errorf("copy upload errors: wrote %d of %d", n, len(sum.Errors))
		}
		return nil
	})
}

// ListUploads returns history newest first.
func (s *Store) ListUploads(ctx context.Context, f ListFilter) ([]Upload, error) {
	limit, offset := page(f.Limit, f.Offset)

	rows, err := s.db.Query(ctx, listUploadsSQL, toPgText(f.ConfigKey), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	out := make([]Upload, 0)
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetUpload returns one upload by id.
func (s *Store) GetUpload(ctx context.Context, id string) (Upload, error) {
	pgID, err := toPgUUID(id)
	if err != nil {
		return Upload{}, fmt.Errorf("%w: %s", core.ErrUploadNotFound, id)
	}

	u, err := scanUpload(s.db.QueryRow(ctx, getUploadSQL, pgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Upload{}, fmt.Errorf("%w: %s", core.ErrUploadNotFound, id)
	}
	return u, err
}

// GetErrors returns the errors of an upload ordered by row then column order.
func (s *Store) GetErrors(ctx context.Context, id string, limit, offset int) ([]core.UploadError, error) {
	pgID, err := toPgUUID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrUploadNotFound, id)
	}
	limit, offset = page(limit, offset)

	rows, err := s.db.Query(ctx, getErrorsSQL, pgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get errors: %w", err)
	}
	defer rows.Close()

	out := make([]core.UploadError, 0)
	for rows.Next() {
		var (
			e     core.UploadError
			value pgtype.Text
			line  pgtype.Int4
		)
		if err := rows.Scan(&e.Row, &e.Column, &e.Error, &value, &line); err != nil {
			return nil, err
		}
		if value.Valid {
			e.Value = core.StringValue(value.String)
		}
		if line.Valid {
			e.Line = int(line.Int32)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Purge deletes history finished before cutoff and returns how many uploads
// were removed. Their errors go with them.
func (s *Store) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, purgeSQL, pgtype.Timestamptz{Time: cutoff, Valid: true})
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(r rowScanner) (Upload, error) {
	var (
		u        Upload
		id       pgtype.UUID
		status   string
		message  pgtype.Text
		mapping  []byte
		started  pgtype.Timestamptz
		finished pgtype.Timestamptz
	)
	err := r.Scan(
		&id, &u.ConfigKey, &u.FileName, &u.FileSize, &status, &message,
		&u.TotalRows, &u.SuccessCount, &u.ErrorCount, &u.DuplicateCount,
		&mapping, &started, &finished,
	)
	if err != nil {
		return Upload{}, err
	}

	u.ID = uuidToString(id)
	u.Status = core.FileStatus(status)
	u.Message = message.String
	u.StartedAt = started.Time
	u.FinishedAt = finished.Time
	if len(mapping) > 0 {
		if err := json.Unmarshal(mapping, &u.Mapping); err != nil {
			return Upload{}, fmt.Errorf("decode mapping: %w", err)
		}
	}
	return u, nil
}

// errorSource streams UploadErrors into CopyFrom without building a
// second slice of rows.
func errorSource(id pgtype.UUID, errs []core.UploadError) pgx.CopyFromSource {
	return pgx.CopyFromSlice(len(errs), func(i int) ([]any, error) {
		e := errs[i]
		var value pgtype.Text
		if !e.Value.IsEmpty() {
			value = pgtype.Text{String: e.Value.Text(), Valid: true}
		}
		var line pgtype.Int4
		if e.Line > 0 {
			line = pgtype.Int4{Int32: int32(e.Line), Valid: true}
		}
		return []any{id, int32(e.Row), e.Column, e.Error, value, line}, nil
	})
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return min(limit, MaxPageSize), max(offset, 0)
}
