package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS upload_history (
    id              UUID PRIMARY KEY,
    config_key      TEXT NOT NULL,
    file_name       TEXT NOT NULL,
    file_size       BIGINT NOT NULL DEFAULT 0,
    status          TEXT NOT NULL,
    message         TEXT,
    total_rows      INT NOT NULL DEFAULT 0,
    success_count   INT NOT NULL DEFAULT 0,
    error_count     INT NOT NULL DEFAULT 0,
    duplicate_count INT NOT NULL DEFAULT 0,
    mapping         JSONB,
    started_at      TIMESTAMPTZ,
    finished_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS upload_history_config_finished_idx
    ON upload_history (config_key, finished_at DESC);

CREATE TABLE IF NOT EXISTS upload_errors (
    upload_id   UUID NOT NULL REFERENCES upload_history (id) ON DELETE CASCADE,
    row_index   INT NOT NULL,
    column_name TEXT NOT NULL,
    message     TEXT NOT NULL,
    value       TEXT,
    line_number INT
);

ALTER TABLE upload_errors ADD COLUMN IF NOT EXISTS line_number INT;

CREATE INDEX IF NOT EXISTS upload_errors_upload_idx
    ON upload_errors (upload_id, row_index);
`

const insertUploadSQL = `
INSERT INTO upload_history (
    id, config_key, file_name, file_size, status, message,
    total_rows, success_count, error_count, duplicate_count,
    mapping, started_at, finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

const uploadColumns = `
    id, config_key, file_name, file_size, status, message,
    total_rows, success_count, error_count, duplicate_count,
    mapping, started_at, finished_at`

const listUploadsSQL = `
SELECT` + uploadColumns + `
FROM upload_history
WHERE ($1::text IS NULL OR config_key = $1)
ORDER BY finished_at DESC, id
LIMIT $2 OFFSET $3`

const getUploadSQL = `
SELECT` + uploadColumns + `
FROM upload_history
WHERE id = $1`

// ctid keeps errors in insertion order, which is row then column order.
const getErrorsSQL = `
SELECT row_index, column_name, message, value, line_number
FROM upload_errors
WHERE upload_id = $1
ORDER BY row_index, ctid
LIMIT $2 OFFSET $3`

const purgeSQL = `DELETE FROM upload_history WHERE finished_at < $1`
