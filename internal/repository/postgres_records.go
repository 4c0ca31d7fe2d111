package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"laser-repair/internal/domain"
)

// PostgresRecordsRepo 每张工单一行（JSONB），id 由 BIGSERIAL 分配
type PostgresRecordsRepo struct {
	db *sql.DB
}

func NewPostgresRecordsRepo(db *sql.DB) *PostgresRecordsRepo {
	return &PostgresRecordsRepo{db: db}
}

const createRecordsTableSQL = `
CREATE TABLE IF NOT EXISTS repair_records (
	id           BIGSERIAL PRIMARY KEY,
	sn           TEXT NOT NULL,
	record_date  TEXT NOT NULL DEFAULT '',
	payload      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureSchema 建表（幂等）
func (r *PostgresRecordsRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createRecordsTableSQL); err != nil {
		return fmt.Errorf("create repair_records: %w", err)
	}
	return nil
}

func (r *PostgresRecordsRepo) All(ctx context.Context) ([]domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, payload FROM repair_records ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return scanRecords(rows)
}

func (r *PostgresRecordsRepo) List(ctx context.Context, filter RecordFilter) ([]domain.Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, payload FROM repair_records
		 WHERE $1 = '' OR sn ILIKE '%' || $1 || '%'
		 ORDER BY id DESC`,
		escapeLike(filter.SN),
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return scanRecords(rows)
}

func (r *PostgresRecordsRepo) Get(ctx context.Context, id int) (*domain.Record, error) {
	var payload []byte
	var rid int
	err := r.db.QueryRowContext(ctx, `SELECT id, payload FROM repair_records WHERE id = $1`, id).Scan(&rid, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record %d: %w", id, err)
	}
	rec, err := decodePayload(rid, payload)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *PostgresRecordsRepo) Append(ctx context.Context, rec domain.Record) (domain.Record, error) {
	rec = rec.Clone()
	rec.Normalize()
	rec.ID = 0
	payload, err := json.Marshal(rec)
	if err != nil {
		return domain.Record{}, fmt.Errorf("encode record: %w", err)
	}

	var id int
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO repair_records (sn, record_date, payload) VALUES ($1, $2, $3) RETURNING id`,
		rec.SN, rec.Date, string(payload),
	).Scan(&id)
	if err != nil {
		return domain.Record{}, fmt.Errorf("insert record: %w", err)
	}
	rec.ID = id
	return rec, nil
}

func (r *PostgresRecordsRepo) Delete(ctx context.Context, id int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM repair_records WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete record %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete record %d: %w", id, err)
	}
	return n > 0, nil
}

func scanRecords(rows *sql.Rows) ([]domain.Record, error) {
	defer rows.Close()

	out := []domain.Record{}
	for rows.Next() {
		var id int
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := decodePayload(id, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// decodePayload 行 id 以列为准，payload 内的 id 忽略
func decodePayload(id int, payload []byte) (domain.Record, error) {
	var rec domain.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return domain.Record{}, fmt.Errorf("%w: record %d: %v", ErrCorruptStore, id, err)
	}
	rec.ID = id
	rec.Normalize()
	return rec, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
