package mrn

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dokterdibya/clinic/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Allocator ===========

type allocatorPG struct{ pool *pgxpool.Pool }

// NewAllocatorPG returns the Postgres-backed allocator. The increment and
// read happen in one UPDATE ... RETURNING statement, so the row lock on the
// category's counter is the serialization point; counters for other
// categories are untouched and never block.
func NewAllocatorPG(pool *pgxpool.Pool) Allocator {
	return &allocatorPG{pool: pool}
}

func (a *allocatorPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return a.pool
}

func (a *allocatorPG) Allocate(ctx context.Context, category Category) (*Allocation, error) {
	if !category.Valid() {
		return nil, &InvalidCategoryError{Category: string(category)}
	}

	var sequence int
	err := a.conn(ctx).QueryRow(ctx,
		`UPDATE mr_counters SET current_sequence = current_sequence + 1, updated_at = NOW()
		 WHERE category = $1
		 RETURNING current_sequence`,
		string(category)).Scan(&sequence)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("counter row missing for category %s (run migrations)", category)
	}
	if err != nil {
		return nil, fmt.Errorf("increment counter for %s: %w", category, err)
	}

	return &Allocation{
		MrID:     FormatMrID(category, sequence),
		Category: category,
		Sequence: sequence,
	}, nil
}

func (a *allocatorPG) Counters(ctx context.Context) ([]Counter, error) {
	rows, err := a.conn(ctx).Query(ctx,
		`SELECT category, current_sequence, updated_at FROM mr_counters ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counters []Counter
	for rows.Next() {
		var c Counter
		if err := rows.Scan(&c.Category, &c.CurrentSequence, &c.UpdatedAt); err != nil {
			return nil, err
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

// =========== Record Repository ===========

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const recordCols = `id, mr_id, mr_category, mr_sequence, patient_id, appointment_id,
	folder_path, status, created_by, created_at, updated_at`

func (r *recordRepoPG) scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.MrID, &rec.Category, &rec.Sequence, &rec.PatientID, &rec.AppointmentID,
		&rec.FolderPath, &rec.Status, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepoPG) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinic_records (id, mr_id, mr_category, mr_sequence, patient_id, appointment_id,
			folder_path, status, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.ID, rec.MrID, rec.Category, rec.Sequence, rec.PatientID, rec.AppointmentID,
		rec.FolderPath, rec.Status, rec.CreatedBy)
	return err
}

func (r *recordRepoPG) GetByMrID(ctx context.Context, mrID string) (*Record, error) {
	return r.scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM clinic_records WHERE mr_id = $1 LIMIT 1`, mrID))
}

func (r *recordRepoPG) GetByAppointment(ctx context.Context, appointmentID int64) (*Record, error) {
	return r.scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM clinic_records WHERE appointment_id = $1 LIMIT 1`, appointmentID))
}

func (r *recordRepoPG) UpdateStatus(ctx context.Context, mrID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE clinic_records SET status = $2, updated_at = NOW() WHERE mr_id = $1`, mrID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *recordRepoPG) Statistics(ctx context.Context) ([]CategoryStats, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT c.category,
			COUNT(r.id) AS total_records,
			COUNT(CASE WHEN r.status = 'draft' THEN 1 END) AS draft_count,
			COUNT(CASE WHEN r.status = 'finalized' THEN 1 END) AS finalized_count,
			COALESCE(MAX(r.mr_sequence), 0) AS highest_sequence,
			c.current_sequence
		FROM mr_counters c
		LEFT JOIN clinic_records r ON r.mr_category = c.category
		GROUP BY c.category, c.current_sequence
		ORDER BY c.category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []CategoryStats
	for rows.Next() {
		var s CategoryStats
		if err := rows.Scan(&s.Category, &s.TotalRecords, &s.DraftCount, &s.FinalizedCount,
			&s.HighestSequence, &s.CounterSequence); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// =========== Tx Runner ===========

type txRunnerPG struct{ pool *pgxpool.Pool }

// NewTxRunnerPG wraps the pool into a TxRunner. The transaction is placed
// on the context so allocator and record repo calls inside fn share it.
func NewTxRunnerPG(pool *pgxpool.Pool) TxRunner {
	return &txRunnerPG{pool: pool}
}

func (t *txRunnerPG) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(db.WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
