package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/dokterdibya/clinic/internal/platform/db"
	"github.com/dokterdibya/clinic/internal/platform/phi"
)

// PGStore persists submissions in the intake_submissions table. The phone
// number is stored as a plain column because it is the deduplication key:
// a partial unique index over active submissions turns the race between
// two identical submissions into a constraint violation, which Save
// translates into a *DuplicateError naming the winner.
//
// Every call is bounded by the configured storage timeout and reports
// db.ErrTimeout when exceeded.
type PGStore struct {
	pool    *pgxpool.Pool
	codec   *phi.Codec
	timeout time.Duration
	logger  zerolog.Logger
}

func NewPGStore(pool *pgxpool.Pool, codec *phi.Codec, timeout time.Duration, logger zerolog.Logger) *PGStore {
	return &PGStore{pool: pool, codec: codec, timeout: timeout, logger: logger}
}

const submissionCols = `submission_id, received_at, status, high_risk, phone,
	payload, enc_iv, enc_auth_tag, enc_data, enc_key_id, client_ip, user_agent`

func (s *PGStore) Save(ctx context.Context, sub *Submission) error {
	tctx, cancel, translate := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	var payload []byte
	var iv, tag, data, keyID *string
	if s.codec != nil {
		w, err := s.codec.EncryptBytes(sub.Payload)
		if err != nil {
			return fmt.Errorf("encrypt submission %s: %w", sub.SubmissionID, err)
		}
		iv, tag, data, keyID = &w.IV, &w.AuthTag, &w.Data, &w.KeyID
	} else {
		payload = sub.Payload
	}

	_, err := s.pool.Exec(tctx, `
		INSERT INTO intake_submissions (`+submissionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		sub.SubmissionID, sub.ReceivedAt, sub.Status, sub.HighRisk, sub.Phone(),
		payload, iv, tag, data, keyID, sub.Client.IP, sub.Client.UserAgent)
	if db.IsUniqueViolation(err) {
		return s.duplicateFor(ctx, sub.Phone())
	}
	if err != nil {
		return translate(fmt.Errorf("insert submission: %w", err))
	}
	return nil
}

// duplicateFor resolves a constraint violation to the surviving record so
// the caller can tell the client which submission already holds the phone.
func (s *PGStore) duplicateFor(ctx context.Context, phone string) error {
	tctx, cancel, translate := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	var existingID string
	err := s.pool.QueryRow(tctx, `
		SELECT submission_id FROM intake_submissions
		WHERE phone = $1 AND status <> 'imported'
		ORDER BY received_at DESC LIMIT 1`, phone).Scan(&existingID)
	if err != nil {
		return translate(fmt.Errorf("resolve duplicate for phone %s: %w", phone, err))
	}
	return &DuplicateError{ExistingID: existingID, Phone: phone}
}

func (s *PGStore) Get(ctx context.Context, id string) (*Submission, error) {
	tctx, cancel, translate := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	row := s.pool.QueryRow(tctx, `
		SELECT `+submissionCols+` FROM intake_submissions
		WHERE submission_id LIKE $1 || '%'
		ORDER BY received_at DESC LIMIT 1`, id)
	sub, err := s.scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, translate(err)
	}
	return sub, nil
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]*Submission, error) {
	tctx, cancel, translate := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Date bounds are pushed into SQL. Name and phone filters need the
	// decrypted payload and are applied after the scan.
	q := `SELECT ` + submissionCols + ` FROM intake_submissions WHERE 1=1`
	var args []interface{}
	if f.From != nil {
		args = append(args, *f.From)
		q += fmt.Sprintf(" AND received_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		q += fmt.Sprintf(" AND received_at <= $%d", len(args))
	}
	q += " ORDER BY received_at DESC"

	rows, err := s.pool.Query(tctx, q, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []*Submission
	for rows.Next() {
		sub, err := s.scan(rows)
		if err != nil {
			if errors.Is(err, phi.ErrKeyMissing) {
				return nil, err
			}
			s.logger.Warn().Err(err).Msg("skipping unreadable intake row")
			continue
		}
		if f.Matches(sub) {
			out = append(out, sub)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *PGStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !sub.Status.CanTransitionTo(status) {
		return fmt.Errorf("intake: cannot move submission %s from %s to %s", sub.SubmissionID, sub.Status, status)
	}

	tctx, cancel, translate := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	tag, err := s.pool.Exec(tctx, `
		UPDATE intake_submissions SET status = $2 WHERE submission_id = $1`,
		sub.SubmissionID, status)
	if err != nil {
		return translate(fmt.Errorf("update status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) scan(row pgx.Row) (*Submission, error) {
	var sub Submission
	var payload []byte
	var iv, tag, data, keyID *string
	err := row.Scan(&sub.SubmissionID, &sub.ReceivedAt, &sub.Status, &sub.HighRisk, new(string),
		&payload, &iv, &tag, &data, &keyID, &sub.Client.IP, &sub.Client.UserAgent)
	if err != nil {
		return nil, err
	}

	if data != nil {
		w := &phi.Wrapper{Algorithm: phi.Algorithm, IV: deref(iv), AuthTag: deref(tag), Data: *data, KeyID: deref(keyID)}
		plain, err := s.codec.DecryptBytes(w)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", sub.SubmissionID, err)
		}
		sub.Payload = plain
	} else {
		sub.Payload = json.RawMessage(payload)
	}
	return &sub, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
