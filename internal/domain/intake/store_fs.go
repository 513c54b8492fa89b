package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dokterdibya/clinic/internal/platform/phi"
)

// FSStore keeps one JSON document per submission under a single
// directory. It is the storage the clinic ran on before Postgres and
// remains the backend for the offline CLI commands.
//
// Listing decrypts every record to evaluate payload filters, so it is
// O(n) in stored submissions. Acceptable at clinic volume.
type FSStore struct {
	dir    string
	codec  *phi.Codec
	logger zerolog.Logger

	mu sync.Mutex
}

func NewFSStore(dir string, codec *phi.Codec, logger zerolog.Logger) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create intake dir: %w", err)
	}
	return &FSStore{dir: dir, codec: codec, logger: logger}, nil
}

func (s *FSStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FSStore) Save(ctx context.Context, sub *Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if phone := sub.Phone(); phone != "" {
		existing, err := s.findActiveByPhone(ctx, phone)
		if err != nil {
			return err
		}
		if existing != nil {
			return &DuplicateError{ExistingID: existing.SubmissionID, Phone: phone}
		}
	}

	stored := *sub
	if s.codec != nil {
		w, err := s.codec.EncryptBytes(sub.Payload)
		if err != nil {
			return fmt.Errorf("encrypt submission %s: %w", sub.SubmissionID, err)
		}
		stored.Payload = nil
		stored.Encrypted = w
	}
	if err := stored.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(&stored, "", "  ")
	if err != nil {
		return fmt.Errorf("encode submission %s: %w", sub.SubmissionID, err)
	}

	// O_EXCL: a submission file is written once and never clobbered.
	f, err := os.OpenFile(s.path(sub.SubmissionID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("write submission %s: %w", sub.SubmissionID, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write submission %s: %w", sub.SubmissionID, err)
	}
	return f.Close()
}

func (s *FSStore) Get(ctx context.Context, id string) (*Submission, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read intake dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if !strings.HasPrefix(e.Name(), id) {
			continue
		}
		return s.load(filepath.Join(s.dir, e.Name()))
	}
	return nil, ErrNotFound
}

func (s *FSStore) List(ctx context.Context, f Filter) ([]*Submission, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read intake dir: %w", err)
	}

	var out []*Submission
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		sub, err := s.load(filepath.Join(s.dir, e.Name()))
		if err != nil {
			if errors.Is(err, phi.ErrKeyMissing) {
				return nil, err
			}
			// One unreadable file must not hide the rest of the log.
			s.logger.Warn().Err(err).Str("file", e.Name()).Msg("skipping unreadable intake file")
			continue
		}
		if f.Matches(sub) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	return out, nil
}

func (s *FSStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !sub.Status.CanTransitionTo(status) {
		return fmt.Errorf("intake: cannot move submission %s from %s to %s", sub.SubmissionID, sub.Status, status)
	}
	sub.Status = status

	stored := *sub
	if s.codec != nil {
		w, err := s.codec.EncryptBytes(sub.Payload)
		if err != nil {
			return fmt.Errorf("encrypt submission %s: %w", sub.SubmissionID, err)
		}
		stored.Payload = nil
		stored.Encrypted = w
	}
	data, err := json.MarshalIndent(&stored, "", "  ")
	if err != nil {
		return fmt.Errorf("encode submission %s: %w", sub.SubmissionID, err)
	}
	if err := os.WriteFile(s.path(sub.SubmissionID), data, 0o600); err != nil {
		return fmt.Errorf("rewrite submission %s: %w", sub.SubmissionID, err)
	}
	return nil
}

// load reads one file and resolves the payload to plaintext.
func (s *FSStore) load(path string) (*Submission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sub Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if sub.Encrypted != nil {
		plain, err := s.codec.DecryptBytes(sub.Encrypted)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", sub.SubmissionID, err)
		}
		sub.Payload = plain
		sub.Encrypted = nil
	}
	return &sub, nil
}

func (s *FSStore) findActiveByPhone(ctx context.Context, phone string) (*Submission, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read intake dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		sub, err := s.load(filepath.Join(s.dir, e.Name()))
		if err != nil {
			if errors.Is(err, phi.ErrKeyMissing) {
				return nil, err
			}
			continue
		}
		if sub.Status != StatusImported && sub.Phone() == phone {
			return sub, nil
		}
	}
	return nil, nil
}
