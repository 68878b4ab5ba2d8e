package policy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Sentinel errors surfaced by policy stores.
var (
	// ErrLockTimeout means the exclusive file lock could not be acquired
	// within the bounded wait. Retryable.
	ErrLockTimeout = errors.New("policy: lock timeout")
	// ErrValidation means the external validator rejected the mutated
	// document; the pre-mutation content has been restored.
	ErrValidation = errors.New("policy: validation failed")
)

// ValidateFunc runs the external semantic validator against the document at
// path, returning a non-nil error when the document is rejected.
type ValidateFunc func(ctx context.Context, path string) error

// Store is the mutation surface the job engine depends on.
type Store interface {
	Read(ctx context.Context) ([]Rule, error)
	AppendAndValidate(ctx context.Context, rules []Rule) error
	RemoveAndValidate(ctx context.Context, match func(Rule) bool) error
}

// FileStore keeps the policy document in a local file. Every mutation runs
// under an exclusive flock shared by all writers in all processes, writes
// atomically (temp file, fsync, rename) with a timestamped backup, and rolls
// back when the external validator rejects the result.
type FileStore struct {
	path        string
	lockTimeout time.Duration
	validate    ValidateFunc
	log         *slog.Logger
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithValidator enables post-write semantic validation with rollback.
func WithValidator(fn ValidateFunc) FileOption {
	return func(s *FileStore) { s.validate = fn }
}

// WithLockTimeout overrides the default 10s bounded lock wait.
func WithLockTimeout(d time.Duration) FileOption {
	return func(s *FileStore) { s.lockTimeout = d }
}

// NewFileStore creates a file-backed policy store.
func NewFileStore(path string, log *slog.Logger, opts ...FileOption) *FileStore {
	s := &FileStore{
		path:        path,
		lockTimeout: 10 * time.Second,
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns the current rule list. A missing file reads as empty.
func (s *FileStore) Read(_ context.Context) ([]Rule, error) {
	content, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return Parse(string(content))
}

// AppendAndValidate appends rules not already present (structural match) and
// validates the result. Appending an already-present rule set is a no-op and
// performs no write.
func (s *FileStore) AppendAndValidate(ctx context.Context, rules []Rule) error {
	return s.mutate(ctx, func(current []Rule) ([]Rule, bool) {
		next := current
		changed := false
		for _, r := range rules {
			if !containsRule(next, r) {
				next = append(next, r)
				changed = true
			}
		}
		return next, changed
	})
}

// RemoveAndValidate drops every rule the matcher selects and validates the
// result. Removing rules for a principal that has none is a no-op.
func (s *FileStore) RemoveAndValidate(ctx context.Context, match func(Rule) bool) error {
	return s.mutate(ctx, func(current []Rule) ([]Rule, bool) {
		next := make([]Rule, 0, len(current))
		for _, r := range current {
			if !match(r) {
				next = append(next, r)
			}
		}
		return next, len(next) != len(current)
	})
}

// WriteAll fully regenerates the document. The admin baseline is ensured
// before applying so administrative access survives regeneration.
func (s *FileStore) WriteAll(ctx context.Context, rules []Rule) error {
	return s.mutate(ctx, func([]Rule) ([]Rule, bool) {
		return EnsureAdminBaseline(rules), true
	})
}

// mutate runs a read-modify-write under the exclusive lock. On validation
// failure the pre-mutation bytes are restored via the same atomic protocol.
func (s *FileStore) mutate(ctx context.Context, apply func([]Rule) ([]Rule, bool)) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	original, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read policy: %w", err)
	}
	current, err := Parse(string(original))
	if err != nil {
		return err
	}

	next, changed := apply(current)
	if !changed {
		return nil
	}

	if err := s.writeAtomic(Serialize(next), original); err != nil {
		return err
	}

	if s.validate != nil {
		if verr := s.validate(ctx, s.path); verr != nil {
			if rerr := s.writeAtomic(string(original), nil); rerr != nil {
				return fmt.Errorf("restoring policy after validation failure: %w", rerr)
			}
			return fmt.Errorf("%w: %s", ErrValidation, verr)
		}
	}
	return nil
}

func (s *FileStore) lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("policy dir: %w", err)
	}
	fl := flock.New(s.path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	ok, err := fl.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil || !ok {
		return nil, ErrLockTimeout
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.log.Warn("policy lock release failed", "error", err)
		}
	}, nil
}

// writeAtomic serializes content to a temp file in the target directory,
// fsyncs it, backs up the previous content and renames into place. A failed
// backup copy is logged but does not abort the mutation.
func (s *FileStore) writeAtomic(content string, previous []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".policy.*.tmp")
	if err != nil {
		return fmt.Errorf("create temp policy: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp policy: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp policy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp policy: %w", err)
	}

	if previous != nil {
		if err := s.backup(); err != nil {
			s.log.Warn("policy backup failed", "path", s.path, "error", err)
		}
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace policy: %w", err)
	}
	return nil
}

func (s *FileStore) backup() error {
	src, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer src.Close()

	ts := time.Now().UTC().Format("2006-01-02T15-04-05")
	dst, err := os.Create(fmt.Sprintf("%s.bak.%s", s.path, ts))
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}
