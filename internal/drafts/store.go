// Package drafts implements the Draft Store: key/value persistence for
// in-progress form state, with sensitive-field redaction, optional AES-GCM
// encryption at rest and a flat-file fallback when the primary store fails.
package drafts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/talentflow/offlinecache/internal/common"
	"github.com/talentflow/offlinecache/internal/cryptox"
	"github.com/talentflow/offlinecache/internal/logging"
	"github.com/talentflow/offlinecache/internal/models"
)

// LockedSentinel is returned by Get for an encrypted draft while the key is
// locked, so the caller can prompt for unlock instead of failing.
var LockedSentinel = []byte(`{"__encrypted":true}`)

// IsLocked reports whether raw is the locked-draft sentinel.
func IsLocked(raw []byte) bool {
	return bytes.Equal(raw, LockedSentinel)
}

// Store is the Draft Store facade.
type Store struct {
	primary  repository
	fallback repository
	keyring  *Keyring
	log      logging.Logger

	// Now is the clock; tests override it to control eviction ordering.
	Now func() time.Time
}

func NewStore(primary *SQLiteRepository, fallback *FileRepository, keyring *Keyring, log logging.Logger) *Store {
	return &Store{primary: primary, fallback: fallback, keyring: keyring, log: log, Now: time.Now}
}

// Keyring exposes the encryption key management API.
func (s *Store) Keyring() *Keyring {
	return s.keyring
}

// Save serializes v, redacts known-sensitive fields, encrypts when the
// keyring is unlocked, and persists. A primary-store failure falls back to
// the file store with a logged warning, never an error to the caller.
func (s *Store) Save(ctx context.Context, key string, v any) error {
	if key == "" {
		return errors.New("draft key must not be empty")
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("serialize draft[%s]: %w", key, err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode draft[%s]: %w", key, err)
	}
	redact(decoded)

	var value []byte
	if s.keyring.Unlocked() {
		env, err := cryptox.EncryptJSON(decoded, s.keyring.Key())
		if err != nil {
			return fmt.Errorf("encrypt draft[%s]: %w", key, err)
		}
		if value, err = json.Marshal(env); err != nil {
			return err
		}
	} else {
		if value, err = json.Marshal(decoded); err != nil {
			return err
		}
	}

	now := s.Now()
	if err := s.primary.Save(ctx, key, value, now); err != nil {
		s.log.Warn(ctx, "primary draft store failed, falling back", "key", key, "error", err)
		return s.fallback.Save(ctx, key, value, now)
	}
	return nil
}

// Get returns the draft's plain JSON. For an encrypted draft with the key
// locked it returns LockedSentinel; an undecryptable draft degrades the
// same way rather than erroring. Absent drafts return common.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	d, err := s.primary.Get(ctx, key)
	if errors.Is(err, common.ErrNotFound) {
		d, err = s.fallback.Get(ctx, key)
	}
	if err != nil {
		return nil, err
	}

	env, encrypted := cryptox.ParseEnvelope(d.Value)
	if !encrypted {
		return d.Value, nil
	}

	if !s.keyring.Unlocked() {
		return LockedSentinel, nil
	}

	var decoded any
	if err := cryptox.DecryptJSON(env, s.keyring.Key(), &decoded); err != nil {
		s.log.Warn(ctx, "draft decryption failed", "key", key, "error", err)
		return LockedSentinel, nil
	}
	return json.Marshal(decoded)
}

// Delete removes the draft from both stores.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.primary.Delete(ctx, key); err != nil {
		return err
	}
	return s.fallback.Delete(ctx, key)
}

// List returns the primary store's drafts, oldest updated first.
func (s *Store) List(ctx context.Context) ([]models.Draft, error) {
	return s.primary.List(ctx)
}
