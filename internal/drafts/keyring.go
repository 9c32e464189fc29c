package drafts

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/talentflow/offlinecache/internal/common"
	"github.com/talentflow/offlinecache/internal/cryptox"
)

// Settings keys persisted in draft_settings. Only the salt and the verifier
// hash are stored; the derived key lives in memory while unlocked.
const (
	settingSalt     = "encryption_salt"
	settingVerifier = "encryption_verifier"
)

// Keyring manages the draft encryption key: passphrase setup, unlock
// against the stored verifier, and in-memory key caching.
type Keyring struct {
	db *sql.DB

	mu  sync.Mutex
	key []byte
}

func NewKeyring(db *sql.DB) *Keyring {
	return &Keyring{db: db}
}

// SetPassphrase generates a fresh salt, derives the key, stores salt and
// verifier, and leaves the keyring unlocked.
func (k *Keyring) SetPassphrase(ctx context.Context, passphrase []byte) error {
	salt := cryptox.NewSalt()
	key := cryptox.DeriveKey(passphrase, salt)

	if err := k.putSetting(ctx, settingSalt, salt); err != nil {
		return err
	}
	if err := k.putSetting(ctx, settingVerifier, cryptox.MakeVerifier(key)); err != nil {
		return err
	}

	k.mu.Lock()
	k.key = key
	k.mu.Unlock()
	return nil
}

// Unlock re-derives the key from the passphrase and caches it when the
// verifier matches. A wrong passphrase returns (false, nil), not an error.
func (k *Keyring) Unlock(ctx context.Context, passphrase []byte) (bool, error) {
	salt, err := k.getSetting(ctx, settingSalt)
	if errors.Is(err, common.ErrNotFound) {
		return false, common.ErrNoPassphrase
	}
	if err != nil {
		return false, err
	}
	verifier, err := k.getSetting(ctx, settingVerifier)
	if err != nil {
		return false, err
	}

	key := cryptox.DeriveKey(passphrase, salt)
	if subtle.ConstantTimeCompare(cryptox.MakeVerifier(key), verifier) != 1 {
		return false, nil
	}

	k.mu.Lock()
	k.key = key
	k.mu.Unlock()
	return true, nil
}

// Lock clears the in-memory key.
func (k *Keyring) Lock() {
	k.mu.Lock()
	for i := range k.key {
		k.key[i] = 0
	}
	k.key = nil
	k.mu.Unlock()
}

// Unlocked reports whether a key is cached.
func (k *Keyring) Unlocked() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.key != nil
}

// Key returns the cached key or nil when locked.
func (k *Keyring) Key() []byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.key
}

// Configured reports whether a passphrase has ever been set.
func (k *Keyring) Configured(ctx context.Context) (bool, error) {
	_, err := k.getSetting(ctx, settingSalt)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (k *Keyring) getSetting(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := k.db.QueryRowContext(ctx,
		`SELECT value FROM draft_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get draft setting[%s]: %w", key, err)
	}
	return value, nil
}

func (k *Keyring) putSetting(ctx context.Context, key string, value []byte) error {
	_, err := k.db.ExecContext(ctx, `
		INSERT INTO draft_settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set draft setting[%s]: %w", key, err)
	}
	return nil
}
