// Package vault is the encrypted-at-rest store for third-party secrets:
// payment provider keys, mail credentials, bank transfer instructions.
// Whether a payment rail is active is decided by whether its secrets are
// present here.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/atelier-gallery/atelier/internal/core/domain"
	"github.com/atelier-gallery/atelier/internal/port"
)

const (
	// KeySize is the AES-256 master key length.
	KeySize = 32

	suffixLen = 4
)

// Vault encrypts secrets with AES-256-GCM under a process-lifetime master
// key. Each write uses a fresh random nonce and binds the setting name as
// additional authenticated data, so a blob copied onto another name fails
// authentication. Plaintext is never persisted and never logged.
type Vault struct {
	aead  cipher.AEAD
	store port.SettingRepository
}

// Flag is the only vault shape exposed to administrative listings: no
// plaintext, no ciphertext, just presence and the trailing characters of
// the stored value.
type Flag struct {
	Configured bool   `json:"configured"`
	Suffix     string `json:"suffix,omitempty"`
}

// New builds a vault from a raw 32-byte master key. The key comes from
// process configuration, decoded once at boot; it is never derived from
// request input.
func New(masterKey []byte, store port.SettingRepository) (*Vault, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(masterKey))
	}
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Vault{aead: aead, store: store}, nil
}

func (v *Vault) seal(name, plaintext string) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	// Blob layout: nonce || ciphertext || tag.
	return v.aead.Seal(nonce, nonce, []byte(plaintext), []byte(name)), nil
}

func (v *Vault) open(name string, blob []byte) (string, error) {
	ns := v.aead.NonceSize()
	if len(blob) < ns+v.aead.Overhead() {
		return "", fmt.Errorf("setting %s: blob too short", name)
	}
	plaintext, err := v.aead.Open(nil, blob[:ns], blob[ns:], []byte(name))
	if err != nil {
		return "", fmt.Errorf("setting %s: decrypt: %w", name, err)
	}
	return string(plaintext), nil
}

// Put encrypts and stores a secret. The stored suffix is the last four
// characters of the plaintext (or the whole value when shorter), kept so
// an administrator can verify which key is loaded without ever reading it
// back.
func (v *Vault) Put(ctx context.Context, name, plaintext, actor string) error {
	if name == "" || plaintext == "" {
		return fmt.Errorf("%w: setting name and value are required", domain.ErrValidation)
	}
	blob, err := v.seal(name, plaintext)
	if err != nil {
		return err
	}
	suffix := plaintext
	if len(plaintext) > suffixLen {
		suffix = plaintext[len(plaintext)-suffixLen:]
	}
	return v.store.UpsertSetting(ctx, domain.SecureSetting{
		Name:      name,
		Blob:      blob,
		Suffix:    suffix,
		UpdatedAt: time.Now(),
		UpdatedBy: actor,
	})
}

// Get decrypts a secret; ok is false when the setting is absent.
func (v *Vault) Get(ctx context.Context, name string) (string, bool, error) {
	setting, err := v.store.GetSetting(ctx, name)
	if err != nil {
		return "", false, err
	}
	if setting == nil {
		return "", false, nil
	}
	plaintext, err := v.open(name, setting.Blob)
	if err != nil {
		return "", false, err
	}
	return plaintext, true, nil
}

// Flags reports presence and verification suffix for each requested name.
// Absent names are reported as unconfigured rather than omitted.
func (v *Vault) Flags(ctx context.Context, names []string) (map[string]Flag, error) {
	flags := make(map[string]Flag, len(names))
	for _, name := range names {
		flags[name] = Flag{}
	}
	settings, err := v.store.ListSettings(ctx, names)
	if err != nil {
		return nil, err
	}
	for _, s := range settings {
		flags[s.Name] = Flag{Configured: true, Suffix: s.Suffix}
	}
	return flags, nil
}
