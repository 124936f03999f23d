package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"time"
)

// TokenCipher seals integration credentials before they reach storage.
type TokenCipher interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type Option func(*AppKeyCipher)

type keyRef struct {
	KeyID   string
	Version int
}

func (r keyRef) id() string {
	return fmt.Sprintf("%s:%d", r.KeyID, r.Version)
}

// AppKeyCipher encrypts with one active application key and decrypts with
// the active key plus any retired keys registered through WithDecryptKey.
type AppKeyCipher struct {
	active  keyRef
	keys    map[string][]byte
	windows map[string]KeyRotationWindow
	now     func() time.Time
}

func WithKeyID(id string) Option {
	return func(c *AppKeyCipher) {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" || trimmed == c.active.KeyID {
			return
		}
		c.rekeyActive(keyRef{KeyID: trimmed, Version: c.active.Version})
	}
}

func WithVersion(version int) Option {
	return func(c *AppKeyCipher) {
		if version <= 0 || version == c.active.Version {
			return
		}
		c.rekeyActive(keyRef{KeyID: c.active.KeyID, Version: version})
	}
}

// WithDecryptKey keeps a retired key readable so rows sealed before a
// rotation still open.
func WithDecryptKey(keyID string, version int, material []byte) Option {
	return func(c *AppKeyCipher) {
		keyID = strings.TrimSpace(keyID)
		material = bytes.TrimSpace(material)
		if keyID == "" || version <= 0 || len(material) == 0 {
			return
		}
		c.keys[keyRef{KeyID: keyID, Version: version}.id()] = normalizeKey(material)
	}
}

func WithRotationWindow(keyID string, version int, window KeyRotationWindow) Option {
	return func(c *AppKeyCipher) {
		keyID = strings.TrimSpace(keyID)
		if keyID == "" || version <= 0 {
			return
		}
		c.windows[keyRef{KeyID: keyID, Version: version}.id()] = window
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *AppKeyCipher) {
		if now != nil {
			c.now = now
		}
	}
}

func NewAppKeyCipher(keyMaterial []byte, opts ...Option) (*AppKeyCipher, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	active := keyRef{KeyID: "app-key", Version: 1}
	c := &AppKeyCipher{
		active:  active,
		keys:    map[string][]byte{active.id(): normalizeKey(key)},
		windows: map[string]KeyRotationWindow{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c, nil
}

func NewAppKeyCipherFromString(key string, opts ...Option) (*AppKeyCipher, error) {
	return NewAppKeyCipher([]byte(key), opts...)
}

func (c *AppKeyCipher) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("security: token cipher is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	if err := c.checkWindow(c.active); err != nil {
		return nil, err
	}
	gcm, err := newGCM(c.keys[c.active.id()])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, []byte(c.active.id()))
	return encodeEnvelope(envelope{
		KeyID:      c.active.KeyID,
		Version:    c.active.Version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      encodePayload(nonce),
		Ciphertext: encodePayload(sealed),
	})
}

func (c *AppKeyCipher) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("security: token cipher is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	ref := keyRef{KeyID: env.KeyID, Version: env.Version}
	key, ok := c.keys[ref.id()]
	if !ok {
		return nil, fmt.Errorf("security: unknown key %s", ref.id())
	}
	if err := c.checkWindow(ref); err != nil {
		return nil, err
	}
	nonce, err := decodePayload("nonce", env.Nonce)
	if err != nil {
		return nil, err
	}
	payload, err := decodePayload("ciphertext", env.Ciphertext)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("security: invalid nonce length %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, payload, []byte(ref.id()))
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (c *AppKeyCipher) KeyID() string {
	if c == nil {
		return ""
	}
	return c.active.KeyID
}

func (c *AppKeyCipher) Version() int {
	if c == nil {
		return 0
	}
	return c.active.Version
}

func (c *AppKeyCipher) rekeyActive(next keyRef) {
	material := c.keys[c.active.id()]
	delete(c.keys, c.active.id())
	c.active = next
	c.keys[next.id()] = material
}

func (c *AppKeyCipher) checkWindow(ref keyRef) error {
	window, ok := c.windows[ref.id()]
	if !ok || window.Allows(c.now()) {
		return nil
	}
	return fmt.Errorf("security: key %s is outside its rotation window", ref.id())
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}

var _ TokenCipher = (*AppKeyCipher)(nil)
