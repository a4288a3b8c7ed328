package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	// EncryptionKeyHexLength is the required length of a hex-encoded
	// AES-256 key (32 bytes).
	EncryptionKeyHexLength = 64

	// gcmTagSize is the GCM authentication tag length in bytes
	gcmTagSize = 16

	// hashKeyInfo is the HKDF info label for the content-hash MAC subkey
	hashKeyInfo = "commentguard/content-hash/v1"

	// apiKeyPrefix namespaces public API keys so they are shape-distinguishable
	// from hex encryption key material
	apiKeyPrefix = "cgk"

	// apiKeyEntropyBytes is the random payload size of a generated API key
	apiKeyEntropyBytes = 24
)

// Sentinel errors for the crypto engine. Decryption failures are a single
// generic error: tag mismatch, wrong context, malformed envelope, and unknown
// key version are deliberately indistinguishable to the caller to avoid
// oracle attacks. The distinguishing detail is never surfaced.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrDecryption   = errors.New("decryption failed")
)

var (
	hexKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	apiKeyPattern = regexp.MustCompile(`^cgk_[a-z0-9]+_[A-Za-z0-9_-]+$`)
)

// Envelope is the wire form of an encrypted field: ciphertext, nonce, and
// authentication tag plus the key version it was sealed under. The tag
// authenticates both the ciphertext and the caller-supplied context string
// (bound as additional authenticated data, not embedded in the plaintext).
type Envelope struct {
	Ciphertext string `json:"ciphertext"` // base64url, no padding
	Nonce      string `json:"nonce"`      // base64url, no padding
	Tag        string `json:"tag"`        // base64url, no padding
	KeyVersion int    `json:"key_version"`
}

// Encode renders the envelope in its compact single-string form:
// v<version>.<nonce>.<ciphertext>.<tag>
func (e *Envelope) Encode() string {
	return fmt.Sprintf("v%d.%s.%s.%s", e.KeyVersion, e.Nonce, e.Ciphertext, e.Tag)
}

// ParseEnvelope parses the compact envelope encoding produced by Encode.
func ParseEnvelope(s string) (*Envelope, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 || !strings.HasPrefix(parts[0], "v") {
		return nil, ErrDecryption
	}
	version, err := strconv.Atoi(parts[0][1:])
	if err != nil {
		return nil, ErrDecryption
	}
	return &Envelope{
		KeyVersion: version,
		Nonce:      parts[1],
		Ciphertext: parts[2],
		Tag:        parts[3],
	}, nil
}

// KeyRing holds the current encryption key and, during rotation, the
// previous one. It replaces ambient module-level key state: construct it
// explicitly and pass it to NewEncryptor. Rotation is an explicit method,
// not environment mutation, and is safe to call while the engine is
// serving encrypt and decrypt traffic.
type KeyRing struct {
	mu             sync.RWMutex
	keys           map[int][]byte
	currentVersion int
}

// NewKeyRing builds a key ring from hex-encoded key material. previousKeyHex
// may be empty when no rotation is in progress.
func NewKeyRing(currentKeyHex, previousKeyHex string) (*KeyRing, error) {
	current, err := decodeKeyHex(currentKeyHex)
	if err != nil {
		return nil, fmt.Errorf("current key: %w", err)
	}

	ring := &KeyRing{keys: map[int][]byte{}}

	if previousKeyHex != "" {
		previous, err := decodeKeyHex(previousKeyHex)
		if err != nil {
			return nil, fmt.Errorf("previous key: %w", err)
		}
		ring.keys[1] = previous
		ring.keys[2] = current
		ring.currentVersion = 2
	} else {
		ring.keys[1] = current
		ring.currentVersion = 1
	}

	return ring, nil
}

// CurrentVersion returns the version number envelopes are sealed under.
func (r *KeyRing) CurrentVersion() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentVersion
}

// Rotate installs newKeyHex as the current key and demotes the current key
// to previous. Any older previous key is discarded. Envelopes sealed under
// the demoted key remain decryptable until the next rotation; re-encrypt
// them with Encryptor.ReEncrypt before rotating again.
func (r *KeyRing) Rotate(newKeyHex string) error {
	key, err := decodeKeyHex(newKeyHex)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Keep only the demoted current key as fallback
	previous := r.keys[r.currentVersion]
	r.keys = map[int][]byte{
		r.currentVersion:     previous,
		r.currentVersion + 1: key,
	}
	r.currentVersion++
	return nil
}

// current returns the sealing key and its version as one consistent pair.
func (r *KeyRing) current() ([]byte, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keys[r.currentVersion], r.currentVersion
}

// snapshot copies the ring's keys and current version under the read lock
// so decryption iterates a stable view while Rotate may be running.
func (r *KeyRing) snapshot() (map[int][]byte, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make(map[int][]byte, len(r.keys))
	for v, k := range r.keys {
		keys[v] = k
	}
	return keys, r.currentVersion
}

func decodeKeyHex(keyHex string) ([]byte, error) {
	if err := ValidateEncryptionKey(keyHex); err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: key is not valid hex", ErrInvalidInput)
	}
	return key, nil
}

// Encryptor is the crypto engine: context-bound authenticated encryption,
// keyed content hashing, and key rotation over an explicit KeyRing.
type Encryptor struct {
	ring *KeyRing

	// hashKey is the HKDF-derived MAC subkey for content hashing, derived
	// from the current key at construction. An in-process Rotate does not
	// change it, so stored digests stay verifiable across cipher rotation.
	hashKey []byte
}

// NewEncryptor creates a crypto engine over the given key ring.
func NewEncryptor(ring *KeyRing) (*Encryptor, error) {
	if ring == nil {
		return nil, fmt.Errorf("%w: key ring is required", ErrInvalidInput)
	}
	key, _ := ring.current()
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: key ring is required", ErrInvalidInput)
	}

	hashKey, err := deriveHashKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to derive hash key: %w", err)
	}

	return &Encryptor{ring: ring, hashKey: hashKey}, nil
}

// Encrypt encrypts plaintext bound to the given context string using
// AES-256-GCM. The context is authenticated as additional data: decryption
// with any other context fails exactly like tampering does. A fresh random
// nonce is generated per call.
func (e *Encryptor) Encrypt(plaintext, context string) (*Envelope, error) {
	if plaintext == "" {
		return nil, fmt.Errorf("%w: plaintext must not be empty", ErrInvalidInput)
	}

	key, version := e.ring.current()
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), []byte(context))
	split := len(sealed) - gcmTagSize

	return &Envelope{
		Ciphertext: base64.RawURLEncoding.EncodeToString(sealed[:split]),
		Nonce:      base64.RawURLEncoding.EncodeToString(nonce),
		Tag:        base64.RawURLEncoding.EncodeToString(sealed[split:]),
		KeyVersion: version,
	}, nil
}

// Decrypt authenticates and decrypts an envelope under the same context it
// was sealed with. The current key is attempted first, then the previous key
// from an in-progress rotation. All failure modes return the same generic
// ErrDecryption.
func (e *Encryptor) Decrypt(env *Envelope, context string) (string, error) {
	if env == nil {
		return "", ErrDecryption
	}

	keys, currentVersion := e.ring.snapshot()
	if _, known := keys[env.KeyVersion]; !known {
		return "", ErrDecryption
	}

	nonce, err := base64.RawURLEncoding.DecodeString(env.Nonce)
	if err != nil {
		return "", ErrDecryption
	}
	ciphertext, err := base64.RawURLEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", ErrDecryption
	}
	tag, err := base64.RawURLEncoding.DecodeString(env.Tag)
	if err != nil || len(tag) != gcmTagSize {
		return "", ErrDecryption
	}

	sealed := append(ciphertext, tag...)

	// Current key first, previous key as rotation fallback
	versions := []int{currentVersion}
	for v := range keys {
		if v != currentVersion {
			versions = append(versions, v)
		}
	}

	for _, v := range versions {
		gcm, err := newGCM(keys[v])
		if err != nil {
			continue
		}
		if len(nonce) != gcm.NonceSize() {
			return "", ErrDecryption
		}
		plaintext, err := gcm.Open(nil, nonce, sealed, []byte(context))
		if err == nil {
			return string(plaintext), nil
		}
	}

	return "", ErrDecryption
}

// HashContent computes the keyed content digest: HMAC-SHA256 over the owning
// user ID and content, hex encoded (64 characters). The user ID is
// length-delimited into the MAC input so identical content from different
// owners always yields different digests.
func (e *Encryptor) HashContent(content, userID string) string {
	mac := hmac.New(sha256.New, e.hashKey)
	var lenBuf [8]byte
	writeUint64(lenBuf[:], uint64(len(userID)))
	mac.Write(lenBuf[:])
	mac.Write([]byte(userID))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyContentHash recomputes the digest and compares in constant time.
func (e *Encryptor) VerifyContentHash(content, userID, digest string) bool {
	expected := e.HashContent(content, userID)
	return hmac.Equal([]byte(expected), []byte(digest))
}

// EncryptFields encrypts the named fields of a string-field record, bound to
// the given context, and returns a new map with the compact envelope encoding
// in place of each named value. Fields not listed (and listed fields that are
// absent or empty) are left untouched.
func (e *Encryptor) EncryptFields(fields map[string]string, names []string, context string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}

	for _, name := range names {
		value, ok := out[name]
		if !ok || value == "" {
			continue
		}
		env, err := e.Encrypt(value, context)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt field %q: %w", name, err)
		}
		out[name] = env.Encode()
	}
	return out, nil
}

// DecryptFields reverses EncryptFields for the named fields.
func (e *Encryptor) DecryptFields(fields map[string]string, names []string, context string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}

	for _, name := range names {
		value, ok := out[name]
		if !ok || value == "" {
			continue
		}
		env, err := ParseEnvelope(value)
		if err != nil {
			return nil, err
		}
		plaintext, err := e.Decrypt(env, context)
		if err != nil {
			return nil, err
		}
		out[name] = plaintext
	}
	return out, nil
}

// ReEncrypt re-seals the given envelopes under the current key, for use after
// KeyRing.Rotate while the previous key is still in the ring. The returned
// flag confirms every new envelope round-trips to the original plaintext;
// callers must not discard the old key until it is true.
func (e *Encryptor) ReEncrypt(envelopes []*Envelope, context string) ([]*Envelope, bool, error) {
	out := make([]*Envelope, 0, len(envelopes))

	for _, env := range envelopes {
		plaintext, err := e.Decrypt(env, context)
		if err != nil {
			return nil, false, err
		}

		renewed, err := e.Encrypt(plaintext, context)
		if err != nil {
			return nil, false, err
		}

		// Round-trip check before the caller discards the old key
		check, err := e.Decrypt(renewed, context)
		if err != nil || check != plaintext {
			return out, false, ErrDecryption
		}
		out = append(out, renewed)
	}

	return out, true, nil
}

// deriveHashKey derives the content-hash MAC subkey from the master key via
// HKDF-SHA256, keeping the hashing and encryption key domains separated.
func deriveHashKey(master []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte(hashKeyInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func writeUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// GenerateEncryptionKey generates a new random AES-256 key as a
// 64-character hex string.
func GenerateEncryptionKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// ValidateEncryptionKey rejects key material that is not exactly 64 hex
// characters (32 bytes for AES-256).
func ValidateEncryptionKey(keyHex string) error {
	if len(keyHex) != EncryptionKeyHexLength {
		return fmt.Errorf("%w: encryption key must be %d hex characters, got %d",
			ErrInvalidInput, EncryptionKeyHexLength, len(keyHex))
	}
	if !hexKeyPattern.MatchString(keyHex) {
		return fmt.Errorf("%w: encryption key must be hex encoded", ErrInvalidInput)
	}
	return nil
}

// GenerateAPIKey generates a prefixed, namespaced public API token, e.g.
// "cgk_live_9fXk...". The prefix makes issued tokens recognizable in logs
// and scanners and shape-distinguishable from hex encryption key material.
// The function panics if the system's random number generator fails, which
// indicates a critical system-level security failure.
func GenerateAPIKey(namespace string) string {
	if namespace == "" {
		namespace = "default"
	}
	b := make([]byte, apiKeyEntropyBytes)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
	}
	return fmt.Sprintf("%s_%s_%s", apiKeyPrefix, namespace, base64.RawURLEncoding.EncodeToString(b))
}

// IsAPIKey reports whether s has the shape of a generated API key.
func IsAPIKey(s string) bool {
	return apiKeyPattern.MatchString(s)
}
