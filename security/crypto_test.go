package security

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	testKeyA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testKeyB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	testKeyC = "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
)

func newTestEncryptor(t *testing.T, currentHex, previousHex string) *Encryptor {
	t.Helper()
	ring, err := NewKeyRing(currentHex, previousHex)
	if err != nil {
		t.Fatalf("NewKeyRing() error = %v", err)
	}
	enc, err := NewEncryptor(ring)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}
	return enc
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc := newTestEncryptor(t, testKeyA, "")

	tests := []struct {
		name      string
		plaintext string
		context   string
	}{
		{"simple", "author-42", "user-1:instagram"},
		{"unicode", "пользователь-式样", "user-1:tiktok"},
		{"long", strings.Repeat("x", 4096), "user-2:facebook"},
		{"empty context", "author-42", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := enc.Encrypt(tt.plaintext, tt.context)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}

			got, err := enc.Decrypt(env, tt.context)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if got != tt.plaintext {
				t.Errorf("Decrypt() = %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestEncryptEmptyPlaintext(t *testing.T) {
	enc := newTestEncryptor(t, testKeyA, "")

	_, err := enc.Encrypt("", "ctx")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Encrypt(\"\") error = %v, want ErrInvalidInput", err)
	}
}

func TestEncryptFreshNoncePerCall(t *testing.T) {
	enc := newTestEncryptor(t, testKeyA, "")

	first, err := enc.Encrypt("same plaintext", "same context")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	second, err := enc.Encrypt("same plaintext", "same context")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if first.Nonce == second.Nonce {
		t.Error("Encrypt() reused a nonce across calls")
	}
	if first.Ciphertext == second.Ciphertext {
		t.Error("Encrypt() produced identical ciphertext for two calls")
	}
}

// Every decryption failure mode must return the same generic error so the
// caller cannot distinguish tampering from context mismatch.
func TestDecryptFailureModesAreGeneric(t *testing.T) {
	enc := newTestEncryptor(t, testKeyA, "")

	env, err := enc.Encrypt("author-42", "user-1:instagram")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(e Envelope) Envelope
		ctx    string
	}{
		{
			name:   "wrong context",
			mutate: func(e Envelope) Envelope { return e },
			ctx:    "user-2:instagram",
		},
		{
			name:   "context case changed",
			mutate: func(e Envelope) Envelope { return e },
			ctx:    "User-1:instagram",
		},
		{
			name: "tampered ciphertext",
			mutate: func(e Envelope) Envelope {
				e.Ciphertext = flipFirstChar(e.Ciphertext)
				return e
			},
			ctx: "user-1:instagram",
		},
		{
			name: "tampered tag",
			mutate: func(e Envelope) Envelope {
				e.Tag = flipFirstChar(e.Tag)
				return e
			},
			ctx: "user-1:instagram",
		},
		{
			name: "tampered nonce",
			mutate: func(e Envelope) Envelope {
				e.Nonce = flipFirstChar(e.Nonce)
				return e
			},
			ctx: "user-1:instagram",
		},
		{
			name: "unknown key version",
			mutate: func(e Envelope) Envelope {
				e.KeyVersion = 99
				return e
			},
			ctx: "user-1:instagram",
		},
		{
			name: "malformed nonce encoding",
			mutate: func(e Envelope) Envelope {
				e.Nonce = "!!not base64url!!"
				return e
			},
			ctx: "user-1:instagram",
		},
		{
			name: "truncated tag",
			mutate: func(e Envelope) Envelope {
				e.Tag = e.Tag[:4]
				return e
			},
			ctx: "user-1:instagram",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := tt.mutate(*env)
			_, err := enc.Decrypt(&mutated, tt.ctx)
			if !errors.Is(err, ErrDecryption) {
				t.Errorf("Decrypt() error = %v, want ErrDecryption", err)
			}
		})
	}

	if _, err := enc.Decrypt(nil, "ctx"); !errors.Is(err, ErrDecryption) {
		t.Errorf("Decrypt(nil) error = %v, want ErrDecryption", err)
	}
}

func flipFirstChar(s string) string {
	if s == "" {
		return s
	}
	replacement := byte('A')
	if s[0] == 'A' {
		replacement = 'B'
	}
	return string(replacement) + s[1:]
}

func TestEnvelopeEncodeParse(t *testing.T) {
	enc := newTestEncryptor(t, testKeyA, "")

	env, err := enc.Encrypt("author-42", "ctx")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	parsed, err := ParseEnvelope(env.Encode())
	if err != nil {
		t.Fatalf("ParseEnvelope() error = %v", err)
	}
	if *parsed != *env {
		t.Errorf("ParseEnvelope(Encode()) = %+v, want %+v", parsed, env)
	}

	got, err := enc.Decrypt(parsed, "ctx")
	if err != nil || got != "author-42" {
		t.Errorf("Decrypt(parsed) = %q, %v", got, err)
	}
}

func TestParseEnvelopeMalformed(t *testing.T) {
	tests := []string{
		"",
		"v1.only.three",
		"1.a.b.c",
		"vX.a.b.c",
		"v1.a.b.c.d",
	}
	for _, s := range tests {
		if _, err := ParseEnvelope(s); !errors.Is(err, ErrDecryption) {
			t.Errorf("ParseEnvelope(%q) error = %v, want ErrDecryption", s, err)
		}
	}
}

func TestDecryptWithPreviousKey(t *testing.T) {
	// Seal under the old deployment's single key
	oldEnc := newTestEncryptor(t, testKeyA, "")
	env, err := oldEnc.Encrypt("author-42", "user-1:instagram")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	// A deployment mid-rotation decrypts v1 envelopes via the previous key
	newEnc := newTestEncryptor(t, testKeyB, testKeyA)
	got, err := newEnc.Decrypt(env, "user-1:instagram")
	if err != nil {
		t.Fatalf("Decrypt() with previous key error = %v", err)
	}
	if got != "author-42" {
		t.Errorf("Decrypt() = %q, want %q", got, "author-42")
	}

	// New envelopes are sealed under the current version
	fresh, err := newEnc.Encrypt("author-43", "user-1:instagram")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if fresh.KeyVersion != 2 {
		t.Errorf("Encrypt() KeyVersion = %d, want 2", fresh.KeyVersion)
	}
}

func TestKeyRingRotate(t *testing.T) {
	ring, err := NewKeyRing(testKeyA, "")
	if err != nil {
		t.Fatalf("NewKeyRing() error = %v", err)
	}
	enc, err := NewEncryptor(ring)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	before, err := enc.Encrypt("author-42", "ctx")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if err := ring.Rotate(testKeyB); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if ring.CurrentVersion() != 2 {
		t.Errorf("CurrentVersion() = %d, want 2", ring.CurrentVersion())
	}

	// Old envelopes still decrypt through the demoted key
	got, err := enc.Decrypt(before, "ctx")
	if err != nil || got != "author-42" {
		t.Errorf("Decrypt() after rotation = %q, %v", got, err)
	}

	// A second rotation discards the oldest key
	if err := ring.Rotate(testKeyC); err != nil {
		t.Fatalf("second Rotate() error = %v", err)
	}
	if _, err := enc.Decrypt(before, "ctx"); !errors.Is(err, ErrDecryption) {
		t.Errorf("Decrypt() two rotations later error = %v, want ErrDecryption", err)
	}
}

func TestKeyRingRotateDuringTraffic(t *testing.T) {
	ring, err := NewKeyRing(testKeyA, "")
	if err != nil {
		t.Fatalf("NewKeyRing() error = %v", err)
	}
	enc, err := NewEncryptor(ring)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	// Encrypt/decrypt workers run while one rotation lands mid-flight.
	// Every envelope they produce must round-trip: a single rotation keeps
	// both the old and the new key in the ring.
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			plaintext := "author-" + strconv.Itoa(n)
			for j := 0; j < 50; j++ {
				env, err := enc.Encrypt(plaintext, "ctx")
				if err != nil {
					t.Errorf("Encrypt() error = %v", err)
					return
				}
				got, err := enc.Decrypt(env, "ctx")
				if err != nil || got != plaintext {
					t.Errorf("Decrypt() = %q, %v, want %q", got, err, plaintext)
					return
				}
			}
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		if err := ring.Rotate(testKeyB); err != nil {
			t.Errorf("Rotate() error = %v", err)
		}
	}()

	close(start)
	wg.Wait()

	if ring.CurrentVersion() != 2 {
		t.Errorf("CurrentVersion() = %d, want 2", ring.CurrentVersion())
	}
}

func TestReEncrypt(t *testing.T) {
	ring, err := NewKeyRing(testKeyA, "")
	if err != nil {
		t.Fatalf("NewKeyRing() error = %v", err)
	}
	enc, err := NewEncryptor(ring)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	var envelopes []*Envelope
	plaintexts := []string{"author-1", "author-2", "author-3"}
	for _, p := range plaintexts {
		env, err := enc.Encrypt(p, "ctx")
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		envelopes = append(envelopes, env)
	}

	if err := ring.Rotate(testKeyB); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	renewed, verified, err := enc.ReEncrypt(envelopes, "ctx")
	if err != nil {
		t.Fatalf("ReEncrypt() error = %v", err)
	}
	if !verified {
		t.Fatal("ReEncrypt() verified = false")
	}

	for i, env := range renewed {
		if env.KeyVersion != ring.CurrentVersion() {
			t.Errorf("renewed[%d].KeyVersion = %d, want %d", i, env.KeyVersion, ring.CurrentVersion())
		}
		got, err := enc.Decrypt(env, "ctx")
		if err != nil || got != plaintexts[i] {
			t.Errorf("Decrypt(renewed[%d]) = %q, %v, want %q", i, got, err, plaintexts[i])
		}
	}
}

func TestHashContentDeterministic(t *testing.T) {
	enc := newTestEncryptor(t, testKeyA, "")

	first := enc.HashContent("great post!", "user-1")
	second := enc.HashContent("great post!", "user-1")
	if first != second {
		t.Errorf("HashContent() not deterministic: %s != %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("HashContent() length = %d, want 64", len(first))
	}
	for _, r := range first {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("HashContent() contains non-hex character %q", r)
		}
	}
}

// Identical content from different owners must hash differently, and the
// owner/content boundary must be unambiguous.
func TestHashContentBindsIdentity(t *testing.T) {
	enc := newTestEncryptor(t, testKeyA, "")

	if enc.HashContent("same content", "user-1") == enc.HashContent("same content", "user-2") {
		t.Error("HashContent() identical for different owners")
	}

	// No concatenation ambiguity: ("ab", "c...") vs ("a", "bc...")
	if enc.HashContent("bc", "a") == enc.HashContent("c", "ab") {
		t.Error("HashContent() owner/content boundary is ambiguous")
	}
}

func TestVerifyContentHash(t *testing.T) {
	enc := newTestEncryptor(t, testKeyA, "")

	digest := enc.HashContent("great post!", "user-1")

	if !enc.VerifyContentHash("great post!", "user-1", digest) {
		t.Error("VerifyContentHash() = false for valid digest")
	}
	if enc.VerifyContentHash("great post!!", "user-1", digest) {
		t.Error("VerifyContentHash() = true for modified content")
	}
	if enc.VerifyContentHash("great post!", "user-2", digest) {
		t.Error("VerifyContentHash() = true for different owner")
	}
	if enc.VerifyContentHash("great post!", "user-1", "") {
		t.Error("VerifyContentHash() = true for empty digest")
	}
}

func TestEncryptDecryptFields(t *testing.T) {
	enc := newTestEncryptor(t, testKeyA, "")

	fields := map[string]string{
		"author_id": "platform-author-9",
		"email":     "author@example.com",
		"platform":  "instagram",
		"empty":     "",
	}

	encrypted, err := enc.EncryptFields(fields, []string{"author_id", "email", "empty", "missing"}, "ctx")
	if err != nil {
		t.Fatalf("EncryptFields() error = %v", err)
	}

	if encrypted["platform"] != "instagram" {
		t.Error("EncryptFields() touched an unlisted field")
	}
	if encrypted["empty"] != "" {
		t.Error("EncryptFields() encrypted an empty value")
	}
	if encrypted["author_id"] == fields["author_id"] {
		t.Error("EncryptFields() left author_id in plaintext")
	}
	if _, err := ParseEnvelope(encrypted["author_id"]); err != nil {
		t.Errorf("EncryptFields() output is not a compact envelope: %v", err)
	}

	decrypted, err := enc.DecryptFields(encrypted, []string{"author_id", "email", "empty", "missing"}, "ctx")
	if err != nil {
		t.Fatalf("DecryptFields() error = %v", err)
	}
	if decrypted["author_id"] != fields["author_id"] || decrypted["email"] != fields["email"] {
		t.Errorf("DecryptFields() = %v, want originals restored", decrypted)
	}

	// Wrong context fails generically
	if _, err := enc.DecryptFields(encrypted, []string{"author_id"}, "other-ctx"); !errors.Is(err, ErrDecryption) {
		t.Errorf("DecryptFields() wrong context error = %v, want ErrDecryption", err)
	}
}

func TestGenerateAndValidateEncryptionKey(t *testing.T) {
	key, err := GenerateEncryptionKey()
	if err != nil {
		t.Fatalf("GenerateEncryptionKey() error = %v", err)
	}
	if err := ValidateEncryptionKey(key); err != nil {
		t.Errorf("ValidateEncryptionKey(generated) error = %v", err)
	}

	other, err := GenerateEncryptionKey()
	if err != nil {
		t.Fatalf("GenerateEncryptionKey() error = %v", err)
	}
	if key == other {
		t.Error("GenerateEncryptionKey() returned the same key twice")
	}

	invalid := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"too short", "abcd"},
		{"too long", testKeyA + "ff"},
		{"not hex", strings.Repeat("g", 64)},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateEncryptionKey(tt.key); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("ValidateEncryptionKey(%q) error = %v, want ErrInvalidInput", tt.key, err)
			}
		})
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key := GenerateAPIKey("live")
	if !strings.HasPrefix(key, "cgk_live_") {
		t.Errorf("GenerateAPIKey() = %q, want cgk_live_ prefix", key)
	}
	if !IsAPIKey(key) {
		t.Errorf("IsAPIKey(%q) = false", key)
	}

	if !strings.HasPrefix(GenerateAPIKey(""), "cgk_default_") {
		t.Error("GenerateAPIKey(\"\") did not use the default namespace")
	}

	if IsAPIKey(testKeyA) {
		t.Error("IsAPIKey() accepted hex key material")
	}
	if IsAPIKey("sk_live_abc") {
		t.Error("IsAPIKey() accepted a foreign prefix")
	}
}
