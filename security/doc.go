// Package security provides the security primitives of the comment pipeline:
// context-bound authenticated encryption with key rotation, keyed content
// hashing, attack pattern detection, input sanitization, and audit logging.
//
// # Encryption
//
// The Encryptor seals plaintext with AES-256-GCM and binds a caller-supplied
// context string as additional authenticated data. Decrypting under any other
// context fails exactly like tampering does, with a single generic error:
//
//	ring, _ := security.NewKeyRing(currentKeyHex, "")
//	enc, _ := security.NewEncryptor(ring)
//
//	env, err := enc.Encrypt(authorID, userID+":"+platform)
//	plaintext, err := enc.Decrypt(env, userID+":"+platform)
//
// Key rotation keeps the previous key in the ring so existing envelopes stay
// readable, and ReEncrypt re-seals them under the current key with a
// round-trip verification flag before the old key is discarded.
//
// # Content Hashing
//
// HashContent produces a deterministic 64-hex-character HMAC digest over
// content and owning user, with the MAC key derived from the master key via
// HKDF. Identical content from different owners yields different digests, so
// the digest doubles as a duplicate-detection key that cannot be precomputed
// across identities. VerifyContentHash compares in constant time.
//
// # Attack Detection
//
// DetectXSS and DetectSQLInjection evaluate input against static tables of
// named, compiled patterns. Input is also matched after percent and HTML
// entity decoding, so encoded vectors do not slip through. The tables are
// data-driven: appending a vector never changes control flow.
//
// # Sanitization and Spam Heuristics
//
// Sanitize strips HTML via bluemonday's strict policy, escapes residual
// HTML-significant characters, collapses whitespace, and bounds length.
// AnalyzeSpam reports heuristic signals (repeated-character runs, URL count,
// punctuation runs, control bytes) that feed the validation pipeline's
// rejection decision.
//
// # Audit Logging
//
// The Auditor emits structured slog events for security-relevant outcomes.
// User identifiers are hashed before logging; content never appears in
// events, only hash prefixes.
package security
