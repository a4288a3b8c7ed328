// Package testutil provides shared test fixtures and helpers for the
// comment pipeline: seeded comment records, a controllable time source for
// window and expiry tests, and random key material.
package testutil
