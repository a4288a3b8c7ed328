// Package util provides small helpers shared across the comment pipeline.
//
// It contains string truncation for log-safe prefixes and the IP
// classification used for SSRF protection on caller-supplied URLs.
package util
