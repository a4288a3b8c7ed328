// Package validation runs comment payloads through an ordered sequence of
// pure checks: required fields, field ranges, content sanitization, attack
// detection, and spam heuristics. The first failing check stops the run and
// reports which field broke which rule.
//
// Attack detection deliberately inspects the raw submission rather than
// the sanitized form, so stripping HTML can never turn a hostile payload
// into a clean pass. Content that survives every check is returned in its
// sanitized form and is the only form the pipeline persists.
//
// Redact produces a log-safe copy of arbitrary payload maps for audit
// logging: secret-bearing fields are masked and free text is reduced to a
// length and digest prefix.
package validation
