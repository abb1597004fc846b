// Package ir defines the record model shared by every other package:
// prompts, action logs, server timestamps, prompt state cache entries and
// attachments, plus the canonical JSON and hashing used to give each record
// a content-derived identifier.
//
// ir imports nothing internal. Constraints that keep identifiers stable:
//   - no floats anywhere in hashed content; use int64
//   - every hashed value goes through MarshalCanonical (RFC 8785)
//   - hashes are domain separated so a prompt and a log with identical
//     bytes never share an identifier
package ir
