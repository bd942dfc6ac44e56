// Package dedup turns raw terminal captures into stable content keys so the
// same waiting state is not announced twice.
//
// # Overview
//
// A coding agent that is blocked on a prompt keeps redrawing the same screen:
// colors change as the cursor blinks, status lines carry a ticking clock, and
// log prefixes embed timestamps. None of that is a new event. Key normalizes
// the capture before hashing so that only visible, meaningful content
// contributes to the key.
//
// # Normalization
//
// Steps, in order:
//
//  1. Strip escape sequences: CSI (ESC [ ... final byte), OSC (ESC ] ... BEL or
//     ESC \), then any remaining bare ESC + one character.
//  2. Strip timestamp shapes: ISO-8601 datetimes, bracketed [HH:MM] and
//     [HH:MM:SS], bracketed 10-13 digit epoch values, and bare YYYY-MM-DD or
//     YYYY/MM/DD dates.
//  3. Drop blank lines, join the rest with "\n", trim.
//
// Tool-specific noise (spinner glyphs, "thinking" banners) is deliberately
// left alone. Keys must mean the same thing for every agent CLI; filtering
// that noise is the classifier's and extractor's job.
//
// # Key format
//
// The normalized text is hashed with xxhash64 and rendered as exactly 16
// lowercase hex characters.
//
// # Repeat tracking
//
// Tracker records the last key seen per agent and reports whether a new key
// is a repeat. MemoryTracker is the in-process default; the sqlite ledger in
// internal/storage/sqlite satisfies the same interface for suppression that
// survives restarts.
package dedup
