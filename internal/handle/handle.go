// Package handle defines the small-integer arena handle type used for
// the neighbor cache <-> RPL table back-references (spec.md section 9:
// "an arena holding NCEs indexed by a small integer handle, with RN
// carrying Option<nce_handle> and NCE carrying Option<rn_handle>").
//
// It is split into its own package so that internal/ncache and
// internal/rpl can each reference "a handle into the other table"
// without importing each other.
package handle

// T is an opaque index into a table owned elsewhere.  Every
// non-negative value, including the zero value, is a valid index; use
// [Invalid] for "no link" and check [T.Valid].
type T int

// Invalid is the negative sentinel meaning "no link".
const Invalid T = -1

// Valid reports whether h refers to a real entry.
func (h T) Valid() bool { return h >= 0 }
