// Package blob describes a content-addressable blob store: the external
// collaborator that holds the opaque byte payload referenced by every file
// node in a tree.
package blob

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Blob is the type of a blob: opaque byte content.
type Blob []byte

// Ref is a deterministic reference to a blob: its sha256 hash, doubling as
// a file node's blob_id.
type Ref [sha256.Size]byte

// Zero is the zero-valued Ref.
var Zero Ref

// ErrNotFound is returned by a Getter when a ref has no corresponding blob.
var ErrNotFound = errors.New("blob not found")

// Ref computes the Ref of a blob.
func (b Blob) Ref() Ref {
	return sha256.Sum256(b)
}

// String converts a Ref to hexadecimal.
func (r Ref) String() string {
	return hex.EncodeToString(r[:])
}

// IsZero tells whether r is the zero Ref.
func (r Ref) IsZero() bool {
	return r == Zero
}

// Less tells whether r is lexicographically less than other.
func (r Ref) Less(other Ref) bool {
	return bytes.Compare(r[:], other[:]) < 0
}

// FromHex parses the hex string s and places the result in r.
func (r *Ref) FromHex(s string) error {
	if len(s) != 2*sha256.Size {
		return errors.New("wrong length")
	}
	_, err := hex.Decode(r[:], []byte(s))
	return err
}

// RefFromHex produces a Ref from a hex string.
func RefFromHex(s string) (Ref, error) {
	var out Ref
	err := out.FromHex(s)
	return out, err
}

// RefFromBytes produces a Ref by copying (and truncating or zero-padding)
// a byte slice, used when a Ref arrives already computed (e.g. out of a
// protobuf message field).
func RefFromBytes(b []byte) Ref {
	var out Ref
	copy(out[:], b)
	return out
}
