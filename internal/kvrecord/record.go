// Package kvrecord implements the on-disk command record: the self-delimiting
// textual encoding of a Set or Remove operation that segment files are made
// of. The wire form is plain JSON, one object per record, abutted with no
// separator and no length prefix, mirroring the original implementation's
// use of serde_json's stream deserializer.
package kvrecord

import (
	"encoding/json"
	"fmt"
	"io"

	"kvforge/internal/kverrors"
)

// Op names the two command variants a record can hold.
type Op string

const (
	OpSet    Op = "set"
	OpRemove Op = "remove"
)

// Record is one logical unit appended to a segment: either Set{Key,Value} or
// Remove{Key}. Value is only meaningful when Op == OpSet.
type Record struct {
	Op    Op     `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Set builds a Set record.
func Set(key, value string) Record { return Record{Op: OpSet, Key: key, Value: value} }

// Remove builds a Remove record.
func Remove(key string) Record { return Record{Op: OpRemove, Key: key} }

// IsSet reports whether r is a Set record.
func (r Record) IsSet() bool { return r.Op == OpSet }

// Encode serializes r into its self-delimiting wire form.
func Encode(r Record) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, kverrors.Wrap(kverrors.Serde, "encode record", err)
	}
	return b, nil
}

// DecodeExact decodes a single record from a byte slice whose length is
// already known (the common case: a Position carries the exact length, so no
// boundary-discovery is needed). Used by the read path.
func DecodeExact(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, kverrors.Wrap(kverrors.Serde, "decode record", err)
	}
	return r, nil
}

// Decoder reads a sequence of abutted records from a stream, discovering
// record boundaries structurally rather than from a length prefix. It must
// be used for the whole stream: each call to Next reports the
// exact number of bytes consumed by that record via the underlying
// json.Decoder's InputOffset, which correctly reflects the logical stream
// position even though the decoder buffers internally.
type Decoder struct {
	dec      *json.Decoder
	consumed int64
}

// NewDecoder wraps r for sequential, boundary-discovering decoding.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

// Next decodes exactly one record and returns how many bytes of the
// underlying stream it occupied. It returns io.EOF (unwrapped) when the
// stream is exhausted cleanly between records, and a *kverrors.Error of kind
// Corrupt when a trailing partial record is detected — the caller is expected
// to treat that as the effective end of the log, not as a hard failure.
func (d *Decoder) Next() (Record, int64, error) {
	var r Record
	before := d.consumed
	if err := d.dec.Decode(&r); err != nil {
		if err == io.EOF {
			return Record{}, 0, io.EOF
		}
		return Record{}, 0, kverrors.Wrap(kverrors.Corrupt, "truncated or malformed record", err)
	}
	after := d.dec.InputOffset()
	d.consumed = after
	n := after - before
	if n <= 0 {
		return Record{}, 0, kverrors.New(kverrors.Corrupt, fmt.Sprintf("non-advancing record at offset %d", before))
	}
	return r, n, nil
}
