// Package serializer writes the binary form of a tombstone: a
// self-describing CBOR encoding that existing consumers decode
// without reference to this code's structs.
package serializer

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/crashkit/tombstone/pkg/tombstone"
)

var encMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("serializer: building CBOR encode mode: %v", err))
	}
}

// Serialize writes t to sink. A nil sink means the caller wants no
// binary output and is skipped without error. Write failures are the
// caller's to log; they are non-fatal to the overall engraving since
// text rendering does not depend on this stage. The in-memory report
// is not touched.
func Serialize(t *tombstone.Tombstone, sink io.Writer) error {
	if sink == nil {
		return nil
	}
	if err := encMode.NewEncoder(sink).Encode(t); err != nil {
		return fmt.Errorf("serializer: writing tombstone: %w", err)
	}
	return nil
}

// Deserialize decodes a tombstone previously written by Serialize.
func Deserialize(r io.Reader) (*tombstone.Tombstone, error) {
	var t tombstone.Tombstone
	if err := cbor.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("serializer: decoding tombstone: %w", err)
	}
	return &t, nil
}
