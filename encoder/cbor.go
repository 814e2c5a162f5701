package encoder

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CBOREncoder is a deterministic CBOR codec (RFC 8949, core deterministic encoding).
type CBOREncoder struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBOREncoder creates a new instance of a CBOREncoder.
func NewCBOREncoder() (*CBOREncoder, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}
	return &CBOREncoder{enc: em, dec: dm}, nil
}

func (*CBOREncoder) ContentType() string { return "application/cbor" }

func (c *CBOREncoder) Marshal(v any) ([]byte, error) {
	data, err := c.enc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoder: failed to encode cbor: %w", err)
	}
	return data, nil
}

func (c *CBOREncoder) Unmarshal(data []byte, out any) error {
	if err := c.dec.Unmarshal(data, out); err != nil {
		return fmt.Errorf("encoder: failed to decode cbor: %w", err)
	}
	return nil
}
