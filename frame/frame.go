// Package frame implements the length-prefixed framing of the conformance
// testee pipe: a 4-byte little-endian length followed by that many bytes.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const HeaderLen = 4

var (
	ErrShortHeader     = errors.New("frame: short length header")
	ErrShortPayload    = errors.New("frame: short payload")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Limits constrains frame memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 64 * 1024 * 1024,
	}
}

// ReadFrame reads one frame from r.
//
// io.EOF is returned when r ends before the first header byte, which marks a
// clean end-of-stream. A stream ending anywhere inside a frame is an error.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var header [HeaderLen]byte
	n, err := io.ReadFull(r, header[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortHeader
		}
		return nil, fmt.Errorf("frame: failed to read header: %w", err)
	}

	size := binary.LittleEndian.Uint32(header[:])
	if limits.MaxPayloadBytes > 0 && size > limits.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrPayloadTooLarge, size, limits.MaxPayloadBytes)
	}

	payload := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrShortPayload
			}
			return nil, fmt.Errorf("frame: failed to read payload: %w", err)
		}
	}
	return payload, nil
}

// WriteFrame writes payload to w as one frame.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	if uint64(len(payload)) > math.MaxUint32 ||
		(limits.MaxPayloadBytes > 0 && uint64(len(payload)) > uint64(limits.MaxPayloadBytes)) {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	var header [HeaderLen]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("frame: failed to write header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("frame: failed to write payload: %w", err)
		}
	}
	return nil
}
