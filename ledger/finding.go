package ledger

import (
	"fmt"
	"time"

	"github.com/holmberd/go-protoconform/crossdecode"
	"github.com/holmberd/go-protoconform/keyfactory"
	"github.com/holmberd/go-protoconform/schema"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Finding records one request on which the decoding strategies did not
// agree, or which failed in a way worth keeping after the run.
type Finding struct {
	RunID       string
	Sequence    uint64 // 1-based request number within the run.
	Kind        crossdecode.FailureKind
	MessageType string
	Detail      string
	Payload     []byte // Request payload as received.
	RecordedAt  time.Time
}

// Key returns the finding's logical datastore key.
func (f *Finding) Key() (string, error) {
	return keyfactory.NewFindingKey(f.RunID, f.Sequence)
}

func findingType() protoreflect.MessageType {
	return schema.Default().MustMessageType(schema.LedgerFinding)
}

// MarshalProto encodes f as a protoconform.ledger.Finding message.
func (f *Finding) MarshalProto() ([]byte, error) {
	mt := findingType()
	fields := mt.Descriptor().Fields()
	m := mt.New()
	m.Set(fields.ByName("run_id"), protoreflect.ValueOfString(f.RunID))
	m.Set(fields.ByName("sequence"), protoreflect.ValueOfUint64(f.Sequence))
	m.Set(fields.ByName("kind"), protoreflect.ValueOfString(string(f.Kind)))
	m.Set(fields.ByName("message_type"), protoreflect.ValueOfString(f.MessageType))
	m.Set(fields.ByName("detail"), protoreflect.ValueOfString(f.Detail))
	m.Set(fields.ByName("payload"), protoreflect.ValueOfBytes(f.Payload))
	if !f.RecordedAt.IsZero() {
		m.Set(fields.ByName("recorded_at"), protoreflect.ValueOfInt64(f.RecordedAt.UnixNano()))
	}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(m.Interface())
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to marshal finding: %w", err)
	}
	return data, nil
}

// UnmarshalProto decodes a protoconform.ledger.Finding message into f.
func (f *Finding) UnmarshalProto(data []byte) error {
	mt := findingType()
	fields := mt.Descriptor().Fields()
	m := mt.New()
	if err := proto.Unmarshal(data, m.Interface()); err != nil {
		return fmt.Errorf("ledger: failed to unmarshal finding: %w", err)
	}
	*f = Finding{
		RunID:       m.Get(fields.ByName("run_id")).String(),
		Sequence:    m.Get(fields.ByName("sequence")).Uint(),
		Kind:        crossdecode.FailureKind(m.Get(fields.ByName("kind")).String()),
		MessageType: m.Get(fields.ByName("message_type")).String(),
		Detail:      m.Get(fields.ByName("detail")).String(),
	}
	if b := m.Get(fields.ByName("payload")).Bytes(); len(b) > 0 {
		f.Payload = b
	}
	if ns := m.Get(fields.ByName("recorded_at")).Int(); ns != 0 {
		f.RecordedAt = time.Unix(0, ns).UTC()
	}
	return nil
}

// RunSummary holds the end-of-run totals. It is stored as deterministic CBOR
// under the run key.
type RunSummary struct {
	RunID      string            `cbor:"run_id"`
	StartedAt  time.Time         `cbor:"started_at"`
	FinishedAt time.Time         `cbor:"finished_at"`
	Requests   uint64            `cbor:"requests"`
	Results    map[string]uint64 `cbor:"results,omitempty"`
	Findings   map[string]uint64 `cbor:"findings,omitempty"`
	Error      string            `cbor:"error,omitempty"`
}
