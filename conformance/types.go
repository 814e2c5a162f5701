// Package conformance models the request and response envelopes exchanged
// between a protobuf conformance runner and a testee.
package conformance

import "fmt"

// WireFormat is a serialization format of a payload.
type WireFormat int32

const (
	WireFormatUnspecified WireFormat = iota
	WireFormatProtobuf
	WireFormatJSON
	WireFormatJSPB
	WireFormatText
)

func (f WireFormat) String() string {
	switch f {
	case WireFormatUnspecified:
		return "UNSPECIFIED"
	case WireFormatProtobuf:
		return "PROTOBUF"
	case WireFormatJSON:
		return "JSON"
	case WireFormatJSPB:
		return "JSPB"
	case WireFormatText:
		return "TEXT_FORMAT"
	default:
		return fmt.Sprintf("wire_format(%d)", f)
	}
}

// TestCategory tells the testee which kind of test a request belongs to.
type TestCategory int32

const (
	TestCategoryUnspecified TestCategory = iota
	TestCategoryBinary
	TestCategoryJSON
	TestCategoryJSONIgnoreUnknown // Unknown JSON fields must be ignored while parsing.
	TestCategoryJSPB
	TestCategoryText
)

func (c TestCategory) String() string {
	switch c {
	case TestCategoryUnspecified:
		return "UNSPECIFIED_TEST"
	case TestCategoryBinary:
		return "BINARY_TEST"
	case TestCategoryJSON:
		return "JSON_TEST"
	case TestCategoryJSONIgnoreUnknown:
		return "JSON_IGNORE_UNKNOWN_PARSING_TEST"
	case TestCategoryJSPB:
		return "JSPB_TEST"
	case TestCategoryText:
		return "TEXT_FORMAT_TEST"
	default:
		return fmt.Sprintf("test_category(%d)", c)
	}
}

// Request is one conformance test case.
type Request struct {
	MessageType        string     // Fully qualified name of the target message.
	PayloadFormat      WireFormat // WireFormatUnspecified when no payload is set.
	Payload            []byte
	OutputFormat       WireFormat
	TestCategory       TestCategory
	PrintUnknownFields bool
}

// HasPayload reports whether the request carries a payload.
func (r *Request) HasPayload() bool {
	return r.PayloadFormat != WireFormatUnspecified
}

// ResultKind is the tag of a Response.
type ResultKind int

const (
	ResultPayload ResultKind = iota
	ResultParseError
	ResultSerializeError
	ResultRuntimeError
	ResultTimeoutError
	ResultSkipped
)

func (k ResultKind) String() string {
	switch k {
	case ResultPayload:
		return "payload"
	case ResultParseError:
		return "parse_error"
	case ResultSerializeError:
		return "serialize_error"
	case ResultRuntimeError:
		return "runtime_error"
	case ResultTimeoutError:
		return "timeout_error"
	case ResultSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("result(%d)", k)
	}
}

// Response is the testee's answer to one Request.
type Response struct {
	Kind    ResultKind
	Format  WireFormat // Format of Payload when Kind is ResultPayload.
	Payload []byte
	Message string // Error text or skip reason.
}

func NewPayloadResponse(format WireFormat, payload []byte) *Response {
	return &Response{Kind: ResultPayload, Format: format, Payload: payload}
}

func NewParseErrorResponse(msg string) *Response {
	return &Response{Kind: ResultParseError, Message: msg}
}

func NewSerializeErrorResponse(msg string) *Response {
	return &Response{Kind: ResultSerializeError, Message: msg}
}

func NewRuntimeErrorResponse(msg string) *Response {
	return &Response{Kind: ResultRuntimeError, Message: msg}
}

func NewSkippedResponse(reason string) *Response {
	return &Response{Kind: ResultSkipped, Message: reason}
}
