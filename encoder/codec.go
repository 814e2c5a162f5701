// Package encoder provides the codecs used to move messages in and out of
// their serialized forms: protobuf binary, protobuf JSON, protobuf text and CBOR.
package encoder

// Codec marshals values to and from one serialization format.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, out any) error
}
