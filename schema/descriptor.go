package schema

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

type fieldType = descriptorpb.FieldDescriptorProto_Type

const (
	typeDouble   = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
	typeFloat    = descriptorpb.FieldDescriptorProto_TYPE_FLOAT
	typeInt64    = descriptorpb.FieldDescriptorProto_TYPE_INT64
	typeUint64   = descriptorpb.FieldDescriptorProto_TYPE_UINT64
	typeInt32    = descriptorpb.FieldDescriptorProto_TYPE_INT32
	typeFixed64  = descriptorpb.FieldDescriptorProto_TYPE_FIXED64
	typeFixed32  = descriptorpb.FieldDescriptorProto_TYPE_FIXED32
	typeBool     = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	typeString   = descriptorpb.FieldDescriptorProto_TYPE_STRING
	typeMessage  = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	typeBytes    = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	typeUint32   = descriptorpb.FieldDescriptorProto_TYPE_UINT32
	typeEnum     = descriptorpb.FieldDescriptorProto_TYPE_ENUM
	typeSfixed32 = descriptorpb.FieldDescriptorProto_TYPE_SFIXED32
	typeSfixed64 = descriptorpb.FieldDescriptorProto_TYPE_SFIXED64
	typeSint32   = descriptorpb.FieldDescriptorProto_TYPE_SINT32
	typeSint64   = descriptorpb.FieldDescriptorProto_TYPE_SINT64
)

// fieldOption mutates a field descriptor under construction.
type fieldOption func(*descriptorpb.FieldDescriptorProto)

func newField(name string, number int32, typ fieldType, opts ...fieldOption) *descriptorpb.FieldDescriptorProto {
	fd := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Type:   typ.Enum(),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
	}
	for _, opt := range opts {
		opt(fd)
	}
	return fd
}

func repeated() fieldOption {
	return func(fd *descriptorpb.FieldDescriptorProto) {
		fd.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	}
}

// typeName sets the fully qualified type of a message or enum field.
func typeName(fullName string) fieldOption {
	return func(fd *descriptorpb.FieldDescriptorProto) {
		fd.TypeName = proto.String("." + fullName)
	}
}

func packed(v bool) fieldOption {
	return func(fd *descriptorpb.FieldDescriptorProto) {
		if fd.Options == nil {
			fd.Options = &descriptorpb.FieldOptions{}
		}
		fd.Options.Packed = proto.Bool(v)
	}
}

func inOneof(index int32) fieldOption {
	return func(fd *descriptorpb.FieldDescriptorProto) {
		fd.OneofIndex = proto.Int32(index)
	}
}

func extends(fullName string) fieldOption {
	return func(fd *descriptorpb.FieldDescriptorProto) {
		fd.Extendee = proto.String("." + fullName)
	}
}

func newEnum(name string, values ...*descriptorpb.EnumValueDescriptorProto) *descriptorpb.EnumDescriptorProto {
	return &descriptorpb.EnumDescriptorProto{
		Name:  proto.String(name),
		Value: values,
	}
}

func enumValue(name string, number int32) *descriptorpb.EnumValueDescriptorProto {
	return &descriptorpb.EnumValueDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
	}
}

// mapEntry builds the synthetic nested message backing a map field.
//
// The entry name must follow the protobuf naming rule for map entries, e.g.
// field "map_string_string" is backed by "MapStringStringEntry".
func mapEntry(name string, key fieldType, value fieldType, valueOpts ...fieldOption) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{
		Name: proto.String(name),
		Field: []*descriptorpb.FieldDescriptorProto{
			newField("key", 1, key),
			newField("value", 2, value, valueOpts...),
		},
		Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
	}
}

// mapEntryName returns the nested entry message name for a map field.
func mapEntryName(fieldName string) string {
	b := make([]byte, 0, len(fieldName)+len("Entry"))
	upper := true
	for i := 0; i < len(fieldName); i++ {
		c := fieldName[i]
		if c == '_' {
			upper = true
			continue
		}
		if upper && 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		b = append(b, c)
	}
	return string(b) + "Entry"
}
