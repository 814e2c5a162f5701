package schema

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// scalarKinds lists the scalar field kinds of the test message in the field
// number order used by the conformance suite (optional_int32 = 1, ...).
var scalarKinds = []struct {
	name string
	typ  fieldType
}{
	{"int32", typeInt32},
	{"int64", typeInt64},
	{"uint32", typeUint32},
	{"uint64", typeUint64},
	{"sint32", typeSint32},
	{"sint64", typeSint64},
	{"fixed32", typeFixed32},
	{"fixed64", typeFixed64},
	{"sfixed32", typeSfixed32},
	{"sfixed64", typeSfixed64},
	{"float", typeFloat},
	{"double", typeDouble},
	{"bool", typeBool},
	{"string", typeString},
	{"bytes", typeBytes},
}

// packableKinds is the number of leading scalarKinds that may be packed.
const packableKinds = 13

// testMessagesNames names the types of one test message schema variant.
type testMessagesNames struct {
	syntax       string
	pkg          string
	file         string
	message      string
	foreignMsg   string
	foreignEnum  string
	foreignValue string // Prefix of the foreign enum values.
}

func (n testMessagesNames) full(name string) string {
	return n.pkg + "." + name
}

func proto3Names() testMessagesNames {
	return testMessagesNames{
		syntax:       "proto3",
		pkg:          "protobuf_test_messages.proto3",
		file:         "protoconform/test_messages_proto3.proto",
		message:      "TestAllTypesProto3",
		foreignMsg:   "ForeignMessage",
		foreignEnum:  "ForeignEnum",
		foreignValue: "FOREIGN_",
	}
}

func proto2Names() testMessagesNames {
	return testMessagesNames{
		syntax:       "proto2",
		pkg:          "protobuf_test_messages.proto2",
		file:         "protoconform/test_messages_proto2.proto",
		message:      "TestAllTypesProto2",
		foreignMsg:   "ForeignMessageProto2",
		foreignEnum:  "ForeignEnumProto2",
		foreignValue: "FOREIGN_",
	}
}

// testMessagesFile builds the descriptor of one TestAllTypes schema variant.
// Both variants share field names and numbers; proto2 additionally declares
// an extension range and one extension.
func testMessagesFile(n testMessagesNames) *descriptorpb.FileDescriptorProto {
	msgName := n.full(n.message)
	nestedMsg := msgName + ".NestedMessage"
	nestedEnum := msgName + ".NestedEnum"

	var fields []*descriptorpb.FieldDescriptorProto
	for i, k := range scalarKinds {
		fields = append(fields, newField("optional_"+k.name, int32(1+i), k.typ))
	}
	fields = append(fields,
		newField("optional_nested_message", 18, typeMessage, typeName(nestedMsg)),
		newField("optional_foreign_message", 19, typeMessage, typeName(n.full(n.foreignMsg))),
		newField("optional_nested_enum", 21, typeEnum, typeName(nestedEnum)),
		newField("optional_foreign_enum", 22, typeEnum, typeName(n.full(n.foreignEnum))),
		newField("recursive_message", 27, typeMessage, typeName(msgName)),
	)
	for i, k := range scalarKinds {
		fields = append(fields, newField("repeated_"+k.name, int32(31+i), k.typ, repeated()))
	}
	fields = append(fields,
		newField("repeated_nested_message", 48, typeMessage, typeName(nestedMsg), repeated()),
		newField("repeated_foreign_message", 49, typeMessage, typeName(n.full(n.foreignMsg)), repeated()),
		newField("repeated_nested_enum", 51, typeEnum, typeName(nestedEnum), repeated()),
		newField("repeated_foreign_enum", 52, typeEnum, typeName(n.full(n.foreignEnum)), repeated()),
	)

	maps := []struct {
		field  string
		number int32
		key    fieldType
		value  fieldType
		opts   []fieldOption
	}{
		{"map_int32_int32", 56, typeInt32, typeInt32, nil},
		{"map_int64_int64", 57, typeInt64, typeInt64, nil},
		{"map_uint32_uint32", 58, typeUint32, typeUint32, nil},
		{"map_sint32_sint32", 60, typeSint32, typeSint32, nil},
		{"map_fixed64_fixed64", 63, typeFixed64, typeFixed64, nil},
		{"map_int32_double", 67, typeInt32, typeDouble, nil},
		{"map_bool_bool", 68, typeBool, typeBool, nil},
		{"map_string_string", 69, typeString, typeString, nil},
		{"map_string_bytes", 70, typeString, typeBytes, nil},
		{"map_string_nested_message", 71, typeString, typeMessage, []fieldOption{typeName(nestedMsg)}},
		{"map_string_nested_enum", 73, typeString, typeEnum, []fieldOption{typeName(nestedEnum)}},
	}
	nested := []*descriptorpb.DescriptorProto{{
		Name: proto.String("NestedMessage"),
		Field: []*descriptorpb.FieldDescriptorProto{
			newField("a", 1, typeInt32),
			newField("corecursive", 2, typeMessage, typeName(msgName)),
		},
	}}
	for _, m := range maps {
		entry := mapEntryName(m.field)
		nested = append(nested, mapEntry(entry, m.key, m.value, m.opts...))
		fields = append(fields, newField(m.field, m.number, typeMessage, typeName(msgName+"."+entry), repeated()))
	}

	for i, k := range scalarKinds[:packableKinds] {
		fields = append(fields, newField("packed_"+k.name, int32(75+i), k.typ, repeated(), packed(true)))
	}
	fields = append(fields, newField("packed_nested_enum", 88, typeEnum, typeName(nestedEnum), repeated(), packed(true)))
	for i, k := range scalarKinds[:packableKinds] {
		fields = append(fields, newField("unpacked_"+k.name, int32(89+i), k.typ, repeated(), packed(false)))
	}
	fields = append(fields, newField("unpacked_nested_enum", 102, typeEnum, typeName(nestedEnum), repeated(), packed(false)))

	fields = append(fields,
		newField("oneof_uint32", 111, typeUint32, inOneof(0)),
		newField("oneof_nested_message", 112, typeMessage, typeName(nestedMsg), inOneof(0)),
		newField("oneof_string", 113, typeString, inOneof(0)),
		newField("oneof_bytes", 114, typeBytes, inOneof(0)),
		newField("oneof_bool", 115, typeBool, inOneof(0)),
		newField("oneof_uint64", 116, typeUint64, inOneof(0)),
		newField("oneof_float", 117, typeFloat, inOneof(0)),
		newField("oneof_double", 118, typeDouble, inOneof(0)),
		newField("oneof_enum", 119, typeEnum, typeName(nestedEnum), inOneof(0)),
	)

	msg := &descriptorpb.DescriptorProto{
		Name:       proto.String(n.message),
		Field:      fields,
		NestedType: nested,
		EnumType: []*descriptorpb.EnumDescriptorProto{
			newEnum("NestedEnum",
				enumValue("FOO", 0),
				enumValue("BAR", 1),
				enumValue("BAZ", 2),
				enumValue("NEG", -1),
			),
		},
		OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("oneof_field")}},
	}

	fd := &descriptorpb.FileDescriptorProto{
		Name:    proto.String(n.file),
		Package: proto.String(n.pkg),
		Syntax:  proto.String(n.syntax),
		MessageType: []*descriptorpb.DescriptorProto{
			msg,
			{
				Name:  proto.String(n.foreignMsg),
				Field: []*descriptorpb.FieldDescriptorProto{newField("c", 1, typeInt32)},
			},
		},
		EnumType: []*descriptorpb.EnumDescriptorProto{
			newEnum(n.foreignEnum,
				enumValue(n.foreignValue+"FOO", 0),
				enumValue(n.foreignValue+"BAR", 1),
				enumValue(n.foreignValue+"BAZ", 2),
			),
		},
	}

	if n.syntax == "proto2" {
		msg.ExtensionRange = []*descriptorpb.DescriptorProto_ExtensionRange{
			{Start: proto.Int32(120), End: proto.Int32(201)},
		}
		fd.Extension = []*descriptorpb.FieldDescriptorProto{
			newField("extension_int32", 120, typeInt32, extends(msgName)),
		}
	}
	return fd
}
