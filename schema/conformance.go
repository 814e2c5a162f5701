package schema

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// conformanceFile builds the descriptor of the conformance runner protocol:
// the request and response envelopes exchanged over the testee pipe.
func conformanceFile() *descriptorpb.FileDescriptorProto {
	const pkg = "conformance"
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("protoconform/conformance.proto"),
		Package: proto.String(pkg),
		Syntax:  proto.String("proto3"),
		EnumType: []*descriptorpb.EnumDescriptorProto{
			newEnum("WireFormat",
				enumValue("UNSPECIFIED", 0),
				enumValue("PROTOBUF", 1),
				enumValue("JSON", 2),
				enumValue("JSPB", 3),
				enumValue("TEXT_FORMAT", 4),
			),
			newEnum("TestCategory",
				enumValue("UNSPECIFIED_TEST", 0),
				enumValue("BINARY_TEST", 1),
				enumValue("JSON_TEST", 2),
				enumValue("JSON_IGNORE_UNKNOWN_PARSING_TEST", 3),
				enumValue("JSPB_TEST", 4),
				enumValue("TEXT_FORMAT_TEST", 5),
			),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("FailureSet"),
				Field: []*descriptorpb.FieldDescriptorProto{
					newField("failure", 1, typeString, repeated()),
				},
			},
			{
				Name: proto.String("JspbEncodingConfig"),
				Field: []*descriptorpb.FieldDescriptorProto{
					newField("use_jspb_array_any_format", 1, typeBool),
				},
			},
			{
				Name: proto.String("ConformanceRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					newField("protobuf_payload", 1, typeBytes, inOneof(0)),
					newField("json_payload", 2, typeString, inOneof(0)),
					// Oneof members must be declared together.
					newField("jspb_payload", 7, typeString, inOneof(0)),
					newField("text_payload", 8, typeString, inOneof(0)),
					newField("requested_output_format", 3, typeEnum, typeName(pkg+".WireFormat")),
					newField("message_type", 4, typeString),
					newField("test_category", 5, typeEnum, typeName(pkg+".TestCategory")),
					newField("jspb_encoding_options", 6, typeMessage, typeName(pkg+".JspbEncodingConfig")),
					newField("print_unknown_fields", 9, typeBool),
				},
				OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("payload")}},
			},
			{
				Name: proto.String("ConformanceResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					newField("parse_error", 1, typeString, inOneof(0)),
					newField("runtime_error", 2, typeString, inOneof(0)),
					newField("protobuf_payload", 3, typeBytes, inOneof(0)),
					newField("json_payload", 4, typeString, inOneof(0)),
					newField("skipped", 5, typeString, inOneof(0)),
					newField("serialize_error", 6, typeString, inOneof(0)),
					newField("jspb_payload", 7, typeString, inOneof(0)),
					newField("text_payload", 8, typeString, inOneof(0)),
					newField("timeout_error", 9, typeString, inOneof(0)),
				},
				OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("result")}},
			},
		},
	}
}

// ledgerFile builds the descriptor of the persisted finding record.
func ledgerFile() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("protoconform/ledger.proto"),
		Package: proto.String("protoconform.ledger"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{{
			Name: proto.String("Finding"),
			Field: []*descriptorpb.FieldDescriptorProto{
				newField("run_id", 1, typeString),
				newField("sequence", 2, typeUint64),
				newField("kind", 3, typeString),
				newField("message_type", 4, typeString),
				newField("detail", 5, typeString),
				newField("payload", 6, typeBytes),
				newField("recorded_at", 7, typeInt64),
			},
		}},
	}
}
