// Package schema builds the protobuf descriptors used by the conformance testee
// at runtime, so the module does not depend on a protoc/codegen toolchain.
//
// All messages are served as dynamic messages (dynamicpb). The registry also
// acts as the extension resolver for the proto2 test schema.
package schema

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	TestAllTypesProto3  protoreflect.FullName = "protobuf_test_messages.proto3.TestAllTypesProto3"
	TestAllTypesProto2  protoreflect.FullName = "protobuf_test_messages.proto2.TestAllTypesProto2"
	ConformanceRequest  protoreflect.FullName = "conformance.ConformanceRequest"
	ConformanceResponse protoreflect.FullName = "conformance.ConformanceResponse"
	FailureSet          protoreflect.FullName = "conformance.FailureSet"
	LedgerFinding       protoreflect.FullName = "protoconform.ledger.Finding"
)

// Registry holds the built descriptors and their dynamic message types.
// A Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	files *protoregistry.Files
	types *dynamicpb.Types
}

// New builds a registry containing every schema known to the testee.
func New() (*Registry, error) {
	set := &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{
			conformanceFile(),
			testMessagesFile(proto3Names()),
			testMessagesFile(proto2Names()),
			ledgerFile(),
		},
	}
	files, err := protodesc.NewFiles(set)
	if err != nil {
		return nil, fmt.Errorf("schema: failed to build descriptors: %w", err)
	}
	return &Registry{
		files: files,
		types: dynamicpb.NewTypes(files),
	}, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, building it on first use.
// It panics if the built-in descriptors are invalid, which is a programming error.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := New()
		if err != nil {
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// Files returns the descriptor files of the registry.
func (r *Registry) Files() *protoregistry.Files {
	return r.files
}

// Resolver returns the type resolver covering messages and extensions of the registry.
func (r *Registry) Resolver() *dynamicpb.Types {
	return r.types
}

// FindMessageType returns the message type with the given full name.
// protoregistry.NotFound is returned (wrapped) for unknown names.
func (r *Registry) FindMessageType(name protoreflect.FullName) (protoreflect.MessageType, error) {
	mt, err := r.types.FindMessageByName(name)
	if err != nil {
		return nil, fmt.Errorf("schema: message type %q: %w", name, err)
	}
	return mt, nil
}

// MustMessageType is like FindMessageType but panics on unknown names.
// Only use it with the constants declared by this package.
func (r *Registry) MustMessageType(name protoreflect.FullName) protoreflect.MessageType {
	mt, err := r.FindMessageType(name)
	if err != nil {
		panic(err)
	}
	return mt
}

// IsTestMessage reports whether name is one of the test schema variants.
func IsTestMessage(name protoreflect.FullName) bool {
	return name == TestAllTypesProto3 || name == TestAllTypesProto2
}
