// Package keyfactory constructs the structured Redis keys used by the findings
// ledger, with optional namespacing.
//
// Key structure: "<__namespace__>:<logical key>".
package keyfactory

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"github.com/holmberd/go-protoconform/keyfactory/internal/rediskey"
)

type GlobWildcard = rediskey.GlobWildcard

const (
	WildcardAnyChar   = rediskey.WildcardAnyChar   // Matches exactly one character.
	WildcardAnyString = rediskey.WildcardAnyString // Matches zero or more characters.

	// ReservedNamespaceDelimiter wraps the namespace segment of a key.
	ReservedNamespaceDelimiter = "__"
)

var (
	namespaceChars   = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)
	namespacePattern = regexp.MustCompile(`^__([a-zA-Z0-9_\-]+?)__(?::|$)`)
)

func wrapNamespace(ns string) string {
	if ns == "" {
		return ""
	}
	return ReservedNamespaceDelimiter + strings.ToLower(ns) + ReservedNamespaceDelimiter
}

// RandomFragment returns a random lowercase alphanumeric key fragment of length n.
func RandomFragment(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

// ValidateNamespace checks that ns can be used as a key namespace.
func ValidateNamespace(ns string) error {
	if ns == "" {
		return nil
	}
	if strings.HasPrefix(ns, ReservedNamespaceDelimiter) || strings.HasSuffix(ns, ReservedNamespaceDelimiter) {
		return fmt.Errorf("keyfactory: namespace %q must not carry the reserved delimiter %q", ns, ReservedNamespaceDelimiter)
	}
	if !namespaceChars.MatchString(ns) {
		return fmt.Errorf("keyfactory: namespace %q contains invalid characters", ns)
	}
	return nil
}

// ValidateKeyFragment checks that f is a valid logical key or key fragment.
func ValidateKeyFragment(f string) error {
	if strings.HasPrefix(f, ReservedNamespaceDelimiter) {
		return fmt.Errorf("keyfactory: key %q must not start with reserved namespace delimiter %q", f, ReservedNamespaceDelimiter)
	}
	if err := rediskey.Validate(f); err != nil {
		return fmt.Errorf("keyfactory: %w", err)
	}
	return nil
}

// Key is a fully qualified datastore key.
type Key struct {
	key       string // Logical key.
	namespace string // Wrapped namespace, may be empty.
}

// NewKey returns a key for the logical key in namespace. The namespace may be
// given bare or already wrapped in the reserved delimiter.
func NewKey(key string, namespace string) *Key {
	if !strings.HasPrefix(namespace, ReservedNamespaceDelimiter) {
		namespace = wrapNamespace(namespace)
	}
	return &Key{key: key, namespace: namespace}
}

func (k *Key) Key() string {
	return k.key
}

func (k *Key) Namespace() string {
	return k.namespace
}

// RedisKey returns the key as stored in Redis.
func (k *Key) RedisKey() string {
	return rediskey.Join(k.namespace, k.key)
}

// String returns the logical key without its namespace.
func (k *Key) String() string {
	if k == nil {
		return ""
	}
	return k.key
}

func (k *Key) Equal(o *Key) bool {
	if k == nil || o == nil {
		return k == o
	}
	return k.key == o.key && k.namespace == o.namespace
}

// KeyBuilder builds keys within a fixed namespace.
type KeyBuilder struct {
	namespace string
}

func NewKeyBuilder(namespace string) (*KeyBuilder, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	return &KeyBuilder{namespace: namespace}, nil
}

func (b *KeyBuilder) Namespace() string {
	return b.namespace
}

// Key returns the namespaced key for the logical key.
func (b *KeyBuilder) Key(logical string) (*Key, error) {
	if err := ValidateKeyFragment(logical); err != nil {
		return nil, err
	}
	return NewKey(logical, b.namespace), nil
}

// Match returns a glob key matching everything below the logical key.
// An empty logical key matches the whole namespace.
func (b *KeyBuilder) Match(logical string, wildcard GlobWildcard) (*Key, error) {
	if logical == "" {
		if b.namespace == "" {
			return nil, fmt.Errorf("keyfactory: match without key or namespace")
		}
		return NewKey(string(wildcard), b.namespace), nil
	}
	if err := ValidateKeyFragment(logical); err != nil {
		return nil, err
	}
	return NewKey(rediskey.MatchPattern(logical, wildcard), b.namespace), nil
}

// ParseRedisKey splits a Redis key into namespace and logical key.
//
//	key, _ := ParseRedisKey("__ci__:run:r1:finding:3")
//	// key => *Key{key: "run:r1:finding:3", namespace: "__ci__"}
func ParseRedisKey(key string) (*Key, error) {
	if err := rediskey.Validate(key); err != nil {
		return nil, fmt.Errorf("keyfactory: failed to parse redis key %q: %w", key, err)
	}
	var namespace string
	if m := namespacePattern.FindStringSubmatch(key); m != nil {
		namespace = m[1]
		key = strings.TrimPrefix(key, m[0])
	}
	return NewKey(key, namespace), nil
}
