// Package rediskey validates and assembles colon-delimited Redis key strings.
package rediskey

import (
	"fmt"
	"regexp"
	"strings"
)

type GlobWildcard string

const (
	WildcardAnyChar   GlobWildcard = "?" // Matches exactly one character.
	WildcardAnyString GlobWildcard = "*" // Matches zero or more characters.

	Delimiter    = ":"
	keyMaxLength = 1024
)

var allowedChars = regexp.MustCompile(`^[a-zA-Z0-9:_\-\*\?\[\]\(\),]+$`)

type InvalidKeyError string

func (e InvalidKeyError) Error() string { return "invalid redis key: " + string(e) }

// New joins fragments into a validated key.
//
// Empty fragments are skipped and the rest are lowercased. A fragment that
// contains the delimiter is rejected since it would change the key structure.
//
//	key, _ := New("Run", "20261016-ab12")
//	fmt.Println(key) // "run:20261016-ab12"
func New(fragments ...string) (string, error) {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f == "" {
			continue
		}
		if strings.Contains(f, Delimiter) {
			return "", InvalidKeyError(fmt.Sprintf("fragment %q must not contain %q", f, Delimiter))
		}
		parts = append(parts, strings.ToLower(f))
	}
	key := Join(parts...)
	if err := Validate(key); err != nil {
		return "", err
	}
	return key, nil
}

// Validate checks that key is non-empty, bounded in length, made of allowed
// characters and neither starts nor ends with the delimiter.
func Validate(key string) error {
	switch {
	case key == "":
		return InvalidKeyError("key must not be empty")
	case len(key) > keyMaxLength:
		return InvalidKeyError(fmt.Sprintf("key %q exceeds %d characters", key, keyMaxLength))
	case !allowedChars.MatchString(key):
		return InvalidKeyError(fmt.Sprintf("key %q contains invalid characters", key))
	case strings.HasPrefix(key, Delimiter), strings.HasSuffix(key, Delimiter):
		return InvalidKeyError(fmt.Sprintf("key %q must not start or end with %q", key, Delimiter))
	}
	return nil
}

// Join concatenates keys with the delimiter, skipping empty ones.
func Join(keys ...string) string {
	var b strings.Builder
	for _, k := range keys {
		if k == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(Delimiter)
		}
		b.WriteString(k)
	}
	return b.String()
}

// Split returns the delimiter-separated segments of key.
func Split(key string) []string {
	return strings.Split(key, Delimiter)
}

// MatchPattern appends a wildcard segment to base.
//
//	MatchPattern("run:abc:finding", WildcardAnyString) // "run:abc:finding:*"
func MatchPattern(base string, wildcard GlobWildcard) string {
	return base + Delimiter + string(wildcard)
}
