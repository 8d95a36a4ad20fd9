// Package credential owns the API key: its in-memory representation, its
// persistence in the OS keyring, and the interactive flow that produces a
// validated key at startup.
package credential

import (
	"fmt"
	"strings"
)

const redacted = "[redacted]"

// Secret is an API key held in memory. Copies share the same backing bytes,
// so Wipe clears every copy. All formatting paths print a placeholder.
type Secret struct {
	b []byte
}

// NewSecret wraps s. Surrounding whitespace (common when pasting) is trimmed.
func NewSecret(s string) Secret {
	s = strings.TrimSpace(s)
	if s == "" {
		return Secret{}
	}
	return Secret{b: []byte(s)}
}

// Reveal returns the plaintext key. Only transports and the store call it.
func (s Secret) Reveal() string { return string(s.b) }

// IsZero reports whether no key is held.
func (s Secret) IsZero() bool { return len(s.b) == 0 }

// Wipe zeroes the key bytes in place.
func (s *Secret) Wipe() {
	for i := range s.b {
		s.b[i] = 0
	}
	s.b = nil
}

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return "credential.Secret{" + redacted + "}" }

// Format keeps %x, %q and friends from leaking the key bytes.
func (s Secret) Format(f fmt.State, _ rune) { _, _ = f.Write([]byte(redacted)) }

func (s Secret) MarshalJSON() ([]byte, error) { return []byte(`"` + redacted + `"`), nil }

func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }
