// Package secret provides a holder for credentials that only hands out its
// bytes inside a callback and wipes the copy afterwards.
package secret

import (
	"fmt"
	"sync"
)

const redacted = "[redacted]"

// Secret keeps a private copy of a credential.
type Secret struct {
	mu   sync.Mutex
	data []byte
}

// New copies b into a new Secret. The caller may wipe b afterwards.
func New(b []byte) *Secret {
	data := make([]byte, len(b))
	copy(data, b)
	return &Secret{data: data}
}

// FromString creates a Secret from s.
func FromString(s string) *Secret {
	return New([]byte(s))
}

// Access calls fn with a temporary copy of the secret bytes. The copy is
// zeroed when fn returns, so fn must not retain the slice.
// A nil Secret yields a nil slice.
func (s *Secret) Access(fn func(b []byte) error) error {
	if s == nil {
		return fn(nil)
	}

	s.mu.Lock()
	tmp := make([]byte, len(s.data))
	copy(tmp, s.data)
	s.mu.Unlock()

	defer Wipe(tmp)
	return fn(tmp)
}

// Len returns the length of the secret, 0 for a nil Secret.
func (s *Secret) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// IsEmpty reports whether the secret is nil or has no bytes.
func (s *Secret) IsEmpty() bool {
	return s.Len() == 0
}

// Destroy wipes the stored bytes. The Secret is empty afterwards.
func (s *Secret) Destroy() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	Wipe(s.data)
	s.data = nil
}

// String never reveals the secret.
func (s *Secret) String() string {
	return redacted
}

// GoString never reveals the secret.
func (s *Secret) GoString() string {
	return redacted
}

// Format makes every fmt verb print the redacted marker.
func (s *Secret) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(redacted))
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
