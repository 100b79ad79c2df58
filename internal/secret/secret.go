// Package secret provides Secret, a byte container for private material
// (mnemonics, seeds, key shares). Its memory is locked against swapping where
// the platform allows and is overwritten with zeros when released.
package secret

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unicode/utf8"
)

// Redacted is the fixed rendering of every Secret.
const Redacted = "Secret(***REDACTED***)"

// ErrDestroyed is returned when a released Secret is read.
var ErrDestroyed = errors.New("secret: already destroyed")

// EncodingError is returned by UTF8 when the secret is not valid UTF-8.
type EncodingError struct {
	Offset int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("secret: invalid utf-8 at byte %d", e.Offset)
}

// allocator backs Secret storage. Swapped in tests to inspect released memory.
type allocator interface {
	alloc(n int) (region []byte, locked bool)
	free(region []byte, locked bool)
}

var defaultAllocator allocator = platformAllocator{}

// Secret owns a protected copy of sensitive bytes. The zero value is an empty,
// already released secret. A Secret must not be copied after first use.
type Secret struct {
	mu     sync.RWMutex
	region []byte
	locked bool
	alloc  allocator
	dead   bool
}

// New copies b into protected memory and wipes b. The caller keeps ownership
// of the (now zeroed) slice.
func New(b []byte) *Secret {
	s := newSecret(len(b), defaultAllocator)
	copy(s.region, b)
	Wipe(b)
	return s
}

// FromString copies str into protected memory. Go strings are immutable, so
// the source cannot be wiped; prefer New for material held in byte slices.
func FromString(str string) *Secret {
	s := newSecret(len(str), defaultAllocator)
	copy(s.region, str)
	return s
}

func newSecret(n int, a allocator) *Secret {
	s := &Secret{alloc: a}
	s.region, s.locked = a.alloc(n)
	runtime.SetFinalizer(s, (*Secret).Destroy)
	return s
}

// Bytes returns a view of the protected memory. The slice is only valid until
// Destroy and must not be retained or appended to. A released secret returns nil.
func (s *Secret) Bytes() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dead {
		return nil
	}
	return s.region
}

// Len returns the secret length in bytes.
func (s *Secret) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.region)
}

// UTF8 returns the secret as a string. The returned string is an ordinary heap
// copy outside the protected region.
func (s *Secret) UTF8() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dead {
		return "", ErrDestroyed
	}
	if !utf8.Valid(s.region) {
		off := 0
		for off < len(s.region) {
			r, size := utf8.DecodeRune(s.region[off:])
			if r == utf8.RuneError && size <= 1 {
				break
			}
			off += size
		}
		return "", &EncodingError{Offset: off}
	}
	return string(s.region), nil
}

// Clone duplicates the secret into freshly protected memory. Each copy is
// released independently.
func (s *Secret) Clone() *Secret {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a := s.alloc
	if a == nil {
		a = defaultAllocator
	}
	c := newSecret(len(s.region), a)
	if !s.dead {
		copy(c.region, s.region)
	}
	return c
}

// Destroy zeroes and releases the secret. It is safe to call more than once.
func (s *Secret) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return
	}
	s.dead = true
	runtime.SetFinalizer(s, nil)
	if s.region == nil {
		return
	}
	Wipe(s.region)
	s.alloc.free(s.region, s.locked)
	s.region = nil
}

// Destroyed reports whether Destroy has run.
func (s *Secret) Destroyed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dead
}

func (s *Secret) String() string { return Redacted }

func (s *Secret) GoString() string { return Redacted }

// Format keeps every fmt verb (%x, %q, %+v, ...) redacted.
func (s *Secret) Format(f fmt.State, _ rune) {
	fmt.Fprint(f, Redacted)
}

func (s *Secret) MarshalText() ([]byte, error) {
	return []byte(Redacted), nil
}

func (s *Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + Redacted + `"`), nil
}

// Wipe overwrites b with zeros. b is memory owned by the caller (heap or
// mmap'd), so the compiler cannot prove the stores dead and keeps them; Go
// does not eliminate writes through a slice that outlives the call.
func Wipe(b []byte) {
	clear(b)
}

type heapAllocator struct{}

func (heapAllocator) alloc(n int) ([]byte, bool) {
	return make([]byte, n), false
}

func (heapAllocator) free([]byte, bool) {}
