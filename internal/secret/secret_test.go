package secret

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// recordingAllocator hands out heap memory and remembers every freed region so
// tests can inspect it after release.
type recordingAllocator struct {
	mu    sync.Mutex
	freed [][]byte
}

func (a *recordingAllocator) alloc(n int) ([]byte, bool) {
	return make([]byte, n), false
}

func (a *recordingAllocator) free(region []byte, _ bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freed = append(a.freed, region)
}

func TestNew_CopiesAndWipesSource(t *testing.T) {
	src := []byte("correct horse battery staple")
	want := string(src)

	s := New(src)
	defer s.Destroy()

	assert.Equal(t, want, string(s.Bytes()))
	assert.Equal(t, make([]byte, len(want)), src, "caller slice should be wiped")
	assert.Equal(t, len(want), s.Len())
}

func TestDestroy_ZeroesMemory(t *testing.T) {
	a := &recordingAllocator{}
	s := newSecret(32, a)
	for i := range s.region {
		s.region[i] = 0xAA
	}
	view := s.Bytes()

	s.Destroy()

	require.Len(t, a.freed, 1)
	for i, b := range a.freed[0] {
		require.Zerof(t, b, "byte %d not wiped", i)
	}
	for i, b := range view {
		require.Zerof(t, b, "view byte %d not wiped", i)
	}
	assert.True(t, s.Destroyed())
	assert.Nil(t, s.Bytes())

	// Idempotent.
	s.Destroy()
	assert.Len(t, a.freed, 1)
}

func TestClone_IsIndependent(t *testing.T) {
	a := &recordingAllocator{}
	s := newSecret(4, a)
	copy(s.region, "seed")

	c := s.Clone()
	s.Destroy()

	assert.Equal(t, "seed", string(c.Bytes()))
	c.Destroy()
	require.Len(t, a.freed, 2)
	assert.Equal(t, make([]byte, 4), a.freed[1])
}

func TestUTF8(t *testing.T) {
	s := FromString("legal winner thank year")
	defer s.Destroy()

	got, err := s.UTF8()
	require.NoError(t, err)
	assert.Equal(t, "legal winner thank year", got)

	bad := New([]byte{'o', 'k', 0xff, 0xfe})
	defer bad.Destroy()
	_, err = bad.UTF8()
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, 2, encErr.Offset)

	bad.Destroy()
	_, err = bad.UTF8()
	assert.ErrorIs(t, err, ErrDestroyed)
}

func TestRendering_IsRedacted(t *testing.T) {
	s := FromString("top secret")
	defer s.Destroy()

	for _, verb := range []string{"%v", "%+v", "%#v", "%s", "%q", "%x", "%X", "%d"} {
		out := fmt.Sprintf(verb, s)
		assert.Equal(t, Redacted, out, verb)
	}
	assert.Equal(t, Redacted, s.String())
	assert.Equal(t, Redacted, s.GoString())

	js, err := json.Marshal(struct {
		Seed *Secret `json:"seed"`
	}{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"seed":"Secret(***REDACTED***)"}`, string(js))

	core, logs := observer.New(zap.InfoLevel)
	zap.New(core).Info("loaded", zap.Stringer("seed", s))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, Redacted, logs.All()[0].ContextMap()["seed"])
}

func TestEmptySecret(t *testing.T) {
	s := New(nil)
	assert.Equal(t, 0, s.Len())
	got, err := s.UTF8()
	require.NoError(t, err)
	assert.Empty(t, got)
	s.Destroy()
	assert.True(t, s.Destroyed())
}

func TestPlatformAllocator_RoundTrip(t *testing.T) {
	s := New([]byte{1, 2, 3, 4, 5})
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, s.Bytes())
	s.Destroy()
	assert.Nil(t, s.Bytes())
}

func TestWipe(t *testing.T) {
	b := []byte{1, 2, 3}
	Wipe(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
	Wipe(nil)

	// Only the slice's own window is cleared; the stores land in the shared
	// backing array.
	buf := []byte{9, 9, 9, 9, 9, 9}
	Wipe(buf[1:4])
	assert.Equal(t, []byte{9, 0, 0, 0, 9, 9}, buf)

	s := New([]byte("seed words"))
	raw := s.Bytes()
	Wipe(raw)
	assert.Equal(t, make([]byte, len("seed words")), s.Bytes(), "wipe reaches the secret's own storage")
	s.Destroy()
}
