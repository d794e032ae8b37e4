package storage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore()

	require.NoError(t, s.Put("a", []byte(`{"v":1}`)))
	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":1}`), got)

	// Overwrite.
	require.NoError(t, s.Put("a", []byte(`{"v":2}`)))
	got, err = s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":2}`), got)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get("ghost")
	assert.ErrorIs(t, err, ErrDocNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Put("a", []byte("x")))
	require.NoError(t, s.Delete("a"))
	_, err := s.Get("a")
	assert.ErrorIs(t, err, ErrDocNotFound)

	// Deleting a missing id is not an error.
	assert.NoError(t, s.Delete("ghost"))
}

func TestMemoryStoreCopySemantics(t *testing.T) {
	s := NewMemoryStore()
	doc := []byte("original")
	require.NoError(t, s.Put("a", doc))
	doc[0] = 'X'

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got, "the store must not alias the caller's buffer")

	got[0] = 'Y'
	again, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again, "returned buffers must not alias the stored copy")
}

func TestMemoryStoreIDsSorted(t *testing.T) {
	s := NewMemoryStore()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Put(id, []byte("x")))
	}
	assert.Equal(t, []string{"a", "b", "c"}, s.IDs())
}

func TestMemoryStoreStats(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Put("a", []byte("12345")))
	require.NoError(t, s.Put("b", []byte("123")))

	stats := s.Stats()
	assert.Equal(t, 2, stats.Docs)
	assert.Equal(t, 8, stats.Bytes)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("doc-%d-%d", i, j)
				_ = s.Put(id, []byte("payload"))
				_, _ = s.Get(id)
				_ = s.IDs()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 500, s.Stats().Docs)
}
