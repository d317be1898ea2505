package vmem_go

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storesUnderTest(t *testing.T) map[string]BackingStore {
	dir := t.TempDir()
	return map[string]BackingStore{
		"file":   NewFileStore(filepath.Join(dir, "store.vmem")),
		"memory": NewMemoryStore(),
		"sqlite": NewSQLiteStore(filepath.Join(dir, "store.db"), "area"),
	}
}

func TestBackingStores(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			exists, err := store.Exists()
			require.NoError(t, err)
			assert.False(t, exists)

			_, err = store.Open()
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Create(32))
			exists, err = store.Exists()
			require.NoError(t, err)
			assert.True(t, exists)

			handle, err := store.Open()
			require.NoError(t, err)

			n, err := handle.WriteAt([]byte("abcd"), 10)
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			p := make([]byte, 6)
			n, err = handle.ReadAt(p, 9)
			require.NoError(t, err)
			assert.Equal(t, 6, n)
			assert.Equal(t, []byte{0, 'a', 'b', 'c', 'd', 0}, p)

			// Reading across the end is short.
			p = make([]byte, 8)
			n, err = handle.ReadAt(p, 28)
			assert.Equal(t, 4, n)
			assert.ErrorIs(t, err, io.EOF)

			require.NoError(t, handle.Close())

			// Contents survive reopening.
			handle, err = store.Open()
			require.NoError(t, err)
			p = make([]byte, 4)
			_, err = handle.ReadAt(p, 10)
			require.NoError(t, err)
			assert.Equal(t, "abcd", string(p))
			require.NoError(t, handle.Close())
		})
	}
}

func TestRingOnEveryStore(t *testing.T) {
	logger, _ := test.NewNullLogger()
	for name, store := range storesUnderTest(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			cfg := RingConfig{Name: name, DataSize: 10, Entries: 4, Store: store, Logger: logger}
			ring, err := NewRing(cfg)
			require.NoError(t, err)

			require.NoError(t, ring.Append([]byte("12345678")))
			require.NoError(t, ring.Append([]byte("uvwxyz")))

			reopened, err := NewRing(cfg)
			require.NoError(t, err)
			assert.Equal(t, ring.State(), reopened.State())

			got, err := reopened.ReadRecord(0)
			require.NoError(t, err)
			assert.Equal(t, "uvwxyz", string(got))
		})
	}
}

func TestSQLiteStoresShareDatabase(t *testing.T) {
	logger, _ := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "shared.db")

	first, err := NewRing(RingConfig{Name: "first", DataSize: 16, Entries: 4, Store: NewSQLiteStore(path, "first"), Logger: logger})
	require.NoError(t, err)
	second, err := NewRing(RingConfig{Name: "second", DataSize: 16, Entries: 4, Store: NewSQLiteStore(path, "second"), Logger: logger})
	require.NoError(t, err)

	require.NoError(t, first.Append([]byte("one")))
	require.NoError(t, second.Append([]byte("two")))

	got, err := first.ReadRecord(0)
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))

	got, err = second.ReadRecord(0)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
}
