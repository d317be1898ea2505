package vmem_go

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageArea(t *testing.T) {
	drivers := map[string]*ImageDriver{
		"file":   NewFileDriver(filepath.Join(t.TempDir(), "image.vmem"), 64),
		"memory": NewMemDriver(64),
		"sqlite": NewSQLiteDriver(filepath.Join(t.TempDir(), "image.db"), "image", 64),
	}

	for name, driver := range drivers {
		driver := driver
		t.Run(name, func(t *testing.T) {
			require.NoError(t, driver.Init())
			area := NewVMem(name, 64, driver)
			assert.False(t, area.IsRecordArea())

			n, err := area.Write(60, []byte("tail"))
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			p := make([]byte, 4)
			_, err = area.Read(60, p)
			require.NoError(t, err)
			assert.Equal(t, "tail", string(p))

			_, err = area.Write(61, []byte("tail"))
			assert.ErrorIs(t, err, ErrOutOfRange)
			_, err = area.Read(-1, p)
			assert.ErrorIs(t, err, ErrOutOfRange)

			// A second Init keeps the contents.
			require.NoError(t, driver.Init())
			_, err = area.Read(60, p)
			require.NoError(t, err)
			assert.Equal(t, "tail", string(p))
		})
	}
}

func TestRingArea(t *testing.T) {
	ring, _ := newTestRing(t, 16, 4)
	area := NewVMem("ring", ring.HeaderSize()+16, ring)
	assert.True(t, area.IsRecordArea())

	// Record areas are not byte bounds checked: the address is an index.
	_, err := area.Write(1000, []byte("first"))
	require.NoError(t, err)
	_, err = area.Write(0, []byte("second"))
	require.NoError(t, err)

	p := make([]byte, 16)
	n, err := area.Read(-1, p)
	require.NoError(t, err)
	assert.Equal(t, "second", string(p[:n]))

	_, err = area.Read(5, p)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestRegistry(t *testing.T) {
	logger, _ := test.NewNullLogger()
	registry := NewRegistry(logger)

	require.NoError(t, registry.Add(NewVMem("b", 8, NewMemDriver(8))))
	require.NoError(t, registry.Add(NewVMem("a", 8, NewMemDriver(8))))
	assert.ErrorIs(t, registry.Add(NewVMem("a", 8, NewMemDriver(8))), ErrInvalidConfig)
	assert.ErrorIs(t, registry.Add(NewVMem("", 8, NewMemDriver(8))), ErrInvalidConfig)

	area, err := registry.Find("b")
	require.NoError(t, err)
	assert.Equal(t, "b", area.Name)

	_, err = registry.Find("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	list := registry.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "b", list[1].Name)
}
