package vmem_go

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteQueue(t *testing.T) {
	t.Run("Flush In Order", func(t *testing.T) {
		ring, _ := newTestRing(t, 64, 8)
		wq := NewWriteQueue(ring, 4)

		for _, rec := range []string{"a", "bb", "ccc"} {
			require.NoError(t, wq.Add([]byte(rec)))
		}
		assert.Equal(t, 3, wq.Len())
		assert.Equal(t, 0, ring.ElementCount())

		sent, err := wq.Flush()
		require.NoError(t, err)
		assert.Equal(t, 3, sent)
		assert.Equal(t, 0, wq.Len())

		for i, want := range []string{"a", "bb", "ccc"} {
			got, err := ring.ReadRecord(i)
			require.NoError(t, err)
			assert.Equal(t, want, string(got))
		}
	})

	t.Run("Add Copies Record", func(t *testing.T) {
		ring, _ := newTestRing(t, 64, 8)
		wq := NewWriteQueue(ring, 4)

		buf := []byte("abc")
		require.NoError(t, wq.Add(buf))
		buf[0] = 'x'

		_, err := wq.Flush()
		require.NoError(t, err)
		got, err := ring.ReadRecord(0)
		require.NoError(t, err)
		assert.Equal(t, "abc", string(got))
	})

	t.Run("Full Without Autosend", func(t *testing.T) {
		ring, _ := newTestRing(t, 64, 8)
		wq := NewWriteQueue(ring, 2)

		require.NoError(t, wq.Add([]byte("1")))
		require.NoError(t, wq.Add([]byte("2")))
		assert.ErrorIs(t, wq.Add([]byte("3")), ErrQueueFull)
		assert.Equal(t, 0, ring.ElementCount())
	})

	t.Run("Autosend", func(t *testing.T) {
		ring, _ := newTestRing(t, 64, 8)
		wq := NewWriteQueue(ring, 2)
		wq.SetAutosend(true)

		for _, rec := range []string{"1", "2", "3"} {
			require.NoError(t, wq.Add([]byte(rec)))
		}
		assert.Equal(t, 2, ring.ElementCount())
		assert.Equal(t, 1, wq.Len())
	})

	t.Run("Failed Record Stays Queued", func(t *testing.T) {
		ring, _ := newTestRing(t, 8, 4)
		wq := NewWriteQueue(ring, 0)

		require.NoError(t, wq.Add([]byte("ok")))
		require.NoError(t, wq.Add(make([]byte, 8)))
		require.NoError(t, wq.Add([]byte("after")))

		sent, err := wq.Flush()
		assert.Equal(t, 1, sent)
		assert.True(t, errors.Is(err, ErrOversizedRecord))
		assert.Equal(t, 2, wq.Len())

		wq.Clear()
		assert.Equal(t, 0, wq.Len())
	})
}
