package vmem_go

import (
	"fmt"
	"sync"

	"github.com/eapache/queue"
)

// DefaultQueueSize bounds a WriteQueue created with a non-positive limit.
const DefaultQueueSize = 500

// WriteQueue stages records and pushes them to a driver in FIFO order.
type WriteQueue struct {
	mu       sync.Mutex
	driver   Driver
	pending  *queue.Queue
	max      int
	autosend bool
}

func NewWriteQueue(driver Driver, max int) *WriteQueue {
	if max <= 0 {
		max = DefaultQueueSize
	}
	return &WriteQueue{
		driver:  driver,
		pending: queue.New(),
		max:     max,
	}
}

// SetAutosend makes Add flush the queue instead of failing when it is full.
func (wq *WriteQueue) SetAutosend(autosend bool) {
	wq.mu.Lock()
	defer wq.mu.Unlock()

	wq.autosend = autosend
}

// Add copies p onto the queue.
func (wq *WriteQueue) Add(p []byte) error {
	wq.mu.Lock()
	defer wq.mu.Unlock()

	if wq.pending.Length() >= wq.max {
		if !wq.autosend {
			return fmt.Errorf("%w: %d records pending", ErrQueueFull, wq.pending.Length())
		}
		if _, err := wq.flush(); err != nil {
			return err
		}
	}

	wq.pending.Add(append([]byte(nil), p...))
	return nil
}

func (wq *WriteQueue) Len() int {
	wq.mu.Lock()
	defer wq.mu.Unlock()

	return wq.pending.Length()
}

// Flush writes every pending record and returns how many were written. A
// record that fails stays at the front of the queue.
func (wq *WriteQueue) Flush() (int, error) {
	wq.mu.Lock()
	defer wq.mu.Unlock()

	return wq.flush()
}

func (wq *WriteQueue) flush() (int, error) {
	sent := 0
	for wq.pending.Length() > 0 {
		record := wq.pending.Peek().([]byte)
		if _, err := wq.driver.Write(0, record); err != nil {
			return sent, err
		}
		wq.pending.Remove()
		sent++
	}
	return sent, nil
}

// Clear drops every pending record.
func (wq *WriteQueue) Clear() {
	wq.mu.Lock()
	defer wq.mu.Unlock()

	wq.pending = queue.New()
}
