package vmem_go

import (
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
)

// RingConfig describes a ring. It is immutable once the ring is created.
type RingConfig struct {
	Name     string
	DataSize uint32
	Entries  uint32
	Store    BackingStore
	Logger   logrus.FieldLogger
}

func (cfg RingConfig) Validate() error {
	if cfg.Store == nil {
		return fmt.Errorf("%w: ring %q has no backing store", ErrInvalidConfig, cfg.Name)
	}
	// One slot always stays empty to tell a full table from an empty one.
	if cfg.Entries < 2 {
		return fmt.Errorf("%w: ring %q needs at least 2 entries, got %d", ErrInvalidConfig, cfg.Name, cfg.Entries)
	}
	if cfg.DataSize < 2 {
		return fmt.Errorf("%w: ring %q needs a data size of at least 2, got %d", ErrInvalidConfig, cfg.Name, cfg.DataSize)
	}
	if uint64(headerSize(cfg.Entries))+uint64(cfg.DataSize) > math.MaxInt64 {
		return fmt.Errorf("%w: ring %q is too large", ErrInvalidConfig, cfg.Name)
	}
	return nil
}

// Ring is a persistent circular log of variable-length records.
type Ring struct {
	name     string
	dataSize uint32
	entries  uint32
	store    BackingStore
	log      logrus.FieldLogger

	mu     sync.Mutex
	state  RingState
	loaded bool
}

// NewRing creates the ring and recovers its state from the backing store,
// creating an empty resource when none exists yet.
func NewRing(cfg RingConfig) (*Ring, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ring := &Ring{
		name:     cfg.Name,
		dataSize: cfg.DataSize,
		entries:  cfg.Entries,
		store:    cfg.Store,
		log:      logger.WithField("ring", cfg.Name),
	}

	if err := ring.Init(); err != nil {
		return nil, err
	}

	return ring, nil
}

func (ring *Ring) Init() error {
	ring.mu.Lock()
	defer ring.mu.Unlock()

	return ring.recover()
}

func (ring *Ring) Reload() error {
	ring.mu.Lock()
	defer ring.mu.Unlock()

	ring.loaded = false
	return ring.recover()
}

func (ring *Ring) recover() error {
	exists, err := ring.store.Exists()
	if err != nil {
		return err
	}

	if !exists {
		return ring.create()
	}

	handle, err := ring.store.Open()
	if err != nil {
		return err
	}
	defer handle.Close()

	buf := make([]byte, headerSize(ring.entries))
	n, err := handle.ReadAt(buf, 0)
	if n < len(buf) {
		if err == nil || err == io.EOF {
			return fmt.Errorf("%w: header truncated to %d of %d bytes", ErrCorruptState, n, len(buf))
		}
		return ioFailure("read header", err)
	}

	state := unmarshalRingState(buf, ring.entries)
	if err := state.validate(ring.dataSize); err != nil {
		ring.log.WithError(err).Warn("rejecting recovered ring header")
		return err
	}

	ring.state = state
	ring.loaded = true

	ring.log.WithFields(logrus.Fields{
		"head":  state.Head,
		"tail":  state.Tail,
		"count": state.count(),
	}).Debug("recovered ring")

	return nil
}

func (ring *Ring) create() error {
	size := headerSize(ring.entries) + int64(ring.dataSize)
	if err := ring.store.Create(size); err != nil {
		return err
	}

	handle, err := ring.store.Open()
	if err != nil {
		return err
	}

	state := newRingState(ring.entries)
	if err := ring.commit(handle, state); err != nil {
		handle.Close()
		return err
	}
	if err := handle.Close(); err != nil {
		return ioFailure("close", err)
	}

	ring.state = state
	ring.loaded = true

	ring.log.WithFields(logrus.Fields{
		"size":    ring.dataSize,
		"entries": ring.entries,
	}).Info("created ring")

	return nil
}

func (ring *Ring) ensureLoaded() error {
	if ring.loaded {
		return nil
	}
	return ring.recover()
}

// Append writes p as the newest record, evicting the oldest records until
// both the bytes and a slot are available.
func (ring *Ring) Append(p []byte) error {
	ring.mu.Lock()
	defer ring.mu.Unlock()

	// A record of dataSize bytes would begin and end on the same offset and
	// read back as empty.
	if uint64(len(p)) >= uint64(ring.dataSize) {
		return fmt.Errorf("%w: %d bytes, data size is %d", ErrOversizedRecord, len(p), ring.dataSize)
	}

	if err := ring.ensureLoaded(); err != nil {
		return err
	}

	requested := uint32(len(p))
	next := ring.state.clone()
	evicted := 0

	free := ring.dataSize - ring.usedBytes(next)
	for requested > free && next.count() > 0 && evicted < int(ring.entries) {
		free += ring.recordSize(next, next.Tail)
		next.Tail = NextSlot(next.Tail, ring.entries)
		evicted++
	}

	insertOffset := next.Offsets[next.Head]
	newHeadOffset := uint32((uint64(insertOffset) + uint64(requested)) % uint64(ring.dataSize))

	next.Head = NextSlot(next.Head, ring.entries)
	if next.Head == next.Tail {
		next.Tail = NextSlot(next.Tail, ring.entries)
		evicted++
	}
	next.Offsets[next.Head] = newHeadOffset

	handle, err := ring.store.Open()
	if err != nil {
		return err
	}

	// Data first, header last: the header never points at unwritten bytes.
	err = ring.writeSpan(handle, insertOffset, p)
	if err == nil {
		err = ring.commit(handle, next)
	}
	closeErr := handle.Close()
	if err == nil && closeErr != nil {
		err = ioFailure("close", closeErr)
	}
	if err != nil {
		// The stored header may or may not have changed; recover on next use.
		ring.loaded = false
		return err
	}

	ring.state = next

	ring.log.WithFields(logrus.Fields{
		"head":    next.Head,
		"tail":    next.Tail,
		"bytes":   requested,
		"evicted": evicted,
	}).Debug("appended record")

	return nil
}

func (ring *Ring) ReadRecord(index int) ([]byte, error) {
	ring.mu.Lock()
	defer ring.mu.Unlock()

	if err := ring.ensureLoaded(); err != nil {
		return nil, err
	}

	slot, err := ring.resolve(index)
	if err != nil {
		return nil, err
	}

	record := make([]byte, ring.recordSize(ring.state, slot))
	if err := ring.readRange(ring.state.Offsets[slot], record); err != nil {
		return nil, err
	}

	return record, nil
}

// ReadRecordAt reads into p from byte off of the record at index. Like
// io.ReaderAt it returns io.EOF when fewer than len(p) bytes remain.
func (ring *Ring) ReadRecordAt(index int, p []byte, off uint32) (int, error) {
	ring.mu.Lock()
	defer ring.mu.Unlock()

	if err := ring.ensureLoaded(); err != nil {
		return 0, err
	}

	slot, err := ring.resolve(index)
	if err != nil {
		return 0, err
	}

	size := ring.recordSize(ring.state, slot)
	if off > size {
		return 0, fmt.Errorf("%w: offset %d in record of %d bytes", ErrOutOfRange, off, size)
	}

	n := uint32(len(p))
	if remaining := size - off; n > remaining {
		n = remaining
	}

	start := ring.wrapOffset(ring.state.Offsets[slot], off)
	if err := ring.readRange(start, p[:n]); err != nil {
		return 0, err
	}

	if int(n) < len(p) {
		return int(n), io.EOF
	}
	return int(n), nil
}

func (ring *Ring) readRange(start uint32, p []byte) error {
	handle, err := ring.store.Open()
	if err != nil {
		return err
	}

	err = ring.readSpan(handle, start, p)
	closeErr := handle.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return ioFailure("close", closeErr)
	}
	return nil
}

// Read implements Driver. addr is a logical record index.
func (ring *Ring) Read(addr int64, p []byte) (int, error) {
	if addr < math.MinInt32 || addr > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidIndex, addr)
	}

	record, err := ring.ReadRecord(int(addr))
	if err != nil {
		return 0, err
	}
	if len(p) < len(record) {
		return 0, fmt.Errorf("%w: record is %d bytes, buffer is %d", ErrShortBuffer, len(record), len(p))
	}

	return copy(p, record), nil
}

// Write implements Driver. Records are always appended so addr is ignored.
func (ring *Ring) Write(addr int64, p []byte) (int, error) {
	if err := ring.Append(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ElementCount returns the number of retained records, or 0 when the state
// cannot be recovered. Use Count to see the error.
func (ring *Ring) ElementCount() int {
	count, err := ring.Count()
	if err != nil {
		ring.log.WithError(err).Warn("counting records of unrecoverable ring")
		return 0
	}
	return count
}

func (ring *Ring) Count() (int, error) {
	ring.mu.Lock()
	defer ring.mu.Unlock()

	if err := ring.ensureLoaded(); err != nil {
		return 0, err
	}
	return int(ring.state.count()), nil
}

// IsValidIndex reports whether the tail-relative index names a retained
// record.
func (ring *Ring) IsValidIndex(index int) bool {
	ring.mu.Lock()
	defer ring.mu.Unlock()

	if err := ring.ensureLoaded(); err != nil {
		ring.log.WithError(err).Warn("checking index of unrecoverable ring")
		return false
	}
	return ring.isValidIndex(index)
}

func (ring *Ring) ElementSize(index int) (uint32, error) {
	ring.mu.Lock()
	defer ring.mu.Unlock()

	if err := ring.ensureLoaded(); err != nil {
		return 0, err
	}

	slot, err := ring.resolve(index)
	if err != nil {
		return 0, err
	}
	return ring.recordSize(ring.state, slot), nil
}

// OffsetOf returns the data region offset of byte within of the record at
// index. Add the header size to get an offset into the backing store.
func (ring *Ring) OffsetOf(index int, within uint32) (uint32, error) {
	ring.mu.Lock()
	defer ring.mu.Unlock()

	if err := ring.ensureLoaded(); err != nil {
		return 0, err
	}

	slot, err := ring.resolve(index)
	if err != nil {
		return 0, err
	}

	if size := ring.recordSize(ring.state, slot); within > size {
		return 0, fmt.Errorf("%w: offset %d in record of %d bytes", ErrOutOfRange, within, size)
	}
	return ring.wrapOffset(ring.state.Offsets[slot], within), nil
}

func (ring *Ring) State() RingState {
	ring.mu.Lock()
	defer ring.mu.Unlock()

	return ring.state.clone()
}

func (ring *Ring) Capacity() (dataSize, entries uint32) {
	return ring.dataSize, ring.entries
}

func (ring *Ring) Name() string {
	return ring.name
}

// HeaderSize is the number of bytes in front of the data region.
func (ring *Ring) HeaderSize() int64 {
	return headerSize(ring.entries)
}

func (ring *Ring) isValidIndex(index int) bool {
	if index < 0 || index >= int(ring.entries) {
		return false
	}
	slot := uint32((uint64(ring.state.Tail) + uint64(index)) % uint64(ring.entries))
	return Between(ring.state.Tail, slot, ring.state.Head)
}

// resolve maps a tail-relative (>= 0) or head-relative (< 0) index to a slot.
func (ring *Ring) resolve(index int) (uint32, error) {
	if index >= 0 {
		if !ring.isValidIndex(index) {
			return 0, fmt.Errorf("%w: %d, ring holds %d records", ErrInvalidIndex, index, ring.state.count())
		}
		return uint32((uint64(ring.state.Tail) + uint64(index)) % uint64(ring.entries)), nil
	}

	// Compare before negating: -math.MinInt overflows.
	if index < -int(ring.state.count()) {
		return 0, fmt.Errorf("%w: %d, ring holds %d records", ErrInvalidIndex, index, ring.state.count())
	}
	back := -int64(index)
	return uint32((uint64(ring.state.Head) + uint64(ring.entries) - uint64(back)) % uint64(ring.entries)), nil
}

func (ring *Ring) recordSize(state RingState, slot uint32) uint32 {
	return distance(state.Offsets[slot], state.Offsets[NextSlot(slot, ring.entries)], ring.dataSize)
}

func (ring *Ring) usedBytes(state RingState) uint32 {
	var used uint32
	for slot := state.Tail; slot != state.Head; slot = NextSlot(slot, ring.entries) {
		used += ring.recordSize(state, slot)
	}
	return used
}

func (ring *Ring) wrapOffset(start, delta uint32) uint32 {
	return uint32((uint64(start) + uint64(delta)) % uint64(ring.dataSize))
}

// split cuts a span of length bytes starting at start at the end of the data
// region. second is zero when the span does not wrap.
func (ring *Ring) split(start uint32, length int) (first, second int) {
	if uint64(start)+uint64(length) <= uint64(ring.dataSize) {
		return length, 0
	}
	first = int(ring.dataSize - start)
	return first, length - first
}

func (ring *Ring) readSpan(handle StoreHandle, start uint32, p []byte) error {
	base := headerSize(ring.entries)
	first, second := ring.split(start, len(p))

	if n, err := handle.ReadAt(p[:first], base+int64(start)); n < first {
		return ioFailure("read data", shortIO(err, io.ErrUnexpectedEOF))
	}
	if second > 0 {
		if n, err := handle.ReadAt(p[first:], base); n < second {
			return ioFailure("read wrapped data", shortIO(err, io.ErrUnexpectedEOF))
		}
	}
	return nil
}

func (ring *Ring) writeSpan(handle StoreHandle, start uint32, p []byte) error {
	base := headerSize(ring.entries)
	first, second := ring.split(start, len(p))

	if n, err := handle.WriteAt(p[:first], base+int64(start)); n < first || err != nil {
		return ioFailure("write data", shortIO(err, io.ErrShortWrite))
	}
	if second > 0 {
		if n, err := handle.WriteAt(p[first:], base); n < second || err != nil {
			return ioFailure("write wrapped data", shortIO(err, io.ErrShortWrite))
		}
	}
	return nil
}

func (ring *Ring) commit(handle StoreHandle, state RingState) error {
	header := state.marshal()
	if n, err := handle.WriteAt(header, 0); n < len(header) || err != nil {
		return ioFailure("write header", shortIO(err, io.ErrShortWrite))
	}
	return nil
}

func shortIO(err, fallback error) error {
	if err == nil {
		return fallback
	}
	return err
}
