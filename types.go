package vmem_go

import (
	"errors"
	"io"
)

// Driver is the storage capability a VMem area dispatches to.
//
// Byte-addressed drivers (ImageDriver) treat addr as an offset into
// the area. Record drivers (Ring) treat addr on Read as a logical record
// index and ignore it on Write, which always appends.
type Driver interface {
	Init() error
	Read(addr int64, p []byte) (n int, err error)
	Write(addr int64, p []byte) (n int, err error)
}

// RecordDriver is implemented by drivers that store variable-length records
// addressed by logical index rather than by byte.
type RecordDriver interface {
	Driver
	ElementCount() int
	Count() (int, error)
	ElementSize(index int) (uint32, error)
	ReadRecord(index int) ([]byte, error)
}

// RingInterface defines the public API of the persistent record ring.
//
// Logical indices are relative to the tail: 0 is the oldest retained record.
// Negative indices are relative to the head: -1 is the newest record.
//
// Notes on semantics:
//   - Append writes one record. When the data region or the slot table is
//     exhausted the oldest records are evicted first, in FIFO order. Records
//     of DataSize bytes or more are rejected with ErrOversizedRecord.
//   - ReadRecord and ReadRecordAt fail with ErrInvalidIndex for indices that
//     do not name a retained record.
//   - Every call opens the backing store, performs its I/O and closes it
//     again. Data is written before the header so a committed header never
//     references unwritten bytes.
//   - Reload drops the in-memory copy of the header and recovers it from the
//     backing store.
//
// All methods are safe for concurrent use.
type RingInterface interface {
	RecordDriver
	Append(p []byte) error
	ReadRecordAt(index int, p []byte, off uint32) (int, error)
	IsValidIndex(index int) bool
	OffsetOf(index int, within uint32) (uint32, error)
	State() RingState
	Capacity() (dataSize, entries uint32)
	Reload() error
}

// BackingStore is a named persistent resource the ring lives in.
type BackingStore interface {
	// Exists reports whether the resource has already been created.
	Exists() (bool, error)
	// Create makes a zero-filled resource of size bytes.
	Create(size int64) error
	// Open acquires a handle for a single operation.
	Open() (StoreHandle, error)
}

// StoreHandle is an open backing store. It is never held across calls.
type StoreHandle interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

var _ RingInterface = &Ring{}
var _ Driver = &ImageDriver{}
var _ BackingStore = &FileStore{}
var _ BackingStore = &MemoryStore{}
var _ BackingStore = &SQLiteStore{}

var (
	// ErrNotFound indicates the backing resource is missing and could not be
	// created.
	ErrNotFound = errors.New("vmem: backing resource not found")

	// ErrIOFailure indicates a read or write against the backing resource
	// failed or came up short.
	ErrIOFailure = errors.New("vmem: backing resource i/o failure")

	// ErrOversizedRecord indicates a record does not fit in the data region.
	// A record must be strictly smaller than the data region: one of exactly
	// DataSize bytes would begin and end on the same offset and be
	// indistinguishable from an empty record.
	ErrOversizedRecord = errors.New("vmem: record exceeds data capacity")

	// ErrInvalidIndex indicates a logical index that names no retained record.
	ErrInvalidIndex = errors.New("vmem: invalid record index")

	// ErrCorruptState indicates a recovered header failed its bounds checks.
	ErrCorruptState = errors.New("vmem: corrupt ring state")

	// ErrInvalidConfig indicates an unusable ring or area configuration.
	ErrInvalidConfig = errors.New("vmem: invalid configuration")

	// ErrOutOfRange indicates a byte address outside a VMem area.
	ErrOutOfRange = errors.New("vmem: address out of range")

	// ErrQueueFull indicates a WriteQueue reached its limit without autosend.
	ErrQueueFull = errors.New("vmem: write queue full")

	ErrShortBuffer = io.ErrShortBuffer
)
