package vmem_go

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

func ioFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIOFailure, op, err)
}

// FileStore keeps a resource in a plain file. Every handle holds an exclusive
// advisory lock on the file until it is closed.
type FileStore struct {
	Path string
	Perm fs.FileMode
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path, Perm: 0o644}
}

func (store *FileStore) Exists() (bool, error) {
	_, err := os.Stat(store.Path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, ioFailure("stat", err)
}

func (store *FileStore) Create(size int64) error {
	file, err := os.OpenFile(store.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, store.Perm)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	defer file.Close()

	if err := file.Truncate(size); err != nil {
		return ioFailure("truncate", err)
	}
	if err := file.Sync(); err != nil {
		return ioFailure("sync", err)
	}
	return nil
}

func (store *FileStore) Open() (StoreHandle, error) {
	file, err := os.OpenFile(store.Path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, ioFailure("open", err)
	}
	if err := lockFile(file); err != nil {
		file.Close()
		return nil, ioFailure("lock", err)
	}
	return &fileHandle{file: file}, nil
}

type fileHandle struct {
	file *os.File
}

func (handle *fileHandle) ReadAt(p []byte, off int64) (int, error) {
	return handle.file.ReadAt(p, off)
}

func (handle *fileHandle) WriteAt(p []byte, off int64) (int, error) {
	return handle.file.WriteAt(p, off)
}

func (handle *fileHandle) Close() error {
	syncErr := handle.file.Sync()
	unlockErr := unlockFile(handle.file)
	closeErr := handle.file.Close()
	return errors.Join(syncErr, unlockErr, closeErr)
}

// MemoryStore keeps a resource in process memory. It does not survive a
// restart but does survive Ring.Reload, which makes it useful for tests and
// volatile rings.
type MemoryStore struct {
	mu      sync.Mutex
	data    []byte
	created bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (store *MemoryStore) Exists() (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	return store.created, nil
}

func (store *MemoryStore) Create(size int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.data = make([]byte, size)
	store.created = true
	return nil
}

func (store *MemoryStore) Open() (StoreHandle, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if !store.created {
		return nil, ErrNotFound
	}
	return &memoryHandle{store: store}, nil
}

// Bytes returns a copy of the resource contents.
func (store *MemoryStore) Bytes() []byte {
	store.mu.Lock()
	defer store.mu.Unlock()

	return append([]byte(nil), store.data...)
}

type memoryHandle struct {
	store *MemoryStore
}

func (handle *memoryHandle) ReadAt(p []byte, off int64) (int, error) {
	handle.store.mu.Lock()
	defer handle.store.mu.Unlock()

	if off < 0 {
		return 0, fs.ErrInvalid
	}
	if off >= int64(len(handle.store.data)) {
		return 0, io.EOF
	}
	n := copy(p, handle.store.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (handle *memoryHandle) WriteAt(p []byte, off int64) (int, error) {
	handle.store.mu.Lock()
	defer handle.store.mu.Unlock()

	if off < 0 {
		return 0, fs.ErrInvalid
	}
	if end := off + int64(len(p)); end > int64(len(handle.store.data)) {
		grown := make([]byte, end)
		copy(grown, handle.store.data)
		handle.store.data = grown
	}
	return copy(handle.store.data[off:], p), nil
}

func (handle *memoryHandle) Close() error {
	return nil
}
