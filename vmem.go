package vmem_go

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// VMem is a named, addressable memory area backed by a Driver.
type VMem struct {
	Name   string
	Size   int64
	Driver Driver
}

func NewVMem(name string, size int64, driver Driver) *VMem {
	return &VMem{Name: name, Size: size, Driver: driver}
}

// Read dispatches to the driver. Byte-addressed areas are bounds checked
// against Size; record drivers validate their own indices.
func (vmem *VMem) Read(addr int64, p []byte) (int, error) {
	if err := vmem.checkRange(addr, len(p)); err != nil {
		return 0, err
	}
	return vmem.Driver.Read(addr, p)
}

func (vmem *VMem) Write(addr int64, p []byte) (int, error) {
	if err := vmem.checkRange(addr, len(p)); err != nil {
		return 0, err
	}
	return vmem.Driver.Write(addr, p)
}

// IsRecordArea reports whether the area is addressed by record index.
func (vmem *VMem) IsRecordArea() bool {
	_, ok := vmem.Driver.(RecordDriver)
	return ok
}

func (vmem *VMem) checkRange(addr int64, length int) error {
	if vmem.IsRecordArea() {
		return nil
	}
	if addr < 0 || addr+int64(length) > vmem.Size {
		return fmt.Errorf("%w: %s [%d, %d) outside [0, %d)", ErrOutOfRange, vmem.Name, addr, addr+int64(length), vmem.Size)
	}
	return nil
}

// ImageDriver exposes a backing store as a flat, byte-addressable image.
type ImageDriver struct {
	Store BackingStore
	Size  int64
}

func NewFileDriver(path string, size int64) *ImageDriver {
	return &ImageDriver{Store: NewFileStore(path), Size: size}
}

func NewMemDriver(size int64) *ImageDriver {
	return &ImageDriver{Store: NewMemoryStore(), Size: size}
}

func NewSQLiteDriver(path, name string, size int64) *ImageDriver {
	return &ImageDriver{Store: NewSQLiteStore(path, name), Size: size}
}

func (driver *ImageDriver) Init() error {
	exists, err := driver.Store.Exists()
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return driver.Store.Create(driver.Size)
}

func (driver *ImageDriver) Read(addr int64, p []byte) (int, error) {
	handle, err := driver.Store.Open()
	if err != nil {
		return 0, err
	}
	defer handle.Close()

	n, err := handle.ReadAt(p, addr)
	if err == io.EOF && n == len(p) {
		err = nil
	}
	if err != nil {
		return n, ioFailure("read image", err)
	}
	return n, nil
}

func (driver *ImageDriver) Write(addr int64, p []byte) (int, error) {
	handle, err := driver.Store.Open()
	if err != nil {
		return 0, err
	}

	n, err := handle.WriteAt(p, addr)
	closeErr := handle.Close()
	if err != nil {
		return n, ioFailure("write image", err)
	}
	if closeErr != nil {
		return n, ioFailure("close", closeErr)
	}
	return n, nil
}

// Registry is the set of areas known to a node, looked up by name.
type Registry struct {
	mu    sync.RWMutex
	areas map[string]*VMem
	log   logrus.FieldLogger
}

func NewRegistry(logger logrus.FieldLogger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		areas: make(map[string]*VMem),
		log:   logger,
	}
}

func (registry *Registry) Add(vmem *VMem) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if vmem.Name == "" {
		return fmt.Errorf("%w: area without a name", ErrInvalidConfig)
	}
	if _, ok := registry.areas[vmem.Name]; ok {
		return fmt.Errorf("%w: duplicate area %q", ErrInvalidConfig, vmem.Name)
	}
	registry.areas[vmem.Name] = vmem

	registry.log.WithFields(logrus.Fields{
		"area":   vmem.Name,
		"size":   vmem.Size,
		"record": vmem.IsRecordArea(),
	}).Debug("registered area")

	return nil
}

func (registry *Registry) Find(name string) (*VMem, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	vmem, ok := registry.areas[name]
	if !ok {
		return nil, fmt.Errorf("%w: no area named %q", ErrNotFound, name)
	}
	return vmem, nil
}

// List returns the registered areas sorted by name.
func (registry *Registry) List() []*VMem {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	list := make([]*VMem, 0, len(registry.areas))
	for _, vmem := range registry.areas {
		list = append(list, vmem)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
