package vmem_go

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/sugawarayuuta/sonnet"
)

const (
	AreaTypeRing  = "ring"
	AreaTypeImage = "image"

	StoreFile   = "file"
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// AreaConfig declares one VMem area.
type AreaConfig struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Store   string `json:"store,omitempty"`
	Path    string `json:"path,omitempty"`
	Size    uint32 `json:"size"`
	Entries uint32 `json:"entries,omitempty"`
}

// Config lists the areas of a node.
type Config struct {
	Areas []AreaConfig `json:"areas"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := sonnet.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// Build creates, initializes and registers every area.
func (cfg *Config) Build(logger logrus.FieldLogger) (*Registry, error) {
	registry := NewRegistry(logger)
	for _, area := range cfg.Areas {
		vmem, err := area.Build(logger)
		if err != nil {
			return nil, err
		}
		if err := registry.Add(vmem); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (area AreaConfig) backingStore() (BackingStore, error) {
	switch area.Store {
	case StoreFile, "":
		if area.Path == "" {
			return nil, fmt.Errorf("%w: area %q needs a path", ErrInvalidConfig, area.Name)
		}
		return NewFileStore(area.Path), nil
	case StoreMemory:
		return NewMemoryStore(), nil
	case StoreSQLite:
		if area.Path == "" {
			return nil, fmt.Errorf("%w: area %q needs a path", ErrInvalidConfig, area.Name)
		}
		return NewSQLiteStore(area.Path, area.Name), nil
	default:
		return nil, fmt.Errorf("%w: area %q has unknown store %q", ErrInvalidConfig, area.Name, area.Store)
	}
}

// Build creates the area's driver and initializes it.
func (area AreaConfig) Build(logger logrus.FieldLogger) (*VMem, error) {
	store, err := area.backingStore()
	if err != nil {
		return nil, err
	}

	switch area.Type {
	case AreaTypeRing:
		ring, err := NewRing(RingConfig{
			Name:     area.Name,
			DataSize: area.Size,
			Entries:  area.Entries,
			Store:    store,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return NewVMem(area.Name, ring.HeaderSize()+int64(area.Size), ring), nil

	case AreaTypeImage, "":
		if area.Size == 0 {
			return nil, fmt.Errorf("%w: area %q has no size", ErrInvalidConfig, area.Name)
		}
		driver := &ImageDriver{Store: store, Size: int64(area.Size)}
		if err := driver.Init(); err != nil {
			return nil, err
		}
		return NewVMem(area.Name, int64(area.Size), driver), nil

	default:
		return nil, fmt.Errorf("%w: area %q has unknown type %q", ErrInvalidConfig, area.Name, area.Type)
	}
}
