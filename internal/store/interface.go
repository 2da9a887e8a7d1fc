package store

import (
	"errors"
	"fmt"

	"github.com/masterkusok/mpprefs/internal/value"
)

var ErrKeyNotFound = errors.New("key not found")

type Storage interface {
	Set(key string, val value.Value) error
	Get(key string) (value.Value, error)
	// Delete reports whether key existed. Clear returns how many keys it
	// removed.
	Delete(key string) (bool, error)
	Clear() (int, error)

	GetSnapshot() (map[string]value.Value, error)
	ApplySnapshot(data map[string]value.Value) error
}

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Open returns the storage backend named by driver. path is only used by
// file-backed drivers.
func Open(driver, path string) (Storage, error) {
	switch driver {
	case DriverMemory, "":
		return NewInMemoryStorage(), nil
	case DriverSQLite:
		return OpenSQLite(path)
	}
	return nil, fmt.Errorf("unknown storage driver %q", driver)
}
