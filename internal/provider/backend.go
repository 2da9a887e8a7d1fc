package provider

import (
	"sync"

	"github.com/masterkusok/mpprefs/internal/command"
	"github.com/masterkusok/mpprefs/internal/store"
	"github.com/masterkusok/mpprefs/internal/value"
)

// Backend is the durable side of the provider. Apply returns the number
// of preferences a command affected, counted atomically with the write,
// and reports every applied command through the OnApplied hooks, which is
// where change notifications originate.
type Backend interface {
	Get(key string) (value.Value, error)
	GetSnapshot() (map[string]value.Value, error)
	Apply(cmd command.Command, origin string) (int, error)
	OnApplied(fn func(cmd command.Command, origin string))
}

// StorageBackend applies commands straight to a local storage. Commits
// are serialised so each one runs against a stable view.
type StorageBackend struct {
	storage store.Storage

	mu    sync.Mutex
	hooks []func(cmd command.Command, origin string)
}

func NewStorageBackend(storage store.Storage) *StorageBackend {
	return &StorageBackend{storage: storage}
}

func (b *StorageBackend) Get(key string) (value.Value, error) {
	return b.storage.Get(key)
}

func (b *StorageBackend) GetSnapshot() (map[string]value.Value, error) {
	return b.storage.GetSnapshot()
}

func (b *StorageBackend) Apply(cmd command.Command, origin string) (int, error) {
	b.mu.Lock()
	n, err := cmd.Apply(b.storage)
	hooks := b.hooks
	b.mu.Unlock()
	if err != nil {
		return 0, err
	}

	for _, fn := range hooks {
		fn(cmd, origin)
	}
	return n, nil
}

func (b *StorageBackend) OnApplied(fn func(cmd command.Command, origin string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, fn)
}
