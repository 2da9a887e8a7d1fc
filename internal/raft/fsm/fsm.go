package raft

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
	"go.uber.org/zap"

	"github.com/masterkusok/mpprefs/internal/command"
	"github.com/masterkusok/mpprefs/internal/store"
)

// AppliedFunc is called after each command is applied on this node,
// leader or follower.
type AppliedFunc func(cmd command.Command, origin string)

type FSM struct {
	storage store.Storage
	logger  *zap.Logger

	mu      sync.RWMutex
	applied []AppliedFunc
}

func New(storage store.Storage, logger *zap.Logger) *FSM {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FSM{
		storage: storage,
		logger:  logger,
	}
}

func (f *FSM) OnApplied(fn AppliedFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, fn)
}

// Apply responds with the number of preferences the command affected, or
// with the apply error.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var env command.Envelope
	if err := json.Unmarshal(log.Data, &env); err != nil {
		f.logger.Error("unmarshal command", zap.Uint64("index", log.Index), zap.Error(err))
		return fmt.Errorf("unmarshal command: %w", err)
	}

	n, err := env.Command.Apply(f.storage)
	if err != nil {
		f.logger.Error("execute command",
			zap.Uint64("index", log.Index),
			zap.String("action", string(env.Command.Action)),
			zap.String("key", env.Command.Key),
			zap.Error(err))
		return err
	}

	f.mu.RLock()
	hooks := f.applied
	f.mu.RUnlock()
	for _, fn := range hooks {
		fn(env.Command, env.Origin)
	}
	return n
}

func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	data, err := f.storage.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("read storage snapshot: %w", err)
	}
	return &snapshot{
		Data: data,
	}, nil
}

func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read snapshot data: %w", err)
	}

	var snapshot snapshot
	if err := json.Unmarshal(data, &snapshot.Data); err != nil {
		return fmt.Errorf("unmarshal snapshot data: %w", err)
	}
	if err := f.storage.ApplySnapshot(snapshot.Data); err != nil {
		return fmt.Errorf("apply snapshot: %w", err)
	}
	return nil
}
