package raft

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/raft"

	"github.com/masterkusok/mpprefs/internal/value"
)

type snapshot struct {
	Data map[string]value.Value
}

// Persist writes the typed map as a JSON object of tagged values.
func (s *snapshot) Persist(sink raft.SnapshotSink) error {
	var err error
	defer func() {
		if err != nil {
			sink.Cancel()
		}
	}()

	data, err := json.Marshal(s.Data)
	if err != nil {
		return fmt.Errorf("marshal snapshot data: %w", err)
	}

	if _, err = sink.Write(data); err != nil {
		return fmt.Errorf("write data to sink: %w", err)
	}

	if err = sink.Close(); err != nil {
		return fmt.Errorf("close sink: %w", err)
	}
	return nil
}

func (s *snapshot) Release() {}
