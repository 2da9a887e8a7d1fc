package command

import (
	"fmt"

	"github.com/masterkusok/mpprefs/internal/value"
)

type Action string

const (
	PutAction    Action = "put"
	DeleteAction Action = "delete"
	ClearAction  Action = "clear"
)

type Command struct {
	Action Action       `json:"action"`
	Key    string       `json:"key,omitempty"`
	Value  *value.Value `json:"value,omitempty"`
}

func NewPutCommand(key string, val value.Value) Command {
	return Command{
		Action: PutAction,
		Key:    key,
		Value:  &val,
	}
}

func NewDeleteCommand(key string) Command {
	return Command{
		Action: DeleteAction,
		Key:    key,
	}
}

func NewClearCommand() Command {
	return Command{
		Action: ClearAction,
	}
}

// Mutator is the write half of a storage backend.
type Mutator interface {
	Set(key string, val value.Value) error
	Delete(key string) (bool, error)
	Clear() (int, error)
}

// Apply runs c against m and returns how many preferences it affected: 1
// for a put, 1 or 0 for a delete depending on whether the key existed, and
// the number removed for a clear.
func (c Command) Apply(m Mutator) (int, error) {
	switch c.Action {
	case PutAction:
		if c.Value == nil {
			return 0, fmt.Errorf("put %q: missing value", c.Key)
		}
		if err := m.Set(c.Key, *c.Value); err != nil {
			return 0, fmt.Errorf("set value: %w", err)
		}
		return 1, nil
	case DeleteAction:
		existed, err := m.Delete(c.Key)
		if err != nil {
			return 0, fmt.Errorf("delete key: %w", err)
		}
		if existed {
			return 1, nil
		}
		return 0, nil
	case ClearAction:
		n, err := m.Clear()
		if err != nil {
			return 0, fmt.Errorf("clear: %w", err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("unknown action %q", c.Action)
}
