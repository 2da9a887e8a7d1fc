package prefs

import (
	"go.uber.org/zap"

	"github.com/masterkusok/mpprefs/internal/provider"
	"github.com/masterkusok/mpprefs/internal/value"
)

type edit struct {
	key    string
	val    value.Value
	remove bool
}

// Editor stages writes until Commit. It is not safe for concurrent use.
type Editor struct {
	prefs *Preferences
	clear bool
	edits []edit
}

func (e *Editor) Put(key string, v value.Value) *Editor {
	e.edits = append(e.edits, edit{key: key, val: v})
	return e
}

func (e *Editor) PutBool(key string, v bool) *Editor       { return e.Put(key, value.Bool(v)) }
func (e *Editor) PutInt(key string, v int) *Editor         { return e.Put(key, value.Int64(int64(v))) }
func (e *Editor) PutInt64(key string, v int64) *Editor     { return e.Put(key, value.Int64(v)) }
func (e *Editor) PutFloat64(key string, v float64) *Editor { return e.Put(key, value.Float64(v)) }
func (e *Editor) PutString(key string, v string) *Editor   { return e.Put(key, value.String(v)) }

func (e *Editor) PutStringSet(key string, v value.Set) *Editor {
	return e.Put(key, value.StringSetOf(v))
}

// Remove stages the deletion of key.
func (e *Editor) Remove(key string) *Editor {
	e.edits = append(e.edits, edit{key: key, remove: true})
	return e
}

// Clear stages the removal of every preference. At commit the clear runs
// before all other staged edits, wherever it was called.
func (e *Editor) Clear() *Editor {
	e.clear = true
	return e
}

// Commit sends the staged edits to the provider in order: the clear, then
// one update per written key and one delete per removed key. It stops at
// the first failure and reports false. A value of Invalid kind panics.
// The editor is empty afterwards either way.
func (e *Editor) Commit() bool {
	p := e.prefs
	clearAll, edits := e.clear, e.edits
	e.clear, e.edits = false, nil

	ctx, cancel := p.withTimeout()
	defer cancel()

	if clearAll {
		if _, err := p.resolver.Delete(ctx, provider.CollectionURI()); err != nil {
			p.logger.Error("clear preferences", zap.Error(err))
			return false
		}
	}

	for _, ed := range edits {
		uri := provider.ItemURI(ed.key)
		if ed.remove {
			if _, err := p.resolver.Delete(ctx, uri); err != nil {
				p.logger.Error("remove preference", zap.String("key", ed.key), zap.Error(err))
				return false
			}
			continue
		}

		cv := value.ContentValues{Key: ed.key, Value: value.FieldOf(ed.val)}
		if _, err := p.resolver.Update(ctx, uri, cv); err != nil {
			p.logger.Error("write preference", zap.String("key", ed.key), zap.Error(err))
			return false
		}
	}
	return true
}

// Apply commits and discards the result. It still returns only after the
// provider has the writes, so later reads in this process observe them.
func (e *Editor) Apply() {
	_ = e.Commit()
}
