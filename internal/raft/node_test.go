package raft

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masterkusok/mpprefs/internal/command"
	fsm "github.com/masterkusok/mpprefs/internal/raft/fsm"
	"github.com/masterkusok/mpprefs/internal/store"
	"github.com/masterkusok/mpprefs/internal/value"
)

func TestSingleNodeApply(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a raft node")
	}

	storage := store.NewInMemoryStorage()
	machine := fsm.New(storage, nil)
	node := NewNode(storage, machine, "", "node-1", nil)

	cfg := DefaultConfig()
	cfg.RaftAddr = "127.0.0.1:0"
	cfg.RaftDir = t.TempDir()
	require.NoError(t, node.Open(cfg))
	defer func() {
		require.NoError(t, node.Shutdown(context.Background()))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, node.WaitForLeader(ctx))
	require.Eventually(t, node.IsLeader, 5*time.Second, 20*time.Millisecond)

	applied := make(chan string, 4)
	node.OnApplied(func(cmd command.Command, origin string) {
		applied <- origin + "/" + cmd.Key
	})

	n, err := node.Apply(command.NewPutCommand("volume", value.Int64(7)), "proc-a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "proc-a/volume", <-applied)

	got, err := node.Get("volume")
	require.NoError(t, err)
	assert.True(t, value.Int64(7).Equal(got))

	snap, err := node.GetSnapshot()
	require.NoError(t, err)
	assert.Len(t, snap, 1)

	n, err = node.Apply(command.NewDeleteCommand("missing"), "proc-a")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	<-applied

	n, err = node.Apply(command.NewClearCommand(), "proc-a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	<-applied
}
