package raft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/raft"
	"go.uber.org/zap"

	"github.com/masterkusok/mpprefs/internal/command"
	fsm "github.com/masterkusok/mpprefs/internal/raft/fsm"
	"github.com/masterkusok/mpprefs/internal/store"
	"github.com/masterkusok/mpprefs/internal/value"
)

const (
	raftTimeout = time.Second * 3
)

var ErrNotLeader = errors.New("node is not the raft leader")

// Node replicates preference writes through a raft log. Reads are served
// from the local storage replica.
type Node struct {
	fsm     *fsm.FSM
	storage store.Storage
	raft    *raft.Raft
	logger  *zap.Logger

	nodeID       string
	leaderAPIUrl string
}

func NewNode(storage store.Storage, fsm *fsm.FSM, leaderUrl, nodeID string, logger *zap.Logger) *Node {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Node{
		storage:      storage,
		fsm:          fsm,
		leaderAPIUrl: leaderUrl,
		nodeID:       nodeID,
		logger:       logger.Named("raft"),
	}
}

func (n *Node) Open(config Config) error {
	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(config.LocalID)

	addr, err := net.ResolveTCPAddr("tcp", config.RaftAddr)
	if err != nil {
		return fmt.Errorf("resolve raft address: %w", err)
	}

	transport, err := raft.NewTCPTransport(config.RaftAddr, addr, config.MaxPool, config.Timeout, os.Stderr)
	if err != nil {
		return fmt.Errorf("open tcp transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(config.RaftDir, config.SnapshotRetainCount, os.Stderr)
	if err != nil {
		return fmt.Errorf("file snapshot store: %w", err)
	}

	logStore := raft.NewInmemStore()
	stableStore := raft.NewInmemStore()

	r, err := raft.NewRaft(cfg, n.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("create raft: %w", err)
	}

	n.raft = r

	future := r.GetConfiguration()
	if err := future.Error(); err != nil {
		return fmt.Errorf("get cluster configuration: %w", err)
	}

	if len(future.Configuration().Servers) != 0 || config.LeaderAddr != "" {
		return nil
	}

	if err := n.bootstrapCluster(config.LocalID, transport.LocalAddr()); err != nil {
		return fmt.Errorf("bootstrap cluster: %w", err)
	}
	n.logger.Info("bootstrapped single node cluster", zap.String("id", config.LocalID))
	return nil
}

func (n *Node) bootstrapCluster(nodeID string, addr raft.ServerAddress) error {
	configuration := raft.Configuration{
		Servers: []raft.Server{
			{
				ID:      raft.ServerID(nodeID),
				Address: addr,
			},
		},
	}
	return n.raft.BootstrapCluster(configuration).Error()
}

// WaitForLeader blocks until the cluster has elected a leader or ctx ends.
func (n *Node) WaitForLeader(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if addr, _ := n.raft.LeaderWithID(); addr != "" {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for leader: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (n *Node) Join(nodeID, addr string) error {
	configFuture := n.raft.GetConfiguration()
	if err := configFuture.Error(); err != nil {
		return fmt.Errorf("get raft configuration: %w", err)
	}

	for _, server := range configFuture.Configuration().Servers {
		if server.ID == raft.ServerID(nodeID) || server.Address == raft.ServerAddress(addr) {
			if server.Address == raft.ServerAddress(addr) && server.ID == raft.ServerID(nodeID) {
				return nil
			}

			future := n.raft.RemoveServer(server.ID, 0, 0)
			if err := future.Error(); err != nil {
				return fmt.Errorf("remove existing node %s at %s: %w", nodeID, addr, err)
			}
		}
	}

	if err := n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 0).Error(); err != nil {
		return fmt.Errorf("add voter %s: %w", nodeID, err)
	}
	n.logger.Info("node joined", zap.String("id", nodeID), zap.String("addr", addr))
	return nil
}

func (n *Node) Get(key string) (value.Value, error) {
	val, err := n.storage.Get(key)
	if err != nil {
		return value.Value{}, fmt.Errorf("get key '%s': %w", key, err)
	}
	return val, nil
}

func (n *Node) GetSnapshot() (map[string]value.Value, error) {
	return n.storage.GetSnapshot()
}

// Apply replicates cmd, waits until it is applied on this node and returns
// the number of preferences it affected.
func (n *Node) Apply(cmd command.Command, origin string) (int, error) {
	if !n.IsLeader() {
		return 0, ErrNotLeader
	}

	marshaled, err := json.Marshal(command.Envelope{Origin: origin, Command: cmd})
	if err != nil {
		return 0, fmt.Errorf("marshal command: %w", err)
	}

	future := n.raft.Apply(marshaled, raftTimeout)
	if err = future.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) {
			return 0, ErrNotLeader
		}
		return 0, fmt.Errorf("call apply: %w", err)
	}
	switch resp := future.Response().(type) {
	case error:
		return 0, fmt.Errorf("apply command: %w", resp)
	case int:
		return resp, nil
	}
	return 0, nil
}

// OnApplied forwards every applied command, including those replicated
// from the leader, to fn.
func (n *Node) OnApplied(fn func(cmd command.Command, origin string)) {
	n.fsm.OnApplied(fn)
}

func (n *Node) IsLeader() bool {
	return n.raft.State() == raft.Leader
}

func (n *Node) Shutdown(ctx context.Context) error {
	if n.IsLeader() && n.hasPeers() {
		if err := n.raft.LeadershipTransfer().Error(); err != nil {
			return fmt.Errorf("transfer leadership: %w", err)
		}
	}

	if n.leaderAPIUrl != "" {
		if err := n.removeNode(ctx); err != nil {
			return fmt.Errorf("remove node: %w", err)
		}
	}

	if err := n.raft.Shutdown().Error(); err != nil {
		return fmt.Errorf("shutdown raft node: %w", err)
	}
	return nil
}

func (n *Node) hasPeers() bool {
	future := n.raft.GetConfiguration()
	if future.Error() != nil {
		return false
	}
	return len(future.Configuration().Servers) > 1
}

func (n *Node) removeNode(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/v1/node/%s", n.leaderAPIUrl, n.nodeID)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("send delete request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remove node: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (n *Node) RemoveNodeFromCluster(nodeID string) error {
	if n.raft.State() != raft.Leader {
		return ErrNotLeader
	}

	if err := n.raft.RemoveServer(raft.ServerID(nodeID), 0, 0).Error(); err != nil {
		return fmt.Errorf("remove server: %w", err)
	}
	n.logger.Info("node removed", zap.String("id", nodeID))
	return nil
}
