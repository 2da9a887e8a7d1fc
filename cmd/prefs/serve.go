package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/masterkusok/mpprefs/internal/api"
	"github.com/masterkusok/mpprefs/internal/provider"
	"github.com/masterkusok/mpprefs/internal/raft"
	fsm "github.com/masterkusok/mpprefs/internal/raft/fsm"
	"github.com/masterkusok/mpprefs/internal/store"
)

const shutdownTimeout = 3 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the preference provider",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", "", "HTTP listen address")
	f.String("storage-driver", "", "Storage driver: memory or sqlite")
	f.String("storage-path", "", "SQLite settings file")
	f.Bool("raft", false, "Replicate writes through raft")
	f.String("local-id", "", "Raft node ID")
	f.String("raft-addr", "", "Raft server address")
	f.String("raft-dir", "", "Raft data directory")
	f.String("leader-addr", "", "Leader raft address for joining a cluster")
	f.String("leader-api-endpoint", "", "Leader API endpoint for joining a cluster")
}

// applyServeFlags lets explicitly set flags win over file and env.
func applyServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	str("addr", &cfg.Server.Addr)
	str("storage-driver", &cfg.Storage.Driver)
	str("storage-path", &cfg.Storage.Path)
	str("local-id", &cfg.Raft.LocalID)
	str("raft-addr", &cfg.Raft.RaftAddr)
	str("raft-dir", &cfg.Raft.RaftDir)
	str("leader-addr", &cfg.Raft.LeaderAddr)
	str("leader-api-endpoint", &cfg.Raft.LeaderApiEndpoint)
	if f.Changed("raft") {
		cfg.Raft.Enabled, _ = f.GetBool("raft")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	applyServeFlags(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	storage, err := store.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if closer, ok := storage.(io.Closer); ok {
		defer closer.Close()
	}
	logger.Info("storage opened", zap.String("driver", cfg.Storage.Driver), zap.String("path", cfg.Storage.Path))

	var (
		backend provider.Backend
		cluster api.Cluster
		node    *raft.Node
	)
	if cfg.Raft.Enabled {
		node = raft.NewNode(storage, fsm.New(storage, logger), cfg.Raft.LeaderApiEndpoint, cfg.Raft.LocalID, logger)
		if err := node.Open(cfg.Raft); err != nil {
			return fmt.Errorf("failed to start node: %w", err)
		}
		if cfg.Raft.LeaderAddr != "" {
			ctx, cancel := context.WithTimeout(cmd.Context(), shutdownTimeout)
			err := join(ctx, cfg.Raft.LeaderApiEndpoint, cfg.Raft.RaftAddr, cfg.Raft.LocalID)
			cancel()
			if err != nil {
				return fmt.Errorf("join cluster: %w", err)
			}
		}
		backend, cluster = node, node
	} else {
		backend = provider.NewStorageBackend(storage)
	}

	p := provider.New(backend, provider.NewHub(logger), logger)
	server := api.NewServer(p, cluster, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(cfg.Server.Addr)
	})
	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown api: %w", err)
		}
		if node != nil {
			if err := node.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to cleanup node: %w", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("provider stopped")
	return nil
}

func join(ctx context.Context, endpoint, addr, nodeID string) error {
	request := api.JoinRequest{
		Addr:   addr,
		NodeID: nodeID,
	}

	data, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal join request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/node", endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("do http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("join request failed with status %d", resp.StatusCode)
	}
	return nil
}
