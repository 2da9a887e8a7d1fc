package raft

import "time"

type Config struct {
	Enabled             bool          `yaml:"enabled" env:"ENABLED"`
	LocalID             string        `yaml:"local-id" env:"LOCAL_ID"`
	RaftAddr            string        `yaml:"raft-addr" env:"ADDR"`
	RaftDir             string        `yaml:"raft-dir" env:"DIR"`
	LeaderAddr          string        `yaml:"leader-addr,omitempty" env:"LEADER_ADDR"`
	LeaderApiEndpoint   string        `yaml:"leader-api-endpoint" env:"LEADER_API_ENDPOINT"`
	MaxPool             int           `yaml:"max-pool" env:"MAX_POOL"`
	Timeout             time.Duration `yaml:"timeout" env:"TIMEOUT"`
	SnapshotRetainCount int           `yaml:"snapshot-retain-count" env:"SNAPSHOT_RETAIN"`
}

func DefaultConfig() Config {
	return Config{
		LocalID:             "node-1",
		RaftAddr:            "localhost:8081",
		RaftDir:             "temp/",
		MaxPool:             3,
		Timeout:             3 * time.Second,
		SnapshotRetainCount: 2,
	}
}
