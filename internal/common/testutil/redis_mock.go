// Package testutil provides testing utilities for the optimizer service
package testutil

import (
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/optirole/optirole/internal/common/database"
)

// MockRedis manages a miniredis instance for testing
type MockRedis struct {
	mini   *miniredis.Miniredis
	client *redis.Client
}

// NewMockRedis starts a miniredis instance and returns a client wired to it
func NewMockRedis() (*MockRedis, error) {
	mini, err := miniredis.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start miniredis: %w", err)
	}

	return &MockRedis{
		mini:   mini,
		client: redis.NewClient(&redis.Options{Addr: mini.Addr()}),
	}, nil
}

// Client returns the wrapped client as a database.RedisClient
func (m *MockRedis) Client() *database.RedisClient {
	return &database.RedisClient{Client: m.client}
}

// Mini exposes the underlying miniredis for assertions and fast-forwarding TTLs
func (m *MockRedis) Mini() *miniredis.Miniredis {
	return m.mini
}

// Close shuts down the client and the miniredis instance
func (m *MockRedis) Close() {
	if m.client != nil {
		_ = m.client.Close()
	}
	if m.mini != nil {
		m.mini.Close()
	}
}
