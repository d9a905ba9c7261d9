// Package cache mirrors the latest engine state into Redis so dashboards and
// sibling services can read it without hitting the engine's API.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/aurumlabs/goldwatch/internal/engine"
)

const (
	stateKey = "goldwatch:state"
	stateTTL = 10 * time.Minute
)

// Mirror writes every engine state change to a Redis key with a TTL.
type Mirror struct {
	client *redis.Client
	engine *engine.Engine
}

func NewMirror(addr, password string, db int, eng *engine.Engine) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	log.Info().Str("addr", addr).Msg("redis state mirror connected")
	return &Mirror{client: client, engine: eng}, nil
}

// Run consumes state updates until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) {
	states, cancel := m.engine.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			m.client.Close()
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			m.write(ctx, st)
		}
	}
}

func (m *Mirror) write(ctx context.Context, st engine.State) {
	data, err := json.Marshal(st)
	if err != nil {
		log.Error().Err(err).Msg("state marshal failed")
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.client.Set(wctx, stateKey, data, stateTTL).Err(); err != nil {
		log.Warn().Err(err).Msg("redis state write failed")
	}
}
