// Package clinic holds clinic-level settings that can change at runtime.
package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/slots"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

const hoursKey = "clinic:hours"

// Store persists the operating-hours override.
type Store struct {
	redis *redis.Client
}

// NewStore creates an hours store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

// Get returns the stored block specs. ok is false when no override exists.
func (s *Store) Get(ctx context.Context) ([]string, bool, error) {
	data, err := s.redis.Get(ctx, hoursKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("clinic: get hours: %w", err)
	}
	var specs []string
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, false, fmt.Errorf("clinic: unmarshal hours: %w", err)
	}
	return specs, true, nil
}

// Set saves the block specs.
func (s *Store) Set(ctx context.Context, specs []string) error {
	data, err := json.Marshal(specs)
	if err != nil {
		return fmt.Errorf("clinic: marshal hours: %w", err)
	}
	if err := s.redis.Set(ctx, hoursKey, data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set hours: %w", err)
	}
	return nil
}

// Delete removes the override.
func (s *Store) Delete(ctx context.Context) error {
	if err := s.redis.Del(ctx, hoursKey).Err(); err != nil {
		return fmt.Errorf("clinic: delete hours: %w", err)
	}
	return nil
}

// Hours applies operating-hours overrides to the slot calculator. Without a
// store, overrides last until the process exits.
type Hours struct {
	mu       sync.Mutex
	store    *Store
	calc     *slots.Calculator
	defaults []string
	override bool
	logger   *logging.Logger
}

// NewHours wires the calculator to an optional store. defaults are the
// configured blocks restored by Reset.
func NewHours(store *Store, calc *slots.Calculator, defaults []string, logger *logging.Logger) *Hours {
	if calc == nil {
		panic("clinic: calculator cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Hours{store: store, calc: calc, defaults: defaults, logger: logger}
}

// Load applies a stored override, if any.
func (h *Hours) Load(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	specs, ok, err := h.store.Get(ctx)
	if err != nil || !ok {
		return err
	}
	blocks, err := slots.ParseBlocks(specs)
	if err != nil {
		return fmt.Errorf("clinic: stored hours: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.calc.SetBlocks(blocks); err != nil {
		return err
	}
	h.override = true
	h.logger.Info("operating hours override loaded", "blocks", specs)
	return nil
}

// Current returns the active block specs and whether they are an override.
func (h *Hours) Current() ([]string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return specsOf(h.calc.Blocks()), h.override
}

// Update validates, stores and applies new block specs.
func (h *Hours) Update(ctx context.Context, specs []string) ([]string, error) {
	blocks, err := slots.ParseBlocks(specs)
	if err != nil {
		return nil, err
	}
	normalized := specsOf(blocks)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.store != nil {
		if err := h.store.Set(ctx, normalized); err != nil {
			return nil, err
		}
	}
	if err := h.calc.SetBlocks(blocks); err != nil {
		return nil, err
	}
	h.override = true
	h.logger.Info("operating hours updated", "blocks", normalized)
	return normalized, nil
}

// Reset drops the override and restores the configured hours.
func (h *Hours) Reset(ctx context.Context) ([]string, error) {
	blocks, err := slots.ParseBlocks(h.defaults)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.store != nil {
		if err := h.store.Delete(ctx); err != nil {
			return nil, err
		}
	}
	if err := h.calc.SetBlocks(blocks); err != nil {
		return nil, err
	}
	h.override = false
	h.logger.Info("operating hours reset to defaults")
	return specsOf(blocks), nil
}

func specsOf(blocks []slots.Block) []string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.String())
	}
	return out
}
