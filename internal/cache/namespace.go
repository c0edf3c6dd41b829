package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const generationTTL = 7 * 24 * time.Hour

// Namespace groups related keys so that all of them can be invalidated at once.
// Invalidation rotates a generation token; entries written under an older
// generation become unreachable and age out on their own TTL.
type Namespace struct {
	provider Provider
	name     string
}

func NewNamespace(provider Provider, name string) *Namespace {
	return &Namespace{provider: provider, name: name}
}

// Snapshot pins the current generation. Reads and writes made through the
// snapshot stay on that generation, so a value computed before an Invalidate
// is never stored where readers after the Invalidate can see it.
func (n *Namespace) Snapshot(ctx context.Context) (*Snapshot, error) {
	gen, err := n.generation(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{ns: n, gen: gen}, nil
}

func (n *Namespace) Invalidate(ctx context.Context) error {
	if err := n.provider.Set(ctx, n.generationKey(), uuid.NewString(), generationTTL); err != nil {
		return fmt.Errorf("failed to invalidate %s cache: %w", n.name, err)
	}
	return nil
}

func (n *Namespace) generation(ctx context.Context) (string, error) {
	gen, err := n.provider.Get(ctx, n.generationKey())
	if err == nil {
		return gen, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	candidate := uuid.NewString()
	stored, err := n.provider.SetIfAbsent(ctx, n.generationKey(), candidate, generationTTL)
	if err != nil {
		return "", err
	}
	if stored {
		return candidate, nil
	}
	return n.provider.Get(ctx, n.generationKey())
}

func (n *Namespace) generationKey() string {
	return "ns:" + n.name + ":gen"
}

func (n *Namespace) key(gen, key string) string {
	return "ns:" + n.name + ":" + gen + ":" + key
}

// Snapshot is a view of a Namespace at one generation.
type Snapshot struct {
	ns  *Namespace
	gen string
}

func (s *Snapshot) Get(ctx context.Context, key string) (string, error) {
	return s.ns.provider.Get(ctx, s.ns.key(s.gen, key))
}

func (s *Snapshot) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.ns.provider.Set(ctx, s.ns.key(s.gen, key), value, ttl)
}

func (s *Snapshot) GetJSON(ctx context.Context, key string, dst any) error {
	return GetJSON(ctx, s.ns.provider, s.ns.key(s.gen, key), dst)
}

func (s *Snapshot) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	return SetJSON(ctx, s.ns.provider, s.ns.key(s.gen, key), value, ttl)
}
