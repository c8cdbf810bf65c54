package session

import (
	"context"
	"sync"
	"time"

	"github.com/aduan-desa/portal-server/internal/storage"
)

// Provider hands out one Manager per browser for a single Policy. The first
// request of a browser mounts its Manager and runs Bootstrap; requests that
// arrive while Bootstrap is running see Loading() == true.
type Provider struct {
	policy  Policy
	backend storage.Backend
	opts    Options

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewProvider creates a provider storing sessions in backend
func NewProvider(policy Policy, backend storage.Backend, opts Options) *Provider {
	return &Provider{
		policy:   policy,
		backend:  backend,
		opts:     opts.withDefaults(),
		managers: make(map[string]*Manager),
	}
}

// Policy returns the provider's policy.
func (p *Provider) Policy() Policy { return p.policy }

// Mount returns the Manager of clientID, creating and bootstrapping it on
// first use.
func (p *Provider) Mount(ctx context.Context, clientID string) *Manager {
	p.mu.Lock()
	if m, ok := p.managers[clientID]; ok {
		p.mu.Unlock()
		m.touch()
		return m
	}
	m := NewManager(p.policy, storage.ForClient(p.backend, clientID), p.opts)
	p.managers[clientID] = m
	p.mu.Unlock()

	if err := m.Bootstrap(ctx); err != nil {
		p.opts.Logger.Errorw("Session bootstrap failed", "variant", p.policy.Name, "error", err)
	}
	return m
}

// Peek returns the mounted Manager of clientID without creating one.
func (p *Provider) Peek(clientID string) (*Manager, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.managers[clientID]
	return m, ok
}

// Sweep unmounts managers idle for longer than maxIdle. An unmounted
// browser is bootstrapped again from storage on its next request.
func (p *Provider) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for id, m := range p.managers {
		if m.Loading() {
			continue
		}
		if m.idleSince().Before(cutoff) {
			delete(p.managers, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of mounted managers.
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.managers)
}

// RunJanitor sweeps idle managers every interval until ctx is done.
func (p *Provider) RunJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.Sweep(maxIdle); n > 0 {
				p.opts.Logger.Debugw("Unmounted idle sessions", "variant", p.policy.Name, "count", n)
			}
		}
	}
}
