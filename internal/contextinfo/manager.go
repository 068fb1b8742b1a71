/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package contextinfo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/friendsincode/grimnir_voice/internal/telemetry"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 500 * time.Millisecond

// ContextType separates device-wide state from per-capability state.
type ContextType string

const (
	ContextClient     ContextType = "client"
	ContextCapability ContextType = "capability"
)

// Info is one piece of device context.
type Info struct {
	ContextType ContextType `json:"context_type"`
	Name        string      `json:"name"`
	Payload     any         `json:"payload"`
}

// Provider reports the current context of one component. Returning a nil
// Info leaves the component out.
type Provider func(ctx context.Context) (*Info, error)

// Manager collects device context from registered providers.
type Manager struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu        sync.RWMutex
	providers map[string]Provider
}

// NewManager creates an empty manager. A non-positive timeout uses DefaultTimeout.
func NewManager(timeout time.Duration, logger zerolog.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		timeout:   timeout,
		logger:    logger.With().Str("component", "context_manager").Logger(),
		providers: make(map[string]Provider),
	}
}

// AddProvider registers p under name, replacing any previous provider.
func (m *Manager) AddProvider(name string, p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[name] = p
}

// RemoveProvider unregisters name.
func (m *Manager) RemoveProvider(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.providers, name)
}

// Providers lists registered provider names in sorted order.
func (m *Manager) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Contexts asks every provider concurrently. Providers that fail, time out
// or return nil are skipped. The result is sorted by name.
//
// When namespace is not empty, capability contexts other than namespace are
// trimmed to their "version" field.
func (m *Manager) Contexts(ctx context.Context, namespace string) ([]Info, error) {
	m.mu.RLock()
	providers := make(map[string]Provider, len(m.providers))
	for name, p := range m.providers {
		providers[name] = p
	}
	m.mu.RUnlock()

	var (
		mu    sync.Mutex
		infos []Info
	)
	g, gctx := errgroup.WithContext(ctx)
	for name, p := range providers {
		name, p := name, p
		g.Go(func() error {
			info, err := m.call(gctx, name, p)
			if err != nil {
				telemetry.ContextProviderErrors.WithLabelValues(name).Inc()
				m.logger.Warn().Err(err).Str("provider", name).Msg("context provider failed")
				return nil
			}
			if info == nil {
				return nil
			}
			mu.Lock()
			infos = append(infos, *info)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("gather contexts: %w", err)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	if namespace != "" {
		for i, info := range infos {
			if info.ContextType == ContextCapability && info.Name != namespace {
				infos[i].Payload = versionOnly(info.Payload)
			}
		}
	}
	return infos, nil
}

// Payload builds the context document sent along with an event.
func (m *Manager) Payload(ctx context.Context, namespace string) (map[string]any, error) {
	infos, err := m.Contexts(ctx, namespace)
	if err != nil {
		return nil, err
	}

	client := make(map[string]any)
	interfaces := make(map[string]any)
	for _, info := range infos {
		switch info.ContextType {
		case ContextClient:
			client[info.Name] = info.Payload
		default:
			interfaces[info.Name] = info.Payload
		}
	}
	return map[string]any{
		"client":              client,
		"supportedInterfaces": interfaces,
	}, nil
}

func (m *Manager) call(ctx context.Context, name string, p Provider) (info *Info, err error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	type result struct {
		info *Info
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("provider %s panic: %v", name, r)}
			}
		}()
		info, err := p(ctx)
		done <- result{info: info, err: err}
	}()

	select {
	case r := <-done:
		return r.info, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("provider %s: %w", name, ctx.Err())
	}
}

func versionOnly(payload any) any {
	m, ok := payload.(map[string]any)
	if !ok {
		return payload
	}
	out := make(map[string]any, 1)
	if v, ok := m["version"]; ok {
		out["version"] = v
	}
	return out
}
