// Package settings holds the runtime switches operators can flip per engine
// (enabled, upstream endpoint) and persists them across restarts.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"metasearch/searchservice/internal/domain"
)

var (
	ErrUnknownEngine           = errors.New("unknown engine")
	ErrEndpointNotConfigurable = errors.New("engine endpoint is not configurable")
)

type Engine interface {
	Name() string
	Info() domain.EngineInfo
}

// EndpointSetter is implemented by engines whose upstream can be moved at runtime.
type EndpointSetter interface {
	Endpoint() string
	SetEndpoint(endpoint string) error
}

type Manager struct {
	engines map[string]Engine
	store   Store
	logger  *slog.Logger

	mu     sync.RWMutex
	states map[string]EngineState
}

// NewManager registers engines and restores persisted settings from store.
func NewManager(store Store, logger *slog.Logger, engines ...Engine) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	registry := make(map[string]Engine, len(engines))
	for _, engine := range engines {
		if engine == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(engine.Name()))
		if name != "" {
			registry[name] = engine
		}
	}
	m := &Manager{
		engines: registry,
		store:   store,
		logger:  logger,
		states:  make(map[string]EngineState),
	}
	m.restore()
	return m
}

func (m *Manager) restore() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	entries, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("engine settings restore failed", slog.String("error", err.Error()))
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, state := range entries {
		engine := m.engines[name]
		if engine == nil {
			continue
		}
		if state.Endpoint != "" {
			setter, ok := engine.(EndpointSetter)
			if !ok || setter.SetEndpoint(state.Endpoint) != nil {
				state.Endpoint = ""
			}
		}
		m.states[name] = state
	}
}

// Enabled reports whether the engine may be queried. Unknown engines are
// reported enabled; registration is checked elsewhere.
func (m *Manager) Enabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.states[strings.ToLower(strings.TrimSpace(name))].Disabled
}

func (m *Manager) List() []domain.EngineRuntimeConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]domain.EngineRuntimeConfig, 0, len(m.engines))
	for name, engine := range m.engines {
		items = append(items, m.describeLocked(name, engine))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

func (m *Manager) describeLocked(name string, engine Engine) domain.EngineRuntimeConfig {
	info := engine.Info()
	label := info.Label
	if label == "" {
		label = name
	}
	item := domain.EngineRuntimeConfig{
		Name:    name,
		Label:   label,
		Enabled: !m.states[name].Disabled,
	}
	if setter, ok := engine.(EndpointSetter); ok {
		item.Endpoint = setter.Endpoint()
	}
	return item
}

// Update applies a patch, persists it and returns the resulting settings.
func (m *Manager) Update(ctx context.Context, patch domain.EngineRuntimePatch) (domain.EngineRuntimeConfig, error) {
	name := strings.ToLower(strings.TrimSpace(patch.Name))

	m.mu.Lock()
	defer m.mu.Unlock()

	engine := m.engines[name]
	if engine == nil {
		return domain.EngineRuntimeConfig{}, fmt.Errorf("%w: %s", ErrUnknownEngine, patch.Name)
	}
	state := m.states[name]

	if patch.Endpoint != nil {
		setter, ok := engine.(EndpointSetter)
		if !ok {
			return domain.EngineRuntimeConfig{}, fmt.Errorf("%w: %s", ErrEndpointNotConfigurable, name)
		}
		endpoint := strings.TrimSpace(*patch.Endpoint)
		if err := setter.SetEndpoint(endpoint); err != nil {
			return domain.EngineRuntimeConfig{}, err
		}
		state.Endpoint = endpoint
	}
	if patch.Enabled != nil {
		state.Disabled = !*patch.Enabled
	}

	if err := m.store.Save(ctx, name, state); err != nil {
		m.logger.Warn("engine settings persist failed",
			slog.String("engine", name),
			slog.String("error", err.Error()),
		)
	}
	m.states[name] = state
	m.logger.Info("engine settings updated",
		slog.String("engine", name),
		slog.Bool("enabled", !state.Disabled),
		slog.String("endpoint", state.Endpoint),
	)
	return m.describeLocked(name, engine), nil
}
