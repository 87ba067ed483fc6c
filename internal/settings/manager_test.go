package settings

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"metasearch/searchservice/internal/domain"
)

type fakeEngine struct {
	name string
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Info() domain.EngineInfo {
	return domain.EngineInfo{Name: f.name, Label: "Fake " + f.name}
}

type fakeEndpointEngine struct {
	fakeEngine
	endpoint string
}

func (f *fakeEndpointEngine) Endpoint() string { return f.endpoint }

func (f *fakeEndpointEngine) SetEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	f.endpoint = endpoint
	return nil
}

type failingStore struct{}

func (failingStore) Load(context.Context) (map[string]EngineState, error) {
	return nil, errors.New("redis down")
}

func (failingStore) Save(context.Context, string, EngineState) error {
	return errors.New("redis down")
}

func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

func TestManagerDisableAndEnable(t *testing.T) {
	m := NewManager(nil, nil, &fakeEngine{name: "bing"}, &fakeEngine{name: "google"})

	if !m.Enabled("bing") {
		t.Fatalf("expected engines to start enabled")
	}
	item, err := m.Update(context.Background(), domain.EngineRuntimePatch{Name: "BING", Enabled: boolPtr(false)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if item.Enabled || m.Enabled("bing") {
		t.Fatalf("expected bing to be disabled")
	}
	if !m.Enabled("google") {
		t.Fatalf("expected google to stay enabled")
	}

	if _, err := m.Update(context.Background(), domain.EngineRuntimePatch{Name: "bing", Enabled: boolPtr(true)}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !m.Enabled("bing") {
		t.Fatalf("expected bing to be enabled again")
	}
}

func TestManagerUpdateEndpoint(t *testing.T) {
	engine := &fakeEndpointEngine{fakeEngine: fakeEngine{name: "google"}, endpoint: "http://old"}
	m := NewManager(nil, nil, engine, &fakeEngine{name: "duckduckgo"})

	item, err := m.Update(context.Background(), domain.EngineRuntimePatch{Name: "google", Endpoint: strPtr(" http://new ")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if engine.endpoint != "http://new" || item.Endpoint != "http://new" {
		t.Fatalf("expected endpoint to be applied, got %q / %q", engine.endpoint, item.Endpoint)
	}

	_, err = m.Update(context.Background(), domain.EngineRuntimePatch{Name: "duckduckgo", Endpoint: strPtr("http://x")})
	if !errors.Is(err, ErrEndpointNotConfigurable) {
		t.Fatalf("expected ErrEndpointNotConfigurable, got %v", err)
	}
	if _, err := m.Update(context.Background(), domain.EngineRuntimePatch{Name: "google", Endpoint: strPtr("")}); err == nil {
		t.Fatalf("expected setter error to surface")
	}
}

func TestManagerUnknownEngine(t *testing.T) {
	m := NewManager(nil, nil, &fakeEngine{name: "bing"})
	_, err := m.Update(context.Background(), domain.EngineRuntimePatch{Name: "nope", Enabled: boolPtr(false)})
	if !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}
}

func TestManagerRestoresPersistedState(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Save(context.Background(), "google", EngineState{Disabled: true, Endpoint: "http://persisted"})
	_ = store.Save(context.Background(), "removed", EngineState{Disabled: true})

	engine := &fakeEndpointEngine{fakeEngine: fakeEngine{name: "google"}, endpoint: "http://default"}
	m := NewManager(store, nil, engine)

	if m.Enabled("google") {
		t.Fatalf("expected persisted disabled state")
	}
	if engine.endpoint != "http://persisted" {
		t.Fatalf("expected persisted endpoint, got %q", engine.endpoint)
	}
	items := m.List()
	if len(items) != 1 || items[0].Name != "google" || items[0].Label != "Fake google" {
		t.Fatalf("unexpected list %+v", items)
	}
}

func TestManagerToleratesStoreFailures(t *testing.T) {
	m := NewManager(failingStore{}, nil, &fakeEngine{name: "bing"})
	if _, err := m.Update(context.Background(), domain.EngineRuntimePatch{Name: "bing", Enabled: boolPtr(false)}); err != nil {
		t.Fatalf("expected persist failure to be logged, not returned: %v", err)
	}
	if m.Enabled("bing") {
		t.Fatalf("expected in-memory state to apply")
	}
}

func TestMemoryStoreDeletesZeroState(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Save(context.Background(), "bing", EngineState{Disabled: true})
	_ = store.Save(context.Background(), "bing", EngineState{})

	states, _ := store.Load(context.Background())
	if _, ok := states["bing"]; ok {
		t.Fatalf("expected zero state to be removed")
	}
}
