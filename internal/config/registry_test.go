package config

import (
	"errors"
	"reflect"
	"testing"

	"github.com/daytrip-ai/daytrip/pkg/provider/llm"
	"github.com/daytrip-ai/daytrip/pkg/provider/llm/mock"
)

func TestRegistry_CreateRegistered(t *testing.T) {
	r := NewRegistry()
	want := &mock.Provider{}
	r.Register("fake", func(entry ProviderEntry) (llm.Provider, error) {
		if entry.Model != "test-model" {
			t.Errorf("entry.Model = %q, want test-model", entry.Model)
		}
		return want, nil
	})

	got, err := r.Create(ProviderEntry{Name: "fake", Model: "test-model"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got != want {
		t.Error("Create() did not return the factory's provider")
	}
}

func TestRegistry_CreateUnregistered(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(ProviderEntry{Name: "nope"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("Create() error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	factory := func(ProviderEntry) (llm.Provider, error) { return &mock.Provider{}, nil }
	r.Register("zeta", factory)
	r.Register("alpha", factory)

	if got, want := r.Names(), []string{"alpha", "zeta"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}
