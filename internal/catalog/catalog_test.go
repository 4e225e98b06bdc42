package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rhoci/rhoci/internal/models"
)

type fakeSignatureStore struct {
	mu     sync.Mutex
	byName map[string]models.FailureSignature
	writes int
}

func newFakeSignatureStore() *fakeSignatureStore {
	return &fakeSignatureStore{byName: make(map[string]models.FailureSignature)}
}

func (f *fakeSignatureStore) InsertSignatureIfAbsent(_ context.Context, sig models.FailureSignature) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byName[sig.Name]; ok {
		return false, nil
	}
	f.byName[sig.Name] = sig
	f.writes++
	return true, nil
}

func TestBuiltinCatalogIsValid(t *testing.T) {
	c, err := New(Builtin())
	if err != nil {
		t.Fatalf("builtin catalog invalid: %v", err)
	}
	if c.Len() != len(Builtin()) {
		t.Fatalf("expected %d signatures, got %d", len(Builtin()), c.Len())
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	c, err := New(Builtin())
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	store := newFakeSignatureStore()
	ctx := context.Background()

	first, err := Load(ctx, nil, store, c)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if first != c.Len() {
		t.Fatalf("expected %d loaded, got %d", c.Len(), first)
	}

	second, err := Load(ctx, nil, store, c)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if second != 0 {
		t.Fatalf("expected no new signatures on reload, got %d", second)
	}
	if store.writes != c.Len() || len(store.byName) != c.Len() {
		t.Fatalf("duplicate writes detected: writes=%d stored=%d", store.writes, len(store.byName))
	}
}

func TestLoadKeepsStoredEdits(t *testing.T) {
	store := newFakeSignatureStore()
	edited := models.FailureSignature{Name: "conn-refused", Category: "network", Pattern: "refused"}
	store.byName[edited.Name] = edited

	c, err := New(Builtin())
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if _, err := Load(context.Background(), nil, store, c); err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(edited, store.byName["conn-refused"]); diff != "" {
		t.Fatalf("stored signature overwritten (-want +got):\n%s", diff)
	}
}

func TestNewRejectsEmptyPattern(t *testing.T) {
	_, err := New([]models.FailureSignature{{Name: "empty", Category: "infra"}})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Signature != "empty" || cfgErr.Field != "pattern" {
		t.Fatalf("unexpected error detail: %+v", cfgErr)
	}
}

func TestNewRejectsBadRegexAndDuplicates(t *testing.T) {
	_, err := New([]models.FailureSignature{
		{Name: "a", Pattern: "ok"},
		{Name: "a", Pattern: "ok"},
		{Name: "b", Pattern: "ok", UpperBoundPattern: "("},
	})
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestNewRejectsPaddedName(t *testing.T) {
	_, err := New([]models.FailureSignature{{Name: " conn-refused ", Pattern: "ConnectionRefused"}})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Signature != "conn-refused" || cfgErr.Field != "name" {
		t.Fatalf("unexpected error detail: %+v", cfgErr)
	}
}

func TestNewOrdersByName(t *testing.T) {
	c, err := New([]models.FailureSignature{
		{Name: "zeta", Pattern: "z"},
		{Name: "alpha", Pattern: "a"},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var names []string
	for _, s := range c.Signatures() {
		names = append(names, s.Name)
	}
	if diff := cmp.Diff([]string{"alpha", "zeta"}, names); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestBuildMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := []byte(`
signatures:
  - name: conn-refused
    category: network
    pattern: "Connection refused"
  - name: quota-exceeded
    category: cloud
    pattern: "Quota exceeded for"
    action: "Free up tenant quota"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	c, err := Build(path)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if c.Len() != len(Builtin())+1 {
		t.Fatalf("expected one extra signature, got %d", c.Len())
	}
	for _, def := range c.Definitions() {
		if def.Name == "conn-refused" && def.Category != "network" {
			t.Fatalf("file entry should replace builtin, got %+v", def)
		}
	}
}
