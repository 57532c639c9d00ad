package patch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/mesh-intelligence/folio/internal/catalogue"
	"github.com/mesh-intelligence/folio/internal/sqlite"
	"github.com/mesh-intelligence/folio/pkg/types"
)

func TestDue(t *testing.T) {
	tests := []struct {
		name    string
		version string
		last    *Run
		app     string
		want    bool
	}{
		{"untagged never run", "", nil, "v1.0.0", true},
		{"tagged for current version", "v1.0.0", nil, "v1.0.0", true},
		{"tagged for later version", "v1.2.0", nil, "v1.0.0", true},
		{"tagged for earlier version", "v0.9.0", nil, "v1.0.0", false},
		{"tag without v prefix", "0.9.0", nil, "1.0.0", false},
		{"unparseable tag runs", "next", nil, "v1.0.0", true},
		{"succeeded before", "", &Run{Version: "v0.9.0"}, "v1.0.0", false},
		{"failed in same version", "", &Run{Version: "v1.0.0", Failed: true}, "v1.0.0", false},
		{"failed in other version", "", &Run{Version: "v0.9.0", Failed: true}, "v1.0.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Patch{Name: "p", Version: tt.version}
			assert.Equal(t, tt.want, Due(p, tt.last, tt.app))
		})
	}
}

func TestSplitOrdersByPriority(t *testing.T) {
	patches := []Patch{
		{Name: "a", Priority: 1},
		{Name: "b", Priority: 5, BeforeMigrate: true},
		{Name: "c", Priority: 5},
		{Name: "d", Priority: 1, BeforeMigrate: true},
		{Name: "e", Priority: 1},
	}
	before, after := Split(patches)
	assert.Equal(t, []string{"b", "d"}, names(before))
	assert.Equal(t, []string{"c", "a", "e"}, names(after))
}

func names(patches []Patch) []string {
	var out []string
	for _, p := range patches {
		out = append(out, p.Name)
	}
	return out
}

func newStore(t *testing.T, migrate bool) *sqlite.Backend {
	t.Helper()
	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(context.Background(), filepath.Join(t.TempDir(), "patch.db")))
	t.Cleanup(func() { b.Detach() })
	b.SetSchemaMap(catalogue.MustBuild())
	if migrate {
		require.NoError(t, b.Migrate(context.Background(), types.MigrateConfig{}))
	}
	return b
}

func TestRunner_RecordsOutcomes(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, true)
	r := NewRunner(store, "v1.0.0", nil)

	var ran []string
	boom := errors.New("boom")
	patches := []Patch{
		{Name: "ok", Execute: func(context.Context, types.Store) error { ran = append(ran, "ok"); return nil }},
		{Name: "fails", Execute: func(context.Context, types.Store) error { ran = append(ran, "fails"); return boom }},
		{Name: "panics", Execute: func(context.Context, types.Store) error { panic("bad patch") }},
		{Name: "after", Execute: func(context.Context, types.Store) error { ran = append(ran, "after"); return nil }},
	}

	err := r.RunAll(ctx, patches)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, []string{"ok", "fails", "after"}, ran, "a failure does not stop the batch")

	history, err := r.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]Run{
		"ok":     {Name: "ok", Version: "v1.0.0"},
		"fails":  {Name: "fails", Version: "v1.0.0", Failed: true},
		"panics": {Name: "panics", Version: "v1.0.0", Failed: true},
		"after":  {Name: "after", Version: "v1.0.0"},
	}, history)

	due, err := r.DuePatches(ctx, patches)
	require.NoError(t, err)
	assert.Empty(t, due, "failures are not retried in the same version")

	next := NewRunner(store, "v1.1.0", nil)
	due, err = next.DuePatches(ctx, patches)
	require.NoError(t, err)
	assert.Equal(t, []string{"fails", "panics"}, names(due))

	// A successful retry overwrites the failed run.
	fixed := Patch{Name: "fails", Execute: func(context.Context, types.Store) error { return nil }}
	require.NoError(t, next.RunAll(ctx, []Patch{fixed}))
	history, err = next.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, Run{Name: "fails", Version: "v1.1.0"}, history["fails"])
}

func TestRunner_WithoutHistoryTable(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, false)
	r := NewRunner(store, "v1.0.0", nil)

	history, err := r.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)

	ran := false
	err = r.RunAll(ctx, []Patch{{Name: "early", Execute: func(context.Context, types.Store) error {
		ran = true
		return nil
	}}})
	require.NoError(t, err, "history writes are skipped until the table exists")
	assert.True(t, ran)
}
