// Package patch runs ordered, idempotent upgrade routines against a store and
// records the outcome of each in the PatchRun schema so failed routines are
// retried by a later version.
package patch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// Patch is one upgrade routine.
type Patch struct {
	Name string
	// Version is the application version the patch was written for. Empty
	// means the patch applies to every version.
	Version string
	// Priority orders patches within their group, highest first.
	Priority int
	// BeforeMigrate runs the patch before the schema migration instead of
	// after it.
	BeforeMigrate bool
	Execute       func(ctx context.Context, store types.Store) error
}

// Run is the recorded outcome of a patch.
type Run struct {
	Name    string
	Version string
	Failed  bool
}

// Due reports whether p should run. A patch that never ran is due when it is
// untagged or tagged for appVersion or later. A patch that ran is due again
// only when it failed under a different version than appVersion.
func Due(p Patch, last *Run, appVersion string) bool {
	if last == nil {
		if p.Version == "" {
			return true
		}
		pv, av := canonical(p.Version), canonical(appVersion)
		if !semver.IsValid(pv) || !semver.IsValid(av) {
			return true
		}
		return semver.Compare(pv, av) >= 0
	}
	return last.Failed && canonical(last.Version) != canonical(appVersion)
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

// Split partitions patches into the before- and after-migrate groups, each
// sorted by descending priority. Ties keep their registration order.
func Split(patches []Patch) (before, after []Patch) {
	for _, p := range patches {
		if p.BeforeMigrate {
			before = append(before, p)
		} else {
			after = append(after, p)
		}
	}
	byPriority := func(a, b Patch) int { return b.Priority - a.Priority }
	slices.SortStableFunc(before, byPriority)
	slices.SortStableFunc(after, byPriority)
	return before, after
}

// Runner executes patches against a store for one application version.
type Runner struct {
	store   types.Store
	version string
	log     *zap.SugaredLogger
}

// NewRunner returns a Runner. A nil logger discards output.
func NewRunner(store types.Store, version string, log *zap.SugaredLogger) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{store: store, version: version, log: log}
}

// History returns the recorded runs keyed by patch name. A database without
// the PatchRun table has no history.
func (r *Runner) History(ctx context.Context) (map[string]Run, error) {
	rows, err := r.store.GetAll(ctx, types.SchemaPatchRun, types.QueryOptions{
		Fields: []string{types.FieldName, "version", "failed"},
	})
	if err != nil {
		if isMissingTable(err) {
			return map[string]Run{}, nil
		}
		return nil, fmt.Errorf("reading patch history: %w", err)
	}
	runs := make(map[string]Run, len(rows))
	for _, row := range rows {
		name := row.String(types.FieldName)
		failed, _ := row["failed"].(int64)
		runs[name] = Run{Name: name, Version: row.String("version"), Failed: failed != 0}
	}
	return runs, nil
}

// DuePatches returns the patches that should run now.
func (r *Runner) DuePatches(ctx context.Context, patches []Patch) ([]Patch, error) {
	history, err := r.History(ctx)
	if err != nil {
		return nil, err
	}
	var due []Patch
	for _, p := range patches {
		var last *Run
		if run, ok := history[p.Name]; ok {
			last = &run
		}
		if Due(p, last, r.version) {
			due = append(due, p)
		}
	}
	return due, nil
}

// RunAll executes patches in order. A failing patch does not stop the batch;
// every failure is recorded and logged, and all of them are returned
// combined.
func (r *Runner) RunAll(ctx context.Context, patches []Patch) error {
	var errs error
	for _, p := range patches {
		err := r.run(ctx, p)
		if err != nil {
			r.log.Errorw("patch failed", "patch", p.Name, "version", r.version, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("patch %s: %w", p.Name, err))
		} else {
			r.log.Infow("patch applied", "patch", p.Name, "version", r.version)
		}
		if recErr := r.record(ctx, p, err != nil); recErr != nil {
			r.log.Warnw("recording patch run", "patch", p.Name, "error", recErr)
		}
	}
	return errs
}

func (r *Runner) run(ctx context.Context, p Patch) (err error) {
	if p.Execute == nil {
		return errors.New("no execute function")
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return p.Execute(ctx, r.store)
}

// record upserts the PatchRun row of p. It is skipped while the PatchRun
// table does not exist yet; the run is recorded by a later connection.
func (r *Runner) record(ctx context.Context, p Patch, failed bool) error {
	values := types.Record{
		types.FieldName: p.Name,
		"version":       r.version,
		"failed":        failed,
	}
	exists, err := r.store.Exists(ctx, types.SchemaPatchRun, p.Name)
	if err != nil {
		return err
	}
	if exists {
		err = r.store.Update(ctx, types.SchemaPatchRun, values)
	} else {
		_, err = r.store.Insert(ctx, types.SchemaPatchRun, values)
	}
	if isMissingTable(err) {
		return nil
	}
	return err
}

func isMissingTable(err error) bool {
	return errors.Is(err, types.ErrTableNotFound)
}
