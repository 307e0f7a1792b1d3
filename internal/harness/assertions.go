package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/circlesync/internal/engine"
	"github.com/roach88/circlesync/internal/ir"
	"github.com/roach88/circlesync/internal/store"
)

// AssertionContext provides what state assertions read.
type AssertionContext struct {
	Ctx    context.Context
	Store  *store.Store
	Engine *engine.Engine
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s\n  Expected: %s\n  Actual: %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertLogCount:
		return assertLogCount(a, actx)
	case AssertLogOrder:
		return assertLogOrder(a, actx)
	case AssertEntityState:
		return assertEntityState(a, actx)
	case AssertConsistent:
		return assertConsistent(a, actx)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertLogCount counts the log entries of an entity, or of a whole circle
// when no entity is named.
func assertLogCount(a Assertion, actx *AssertionContext) error {
	var (
		entries []ir.ChangeEntry
		err     error
	)
	if a.EntityID != "" {
		entries, err = actx.Store.Log().ForEntity(actx.Ctx, actx.Store.DB(), ir.EntityType(a.EntityType), a.EntityID)
		if err == nil && a.Circle != "" {
			entries = filterCircle(entries, a.Circle)
		}
	} else {
		entries, err = actx.Store.Log().All(actx.Ctx, actx.Store.DB(), a.Circle)
	}
	if err != nil {
		return err
	}

	if len(entries) != a.Count {
		return &AssertionError{
			Type:     AssertLogCount,
			Expected: fmt.Sprintf("%d entries for %s", a.Count, subject(a)),
			Actual:   fmt.Sprintf("%d entries: %s", len(entries), strings.Join(entryKeys(entries), ", ")),
		}
	}
	return nil
}

// assertLogOrder checks that the listed entries appear in the circle's log
// in the given order. Other entries may appear in between.
func assertLogOrder(a Assertion, actx *AssertionContext) error {
	entries, err := actx.Store.Log().All(actx.Ctx, actx.Store.DB(), a.Circle)
	if err != nil {
		return err
	}
	keys := entryKeys(entries)

	next := 0
	for _, k := range keys {
		if next < len(a.Entries) && k == a.Entries[next] {
			next++
		}
	}
	if next < len(a.Entries) {
		return &AssertionError{
			Type:     AssertLogOrder,
			Expected: fmt.Sprintf("entries in order: %v", a.Entries),
			Actual:   fmt.Sprintf("missing %s in log %v", a.Entries[next], keys),
		}
	}
	return nil
}

// assertEntityState compares entity fields, in their JSON names, against
// the expected subset. "deleted" reports the soft-delete marker.
func assertEntityState(a Assertion, actx *AssertionContext) error {
	es, ok := actx.Engine.EntityStore(ir.EntityType(a.EntityType))
	if !ok {
		return fmt.Errorf("unknown entity type %q", a.EntityType)
	}
	entity, err := es.FindByID(actx.Ctx, actx.Store.DB(), a.EntityID)
	if err != nil {
		return &AssertionError{
			Type:     AssertEntityState,
			Expected: fmt.Sprintf("%s to exist", subject(a)),
			Actual:   err.Error(),
		}
	}

	actual, err := toJSONMap(entity)
	if err != nil {
		return err
	}
	actual["deleted"] = entity.Meta().Deleted()

	expected, err := toJSONMap(a.Expect)
	if err != nil {
		return fmt.Errorf("invalid expect: %w", err)
	}

	var mismatches []string
	for _, field := range sortedFields(expected) {
		if !reflect.DeepEqual(expected[field], actual[field]) {
			mismatches = append(mismatches, fmt.Sprintf("%s=%v (want %v)", field, actual[field], expected[field]))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertEntityState,
			Expected: fmt.Sprintf("%s with %v", subject(a), a.Expect),
			Actual:   strings.Join(mismatches, ", "),
		}
	}
	return nil
}

func assertConsistent(a Assertion, actx *AssertionContext) error {
	report, err := actx.Engine.Verify(actx.Ctx, a.Circle)
	if err != nil {
		return err
	}
	if !report.OK() {
		issues := make([]string, len(report.Issues))
		for i, is := range report.Issues {
			issues[i] = fmt.Sprintf("%s:%s: %s", is.EntityType, is.EntityID, is.Message)
		}
		return &AssertionError{
			Type:     AssertConsistent,
			Expected: fmt.Sprintf("circle %s log to match entity state", a.Circle),
			Actual:   strings.Join(issues, "; "),
		}
	}
	return nil
}

// toJSONMap round-trips v through JSON so YAML and entity values compare
// with the same Go types.
func toJSONMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func sortedFields(m map[string]any) []string {
	fields := make([]string, 0, len(m))
	for k := range m {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

func entryKeys(entries []ir.ChangeEntry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = fmt.Sprintf("%s:%s:%s", e.EntityType, e.EntityID, e.Action)
	}
	return keys
}

func filterCircle(entries []ir.ChangeEntry, circleID string) []ir.ChangeEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.CircleID == circleID {
			out = append(out, e)
		}
	}
	return out
}

func subject(a Assertion) string {
	if a.EntityID != "" {
		return a.EntityType + " " + a.EntityID
	}
	return "circle " + a.Circle
}
