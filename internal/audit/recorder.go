// Package audit builds immutable audit entries from before/after field sets.
package audit

import (
	"fmt"
	"reflect"
	"sort"

	"payledger/internal/core"
)

// Recorder produces audit entries stamped by its clock. It never writes; the
// caller persists the entry in the same transaction as the mutation.
type Recorder struct {
	clock core.Clock
}

func NewRecorder(clock core.Clock) *Recorder {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Recorder{clock: clock}
}

// Change describes one audited mutation.
type Change struct {
	Table    string
	RecordID int64
	Action   core.AuditAction
	Before   map[string]any
	After    map[string]any
	Actor    string
	Reason   string
}

// Record builds the entry. UPDATE entries keep only changed fields on both
// sides; CREATE keeps the full after-set and DELETE/RESTORE/VERIFY keep the diff.
func (r *Recorder) Record(c Change) core.AuditEntry {
	entry := core.AuditEntry{
		TableName: c.Table,
		RecordID:  c.RecordID,
		Action:    c.Action,
		Actor:     actorOrDefault(c.Actor),
		Reason:    c.Reason,
		CreatedAt: r.clock.Now().UTC(),
	}

	if c.Action == core.ActionCreate {
		entry.NewValues = copyFields(c.After)
		entry.ChangedFields = sortedKeys(c.After)
		return entry
	}

	changed := Diff(c.Before, c.After)
	entry.ChangedFields = changed
	entry.OldValues = pick(c.Before, changed)
	entry.NewValues = pick(c.After, changed)
	return entry
}

// Diff returns the sorted names of fields whose values differ between before and after.
func Diff(before, after map[string]any) []string {
	seen := make(map[string]struct{}, len(before)+len(after))
	var changed []string
	for k, v := range after {
		seen[k] = struct{}{}
		if old, ok := before[k]; !ok || !equal(old, v) {
			changed = append(changed, k)
		}
	}
	for k := range before {
		if _, ok := seen[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	if changed == nil {
		changed = []string{}
	}
	return changed
}

func equal(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	// Numeric fields may come back from JSON as float64.
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func pick(fields map[string]any, keys []string) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			out[k] = v
		}
	}
	return out
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func sortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func actorOrDefault(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}
