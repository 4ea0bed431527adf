package audit

import (
	"testing"
	"time"

	"payledger/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixed = core.FixedClock{T: time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)}

func TestRecordCreateKeepsFullSet(t *testing.T) {
	r := NewRecorder(fixed)
	entry := r.Record(Change{
		Table:    core.TableObligations,
		RecordID: 7,
		Action:   core.ActionCreate,
		After:    map[string]any{"name": "Rent", "total": "1000.00"},
		Actor:    "alice",
	})

	assert.Equal(t, core.ActionCreate, entry.Action)
	assert.Nil(t, entry.OldValues)
	assert.Equal(t, map[string]any{"name": "Rent", "total": "1000.00"}, entry.NewValues)
	assert.Equal(t, []string{"name", "total"}, entry.ChangedFields)
	assert.Equal(t, fixed.T, entry.CreatedAt)
}

func TestRecordUpdateKeepsOnlyChangedFields(t *testing.T) {
	r := NewRecorder(fixed)
	entry := r.Record(Change{
		Table:    core.TableObligations,
		RecordID: 7,
		Action:   core.ActionUpdate,
		Before:   map[string]any{"name": "Rent", "total": "1000.00", "priority": 1},
		After:    map[string]any{"name": "Rent", "total": "1200.00", "priority": 1},
		Reason:   "new contract",
	})

	require.Equal(t, []string{"total"}, entry.ChangedFields)
	assert.Equal(t, map[string]any{"total": "1000.00"}, entry.OldValues)
	assert.Equal(t, map[string]any{"total": "1200.00"}, entry.NewValues)
	assert.Equal(t, "system", entry.Actor)
	assert.Equal(t, "new contract", entry.Reason)
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name   string
		before map[string]any
		after  map[string]any
		want   []string
	}{
		{"identical", map[string]any{"a": 1}, map[string]any{"a": 1}, []string{}},
		{"numeric kinds compare by value", map[string]any{"a": int64(3)}, map[string]any{"a": 3}, []string{}},
		{"changed and added", map[string]any{"a": 1}, map[string]any{"a": 2, "b": true}, []string{"a", "b"}},
		{"removed", map[string]any{"a": 1, "z": "x"}, map[string]any{"a": 1}, []string{"z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Diff(tt.before, tt.after))
		})
	}
}
