package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"payledger/internal/core"
)

// InsertAudit appends an entry to the audit log. Entries are never updated.
func (q *Queries) InsertAudit(ctx context.Context, e core.AuditEntry) (int64, error) {
	oldValues, err := marshalJSON(e.OldValues)
	if err != nil {
		return 0, fmt.Errorf("encode old values: %w", err)
	}
	newValues, err := marshalJSON(e.NewValues)
	if err != nil {
		return 0, fmt.Errorf("encode new values: %w", err)
	}
	changed := e.ChangedFields
	if changed == nil {
		changed = []string{}
	}
	changedJSON, err := json.Marshal(changed)
	if err != nil {
		return 0, fmt.Errorf("encode changed fields: %w", err)
	}
	id, err := q.insert(ctx, `INSERT INTO audit_log (table_name, record_id, action, old_values,
		new_values, changed_fields, actor, reason, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TableName, e.RecordID, string(e.Action), oldValues, newValues, string(changedJSON),
		e.Actor, e.Reason, formatTime(e.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert audit entry: %w", err)
	}
	return id, nil
}

// ListAudit returns the trail of one record, oldest first.
func (q *Queries) ListAudit(ctx context.Context, table string, recordID int64) ([]core.AuditEntry, error) {
	rows, err := q.query(ctx, `SELECT id, table_name, record_id, action, old_values, new_values,
		changed_fields, actor, reason, created_at
		FROM audit_log WHERE table_name = ? AND record_id = ? ORDER BY id`, table, recordID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	out := []core.AuditEntry{}
	for rows.Next() {
		var (
			e                        core.AuditEntry
			action                   string
			oldValues, newValues     string
			changedFields, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.TableName, &e.RecordID, &action, &oldValues, &newValues,
			&changedFields, &e.Actor, &e.Reason, &createdAt); err != nil {
			return nil, err
		}
		e.Action = core.AuditAction(action)
		if err := json.Unmarshal([]byte(oldValues), &e.OldValues); err != nil {
			return nil, fmt.Errorf("decode old values: %w", err)
		}
		if err := json.Unmarshal([]byte(newValues), &e.NewValues); err != nil {
			return nil, fmt.Errorf("decode new values: %w", err)
		}
		if err := json.Unmarshal([]byte(changedFields), &e.ChangedFields); err != nil {
			return nil, fmt.Errorf("decode changed fields: %w", err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
