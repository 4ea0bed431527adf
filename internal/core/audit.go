package core

import "time"

type AuditAction string

const (
	ActionCreate  AuditAction = "CREATE"
	ActionUpdate  AuditAction = "UPDATE"
	ActionDelete  AuditAction = "DELETE"
	ActionRestore AuditAction = "RESTORE"
	ActionVerify  AuditAction = "VERIFY"
)

const (
	TableObligations  = "payment_items"
	TablePayments     = "payment_events"
	TableSchedules    = "payment_schedules"
	TableLoans        = "loan_records"
	TableLoanPayments = "loan_payment_history"
)

// AuditEntry is append-only.
type AuditEntry struct {
	ID            int64          `json:"id"`
	TableName     string         `json:"table_name"`
	RecordID      int64          `json:"record_id"`
	Action        AuditAction    `json:"action"`
	OldValues     map[string]any `json:"old_values,omitempty"`
	NewValues     map[string]any `json:"new_values,omitempty"`
	ChangedFields []string       `json:"changed_fields"`
	Actor         string         `json:"actor"`
	Reason        string         `json:"reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
