package log

import "sort"

// Field names shared across components.
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldError        = "error"
	FieldErrorType    = "error_type"
	FieldOperation    = "operation"
	FieldActor        = "actor"
	FieldObligationID = "obligation_id"
	FieldPaymentID    = "payment_id"
	FieldLoanID       = "loan_id"
	FieldAmountCents  = "amount_cents"
)

const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentNotify    = "notify"
	ComponentCache     = "cache"
	ComponentRateLimit = "rate_limit"
)

const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpRestore  = "restore"
	OpApply    = "apply_payment"
	OpReverse  = "reverse_payment"
	OpGenerate = "generate_schedule"
	OpOverdue  = "overdue"
	OpForecast = "forecast"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// Error categories used by the HTTP boundary.
const (
	ErrorTypeValidation  = "validation_error"
	ErrorTypeNotFound    = "not_found_error"
	ErrorTypeConflict    = "conflict_error"
	ErrorTypeOverpayment = "overpayment_error"
	ErrorTypeInternal    = "internal_error"
)

// LogFields is a builder for structured attributes.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithRequestID(id string) LogFields {
	if id != "" {
		f[FieldRequestID] = id
	}
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithErrorType(kind string) LogFields {
	f[FieldErrorType] = kind
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithActor(actor string) LogFields {
	if actor != "" {
		f[FieldActor] = actor
	}
	return f
}

// WithPayment adds the obligation and amount of a payment event.
func (f LogFields) WithPayment(obligationID int64, amountCents int64) LogFields {
	f[FieldObligationID] = obligationID
	f[FieldAmountCents] = amountCents
	return f
}

func (f LogFields) WithHTTP(method, path string, status int, durationMs int64) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldStatusCode] = status
	f[FieldDuration] = durationMs
	return f
}

// ToSlice flattens the fields into slog key/value pairs in key order.
func (f LogFields) ToSlice() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]any, 0, len(f)*2)
	for _, k := range keys {
		out = append(out, k, f[k])
	}
	return out
}
