package domain

import "time"

// ParseStatus is the statement lifecycle state.
//
//	uploaded -> parsing -> parsed | error | needs_text
type ParseStatus string

const (
	ParseStatusUploaded  ParseStatus = "uploaded"
	ParseStatusParsing   ParseStatus = "parsing"
	ParseStatusParsed    ParseStatus = "parsed"
	ParseStatusError     ParseStatus = "error"
	ParseStatusNeedsText ParseStatus = "needs_text"
)

// CanStartParse reports whether a parse may begin from status s.
func (s ParseStatus) CanStartParse() bool {
	return s != ParseStatusParsing
}

// Statement is one uploaded artifact and its parse state.
type Statement struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	AccountID     *string     `json:"account_id,omitempty"`
	Filename      string      `json:"filename"`
	StorageRef    string      `json:"storage_ref"`
	MimeType      string      `json:"mime_type"`
	Size          int64       `json:"size"`
	ContentSHA256 string      `json:"content_sha256"`
	ParseStatus   ParseStatus `json:"parse_status"`
	ParsedAt      *time.Time  `json:"parsed_at,omitempty"`
	TxCount       int         `json:"tx_count"`
	ErrorMessage  *string     `json:"error_message,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// StatementMetrics summarises one statement's parsed contents.
type StatementMetrics struct {
	StatementID       string     `json:"statement_id"`
	TxCount           int        `json:"tx_count"`
	CounterpartyCount int        `json:"counterparty_count"`
	ParsedAt          *time.Time `json:"parsed_at,omitempty"`
}

// ParseLog is an operator-facing event attached to a statement.
type ParseLog struct {
	ID          int64     `json:"id"`
	StatementID *string   `json:"statement_id,omitempty"`
	UserID      string    `json:"user_id"`
	Level       string    `json:"level"`
	Message     string    `json:"message"`
	Meta        string    `json:"meta,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Account is a bank account a statement can be attributed to.
type Account struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	BankName            string    `json:"bank_name"`
	AccountNumberMasked *string   `json:"account_number_masked,omitempty"`
	IFSC                *string   `json:"ifsc,omitempty"`
	Branch              *string   `json:"branch,omitempty"`
	Currency            string    `json:"currency"`
	CreatedAt           time.Time `json:"created_at"`
}

// DashboardKPIs is the per-user overview.
type DashboardKPIs struct {
	StatementCount     int            `json:"statement_count"`
	TransactionCount   int            `json:"transaction_count"`
	CounterpartyCount  int            `json:"counterparty_count"`
	TotalDebitMinor    int64          `json:"total_debit_minor"`
	TotalCreditMinor   int64          `json:"total_credit_minor"`
	LastParsedAt       *time.Time     `json:"last_parsed_at,omitempty"`
	LatestBalanceMinor *int64         `json:"latest_balance_minor,omitempty"`
	TopCounterparties  []Counterparty `json:"top_counterparties"`
}

// AuditEvent records a state change made on a user's behalf, such as an
// automatically created counterparty.
type AuditEvent struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Meta       string    `json:"meta,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
