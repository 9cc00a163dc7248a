package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JSONMap is a JSONB column holding raw provider payloads
type JSONMap map[string]interface{}

// Value implements driver.Valuer. The JSON is returned as a string so
// lib/pq sends it as text rather than bytea.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = JSONMap{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", src)
	}
	out := JSONMap{}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// Merge copies every key of other into m, overwriting existing keys only
func (m JSONMap) Merge(other map[string]interface{}) JSONMap {
	if m == nil {
		m = JSONMap{}
	}
	for k, v := range other {
		m[k] = v
	}
	return m
}

// TransactionRecord is the durable row in the transactions table
type TransactionRecord struct {
	ID                    int64               `json:"id" db:"id"`
	TransactionID         string              `json:"transaction_id" db:"transaction_id"`
	UserID                uuid.NullUUID       `json:"user_id" db:"user_id"`
	Provider              Provider            `json:"provider" db:"provider"`
	TransactionType       TransactionType     `json:"transaction_type" db:"transaction_type"`
	Status                TransactionStatus   `json:"status" db:"status"`
	SourceCurrency        string              `json:"source_currency" db:"source_currency"`
	SourceAmount          decimal.Decimal     `json:"source_amount" db:"source_amount"`
	DestinationCurrency   string              `json:"destination_currency" db:"destination_currency"`
	DestinationAmount     decimal.NullDecimal `json:"destination_amount" db:"destination_amount"`
	ExchangeRate          decimal.NullDecimal `json:"exchange_rate" db:"exchange_rate"`
	TotalFees             decimal.Decimal     `json:"total_fees" db:"total_fees"`
	ProviderTransactionID string              `json:"provider_transaction_id" db:"provider_transaction_id"`
	ProviderReferenceID   string              `json:"provider_reference_id" db:"provider_reference_id"`
	Network               string              `json:"network" db:"network"`
	WalletAddress         string              `json:"wallet_address" db:"wallet_address"`
	TransactionHash       string              `json:"transaction_hash" db:"transaction_hash"`
	PaymentMethod         string              `json:"payment_method" db:"payment_method"`
	ProviderData          JSONMap             `json:"provider_data" db:"provider_data"`
	FailureReason         string              `json:"failure_reason" db:"failure_reason"`
	CreatedAt             time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at" db:"updated_at"`
	CompletedAt           *time.Time          `json:"completed_at" db:"completed_at"`
}

// CacheEntry is the 24h projection of a transaction used for webhook
// correlation. It is the only record of anonymous transactions unless
// anonymous persistence is enabled.
type CacheEntry struct {
	Key                   string            `json:"key"`
	TransactionID         string            `json:"transaction_id"`
	DBID                  *int64            `json:"db_id,omitempty"`
	UserID                string            `json:"user_id,omitempty"`
	Provider              Provider          `json:"provider"`
	TransactionType       TransactionType   `json:"transaction_type"`
	Status                TransactionStatus `json:"status"`
	ProviderStatus        string            `json:"provider_status,omitempty"`
	ProviderTransactionID string            `json:"provider_transaction_id,omitempty"`
	ProviderReferenceID   string            `json:"provider_reference_id,omitempty"`
	SourceCurrency        string            `json:"source_currency"`
	SourceAmount          decimal.Decimal   `json:"source_amount"`
	DestinationCurrency   string            `json:"destination_currency"`
	DestinationAmount     *decimal.Decimal  `json:"destination_amount,omitempty"`
	Network               string            `json:"network,omitempty"`
	WalletAddress         string            `json:"wallet_address,omitempty"`
	TransactionHash       string            `json:"transaction_hash,omitempty"`
	PaymentMethod         string            `json:"payment_method,omitempty"`
	FailureReason         string            `json:"failure_reason,omitempty"`
	ProviderData          JSONMap           `json:"provider_data,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
	CompletedAt           *time.Time        `json:"completed_at,omitempty"`
	LastWebhookAt         *time.Time        `json:"last_webhook_at,omitempty"`
}

// IsFresh reports whether the provider pushed a webhook for the entry, or
// the entry was created, within window of now. Polls do not count: a
// transaction that is only ever polled must keep reaching the provider.
func (e *CacheEntry) IsFresh(now time.Time, window time.Duration) bool {
	seen := e.CreatedAt
	if e.LastWebhookAt != nil {
		seen = *e.LastWebhookAt
	}
	return now.Sub(seen) <= window
}

// StatusUpdate carries everything a webhook or poll may change on a transaction
type StatusUpdate struct {
	Status            TransactionStatus
	ProviderStatus    string
	TransactionHash   string
	DestinationAmount *decimal.Decimal
	FailureReason     string
	ProviderData      map[string]interface{}
	At                time.Time
	// Webhook marks updates pushed by the provider
	Webhook bool
}

// Apply merges the update into the entry. Terminal entries, and updates
// whose status is not reachable from the current one, are left untouched
// and Apply reports false. CompletedAt is only set on the first transition
// to COMPLETED.
func (e *CacheEntry) Apply(u StatusUpdate) bool {
	if e.Status.IsTerminal() {
		return false
	}
	if u.Status != "" && e.Status != "" && u.Status != e.Status && !e.Status.CanTransitionTo(u.Status) {
		return false
	}
	if u.Status != "" {
		e.Status = u.Status
	}
	if u.ProviderStatus != "" {
		e.ProviderStatus = u.ProviderStatus
	}
	if u.TransactionHash != "" {
		e.TransactionHash = u.TransactionHash
	}
	if u.DestinationAmount != nil {
		amt := *u.DestinationAmount
		e.DestinationAmount = &amt
	}
	if u.FailureReason != "" {
		e.FailureReason = u.FailureReason
	}
	if len(u.ProviderData) > 0 {
		e.ProviderData = e.ProviderData.Merge(u.ProviderData)
	}
	e.UpdatedAt = u.At
	if u.Webhook {
		at := u.At
		e.LastWebhookAt = &at
	}
	if e.Status == TransactionStatusCompleted && e.CompletedAt == nil {
		at := u.At
		e.CompletedAt = &at
	}
	return true
}

// WebhookEvent is the provider-neutral form of an inbound webhook
type WebhookEvent struct {
	EventID           string                 `json:"event_id,omitempty"`
	EventType         string                 `json:"event_type,omitempty"`
	RawStatus         string                 `json:"raw_status"`
	CorrelationKeys   []string               `json:"correlation_keys"`
	TransactionHash   string                 `json:"transaction_hash,omitempty"`
	DestinationAmount *decimal.Decimal       `json:"destination_amount,omitempty"`
	FailureReason     string                 `json:"failure_reason,omitempty"`
	Payload           map[string]interface{} `json:"payload,omitempty"`
}

// StatusChangedEvent is published whenever reconciliation changes a status
type StatusChangedEvent struct {
	TransactionID         string            `json:"transaction_id"`
	Provider              Provider          `json:"provider"`
	ProviderTransactionID string            `json:"provider_transaction_id,omitempty"`
	UserID                string            `json:"user_id,omitempty"`
	PreviousStatus        TransactionStatus `json:"previous_status"`
	Status                TransactionStatus `json:"status"`
	Source                string            `json:"source"`
	OccurredAt            time.Time         `json:"occurred_at"`
}

// TransactionFilter narrows the user transaction history
type TransactionFilter struct {
	UserID              uuid.UUID
	Provider            Provider
	TransactionType     TransactionType
	Status              TransactionStatus
	SourceCurrency      string
	DestinationCurrency string
	DateFrom            *time.Time
	DateTo              *time.Time
	Search              string
	Ordering            string
	Page                int
	PageSize            int
}

// Offset returns the SQL offset for the filter's page
func (f TransactionFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

// TransactionPage is one page of history
type TransactionPage struct {
	Count        int                  `json:"count"`
	TotalPages   int                  `json:"total_pages"`
	CurrentPage  int                  `json:"current_page"`
	PageSize     int                  `json:"page_size"`
	HasNext      bool                 `json:"has_next"`
	HasPrevious  bool                 `json:"has_previous"`
	Transactions []*TransactionRecord `json:"transactions"`
}

// TransactionStats is the rolled-up row in transaction_stats
type TransactionStats struct {
	UserID                uuid.UUID       `json:"user_id" db:"user_id"`
	TotalTransactions     int             `json:"total_transactions" db:"total_transactions"`
	CompletedTransactions int             `json:"completed_transactions" db:"completed_transactions"`
	FailedTransactions    int             `json:"failed_transactions" db:"failed_transactions"`
	PendingTransactions   int             `json:"pending_transactions" db:"pending_transactions"`
	TotalBuys             int             `json:"total_buys" db:"total_buys"`
	TotalSells            int             `json:"total_sells" db:"total_sells"`
	TotalSwaps            int             `json:"total_swaps" db:"total_swaps"`
	TotalFeesPaid         decimal.Decimal `json:"total_fees_paid" db:"total_fees_paid"`
	LastTransactionAt     *time.Time      `json:"last_transaction_at" db:"last_transaction_at"`
	UpdatedAt             time.Time       `json:"updated_at" db:"updated_at"`
}

// ProviderBreakdown counts a user's transactions per provider
type ProviderBreakdown struct {
	Provider  Provider `json:"provider" db:"provider"`
	Count     int      `json:"count" db:"count"`
	Completed int      `json:"completed" db:"completed"`
}

// MonthlyBreakdown counts a user's transactions per calendar month
type MonthlyBreakdown struct {
	Month     time.Time `json:"month" db:"month"`
	Count     int       `json:"count" db:"count"`
	Completed int       `json:"completed" db:"completed"`
}

// TransactionStatistics is the full statistics response
type TransactionStatistics struct {
	TransactionStats
	ProviderBreakdown       []ProviderBreakdown `json:"provider_breakdown"`
	MonthlyData             []MonthlyBreakdown  `json:"monthly_data"`
	RecentTransactionsCount int                 `json:"recent_transactions_count"`
}

// QuickStats is the lightweight dashboard summary
type QuickStats struct {
	TotalTransactions       int             `json:"total_transactions" db:"total_transactions"`
	CompletedTransactions   int             `json:"completed_transactions" db:"completed_transactions"`
	FailedTransactions      int             `json:"failed_transactions" db:"failed_transactions"`
	PendingTransactions     int             `json:"pending_transactions" db:"pending_transactions"`
	TotalBuys               int             `json:"total_buys" db:"total_buys"`
	TotalSells              int             `json:"total_sells" db:"total_sells"`
	TotalSwaps              int             `json:"total_swaps" db:"total_swaps"`
	TotalFeesPaid           decimal.Decimal `json:"total_fees_paid" db:"total_fees_paid"`
	RecentTransactionsCount int             `json:"recent_transactions_count" db:"recent_transactions_count"`
}
