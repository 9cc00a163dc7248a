package entities

import (
	"fmt"
	"strings"
)

// Provider identifies an upstream exchange or on-ramp
type Provider string

const (
	ProviderMeld         Provider = "MELD"
	ProviderOnRamp       Provider = "ONRAMP"
	ProviderMoonPay      Provider = "MOONPAY"
	ProviderFinchPay     Provider = "FINCHPAY"
	ProviderChangelly    Provider = "CHANGELLY"
	ProviderExolix       Provider = "EXOLIX"
	ProviderLetsExchange Provider = "LETSEXCHANGE"
	ProviderSimpleSwap   Provider = "SIMPLESWAP"
)

// AllProviders lists every supported provider in display order
var AllProviders = []Provider{
	ProviderMeld,
	ProviderOnRamp,
	ProviderMoonPay,
	ProviderFinchPay,
	ProviderChangelly,
	ProviderExolix,
	ProviderLetsExchange,
	ProviderSimpleSwap,
}

// Slug returns the lower-case form used in routes, cache keys and config
func (p Provider) Slug() string {
	return strings.ToLower(string(p))
}

// IsValid checks if the provider is one of the supported providers
func (p Provider) IsValid() bool {
	for _, known := range AllProviders {
		if p == known {
			return true
		}
	}
	return false
}

// ParseProvider accepts either the slug or the upper-case name
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToUpper(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("unknown provider %q", s)
	}
	return p, nil
}

// TransactionType is the direction of a transaction
type TransactionType string

const (
	TransactionTypeBuy  TransactionType = "BUY"
	TransactionTypeSell TransactionType = "SELL"
	TransactionTypeSwap TransactionType = "SWAP"
)

// IsValid checks if the transaction type is known
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeBuy, TransactionTypeSell, TransactionTypeSwap:
		return true
	}
	return false
}

// TransactionStatus is the canonical status vocabulary shared by all providers
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
	TransactionStatusCancelled  TransactionStatus = "CANCELLED"
	TransactionStatusExpired    TransactionStatus = "EXPIRED"

	// TransactionStatusTimeout is only produced by the polling path. It is
	// never written to the database and a later update may replace it.
	TransactionStatusTimeout TransactionStatus = "TIMEOUT"
)

// ValidTransactionStatuses contains the six persisted statuses
var ValidTransactionStatuses = map[TransactionStatus]bool{
	TransactionStatusPending:    true,
	TransactionStatusProcessing: true,
	TransactionStatusCompleted:  true,
	TransactionStatusFailed:     true,
	TransactionStatusCancelled:  true,
	TransactionStatusExpired:    true,
}

// ValidTransactionTransitions defines allowed status transitions
var ValidTransactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending: {
		TransactionStatusProcessing, TransactionStatusCompleted, TransactionStatusFailed,
		TransactionStatusCancelled, TransactionStatusExpired, TransactionStatusTimeout,
	},
	TransactionStatusProcessing: {
		TransactionStatusPending, TransactionStatusCompleted, TransactionStatusFailed,
		TransactionStatusCancelled, TransactionStatusExpired, TransactionStatusTimeout,
	},
	TransactionStatusTimeout: {
		TransactionStatusPending, TransactionStatusProcessing, TransactionStatusCompleted,
		TransactionStatusFailed, TransactionStatusCancelled, TransactionStatusExpired,
	},
	TransactionStatusCompleted: {}, // Terminal state
	TransactionStatusFailed:    {}, // Terminal state
	TransactionStatusCancelled: {}, // Terminal state
	TransactionStatusExpired:   {}, // Terminal state
}

// IsValid checks if the status can be stored in the database
func (s TransactionStatus) IsValid() bool {
	return ValidTransactionStatuses[s]
}

// CanTransitionTo checks if transition to new status is allowed
func (s TransactionStatus) CanTransitionTo(newStatus TransactionStatus) bool {
	allowed, exists := ValidTransactionTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transition may leave this status
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusFailed,
		TransactionStatusCancelled, TransactionStatusExpired:
		return true
	}
	return false
}

// IsInFlight returns true for statuses the poller should still chase
func (s TransactionStatus) IsInFlight() bool {
	return s == TransactionStatusPending || s == TransactionStatusProcessing
}

func (s TransactionStatus) String() string {
	return string(s)
}
