package provider

import (
	"strings"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
)

// StatusMap translates a provider's status vocabulary into the canonical
// statuses. Lookups ignore case and surrounding space.
type StatusMap map[string]entities.TransactionStatus

// NewStatusMap copies m with normalized keys
func NewStatusMap(m map[string]entities.TransactionStatus) StatusMap {
	out := make(StatusMap, len(m))
	for k, v := range m {
		out[normalizeStatus(k)] = v
	}
	return out
}

// Map returns the canonical status. Unknown values map to PENDING.
func (s StatusMap) Map(raw string) entities.TransactionStatus {
	if status, ok := s[normalizeStatus(raw)]; ok {
		return status
	}
	return entities.TransactionStatusPending
}

// Known reports whether raw is in the table
func (s StatusMap) Known(raw string) bool {
	_, ok := s[normalizeStatus(raw)]
	return ok
}

func normalizeStatus(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
