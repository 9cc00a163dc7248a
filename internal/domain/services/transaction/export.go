package transaction

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
)

var csvHeader = []string{
	"Transaction ID", "Date", "Provider", "Type", "Status",
	"Source Currency", "Source Amount", "Destination Currency",
	"Destination Amount", "Exchange Rate", "Total Fees", "Network",
}

// WriteCSV writes records as CSV with a header row
func WriteCSV(w io.Writer, records []*entities.TransactionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.TransactionID,
			r.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			string(r.Provider),
			string(r.TransactionType),
			string(r.Status),
			r.SourceCurrency,
			r.SourceAmount.String(),
			r.DestinationCurrency,
			nullString(r.DestinationAmount.Valid, r.DestinationAmount.Decimal.String()),
			nullString(r.ExchangeRate.Valid, r.ExchangeRate.Decimal.String()),
			r.TotalFees.String(),
			r.Network,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func nullString(valid bool, s string) string {
	if !valid {
		return ""
	}
	return s
}
