package graph

import (
	"math"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Build converts a transaction batch into the account graph. The input is
// not mutated.
//
// Row handling follows the availability-first ingestion contract: ids are
// trimmed, a record whose amount is not a finite number is skipped without
// failing the build, and a missing timestamp is recorded as a nil entry on
// the edge rather than dropping the record.
func Build(txs []domain.Transaction) *Graph {
	g := New()
	for i := range txs {
		tx := &txs[i]

		sender := strings.TrimSpace(tx.SenderID)
		receiver := strings.TrimSpace(tx.ReceiverID)
		if sender == "" || receiver == "" {
			continue
		}
		if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
			continue
		}

		g.AddTransaction(sender, receiver, tx.Amount, tx.Timestamp)
	}
	return g
}
