// Package ledger talks to the marketplace contract gateway: the authoritative,
// read-only view of queues and tokens. The gateway exposes current-state
// queries only; there is no event log or subscription mechanism, which is why
// the detection engine has to diff snapshots.
package ledger

import (
	"context"

	"queue-market-watch/internal/domain"
)

// Source is the read-only remote state source. Implementations must return
// either a complete, well-formed result or an error; partial snapshots are
// never returned.
type Source interface {
	// ListQueues returns every queue known to the contract.
	ListQueues(ctx context.Context) ([]domain.Queue, error)

	// ListTokens returns the full ordered snapshot of a queue as of the
	// moment of the call: dense token ids from 0, owner and price for every
	// minted token.
	ListTokens(ctx context.Context, queueID uint32) (domain.Snapshot, error)
}
