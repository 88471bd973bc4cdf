// Package detect implements the snapshot-diff activity-detection engine.
// It polls the authoritative queue state through a ledger.Source, compares
// each snapshot against the previously observed one, and infers join, list,
// sale and cancel events without any event feed from the remote side.
package detect

import (
	"queue-market-watch/internal/domain"
)

// DiffSnapshots compares two consecutive snapshots of the same queue and
// returns the inferred activities in detection order: joins first in index
// order, then per-index transitions in index order. ActivityID and
// Timestamp are left zero; the engine stamps them when the batch is
// committed.
//
// The comparison is index-based and relies on the contract assigning token
// ids densely in mint order, so new tokens only ever appear appended at
// the end. If the remote source ever reordered or removed positions the
// alignment would break; the fetcher rejects such snapshots before they
// reach this point.
func DiffSnapshots(queue domain.Queue, prev, cur domain.Snapshot) []*domain.Activity {
	var acts []*domain.Activity

	for i := len(prev); i < len(cur); i++ {
		acts = append(acts, &domain.Activity{
			Kind:      domain.KindJoin,
			QueueID:   queue.QueueID,
			QueueName: queue.Name,
			TokenID:   cur[i].TokenID,
			Owner:     cur[i].Owner,
		})
	}

	overlap := len(prev)
	if len(cur) < overlap {
		overlap = len(cur)
	}

	for i := 0; i < overlap; i++ {
		switch domain.InferTransition(prev[i], cur[i]) {
		case domain.TransitionSale:
			// Seller is recorded as the owner; the listed price comes
			// from the previous observation because the contract resets
			// it on transfer.
			price := prev[i].Price
			buyer := cur[i].Owner
			acts = append(acts, &domain.Activity{
				Kind:      domain.KindSale,
				QueueID:   queue.QueueID,
				QueueName: queue.Name,
				TokenID:   cur[i].TokenID,
				Owner:     prev[i].Owner,
				Price:     &price,
				Buyer:     &buyer,
			})
		case domain.TransitionList:
			price := cur[i].Price
			acts = append(acts, &domain.Activity{
				Kind:      domain.KindList,
				QueueID:   queue.QueueID,
				QueueName: queue.Name,
				TokenID:   cur[i].TokenID,
				Owner:     cur[i].Owner,
				Price:     &price,
			})
		case domain.TransitionCancel:
			price := prev[i].Price
			acts = append(acts, &domain.Activity{
				Kind:      domain.KindCancel,
				QueueID:   queue.QueueID,
				QueueName: queue.Name,
				TokenID:   cur[i].TokenID,
				Owner:     cur[i].Owner,
				Price:     &price,
			})
		}
	}

	return acts
}
