package domain

// Token is one position in a queue. Identified by (queue_id, token_id);
// token ids are dense from 0 in mint order and are never reused or burned.
type Token struct {
	TokenID uint32 `json:"token_id"`
	Owner   string `json:"owner"` // account id, never empty for a minted token
	Price   uint64 `json:"price"` // 0 means not listed
}

// IsForSale reports whether the token is currently listed.
func (t Token) IsForSale() bool {
	return t.Price != 0
}

// Snapshot is the full ordered state of a queue's tokens at one observation
// instant. Index i holds the token minted i-th, so Snapshot[i].TokenID == i
// for a well-formed snapshot.
type Snapshot []Token

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	copy(out, s)
	return out
}
