package domain

// Kind classifies an inferred marketplace event.
type Kind string

// Activity kinds.
const (
	KindJoin   Kind = "join"
	KindList   Kind = "list"
	KindSale   Kind = "sale"
	KindCancel Kind = "cancel"
)

// Valid reports whether k is a known activity kind.
func (k Kind) Valid() bool {
	switch k {
	case KindJoin, KindList, KindSale, KindCancel:
		return true
	}
	return false
}

// Activity is a discrete marketplace event inferred by comparing two
// consecutive snapshots of a queue. Activities are immutable once created.
type Activity struct {
	ActivityID string  `json:"activity_id"` // unique per engine lifetime
	Kind       Kind    `json:"kind"`
	Timestamp  int64   `json:"timestamp"` // detection time, Unix ms (not occurrence time)
	QueueID    uint32  `json:"queue_id"`
	QueueName  string  `json:"queue_name"` // denormalized at detection time
	TokenID    uint32  `json:"token_id"`
	Owner      string  `json:"owner"` // seller for sales
	Price      *uint64 `json:"price,omitempty"`
	Buyer      *string `json:"buyer,omitempty"` // sales only
}
