package domain

// Queue represents a named waiting queue hosted by the marketplace contract.
// Queue ids are assigned by the contract at creation and never reused.
type Queue struct {
	QueueID    uint32 `json:"queue_id"` // contract-assigned, immutable
	Name       string `json:"name"`
	Creator    string `json:"creator"` // account id of the queue creator
	TokenCount uint32 `json:"token_count"` // tokens minted so far; monotonically non-decreasing
}
