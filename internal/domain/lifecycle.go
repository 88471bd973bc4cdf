package domain

// TokenState is one of the three lifecycle states of a position.
// All transitions are caused by the contract; this package only interprets
// pairs of observations of the same (queue_id, token_id).
type TokenState string

const (
	StateUnminted       TokenState = "UNMINTED"
	StateOwnedNotListed TokenState = "OWNED_NOT_FOR_SALE"
	StateOwnedListed    TokenState = "OWNED_FOR_SALE"
)

// StateOf returns the lifecycle state of an observed token.
func StateOf(t Token) TokenState {
	if t.Owner == "" {
		return StateUnminted
	}
	if t.IsForSale() {
		return StateOwnedListed
	}
	return StateOwnedNotListed
}

// Transition is the net lifecycle transition between two observations of the
// same token. Because state is sampled by polling, a Transition reflects the
// net effect of everything that happened between the two observations, not
// necessarily a single contract operation.
type Transition string

const (
	// TransitionNone means no observable change.
	TransitionNone Transition = "NONE"
	// TransitionList means the owner listed the token (price 0 -> price > 0,
	// owner unchanged).
	TransitionList Transition = "LIST"
	// TransitionSale means ownership changed hands. Takes precedence over
	// listing-flag transitions in the same interval: a transfer is by
	// definition a sale in this model, whatever the flags did around it.
	TransitionSale Transition = "SALE"
	// TransitionCancel means the owner unlisted the token (price > 0 ->
	// price 0, owner unchanged).
	TransitionCancel Transition = "CANCEL"
)

// InferTransition classifies the net transition between two observations of
// the same token. Exactly one transition is reported per observation pair.
func InferTransition(prev, cur Token) Transition {
	if prev.Owner != cur.Owner {
		return TransitionSale
	}
	if !prev.IsForSale() && cur.IsForSale() {
		return TransitionList
	}
	if prev.IsForSale() && !cur.IsForSale() {
		return TransitionCancel
	}
	return TransitionNone
}
