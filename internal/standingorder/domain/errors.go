package standingorder

import "errors"

// ErrInvalidOrder rejects malformed orders on create or update.
var ErrInvalidOrder = errors.New("standing order: invalid order")

// ErrOrderNotFound indicates an unknown order id.
var ErrOrderNotFound = errors.New("standing order: not found")

// ErrUnresolvedAccount indicates the external destination account could not
// be resolved; it fails the single order, never the batch.
var ErrUnresolvedAccount = errors.New("standing order: unresolved external account")
