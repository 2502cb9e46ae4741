package session

import (
	"context"
	"sync/atomic"

	"github.com/Cypher-0-shift/JurAI/internal/repository"
)

// pendingToken is the only writer allowed to remove a pending submission.
// It can be spent once.
type pendingToken struct {
	store repository.PendingStore
	id    string
	spent atomic.Bool
}

func newPendingToken(store repository.PendingStore, id string) *pendingToken {
	return &pendingToken{store: store, id: id}
}

// consume deletes the submission on first use and reports whether this call
// removed it. Later calls are no-ops.
func (t *pendingToken) consume(ctx context.Context) (bool, error) {
	if t == nil || t.store == nil {
		return false, nil
	}
	if !t.spent.CompareAndSwap(false, true) {
		return false, nil
	}
	return t.store.DeletePending(ctx, t.id)
}
