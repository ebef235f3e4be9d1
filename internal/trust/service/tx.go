package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	id "trustline/pkg/domain"
	dErrors "trustline/pkg/domain-errors"
)

// TrustStoreTx runs a ledger mutation, its history entry and the view
// recalculation as one unit of work. Implementations wrap a database
// transaction (carried through ctx) or, in memory, a per-community lock.
type TrustStoreTx interface {
	RunInTx(ctx context.Context, communityID id.CommunityID, fn func(ctx context.Context, stores Stores) error) error
}

// numTrustShards spreads communities over independent locks so mutations in
// unrelated communities do not contend.
const numTrustShards = 128

const defaultTrustTxTimeout = 5 * time.Second

type shardedTrustTx struct {
	shards  [numTrustShards]sync.Mutex
	stores  Stores
	timeout time.Duration
}

// NewShardedTx serializes units of work per community over in-memory stores.
func NewShardedTx(stores Stores) TrustStoreTx {
	return &shardedTrustTx{stores: stores}
}

func (t *shardedTrustTx) RunInTx(ctx context.Context, communityID id.CommunityID, fn func(ctx context.Context, stores Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTrustTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := shardFor(communityID)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx, t.stores)
}

func shardFor(communityID id.CommunityID) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(communityID.String()))
	return int(h.Sum32() % numTrustShards)
}
