package vault

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lstlabs/vaultgate/internal/model"
	"github.com/lstlabs/vaultgate/internal/pkg/apperrors"
	"github.com/shopspring/decimal"
)

// sweepScanLimit bounds how many journal entries one housekeeping sweep
// may visit, keeping claims O(1)-ish even with a large backlog.
const sweepScanLimit = 512

// Queue is the unstake request state machine. The backing order array is
// unordered after removals (swap-with-last-and-pop keeps removal O(1));
// batch selection walks it in its current order. Aggregate counters move
// atomically with every status transition.
//
// Not safe for concurrent use; the Vault serializes all access.
type Queue struct {
	nextID   uint64
	requests map[uint64]*model.UnstakeRequest
	order    []uint64       // ids with status QUEUED or PROCESSING
	pos      map[uint64]int // id -> index into order
	byOwner  map[common.Address]uint64

	length      int
	totalQueued decimal.Decimal

	claimsSinceSweep int
	sweepEvery       int
	retention        time.Duration

	now func() time.Time
}

func NewQueue(sweepEvery int, retention time.Duration, now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	if sweepEvery <= 0 {
		sweepEvery = 50
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Queue{
		requests:   make(map[uint64]*model.UnstakeRequest),
		pos:        make(map[uint64]int),
		byOwner:    make(map[common.Address]uint64),
		sweepEvery: sweepEvery,
		retention:  retention,
		now:        now,
	}
}

func (q *Queue) Length() int { return q.length }

func (q *Queue) TotalQueued() decimal.Decimal { return q.totalQueued }

// Get returns the request by id, or nil.
func (q *Queue) Get(id uint64) *model.UnstakeRequest { return q.requests[id] }

// PendingFor returns the owner's non-terminal request, or nil.
func (q *Queue) PendingFor(owner common.Address) *model.UnstakeRequest {
	if id, ok := q.byOwner[owner]; ok {
		return q.requests[id]
	}
	return nil
}

// RequestsFor lists every tracked request for the owner, including
// PROCESSED ones awaiting claim.
func (q *Queue) RequestsFor(owner common.Address) []*model.UnstakeRequest {
	var out []*model.UnstakeRequest
	for _, r := range q.requests {
		if r.Owner == owner {
			out = append(out, r)
		}
	}
	return out
}

// Enqueue admits a new request. At most one non-terminal request per owner
// may exist at a time.
func (q *Queue) Enqueue(owner common.Address, lsAmount, underlying decimal.Decimal) (*model.UnstakeRequest, error) {
	if _, ok := q.byOwner[owner]; ok {
		return nil, apperrors.NewStateConflict("a pending unstake request already exists for this owner")
	}
	q.nextID++
	r := &model.UnstakeRequest{
		ID:               q.nextID,
		Owner:            owner,
		LSAmount:         lsAmount,
		UnderlyingAmount: underlying,
		RequestedAt:      q.now(),
		Status:           model.StatusQueued,
	}
	q.requests[r.ID] = r
	q.pos[r.ID] = len(q.order)
	q.order = append(q.order, r.ID)
	q.byOwner[owner] = r.ID
	q.length++
	q.totalQueued = q.totalQueued.Add(underlying)
	return r, nil
}

// MarkForProcessing transitions QUEUED requests to PROCESSING. Idempotent:
// unknown ids and requests in any other status are skipped silently, and
// re-marking changes nothing. Returns the count actually transitioned.
func (q *Queue) MarkForProcessing(ids []uint64) int {
	affected := 0
	for _, id := range ids {
		r, ok := q.requests[id]
		if !ok || r.Status != model.StatusQueued {
			continue
		}
		r.Status = model.StatusProcessing
		affected++
	}
	return affected
}

// SelectProcessing greedily picks up to batchSize PROCESSING requests in
// queue order whose cumulative underlying fits within available.
func (q *Queue) SelectProcessing(batchSize int, available decimal.Decimal) []*model.UnstakeRequest {
	if batchSize <= 0 {
		return nil
	}
	var selected []*model.UnstakeRequest
	cum := decimal.Zero
	for _, id := range q.order {
		if len(selected) >= batchSize {
			break
		}
		r := q.requests[id]
		if r.Status != model.StatusProcessing {
			continue
		}
		next := cum.Add(r.UnderlyingAmount)
		if next.GreaterThan(available) {
			continue
		}
		cum = next
		selected = append(selected, r)
	}
	return selected
}

// CountProcessing returns how many requests still sit in PROCESSING.
func (q *Queue) CountProcessing() int {
	n := 0
	for _, id := range q.order {
		if q.requests[id].Status == model.StatusProcessing {
			n++
		}
	}
	return n
}

// MarkProcessed finalizes a request whose funds reached the silo. The
// request leaves the active queue but stays tracked until claimed.
func (q *Queue) MarkProcessed(id uint64) error {
	r, ok := q.requests[id]
	if !ok {
		return apperrors.New(apperrors.ErrNotFound, "unknown unstake request", nil)
	}
	if r.Status != model.StatusQueued && r.Status != model.StatusProcessing {
		return apperrors.Newf(apperrors.ErrStateConflict, "cannot process request in status %s", r.Status)
	}
	q.removeFromOrder(id)
	r.Status = model.StatusProcessed
	q.length--
	q.totalQueued = q.totalQueued.Sub(r.UnderlyingAmount)
	delete(q.byOwner, r.Owner)
	return nil
}

// Cancel removes the owner's QUEUED request. A request already marked for
// processing must finish or be force-processed; it cannot be pulled back.
func (q *Queue) Cancel(owner common.Address) (*model.UnstakeRequest, error) {
	id, ok := q.byOwner[owner]
	if !ok {
		return nil, apperrors.New(apperrors.ErrNotFound, "no pending unstake request for this owner", nil)
	}
	r := q.requests[id]
	if r.Status != model.StatusQueued {
		return nil, apperrors.Newf(apperrors.ErrStateConflict,
			"cannot cancel request in status %s", r.Status)
	}
	q.removeFromOrder(id)
	q.length--
	q.totalQueued = q.totalQueued.Sub(r.UnderlyingAmount)
	delete(q.byOwner, owner)
	delete(q.requests, id)
	cancelled := *r
	cancelled.Status = model.StatusCancelled
	return &cancelled, nil
}

// ClaimEligible returns the owner's PROCESSED requests whose cooldown has
// elapsed, oldest first.
func (q *Queue) ClaimEligible(owner common.Address, cooldown time.Duration) []*model.UnstakeRequest {
	now := q.now()
	var out []*model.UnstakeRequest
	for _, r := range q.requests {
		if r.Owner != owner || r.Status != model.StatusProcessed {
			continue
		}
		if now.Sub(r.RequestedAt) < cooldown {
			continue
		}
		out = append(out, r)
	}
	// Oldest first keeps partial early-withdraw consumption deterministic.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ID < out[j-1].ID; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// ProcessedFor returns all PROCESSED requests for the owner, oldest first,
// regardless of cooldown.
func (q *Queue) ProcessedFor(owner common.Address) []*model.UnstakeRequest {
	return q.ClaimEligible(owner, 0)
}

// Drop deletes a terminal request from the index.
func (q *Queue) Drop(id uint64) {
	delete(q.requests, id)
}

// RecordClaim counts a successful claim and, every sweepEvery claims, runs
// a bounded housekeeping sweep deleting abandoned PROCESSED entries past
// the retention window. Best effort, not correctness critical.
func (q *Queue) RecordClaim() int {
	q.claimsSinceSweep++
	if q.claimsSinceSweep < q.sweepEvery {
		return 0
	}
	q.claimsSinceSweep = 0
	return q.sweep()
}

func (q *Queue) sweep() int {
	cutoff := q.now().Add(-q.retention)
	scanned, removed := 0, 0
	for id, r := range q.requests {
		scanned++
		if scanned > sweepScanLimit {
			break
		}
		if r.Status == model.StatusProcessed && r.RequestedAt.Before(cutoff) {
			delete(q.requests, id)
			removed++
		}
	}
	return removed
}

func (q *Queue) removeFromOrder(id uint64) {
	idx, ok := q.pos[id]
	if !ok {
		return
	}
	last := len(q.order) - 1
	moved := q.order[last]
	q.order[idx] = moved
	q.pos[moved] = idx
	q.order = q.order[:last]
	delete(q.pos, id)
}
