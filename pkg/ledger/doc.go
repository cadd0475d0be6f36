// Package ledger provides two-phase token budget accounting for batch
// inference jobs.
//
// A TokenLedger partitions one shared token budget across concurrently
// running batches. Before dispatching a batch, the orchestrator reserves
// that batch's estimated token cost; when the batch finishes, successfully
// or not, it releases the reservation, which commits the estimate to the
// used count. The admission check is pessimistic: the estimate is held up
// front because the true cost is unknown until the batch completes, so the
// budget can never be over-committed.
//
//	l, err := ledger.New(totalBudget)
//	if err != nil {
//	    return err
//	}
//	if !l.Reserve(batchID, estimatedTokens) {
//	    // budget exhausted or estimate invalid; back off and retry
//	}
//	defer l.Release(batchID)
//
// Unlike the gate in pkg/gate, Reserve never blocks and has no wait queue:
// a rejected reservation returns false immediately and the caller chooses
// its own retry policy.
package ledger
