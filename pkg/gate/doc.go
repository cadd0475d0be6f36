// Package gate provides a counting gate that bounds how many batch jobs
// run against the inference backend at once.
//
// A Gate is a counting semaphore with strict FIFO fairness: when no permit
// is free, callers queue in arrival order and each Release hands its permit
// directly to the longest-waiting caller. The gate answers only "may this
// batch start now"; it does not decide what work runs or in what order.
//
// Typical usage, one permit per dispatched batch:
//
//	g, err := gate.New(maxConcurrent)
//	if err != nil {
//	    return err
//	}
//	for _, batch := range batches {
//	    if err := g.Acquire(ctx); err != nil {
//	        return err
//	    }
//	    go func(b Batch) {
//	        defer g.Release()
//	        run(b)
//	    }(batch)
//	}
//
// The gate is safe for concurrent use. It composes with the token ledger in
// pkg/ledger as two independent admission constraints; the caller holds a
// permit and a budget reservation for the duration of each batch.
package gate
