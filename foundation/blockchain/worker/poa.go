package worker

import (
	"errors"
	"time"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/state"
)

// cycleOperations attempts production on every cycle, so transactions left
// behind by a full block or a failed attempt are picked up.
func (w *Worker) cycleOperations() {
	w.evHandler("worker: cycleOperations: G started")
	defer w.evHandler("worker: cycleOperations: G completed")

	ticker := time.NewTicker(w.cycle)
	defer ticker.Stop()

	// Start this on a cycle mark: ex. MM.00, MM.12, MM.24, MM.36
	resetTicker(ticker, w.cycle, w.cycle)

	for {
		select {
		case <-ticker.C:
			if !w.isShutdown() {
				w.runProduceOperation()
			}
		case <-w.shut:
			w.evHandler("worker: cycleOperations: received shut down signal")
			return
		}

		// Reset the ticker for the next cycle.
		resetTicker(ticker, w.cycle, 0)
	}
}

// runProduceOperation takes the best transactions from the mempool and
// writes a new block to the database.
func (w *Worker) runProduceOperation() {
	w.evHandler("worker: runProduceOperation: started")
	defer w.evHandler("worker: runProduceOperation: completed")

	// Ensure there are transactions in the mempool.
	length := w.state.QueryMempoolLength()
	if length == 0 {
		w.evHandler("worker: runProduceOperation: no transactions to produce: Tx[%d]", length)
		return
	}

	t := time.Now()
	block, err := w.state.ProduceBlock(w.producer, w.password)
	duration := time.Since(t)

	w.evHandler("worker: runProduceOperation: duration[%v]", duration)

	if err != nil {
		switch {
		case errors.Is(err, state.ErrNoTransactions):
			w.evHandler("worker: runProduceOperation: WARNING: no transactions in mempool")
		default:
			w.evHandler("worker: runProduceOperation: ERROR: %s", err)
		}
		return
	}

	w.evHandler("worker: runProduceOperation: height[%d] blk[%s] txs[%d]", block.Header.Height, block.Header.Hash, len(block.Transactions))

	// A block is capped by the genesis tx count. Go again for the rest.
	if w.state.QueryMempoolLength() > 0 {
		w.SignalProduce()
	}
}

// =============================================================================

// resetTicker ensures that the next tick happens on the described cadence.
func resetTicker(ticker *time.Ticker, cycle time.Duration, waitOnSecond time.Duration) {
	nextTick := time.Now().Add(cycle).Round(waitOnSecond)
	diff := time.Until(nextTick)
	if diff <= 0 {
		diff = cycle
	}
	ticker.Reset(diff)
}
