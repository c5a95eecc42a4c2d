package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// miningOperations handles mining.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.startMining:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation takes the oldest candidate from the mempool and appends
// it to the chain.
func (w *Worker) runMiningOperation() {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	cand, ok := w.mempool.Next()
	if !ok {
		w.evHandler("worker: runMiningOperation: MINING: no candidates to mine")
		return
	}

	// After running a mining operation, check if a new operation should
	// be signaled again.
	defer func() {
		if length := w.mempool.Count(); length > 0 && !w.isShutdown() {
			w.evHandler("worker: runMiningOperation: MINING: signal new mining operation: candidates[%d]", length)
			w.SignalStartMining()
		}
	}()

	// Drain the cancel mining channel before starting.
	select {
	case <-w.cancelMining:
		w.evHandler("worker: runMiningOperation: MINING: drained cancel channel")
	default:
	}

	// Create a context so mining can be cancelled.
	var ctx context.Context
	var cancel context.CancelFunc
	switch {
	case w.miningTimeout > 0:
		ctx, cancel = context.WithTimeout(context.Background(), w.miningTimeout)
	default:
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	// Can't return from this function until these G's are complete.
	var wg sync.WaitGroup
	wg.Add(2)

	// This G exists to cancel the mining operation.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		select {
		case <-w.cancelMining:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
		case <-w.shut:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: shutdown")
		case <-ctx.Done():
		}
	}()

	// This G is performing the mining.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		t := time.Now()
		block, err := w.chain.AppendBlock(ctx, cand.Block)
		duration := time.Since(t)

		w.evHandler("worker: runMiningOperation: MINING: candidate[%s]: mining duration[%v]", cand.ID, duration)

		switch {
		case err == nil:
			w.evHandler("worker: runMiningOperation: MINING: candidate[%s]: blk[%d]: appended: digest[%s]", cand.ID, block.Index, block.Digest)

		case w.isShutdown():
			w.evHandler("worker: runMiningOperation: MINING: candidate[%s]: CANCEL: shutdown", cand.ID)
			return

		case errors.Is(err, context.DeadlineExceeded):
			w.evHandler("worker: runMiningOperation: MINING: candidate[%s]: WARNING: timed out after %v, dropped", cand.ID, w.miningTimeout)

		case errors.Is(err, context.Canceled):
			w.evHandler("worker: runMiningOperation: MINING: candidate[%s]: CANCEL: complete, dropped", cand.ID)

		default:
			w.evHandler("worker: runMiningOperation: MINING: candidate[%s]: ERROR: %s", cand.ID, err)
		}

		w.mempool.Delete(cand.ID)
	}()

	// Wait for both G's to terminate.
	wg.Wait()
}
