// Package worker runs the mining of submitted blocks off the request path so
// a long proof of work never blocks the callers of the node.
package worker

import (
	"sync"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool"
)

// Config represents the systems the worker needs to run.
type Config struct {
	Chain         *chain.Chain
	Mempool       *mempool.Mempool
	MiningTimeout time.Duration // Zero lets a single mining attempt run until it's solved.
	EvHandler     database.EventHandler
}

// Worker manages the mining workflow for the node.
type Worker struct {
	chain         *chain.Chain
	mempool       *mempool.Mempool
	miningTimeout time.Duration
	evHandler     database.EventHandler

	wg           sync.WaitGroup
	shut         chan struct{}
	startMining  chan bool
	cancelMining chan bool
}

// Run creates a worker and starts up the mining goroutine.
func Run(cfg Config) *Worker {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	w := Worker{
		chain:         cfg.Chain,
		mempool:       cfg.Mempool,
		miningTimeout: cfg.MiningTimeout,
		evHandler:     ev,
		shut:          make(chan struct{}),
		startMining:   make(chan bool, 1),
		cancelMining:  make(chan bool, 1),
	}

	// We don't want to return until we know the G is up and running.
	hasStarted := make(chan bool)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		hasStarted <- true
		w.miningOperations()
	}()

	<-hasStarted

	// Pick up anything that was queued before the worker started.
	if w.mempool.Count() > 0 {
		w.SignalStartMining()
	}

	return &w
}

// Shutdown cancels any mining in progress and terminates the goroutine.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: signal cancel mining")
	w.SignalCancelMining()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// Submit places the block in the mempool and signals a mining operation.
func (w *Worker) Submit(block database.Block) mempool.Candidate {
	cand := w.mempool.Add(block)
	w.evHandler("worker: Submit: candidate[%s]: blk[%d]: queued", cand.ID, block.Index)

	w.SignalStartMining()

	return cand
}

// SignalStartMining starts a mining operation. If there is already a signal
// pending in the channel, just return since a mining operation will start.
func (w *Worker) SignalStartMining() {
	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately.
func (w *Worker) SignalCancelMining() {
	select {
	case w.cancelMining <- true:
	default:
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
