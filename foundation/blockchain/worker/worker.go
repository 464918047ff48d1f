// Package worker implements block production for a single node chain.
package worker

import (
	"sync"
	"time"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/state"
)

// DefaultCycle is the time between two production attempts when no signal
// arrives.
const DefaultCycle = 12 * time.Second

// Config represents the configuration required to run the worker.
type Config struct {
	Producer  signature.Address
	Password  string
	Cycle     time.Duration
	EvHandler state.EventHandler
}

// Worker manages the block production workflows for the blockchain.
type Worker struct {
	state        *state.State
	producer     signature.Address
	password     string
	cycle        time.Duration
	wg           sync.WaitGroup
	shut         chan struct{}
	startProduce chan bool
	evHandler    state.EventHandler
}

// Run creates a Worker, registers the Worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, cfg Config) *Worker {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	cycle := cfg.Cycle
	if cycle <= 0 {
		cycle = DefaultCycle
	}

	w := Worker{
		state:        st,
		producer:     cfg.Producer,
		password:     cfg.Password,
		cycle:        cycle,
		shut:         make(chan struct{}),
		startProduce: make(chan bool, 1),
		evHandler:    ev,
	}

	// Register this Worker with the state package.
	st.Worker = &w

	// Load the set of operations needed to run.
	operations := []func(){
		w.cycleOperations,
		w.produceOperations,
	}

	// Set waitgroup to match the number of G's needed
	// for the set of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// Don't return until all G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operations G's
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: Shutdown: started")
	defer w.evHandler("worker: Shutdown: completed")

	w.evHandler("worker: Shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalProduce starts a production operation. If there is already a signal
// pending in the channel, just return since an operation will start.
func (w *Worker) SignalProduce() {
	select {
	case w.startProduce <- true:
	default:
	}
	w.evHandler("worker: SignalProduce: production signaled")
}

// =============================================================================

// produceOperations handles production requested through SignalProduce.
func (w *Worker) produceOperations() {
	w.evHandler("worker: produceOperations: G started")
	defer w.evHandler("worker: produceOperations: G completed")

	for {
		select {
		case <-w.startProduce:
			if !w.isShutdown() {
				w.runProduceOperation()
			}
		case <-w.shut:
			w.evHandler("worker: produceOperations: received shut signal")
			return
		}
	}
}

// isShutdown is used to test if a Shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
