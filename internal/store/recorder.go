package store

import (
	"sync"
	"sync/atomic"

	"github.com/banshee-data/motionshield/internal/monitoring"
)

// Recorder decouples the control loop from sqlite write latency: Record
// never blocks, a background goroutine drains the buffer into the store.
// When the buffer is full the record is dropped and counted; the control
// loop always wins over the flight log.
type Recorder struct {
	store *Store
	ch    chan CycleRecord

	dropped atomic.Uint64

	once sync.Once
	wg   sync.WaitGroup
}

// NewRecorder starts the background writer with the given buffer depth.
func NewRecorder(store *Store, depth int) *Recorder {
	if depth <= 0 {
		depth = 1024
	}
	r := &Recorder{
		store: store,
		ch:    make(chan CycleRecord, depth),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for rec := range r.ch {
		if err := r.store.RecordCycle(rec); err != nil {
			monitoring.Logf("store: cycle %d not recorded: %v", rec.Cycle, err)
		}
	}
}

// Record enqueues one cycle for writing. Never blocks.
func (r *Recorder) Record(rec CycleRecord) {
	select {
	case r.ch <- rec:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of records lost to a full buffer.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close drains the buffer and stops the writer. The store itself stays open.
func (r *Recorder) Close() error {
	r.once.Do(func() {
		close(r.ch)
	})
	r.wg.Wait()
	return nil
}
