package indexing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/standardbeagle/relidx/internal/core"
	"github.com/standardbeagle/relidx/internal/debug"
	relerrors "github.com/standardbeagle/relidx/internal/errors"
	"github.com/standardbeagle/relidx/internal/types"
)

// OpType identifies a queued operation
type OpType int

const (
	OpIndex OpType = iota
	OpRemove
	OpRetract
	OpRetractDeclared
	OpClear
	OpQuery
	OpSync
)

func (t OpType) String() string {
	switch t {
	case OpIndex:
		return "index"
	case OpRemove:
		return "remove"
	case OpRetract:
		return "retract"
	case OpRetractDeclared:
		return "retract_declared"
	case OpClear:
		return "clear"
	case OpQuery:
		return "query"
	case OpSync:
		return "sync"
	default:
		return fmt.Sprintf("op(%d)", int(t))
	}
}

// Observer receives one call per applied operation
type Observer interface {
	ObserveOperation(op string, elapsed time.Duration)
}

type operation struct {
	typ   OpType
	unit  types.UnitID
	batch *core.Batch
	fn    func(*core.RelationshipIndex)
	done  chan struct{}
}

// Processor applies index mutations on a single goroutine in submission
// order. Queries submitted through it observe every earlier mutation.
// Reading the index directly stays safe at any time.
type Processor struct {
	index    *core.RelationshipIndex
	ops      chan *operation
	observer Observer

	mu     sync.RWMutex
	closed bool

	done chan struct{}
}

// ProcessorOption configures a Processor
type ProcessorOption func(*Processor)

// WithObserver reports every applied operation to o
func WithObserver(o Observer) ProcessorOption {
	return func(p *Processor) { p.observer = o }
}

// NewProcessor starts the writer goroutine. queueSize bounds the number of
// pending operations before Submit blocks.
func NewProcessor(index *core.RelationshipIndex, queueSize int, opts ...ProcessorOption) *Processor {
	if queueSize <= 0 {
		queueSize = 1
	}
	p := &Processor{
		index: index,
		ops:   make(chan *operation, queueSize),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

// Index returns the index this processor writes to
func (p *Processor) Index() *core.RelationshipIndex {
	return p.index
}

// IndexBatch queues a batch that replaces its unit's contributions
func (p *Processor) IndexBatch(ctx context.Context, b *core.Batch) error {
	if b == nil || b.Unit == "" {
		return nil
	}
	return p.submit(ctx, &operation{typ: OpIndex, unit: b.Unit, batch: b})
}

// RemoveUnit queues removal of a deleted unit
func (p *Processor) RemoveUnit(ctx context.Context, unit types.UnitID) error {
	return p.submit(ctx, &operation{typ: OpRemove, unit: unit})
}

// RetractContributionsOf queues retraction of the facts unit contributed
func (p *Processor) RetractContributionsOf(ctx context.Context, unit types.UnitID) error {
	return p.submit(ctx, &operation{typ: OpRetract, unit: unit})
}

// RetractSubjectsDeclaredIn queues retraction of facts about subjects declared in unit
func (p *Processor) RetractSubjectsDeclaredIn(ctx context.Context, unit types.UnitID) error {
	return p.submit(ctx, &operation{typ: OpRetractDeclared, unit: unit})
}

// Clear queues removal of every fact
func (p *Processor) Clear(ctx context.Context) error {
	return p.submit(ctx, &operation{typ: OpClear})
}

// Do runs fn on the writer goroutine after every earlier operation and
// waits for it to return. fn may read or mutate the index.
func (p *Processor) Do(ctx context.Context, fn func(*core.RelationshipIndex)) error {
	op := &operation{typ: OpQuery, fn: fn, done: make(chan struct{})}
	if err := p.submit(ctx, op); err != nil {
		return err
	}
	return p.wait(ctx, op)
}

// Relationships answers a query ordered after every earlier operation
func (p *Processor) Relationships(ctx context.Context, subject types.Subject, kind types.Kind) ([]types.Location, error) {
	var out []types.Location
	if err := p.Do(ctx, func(idx *core.RelationshipIndex) {
		out = idx.Relationships(subject, kind)
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// Sync waits until every operation submitted before it has been applied
func (p *Processor) Sync(ctx context.Context) error {
	op := &operation{typ: OpSync, done: make(chan struct{})}
	if err := p.submit(ctx, op); err != nil {
		return err
	}
	return p.wait(ctx, op)
}

// Pending returns the number of queued operations
func (p *Processor) Pending() int {
	return len(p.ops)
}

// Close applies every queued operation and stops the writer goroutine.
// Later submissions fail with errors.ErrProcessorClosed.
func (p *Processor) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return nil
	}
	p.closed = true
	close(p.ops)
	p.mu.Unlock()

	<-p.done
	debug.LogQueue("processor stopped\n")
	return nil
}

func (p *Processor) submit(ctx context.Context, op *operation) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return relerrors.ErrProcessorClosed
	}

	select {
	case p.ops <- op:
		return nil
	default:
	}

	debug.LogQueue("queue full (%d pending), waiting to submit %s\n", len(p.ops), op.typ)
	select {
	case p.ops <- op:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) wait(ctx context.Context, op *operation) error {
	select {
	case <-op.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) run() {
	defer close(p.done)
	for op := range p.ops {
		p.apply(op)
	}
}

func (p *Processor) apply(op *operation) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			debug.LogQueue("operation %s on %s panicked: %v\n", op.typ, op.unit, r)
		}
		if op.done != nil {
			close(op.done)
		}
		if p.observer != nil {
			p.observer.ObserveOperation(op.typ.String(), time.Since(start))
		}
	}()

	switch op.typ {
	case OpIndex:
		p.index.ApplyBatch(op.batch)
		debug.LogQueue("indexed %s (%d facts)\n", op.unit, op.batch.Len())
	case OpRemove:
		p.index.RemoveUnit(op.unit)
	case OpRetract:
		p.index.RetractContributionsOf(op.unit)
	case OpRetractDeclared:
		p.index.RetractSubjectsDeclaredIn(op.unit)
	case OpClear:
		p.index.Clear()
	case OpQuery:
		if op.fn != nil {
			op.fn(p.index)
		}
	case OpSync:
	}
}
