package core

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coreerrors "energymarket/core/errors"
	"energymarket/core/events"
	"energymarket/core/state"
	"energymarket/core/types"
	"energymarket/native/bank"
	nativecommon "energymarket/native/common"
	"energymarket/native/escrow"
	"energymarket/native/market"
	"energymarket/native/token"
	"energymarket/observability"
	telemetry "energymarket/observability/otel"
	"energymarket/storage"
)

// ReceiptSink consumes receipts of committed calls.
type ReceiptSink interface {
	HandleReceipt(*types.Receipt) error
}

// Modules exposes the native engines to a call. Engines must only be used
// inside the closure passed to Apply or View.
type Modules struct {
	Token  *token.Engine
	Escrow *escrow.Engine
	Market *market.Engine
	Bank   *bank.Engine
}

// Options configures a Node.
type Options struct {
	Clock           Clock
	Logger          *slog.Logger
	SupplyCap       *big.Int
	TokenCustodian  types.Principal
	EscrowCustodian types.Principal
	Paused          []string
}

type namedSink struct {
	name string
	sink ReceiptSink
}

// Node serialises every call into the native modules and commits each one
// atomically.
type Node struct {
	mu      sync.Mutex
	db      storage.Database
	state   *state.Manager
	clock   Clock
	buffer  *events.Buffer
	modules *Modules
	pauses  *nativecommon.PauseSet
	sinks   []namedSink
	meta    state.NodeMeta
	logger  *slog.Logger
	nowFn   func() time.Time
}

// NewNode wires the engines against db and restores the receipt sequence.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = NewManualClock(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	manager := state.NewManager(db)
	meta, err := manager.NodeMeta()
	if err != nil {
		return nil, fmt.Errorf("node: load meta: %w", err)
	}

	buffer := &events.Buffer{}
	pauses := nativecommon.NewPauseSet(opts.Paused...)

	transfers := bank.NewEngine()
	transfers.SetState(manager)
	transfers.SetEmitter(buffer)

	tokens := token.NewEngine()
	tokens.SetState(manager)
	tokens.SetEmitter(buffer)
	tokens.SetPauses(pauses)
	if opts.SupplyCap != nil {
		tokens.SetSupplyCap(opts.SupplyCap)
	}
	if !opts.TokenCustodian.IsZero() {
		tokens.SetCustodian(opts.TokenCustodian)
	}

	markets := market.NewEngine()
	markets.SetState(manager)
	markets.SetEmitter(buffer)
	markets.SetPauses(pauses)

	escrows := escrow.NewEngine()
	escrows.SetState(manager)
	escrows.SetEmitter(buffer)
	escrows.SetPauses(pauses)
	escrows.SetValueTransfer(transfers)
	escrows.SetProducerResolver(markets)
	escrows.SetLockView(tokens)
	if !opts.EscrowCustodian.IsZero() {
		escrows.SetCustodian(opts.EscrowCustodian)
	}
	transfers.SetCustodian(escrows.Custodian())

	return &Node{
		db:     db,
		state:  manager,
		clock:  clock,
		buffer: buffer,
		modules: &Modules{
			Token:  tokens,
			Escrow: escrows,
			Market: markets,
			Bank:   transfers,
		},
		pauses: pauses,
		meta:   *meta,
		logger: logger,
		nowFn:  time.Now,
	}, nil
}

// AddSink registers a receipt consumer. Sinks run in registration order after
// every commit.
func (n *Node) AddSink(name string, sink ReceiptSink) {
	if sink == nil {
		return
	}
	n.mu.Lock()
	n.sinks = append(n.sinks, namedSink{name: name, sink: sink})
	n.mu.Unlock()
}

// Pauses returns the operator pause set guarding mutating calls.
func (n *Node) Pauses() *nativecommon.PauseSet { return n.pauses }

// Height returns the height the next call would execute at.
func (n *Node) Height() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.height()
}

// Sequence returns the sequence number of the last committed receipt.
func (n *Node) Sequence() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.meta.Sequence
}

// height never goes below the last committed height, even if the clock was
// restarted from an earlier value.
func (n *Node) height() uint64 {
	h := n.clock.Height()
	if h < n.meta.Height {
		return n.meta.Height
	}
	return h
}

// Apply runs fn as one atomic call on behalf of caller. On success the state
// changes and events are committed and a receipt is returned; on failure
// nothing fn wrote survives.
func (n *Node) Apply(ctx context.Context, caller types.Principal, label string, fn func(types.CallContext, *Modules) error) (*types.Receipt, error) {
	if fn == nil {
		return nil, fmt.Errorf("node: nil call")
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	start := time.Now()
	call := types.NewCallContext(caller, n.height())
	ctx, span := telemetry.Tracer().Start(ctx, label, trace.WithAttributes(
		append(telemetry.OperationAttributes(label),
			attribute.String("caller", caller.String()),
			attribute.Int64("height", int64(call.Height)))...,
	))
	defer span.End()

	if err := fn(call, n.modules); err != nil {
		n.abort()
		outcome := coreerrors.CategoryOf(err).String()
		observability.Node().ObserveCall(label, outcome, call.Height, time.Since(start))
		telemetry.Calls().Record(ctx, label, outcome, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		n.logger.DebugContext(ctx, "call rejected",
			slog.String("operation", label),
			slog.String("caller", caller.String()),
			slog.Uint64("height", call.Height),
			slog.String("error", err.Error()))
		return nil, err
	}

	next := state.NodeMeta{Sequence: n.meta.Sequence + 1, Height: call.Height}
	if err := n.state.PutNodeMeta(&next); err != nil {
		n.abort()
		return nil, fmt.Errorf("node: record meta: %w", err)
	}
	if err := n.state.Commit(); err != nil {
		n.abort()
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit")
		return nil, err
	}
	n.meta = next

	receipt := &types.Receipt{
		ID:        uuid.NewString(),
		Sequence:  next.Sequence,
		Height:    call.Height,
		Caller:    caller.String(),
		Operation: label,
		Events:    n.buffer.Drain(),
		Timestamp: n.nowFn().Unix(),
	}
	span.SetAttributes(
		attribute.String("receipt", receipt.ID),
		attribute.Int("events", len(receipt.Events)),
	)
	observability.Node().ObserveCall(label, "committed", call.Height, time.Since(start))
	telemetry.Calls().Record(ctx, label, "committed", len(receipt.Events))
	for _, evt := range receipt.Events {
		observability.Events().RecordEvent(evt.Type)
	}
	n.logger.InfoContext(ctx, "call committed",
		slog.String("operation", label),
		slog.String("caller", caller.String()),
		slog.Uint64("height", call.Height),
		slog.String("receipt", receipt.ID),
		slog.Int("events", len(receipt.Events)))
	n.publish(ctx, receipt)
	return receipt.Clone(), nil
}

func (n *Node) abort() {
	n.state.Rollback()
	n.buffer.Discard()
}

// publish hands the receipt to every sink. The call is already committed, so
// sink failures are reported but not returned.
func (n *Node) publish(ctx context.Context, receipt *types.Receipt) {
	for _, s := range n.sinks {
		if err := s.sink.HandleReceipt(receipt.Clone()); err != nil {
			observability.Node().RecordSinkError(s.name)
			n.logger.WarnContext(ctx, "receipt sink failed",
				slog.String("component", s.name),
				slog.String("receipt", receipt.ID),
				slog.String("error", err.Error()))
		}
	}
}

// View runs a read-only closure against committed state at the current
// height. Anything the closure writes is discarded.
func (n *Node) View(fn func(types.CallContext, *Modules) error) error {
	if fn == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	defer n.abort()
	return fn(types.NewCallContext("", n.height()), n.modules)
}
