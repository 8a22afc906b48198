package escrow

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"energymarket/core/events"
	"energymarket/core/types"
	nativecommon "energymarket/native/common"
	"energymarket/native/token"
)

var errNilState = errors.New("escrow engine: state not configured")

type engineState interface {
	EscrowRegistry() (*Registry, error)
	EscrowPutRegistry(*Registry) error
	EscrowPut(*Escrow) error
	EscrowGet(id uint64) (*Escrow, bool, error)
	EscrowBalance(id uint64) (*big.Int, bool, error)
	EscrowSetBalance(id uint64, amount *big.Int) error
	EscrowDeleteBalance(id uint64) error
}

// ValueTransfer moves native value between accounts. Implementations either
// apply the full transfer or return an error without side effects.
type ValueTransfer interface {
	TransferValue(amount *big.Int, from, to types.Principal) error
}

// ProducerResolver resolves the producer behind an offer.
type ProducerResolver interface {
	OfferProducer(offerID uint64) (types.Principal, bool, error)
}

// LockView looks up ledger token locks.
type LockView interface {
	Lock(lockID uint64) (*token.Lock, bool, error)
}

// Engine implements the escrow lifecycle: initiation with custody of
// amount × price, release to the producer, refund or cancellation to the
// buyer after expiry, and dispute resolution by the dispute authority.
type Engine struct {
	state     engineState
	emitter   events.Emitter
	pauses    nativecommon.PauseView
	transfers ValueTransfer
	producers ProducerResolver
	locks     LockView
	custodian types.Principal
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter:   events.NoopEmitter{},
		custodian: DefaultCustodian,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the pause view consulted before every mutation.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetValueTransfer configures the capability used for natively custodied
// currencies.
func (e *Engine) SetValueTransfer(t ValueTransfer) { e.transfers = t }

// SetProducerResolver configures how offer producers are resolved.
func (e *Engine) SetProducerResolver(r ProducerResolver) { e.producers = r }

// SetLockView enables validation of linked token locks.
func (e *Engine) SetLockView(v LockView) { e.locks = v }

// SetCustodian overrides the custodial account.
func (e *Engine) SetCustodian(custodian types.Principal) {
	if custodian.IsZero() {
		return
	}
	e.custodian = custodian
}

// Custodian returns the custodial account.
func (e *Engine) Custodian() types.Principal { return e.custodian }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Typed{Payload: evt})
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) guard() error {
	if err := e.ready(); err != nil {
		return err
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) registry() (*Registry, error) {
	reg, err := e.state.EscrowRegistry()
	if err != nil {
		return nil, err
	}
	return reg.Clone(), nil
}

func (e *Engine) loadEscrow(id uint64) (*Escrow, error) {
	esc, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return esc.Clone(), nil
}

// custodialBalance returns the escrow's custodial balance. Its absence for a
// non-terminal escrow means the record was already settled.
func (e *Engine) custodialBalance(id uint64) (*big.Int, error) {
	bal, ok, err := e.state.EscrowBalance(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientBalance
	}
	return cloneBigInt(bal), nil
}

func (e *Engine) transfer(currency types.Currency, amount *big.Int, from, to types.Principal) error {
	if !currency.NativeCustody() {
		return nil
	}
	if e.transfers == nil {
		return fmt.Errorf("%w: value transfer not configured", ErrValueTransferFailed)
	}
	if err := e.transfers.TransferValue(cloneBigInt(amount), from, to); err != nil {
		return fmt.Errorf("%w: %v", ErrValueTransferFailed, err)
	}
	return nil
}

// activeError maps a non-active status onto the error reported to callers.
func activeError(status EscrowStatus) error {
	if status == EscrowCancelled {
		return ErrEscrowCancelled
	}
	return ErrInvalidState
}

// SetDisputeAuthority configures the dispute authority. It succeeds exactly
// once.
func (e *Engine) SetDisputeAuthority(call types.CallContext, authority types.Principal) error {
	if err := e.guard(); err != nil {
		return err
	}
	reg, err := e.registry()
	if err != nil {
		return err
	}
	if reg.HasDisputeAuthority {
		return ErrAuthorityAlreadySet
	}
	if authority.IsZero() || authority.IsNull() {
		return ErrInvalidAuthority
	}
	reg.DisputeAuthority = authority
	reg.HasDisputeAuthority = true
	if err := e.state.EscrowPutRegistry(reg); err != nil {
		return err
	}
	e.emit(NewDisputeAuthoritySetEvent(authority))
	return nil
}

// DisputeAuthority returns the configured dispute authority, if any.
func (e *Engine) DisputeAuthority() (types.Principal, bool, error) {
	if err := e.ready(); err != nil {
		return "", false, err
	}
	reg, err := e.registry()
	if err != nil {
		return "", false, err
	}
	return reg.DisputeAuthority, reg.HasDisputeAuthority, nil
}

// InitiateParams describes a new escrow opened by the caller as buyer.
type InitiateParams struct {
	OfferID     uint64
	BidID       uint64
	Amount      *big.Int
	Price       *big.Int
	Currency    types.Currency
	ExpiresIn   uint64
	TokenLockID *uint64
}

// Initiate opens an escrow for amount × price with the caller as buyer and
// returns the allocated escrow id. Natively custodied currencies move the
// total from the buyer to the custodian.
func (e *Engine) Initiate(call types.CallContext, params InitiateParams) (uint64, error) {
	if err := e.guard(); err != nil {
		return 0, err
	}
	if params.Amount == nil || params.Amount.Sign() <= 0 || params.Price == nil || params.Price.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	if params.ExpiresIn == 0 || params.ExpiresIn > math.MaxUint64-call.Height {
		return 0, ErrInvalidExpiry
	}
	if !params.Currency.Valid() {
		return 0, ErrInvalidCurrency
	}
	total, ok := checkedTotal(params.Amount, params.Price)
	if !ok {
		return 0, ErrInvalidAmount
	}
	if e.producers == nil {
		return 0, fmt.Errorf("%w: producer resolver not configured", ErrInvalidParty)
	}
	producer, found, err := e.producers.OfferProducer(params.OfferID)
	if err != nil {
		return 0, err
	}
	if !found || producer.IsZero() || producer == call.Caller || call.Caller == e.custodian {
		return 0, ErrInvalidParty
	}
	if params.TokenLockID != nil && e.locks != nil {
		lock, exists, err := e.locks.Lock(*params.TokenLockID)
		if err != nil {
			return 0, err
		}
		if !exists || lock.Owner != call.Caller {
			return 0, ErrTokenLockInvalid
		}
	}
	reg, err := e.registry()
	if err != nil {
		return 0, err
	}
	esc := &Escrow{
		ID:        reg.NextEscrowID,
		OfferID:   params.OfferID,
		BidID:     params.BidID,
		Producer:  producer,
		Buyer:     call.Caller,
		Amount:    cloneBigInt(params.Amount),
		Price:     cloneBigInt(params.Price),
		Currency:  params.Currency,
		Status:    EscrowActive,
		CreatedAt: call.Height,
		ExpiresAt: call.Height + params.ExpiresIn,
	}
	if params.TokenLockID != nil {
		esc.TokenLockID = *params.TokenLockID
		esc.HasTokenLock = true
	}
	reg.NextEscrowID++

	if err := e.transfer(esc.Currency, total, esc.Buyer, e.custodian); err != nil {
		return 0, err
	}
	if err := e.state.EscrowPut(esc); err != nil {
		return 0, err
	}
	if err := e.state.EscrowSetBalance(esc.ID, total); err != nil {
		return 0, err
	}
	if err := e.state.EscrowPutRegistry(reg); err != nil {
		return 0, err
	}
	e.emit(NewInitiatedEvent(esc))
	return esc.ID, nil
}

// Release pays the custodial balance to the producer. Either party may release
// while the escrow is active and unexpired.
func (e *Engine) Release(call types.CallContext, id uint64) error {
	if err := e.guard(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.Status != EscrowActive {
		return activeError(esc.Status)
	}
	if call.Height > esc.ExpiresAt {
		return ErrEscrowExpired
	}
	if call.Caller != esc.Producer && call.Caller != esc.Buyer {
		return ErrNotAuthorized
	}
	return e.settle(esc, EscrowReleased, esc.Producer, false)
}

// Refund returns the custodial balance to the buyer once the escrow expired.
func (e *Engine) Refund(call types.CallContext, id uint64) error {
	if err := e.guard(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if err := e.checkBuyerExit(call, esc); err != nil {
		return err
	}
	return e.settle(esc, EscrowRefunded, esc.Buyer, false)
}

// Cancel closes an expired escrow on behalf of the buyer and refunds the
// custodial balance. Refund and Cancel are alternative exits; whichever runs
// first settles the escrow.
func (e *Engine) Cancel(call types.CallContext, id uint64) error {
	if err := e.guard(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if err := e.checkBuyerExit(call, esc); err != nil {
		return err
	}
	return e.settle(esc, EscrowCancelled, esc.Buyer, false)
}

func (e *Engine) checkBuyerExit(call types.CallContext, esc *Escrow) error {
	if esc.Status != EscrowActive {
		return activeError(esc.Status)
	}
	if call.Height <= esc.ExpiresAt {
		return ErrEscrowNotExpired
	}
	if call.Caller != esc.Buyer {
		return ErrNotAuthorized
	}
	return nil
}

// RaiseDispute freezes an active escrow until the dispute authority resolves
// it. No funds move.
func (e *Engine) RaiseDispute(call types.CallContext, id uint64) error {
	if err := e.guard(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.Status != EscrowActive {
		return activeError(esc.Status)
	}
	reg, err := e.registry()
	if err != nil {
		return err
	}
	if !reg.HasDisputeAuthority {
		return ErrDisputeNotAllowed
	}
	if call.Caller != esc.Producer && call.Caller != esc.Buyer {
		return ErrNotAuthorized
	}
	esc.Status = EscrowDisputed
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewDisputedEvent(esc))
	return nil
}

// ResolveDispute settles a disputed escrow, paying the producer when
// releaseToProducer is set and the buyer otherwise.
func (e *Engine) ResolveDispute(call types.CallContext, id uint64, releaseToProducer bool) error {
	if err := e.guard(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.Status != EscrowDisputed {
		if esc.Status.Terminal() {
			return ErrAlreadyResolved
		}
		return ErrInvalidState
	}
	reg, err := e.registry()
	if err != nil {
		return err
	}
	if !reg.HasDisputeAuthority || call.Caller != reg.DisputeAuthority {
		return ErrNotAuthorized
	}
	status, recipient := EscrowRefunded, esc.Buyer
	if releaseToProducer {
		status, recipient = EscrowReleased, esc.Producer
	}
	return e.settle(esc, status, recipient, true)
}

// settle pays the custodial balance to recipient, moves the escrow into the
// terminal status and deletes the balance record. Dispute resolutions also
// emit a resolved event after the status event.
func (e *Engine) settle(esc *Escrow, status EscrowStatus, recipient types.Principal, resolution bool) error {
	total, err := e.custodialBalance(esc.ID)
	if err != nil {
		return err
	}
	if err := e.transfer(esc.Currency, total, e.custodian, recipient); err != nil {
		return err
	}
	esc.Status = status
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	if err := e.state.EscrowDeleteBalance(esc.ID); err != nil {
		return err
	}
	switch status {
	case EscrowReleased:
		e.emit(NewReleasedEvent(esc))
	case EscrowRefunded:
		e.emit(NewRefundedEvent(esc))
	case EscrowCancelled:
		e.emit(NewCancelledEvent(esc))
	}
	if resolution {
		e.emit(NewResolvedEvent(esc, recipient))
	}
	return nil
}

// Escrow returns the escrow record with the supplied id.
func (e *Engine) Escrow(id uint64) (*Escrow, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	esc, ok, err := e.state.EscrowGet(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return esc.Clone(), true, nil
}

// Balance returns the custodial balance of an escrow. It reports false once
// the escrow reached a terminal status.
func (e *Engine) Balance(id uint64) (*big.Int, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	bal, ok, err := e.state.EscrowBalance(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return cloneBigInt(bal), true, nil
}
