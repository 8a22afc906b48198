package bank

import (
	"errors"
	"math/big"

	coreerrors "energymarket/core/errors"
	"energymarket/core/events"
	"energymarket/core/types"
)

const moduleName = "bank"

const (
	EventTypeTransferred = "bank.transferred"
	EventTypeCredited    = "bank.credited"
)

var (
	ErrInvalidAmount       = coreerrors.New(moduleName, 100, coreerrors.CategoryValidation, "amount must be positive")
	ErrInvalidRecipient    = coreerrors.New(moduleName, 101, coreerrors.CategoryValidation, "invalid recipient")
	ErrInsufficientBalance = coreerrors.New(moduleName, 102, coreerrors.CategoryState, "insufficient balance")
	ErrNotAuthorized       = coreerrors.New(moduleName, 103, coreerrors.CategoryAuthorization, "not authorized")
)

var errNilState = errors.New("bank: state not configured")

type engineState interface {
	BankBalance(addr types.Principal) (*big.Int, error)
	BankSetBalance(addr types.Principal, amount *big.Int) error
}

// Engine holds native (STX) balances and implements the value-transfer
// capability consumed by the escrow module.
type Engine struct {
	state     engineState
	emitter   events.Emitter
	custodian types.Principal
}

func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

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

// SetCustodian names the escrow custodial account. Its balance only moves
// through TransferValue, so Send rejects it as sender or recipient.
func (e *Engine) SetCustodian(custodian types.Principal) { e.custodian = custodian }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) balance(addr types.Principal) (*big.Int, error) {
	bal, err := e.state.BankBalance(addr)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

// TransferValue moves amount from one account to another. Both balances are
// read and checked before either is written.
func (e *Engine) TransferValue(amount *big.Int, from, to types.Principal) error {
	if err := e.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if from.IsZero() || to.IsZero() || from == to {
		return ErrInvalidRecipient
	}
	fromBal, err := e.balance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := e.balance(to)
	if err != nil {
		return err
	}
	if err := e.state.BankSetBalance(from, fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := e.state.BankSetBalance(to, toBal.Add(toBal, amount)); err != nil {
		return err
	}
	e.emitter.Emit(events.Typed{Payload: &types.Event{Type: EventTypeTransferred, Attributes: map[string]string{
		"from":   from.String(),
		"to":     to.String(),
		"amount": amount.String(),
	}}})
	return nil
}

// Send transfers native value on behalf of the caller.
func (e *Engine) Send(call types.CallContext, amount *big.Int, to types.Principal) error {
	if call.Caller.IsZero() {
		return ErrNotAuthorized
	}
	if !e.custodian.IsZero() {
		if call.Caller == e.custodian {
			return ErrNotAuthorized
		}
		if to == e.custodian {
			return ErrInvalidRecipient
		}
	}
	return e.TransferValue(amount, call.Caller, to)
}

// Credit seeds an account balance. It is only used while applying genesis.
func (e *Engine) Credit(addr types.Principal, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if addr.IsZero() {
		return ErrInvalidRecipient
	}
	bal, err := e.balance(addr)
	if err != nil {
		return err
	}
	if err := e.state.BankSetBalance(addr, bal.Add(bal, amount)); err != nil {
		return err
	}
	e.emitter.Emit(events.Typed{Payload: &types.Event{Type: EventTypeCredited, Attributes: map[string]string{
		"account": addr.String(),
		"amount":  amount.String(),
		"balance": bal.String(),
	}}})
	return nil
}

// Balance returns the native balance of addr.
func (e *Engine) Balance(addr types.Principal) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.balance(addr)
}
