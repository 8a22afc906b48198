package token

import (
	"errors"
	"math/big"

	"energymarket/core/events"
	"energymarket/core/types"
	nativecommon "energymarket/native/common"
)

var errNilState = errors.New("token engine: state not configured")

type engineState interface {
	TokenRegistry() (*Registry, error)
	TokenPutRegistry(*Registry) error
	TokenBalance(owner types.Principal) (*big.Int, error)
	TokenSetBalance(owner types.Principal, amount *big.Int) error
	TokenSupply() (*big.Int, error)
	TokenSetSupply(total *big.Int) error
	TokenProducerVerified(producer types.Principal) (bool, error)
	TokenSetProducerVerified(producer types.Principal, verified bool) error
	TokenMintHistory(producer types.Principal) (*big.Int, error)
	TokenSetMintHistory(producer types.Principal, minted *big.Int) error
	TokenLockPut(*Lock) error
	TokenLockGet(id uint64) (*Lock, bool, error)
	TokenLockDelete(id uint64) error
	TokenLocksByOwner(owner types.Principal) ([]*Lock, error)
}

// Engine implements the energy token ledger: mint authority, verified
// producers, capped supply, transfers and time-locked balances. Every
// operation checks all of its preconditions before the first write.
type Engine struct {
	state     engineState
	emitter   events.Emitter
	pauses    nativecommon.PauseView
	supplyCap *big.Int
	custodian types.Principal
}

// NewEngine creates a token engine with the default supply cap and custodian
// and a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter:   events.NoopEmitter{},
		supplyCap: new(big.Int).Set(DefaultSupplyCap),
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

// SetSupplyCap overrides the maximum total supply. Non-positive values are
// ignored.
func (e *Engine) SetSupplyCap(limit *big.Int) {
	if limit == nil || limit.Sign() <= 0 {
		return
	}
	e.supplyCap = new(big.Int).Set(limit)
}

// SupplyCap returns the configured supply cap.
func (e *Engine) SupplyCap() *big.Int { return cloneBigInt(e.supplyCap) }

// SetCustodian overrides the account that holds locked tokens.
func (e *Engine) SetCustodian(custodian types.Principal) {
	if custodian.IsZero() {
		return
	}
	e.custodian = custodian
}

// Custodian returns the account holding locked tokens.
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
	reg, err := e.state.TokenRegistry()
	if err != nil {
		return nil, err
	}
	return reg.Clone(), nil
}

func (e *Engine) balance(owner types.Principal) (*big.Int, error) {
	bal, err := e.state.TokenBalance(owner)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(bal), nil
}

func positive(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}

// SetMintAuthority configures the mint authority. It succeeds exactly once.
func (e *Engine) SetMintAuthority(call types.CallContext, authority types.Principal) error {
	if err := e.guard(); err != nil {
		return err
	}
	reg, err := e.registry()
	if err != nil {
		return err
	}
	if reg.HasMintAuthority {
		return ErrAuthorityAlreadySet
	}
	if authority.IsZero() || authority.IsNull() {
		return ErrInvalidAuthority
	}
	reg.MintAuthority = authority
	reg.HasMintAuthority = true
	if err := e.state.TokenPutRegistry(reg); err != nil {
		return err
	}
	e.emit(NewMintAuthoritySetEvent(authority))
	return nil
}

// MintAuthority returns the configured mint authority, if any.
func (e *Engine) MintAuthority() (types.Principal, bool, error) {
	if err := e.ready(); err != nil {
		return "", false, err
	}
	reg, err := e.registry()
	if err != nil {
		return "", false, err
	}
	return reg.MintAuthority, reg.HasMintAuthority, nil
}

func (e *Engine) requireMintAuthority(caller types.Principal) error {
	reg, err := e.registry()
	if err != nil {
		return err
	}
	if !reg.HasMintAuthority || caller != reg.MintAuthority {
		return ErrNotAuthorized
	}
	return nil
}

// VerifyProducer adds the producer to the verified set. Only the mint
// authority may call it.
func (e *Engine) VerifyProducer(call types.CallContext, producer types.Principal) error {
	return e.setProducer(call, producer, true)
}

// RevokeProducer removes the producer from the verified set. Only the mint
// authority may call it.
func (e *Engine) RevokeProducer(call types.CallContext, producer types.Principal) error {
	return e.setProducer(call, producer, false)
}

func (e *Engine) setProducer(call types.CallContext, producer types.Principal, verified bool) error {
	if err := e.guard(); err != nil {
		return err
	}
	if err := e.requireMintAuthority(call.Caller); err != nil {
		return err
	}
	if producer.IsZero() {
		return ErrInvalidRecipient
	}
	if err := e.state.TokenSetProducerVerified(producer, verified); err != nil {
		return err
	}
	eventType := EventTypeProducerVerified
	if !verified {
		eventType = EventTypeProducerRevoked
	}
	e.emit(NewProducerEvent(eventType, call.Caller, producer))
	return nil
}

// IsVerifiedProducer reports whether the producer may mint.
func (e *Engine) IsVerifiedProducer(producer types.Principal) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.state.TokenProducerVerified(producer)
}

// Mint creates amount new tokens for recipient. The caller must be a verified
// producer and the resulting supply must not exceed the cap.
func (e *Engine) Mint(call types.CallContext, amount *big.Int, recipient types.Principal) error {
	if err := e.guard(); err != nil {
		return err
	}
	reg, err := e.registry()
	if err != nil {
		return err
	}
	if !reg.HasMintAuthority {
		return ErrMintAuthorityNotSet
	}
	verified, err := e.state.TokenProducerVerified(call.Caller)
	if err != nil {
		return err
	}
	if !verified {
		return ErrProducerNotVerified
	}
	if !positive(amount) {
		return ErrInvalidAmount
	}
	if recipient.IsZero() || recipient == e.custodian {
		return ErrInvalidRecipient
	}
	supply, err := e.state.TokenSupply()
	if err != nil {
		return err
	}
	updatedSupply := new(big.Int).Add(cloneBigInt(supply), amount)
	if updatedSupply.Cmp(e.supplyCap) > 0 {
		return ErrMintLimitExceeded
	}
	recipientBal, err := e.balance(recipient)
	if err != nil {
		return err
	}
	minted, err := e.state.TokenMintHistory(call.Caller)
	if err != nil {
		return err
	}

	if err := e.state.TokenSetBalance(recipient, recipientBal.Add(recipientBal, amount)); err != nil {
		return err
	}
	if err := e.state.TokenSetSupply(updatedSupply); err != nil {
		return err
	}
	if err := e.state.TokenSetMintHistory(call.Caller, new(big.Int).Add(cloneBigInt(minted), amount)); err != nil {
		return err
	}
	e.emit(NewMintedEvent(call.Caller, recipient, amount, updatedSupply))
	return nil
}

// Burn destroys amount tokens from the caller's own balance.
func (e *Engine) Burn(call types.CallContext, amount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	if !positive(amount) {
		return ErrInvalidAmount
	}
	if call.Caller == e.custodian {
		return ErrNotAuthorized
	}
	bal, err := e.balance(call.Caller)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := e.state.TokenSupply()
	if err != nil {
		return err
	}
	updatedSupply := new(big.Int).Sub(cloneBigInt(supply), amount)
	if updatedSupply.Sign() < 0 {
		return ErrSupplyUnderflow
	}

	if err := e.state.TokenSetBalance(call.Caller, bal.Sub(bal, amount)); err != nil {
		return err
	}
	if err := e.state.TokenSetSupply(updatedSupply); err != nil {
		return err
	}
	e.emit(NewBurnedEvent(call.Caller, amount, updatedSupply))
	return nil
}

// Transfer moves amount from sender to recipient. The caller must be the
// sender.
func (e *Engine) Transfer(call types.CallContext, amount *big.Int, sender, recipient types.Principal) error {
	if err := e.guard(); err != nil {
		return err
	}
	if call.Caller != sender || sender == e.custodian {
		return ErrNotAuthorized
	}
	if !positive(amount) {
		return ErrInvalidAmount
	}
	if sender == recipient || recipient.IsZero() || recipient == e.custodian {
		return ErrInvalidRecipient
	}
	senderBal, err := e.balance(sender)
	if err != nil {
		return err
	}
	if senderBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	recipientBal, err := e.balance(recipient)
	if err != nil {
		return err
	}

	if err := e.state.TokenSetBalance(sender, senderBal.Sub(senderBal, amount)); err != nil {
		return err
	}
	if err := e.state.TokenSetBalance(recipient, recipientBal.Add(recipientBal, amount)); err != nil {
		return err
	}
	e.emit(NewTransferredEvent(sender, recipient, amount))
	return nil
}

// LockTokens moves amount from the caller into custody until expiry and
// returns the freshly allocated lock id.
func (e *Engine) LockTokens(call types.CallContext, amount *big.Int, expiry uint64) (uint64, error) {
	if err := e.guard(); err != nil {
		return 0, err
	}
	if !positive(amount) {
		return 0, ErrInvalidAmount
	}
	if expiry <= call.Height {
		return 0, ErrInvalidExpiry
	}
	if call.Caller == e.custodian {
		return 0, ErrNotAuthorized
	}
	bal, err := e.balance(call.Caller)
	if err != nil {
		return 0, err
	}
	if bal.Cmp(amount) < 0 {
		return 0, ErrInsufficientBalance
	}
	custodyBal, err := e.balance(e.custodian)
	if err != nil {
		return 0, err
	}
	reg, err := e.registry()
	if err != nil {
		return 0, err
	}
	lock := &Lock{
		ID:     reg.NextLockID,
		Owner:  call.Caller,
		Amount: cloneBigInt(amount),
		Expiry: expiry,
	}
	reg.NextLockID++

	if err := e.state.TokenSetBalance(call.Caller, bal.Sub(bal, amount)); err != nil {
		return 0, err
	}
	if err := e.state.TokenSetBalance(e.custodian, custodyBal.Add(custodyBal, amount)); err != nil {
		return 0, err
	}
	if err := e.state.TokenLockPut(lock); err != nil {
		return 0, err
	}
	if err := e.state.TokenPutRegistry(reg); err != nil {
		return 0, err
	}
	e.emit(NewLockedEvent(lock))
	return lock.ID, nil
}

// UnlockTokens returns a lock's amount to its owner once the lock expired.
func (e *Engine) UnlockTokens(call types.CallContext, lockID uint64) error {
	if err := e.guard(); err != nil {
		return err
	}
	lock, ok, err := e.state.TokenLockGet(lockID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockNotFound
	}
	if lock.Owner != call.Caller {
		return ErrNotAuthorized
	}
	if call.Height < lock.Expiry {
		return ErrTokenLocked
	}
	custodyBal, err := e.balance(e.custodian)
	if err != nil {
		return err
	}
	if custodyBal.Cmp(lock.Amount) < 0 {
		return ErrInsufficientBalance
	}
	ownerBal, err := e.balance(lock.Owner)
	if err != nil {
		return err
	}

	if err := e.state.TokenSetBalance(e.custodian, custodyBal.Sub(custodyBal, lock.Amount)); err != nil {
		return err
	}
	if err := e.state.TokenSetBalance(lock.Owner, ownerBal.Add(ownerBal, lock.Amount)); err != nil {
		return err
	}
	if err := e.state.TokenLockDelete(lockID); err != nil {
		return err
	}
	e.emit(NewUnlockedEvent(lock))
	return nil
}

// Lock returns the lock with the supplied id.
func (e *Engine) Lock(lockID uint64) (*Lock, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	lock, ok, err := e.state.TokenLockGet(lockID)
	if err != nil || !ok {
		return nil, ok, err
	}
	return lock.Clone(), true, nil
}

// LockedBalance sums the owner's locks that have not yet expired at the
// call height. Expired but unclaimed locks are unlock-eligible and excluded.
func (e *Engine) LockedBalance(call types.CallContext, owner types.Principal) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	locks, err := e.state.TokenLocksByOwner(owner)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, lock := range locks {
		if lock.Owner == owner && lock.ActiveAt(call.Height) {
			total.Add(total, lock.Amount)
		}
	}
	return total, nil
}

// Balance returns the owner's spendable balance.
func (e *Engine) Balance(owner types.Principal) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.balance(owner)
}

// TotalSupply returns the circulating supply, including locked tokens.
func (e *Engine) TotalSupply() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	supply, err := e.state.TokenSupply()
	if err != nil {
		return nil, err
	}
	return cloneBigInt(supply), nil
}

// MintHistory returns the cumulative amount minted by the producer.
func (e *Engine) MintHistory(producer types.Principal) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	minted, err := e.state.TokenMintHistory(producer)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(minted), nil
}
