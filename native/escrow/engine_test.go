package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "energymarket/core/errors"
	"energymarket/core/events"
	"energymarket/core/types"
	"energymarket/native/token"
)

const (
	producer  types.Principal = "ST1PRODUCER"
	buyer     types.Principal = "ST1BUYER"
	arbiter   types.Principal = "ST_ARBITER"
	stranger  types.Principal = "ST_STRANGER"
	testOffer uint64          = 7
)

type mockState struct {
	registry *Registry
	escrows  map[uint64]*Escrow
	balances map[uint64]*big.Int
	// created and deleted count custodial balance writes per escrow.
	created map[uint64]int
	deleted map[uint64]int
}

func newMockState() *mockState {
	return &mockState{
		registry: &Registry{},
		escrows:  make(map[uint64]*Escrow),
		balances: make(map[uint64]*big.Int),
		created:  make(map[uint64]int),
		deleted:  make(map[uint64]int),
	}
}

func (m *mockState) EscrowRegistry() (*Registry, error) { return m.registry.Clone(), nil }

func (m *mockState) EscrowPutRegistry(r *Registry) error {
	m.registry = r.Clone()
	return nil
}

func (m *mockState) EscrowPut(e *Escrow) error {
	sanitized, err := SanitizeEscrow(e)
	if err != nil {
		return err
	}
	m.escrows[e.ID] = sanitized
	return nil
}

func (m *mockState) EscrowGet(id uint64) (*Escrow, bool, error) {
	e, ok := m.escrows[id]
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

func (m *mockState) EscrowBalance(id uint64) (*big.Int, bool, error) {
	bal, ok := m.balances[id]
	if !ok {
		return nil, false, nil
	}
	return cloneBigInt(bal), true, nil
}

func (m *mockState) EscrowSetBalance(id uint64, amount *big.Int) error {
	m.balances[id] = cloneBigInt(amount)
	m.created[id]++
	return nil
}

func (m *mockState) EscrowDeleteBalance(id uint64) error {
	delete(m.balances, id)
	m.deleted[id]++
	return nil
}

type transferRecord struct {
	amount   int64
	from, to types.Principal
}

type mockTransfers struct {
	records []transferRecord
	fail    error
}

func (m *mockTransfers) TransferValue(amount *big.Int, from, to types.Principal) error {
	if m.fail != nil {
		return m.fail
	}
	m.records = append(m.records, transferRecord{amount: amount.Int64(), from: from, to: to})
	return nil
}

type resolverFunc func(uint64) (types.Principal, bool, error)

func (f resolverFunc) OfferProducer(id uint64) (types.Principal, bool, error) { return f(id) }

type mockLocks map[uint64]*token.Lock

func (m mockLocks) Lock(id uint64) (*token.Lock, bool, error) {
	l, ok := m[id]
	return l, ok, nil
}

type recordingEmitter struct {
	events []*types.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.events = append(r.events, evt.Event())
}

func (r *recordingEmitter) last() *types.Event {
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

type fixture struct {
	engine    *Engine
	state     *mockState
	transfers *mockTransfers
	emitter   *recordingEmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		engine:    NewEngine(),
		state:     newMockState(),
		transfers: &mockTransfers{},
		emitter:   &recordingEmitter{},
	}
	f.engine.SetState(f.state)
	f.engine.SetEmitter(f.emitter)
	f.engine.SetValueTransfer(f.transfers)
	f.engine.SetProducerResolver(resolverFunc(func(id uint64) (types.Principal, bool, error) {
		if id != testOffer {
			return "", false, nil
		}
		return producer, true, nil
	}))
	return f
}

func at(caller types.Principal, height uint64) types.CallContext {
	return types.NewCallContext(caller, height)
}

func stxParams(amount, price int64, expiresIn uint64) InitiateParams {
	return InitiateParams{
		OfferID:   testOffer,
		BidID:     3,
		Amount:    big.NewInt(amount),
		Price:     big.NewInt(price),
		Currency:  types.CurrencySTX,
		ExpiresIn: expiresIn,
	}
}

func (f *fixture) initiate(t *testing.T, params InitiateParams) uint64 {
	t.Helper()
	id, err := f.engine.Initiate(at(buyer, 100), params)
	require.NoError(t, err)
	return id
}

func TestInitiateSTXEscrow(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, stxParams(100, 50, 20))
	require.Equal(t, uint64(0), id)

	esc, ok, err := f.engine.Escrow(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, producer, esc.Producer)
	require.Equal(t, buyer, esc.Buyer)
	require.Equal(t, EscrowActive, esc.Status)
	require.Equal(t, uint64(100), esc.CreatedAt)
	require.Equal(t, uint64(120), esc.ExpiresAt)

	bal, ok, err := f.engine.Balance(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(5000), bal.Int64())
	require.Equal(t, []transferRecord{{amount: 5000, from: buyer, to: DefaultCustodian}}, f.transfers.records)
	require.Equal(t, EventTypeEscrowInitiated, f.emitter.last().Type)
	require.Equal(t, "5000", f.emitter.last().Attributes["total"])

	next := f.initiate(t, stxParams(1, 1, 1))
	require.Equal(t, uint64(1), next)
}

func TestInitiateOffChainCurrencySkipsTransfer(t *testing.T) {
	f := newFixture(t)
	params := stxParams(10, 5, 10)
	params.Currency = types.CurrencyUSD
	id := f.initiate(t, params)
	require.Empty(t, f.transfers.records)
	bal, ok, err := f.engine.Balance(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(50), bal.Int64())
}

func TestInitiateValidation(t *testing.T) {
	f := newFixture(t)
	call := at(buyer, 100)
	cases := []struct {
		name   string
		mutate func(*InitiateParams)
		want   error
	}{
		{"zero amount", func(p *InitiateParams) { p.Amount = big.NewInt(0) }, ErrInvalidAmount},
		{"nil price", func(p *InitiateParams) { p.Price = nil }, ErrInvalidAmount},
		{"negative price", func(p *InitiateParams) { p.Price = big.NewInt(-1) }, ErrInvalidAmount},
		{"zero expiry", func(p *InitiateParams) { p.ExpiresIn = 0 }, ErrInvalidExpiry},
		{"unknown currency", func(p *InitiateParams) { p.Currency = types.CurrencyUnknown }, ErrInvalidCurrency},
		{"unknown offer", func(p *InitiateParams) { p.OfferID = 99 }, ErrInvalidParty},
		{"overflowing total", func(p *InitiateParams) {
			huge := new(big.Int).Lsh(big.NewInt(1), 200)
			p.Amount, p.Price = huge, huge
		}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := stxParams(100, 50, 20)
			tc.mutate(&params)
			_, err := f.engine.Initiate(call, params)
			require.ErrorIs(t, err, tc.want)
		})
	}
	require.Empty(t, f.state.escrows)
	require.Empty(t, f.transfers.records)
	require.Zero(t, f.state.registry.NextEscrowID)
}

func TestInitiateRejectsProducerAsBuyer(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Initiate(at(producer, 100), stxParams(1, 1, 1))
	require.ErrorIs(t, err, ErrInvalidParty)
}

func TestInitiateFailedTransferWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.transfers.fail = fmt.Errorf("insufficient funds")
	_, err := f.engine.Initiate(at(buyer, 100), stxParams(100, 50, 20))
	require.ErrorIs(t, err, ErrValueTransferFailed)
	require.Empty(t, f.state.escrows)
	require.Empty(t, f.state.balances)
	require.Zero(t, f.state.registry.NextEscrowID)
	require.Empty(t, f.emitter.events)
}

func TestInitiateLinkedTokenLock(t *testing.T) {
	f := newFixture(t)
	f.engine.SetLockView(mockLocks{
		4: {ID: 4, Owner: buyer, Amount: big.NewInt(10), Expiry: 500},
		5: {ID: 5, Owner: stranger, Amount: big.NewInt(10), Expiry: 500},
	})
	lockID := uint64(4)
	params := stxParams(1, 1, 10)
	params.TokenLockID = &lockID
	id := f.initiate(t, params)
	esc, _, err := f.engine.Escrow(id)
	require.NoError(t, err)
	require.True(t, esc.HasTokenLock)
	require.Equal(t, uint64(4), esc.TokenLockID)

	for _, bad := range []uint64{5, 6} {
		bad := bad
		params.TokenLockID = &bad
		_, err := f.engine.Initiate(at(buyer, 100), params)
		require.ErrorIs(t, err, ErrTokenLockInvalid)
	}
}

func TestReleaseWhileUnexpired(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, stxParams(100, 50, 20))

	require.NoError(t, f.engine.Release(at(producer, 110), id))
	_, ok, err := f.engine.Balance(id)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, transferRecord{amount: 5000, from: DefaultCustodian, to: producer}, f.transfers.records[1])
	esc, _, _ := f.engine.Escrow(id)
	require.Equal(t, EscrowReleased, esc.Status)
	require.Equal(t, EventTypeEscrowReleased, f.emitter.last().Type)

	err = f.engine.Release(at(producer, 110), id)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Len(t, f.transfers.records, 2)
}

func TestReleaseByBuyerAtExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, stxParams(2, 2, 20))
	require.NoError(t, f.engine.Release(at(buyer, 120), id))
}

func TestReleaseRejections(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, stxParams(2, 2, 20))
	require.ErrorIs(t, f.engine.Release(at(producer, 121), id), ErrEscrowExpired)
	require.ErrorIs(t, f.engine.Release(at(stranger, 110), id), ErrNotAuthorized)
	require.ErrorIs(t, f.engine.Release(at(producer, 110), 42), ErrEscrowNotFound)
	_, ok, _ := f.engine.Balance(id)
	require.True(t, ok)
}

func TestRefundAfterExpiry(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, stxParams(10, 3, 20))

	require.ErrorIs(t, f.engine.Refund(at(buyer, 120), id), ErrEscrowNotExpired)
	require.ErrorIs(t, f.engine.Refund(at(producer, 121), id), ErrNotAuthorized)
	require.NoError(t, f.engine.Refund(at(buyer, 121), id))
	require.Equal(t, transferRecord{amount: 30, from: DefaultCustodian, to: buyer}, f.transfers.records[1])
	esc, _, _ := f.engine.Escrow(id)
	require.Equal(t, EscrowRefunded, esc.Status)
	require.Equal(t, "ST1BUYER", f.emitter.last().Attributes["recipient"])
}

func TestCancelAndRefundFirstWins(t *testing.T) {
	f := newFixture(t)
	first := f.initiate(t, stxParams(1, 1, 5))
	second := f.initiate(t, stxParams(1, 1, 5))

	require.NoError(t, f.engine.Cancel(at(buyer, 200), first))
	require.ErrorIs(t, f.engine.Refund(at(buyer, 200), first), ErrEscrowCancelled)
	require.ErrorIs(t, f.engine.Cancel(at(buyer, 200), first), ErrEscrowCancelled)

	require.NoError(t, f.engine.Refund(at(buyer, 200), second))
	require.ErrorIs(t, f.engine.Cancel(at(buyer, 200), second), ErrInvalidState)

	esc, _, _ := f.engine.Escrow(first)
	require.Equal(t, EscrowCancelled, esc.Status)
	require.Equal(t, EventTypeEscrowCancelled, f.emitter.events[2].Type)
}

func TestCancelBeforeExpiryFails(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, stxParams(1, 1, 5))
	require.ErrorIs(t, f.engine.Cancel(at(buyer, 105), id), ErrEscrowNotExpired)
}

func TestDisputeRequiresAuthority(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, stxParams(1, 1, 5))
	require.ErrorIs(t, f.engine.RaiseDispute(at(buyer, 101), id), ErrDisputeNotAllowed)

	require.NoError(t, f.engine.SetDisputeAuthority(at(stranger, 101), arbiter))
	require.ErrorIs(t, f.engine.RaiseDispute(at(stranger, 101), id), ErrNotAuthorized)
	require.NoError(t, f.engine.RaiseDispute(at(producer, 101), id))

	esc, _, _ := f.engine.Escrow(id)
	require.Equal(t, EscrowDisputed, esc.Status)
	require.Len(t, f.transfers.records, 1)
	require.ErrorIs(t, f.engine.Release(at(producer, 101), id), ErrInvalidState)
	require.ErrorIs(t, f.engine.RaiseDispute(at(buyer, 101), id), ErrInvalidState)
	require.ErrorIs(t, f.engine.Refund(at(buyer, 500), id), ErrInvalidState)
}

func TestResolveDispute(t *testing.T) {
	for _, toProducer := range []bool{true, false} {
		t.Run(fmt.Sprintf("toProducer=%v", toProducer), func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.engine.SetDisputeAuthority(at(stranger, 100), arbiter))
			id := f.initiate(t, stxParams(4, 5, 5))
			require.ErrorIs(t, f.engine.ResolveDispute(at(arbiter, 101), id, toProducer), ErrInvalidState)
			require.NoError(t, f.engine.RaiseDispute(at(buyer, 101), id))

			require.ErrorIs(t, f.engine.ResolveDispute(at(buyer, 101), id, toProducer), ErrNotAuthorized)
			require.NoError(t, f.engine.ResolveDispute(at(arbiter, 300), id, toProducer))

			wantStatus, wantRecipient := EscrowRefunded, buyer
			if toProducer {
				wantStatus, wantRecipient = EscrowReleased, producer
			}
			esc, _, _ := f.engine.Escrow(id)
			require.Equal(t, wantStatus, esc.Status)
			require.Equal(t, transferRecord{amount: 20, from: DefaultCustodian, to: wantRecipient}, f.transfers.records[1])
			require.Equal(t, EventTypeEscrowResolved, f.emitter.last().Type)
			require.Equal(t, wantRecipient.String(), f.emitter.last().Attributes["recipient"])

			require.ErrorIs(t, f.engine.ResolveDispute(at(arbiter, 300), id, toProducer), ErrAlreadyResolved)
		})
	}
}

func TestSetDisputeAuthorityOnlyOnce(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.engine.SetDisputeAuthority(at(buyer, 1), types.NullPrincipal), ErrInvalidAuthority)
	require.NoError(t, f.engine.SetDisputeAuthority(at(buyer, 1), arbiter))
	require.ErrorIs(t, f.engine.SetDisputeAuthority(at(buyer, 1), stranger), ErrAuthorityAlreadySet)
	got, ok, err := f.engine.DisputeAuthority()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, arbiter, got)
}

func TestFailedPayoutKeepsEscrowActive(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, stxParams(3, 3, 5))
	f.transfers.fail = errors.New("custodian frozen")
	require.ErrorIs(t, f.engine.Release(at(producer, 101), id), ErrValueTransferFailed)
	esc, _, _ := f.engine.Escrow(id)
	require.Equal(t, EscrowActive, esc.Status)
	_, ok, _ := f.engine.Balance(id)
	require.True(t, ok)
}

func TestCustodialBalanceCreatedAndDeletedOnce(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.SetDisputeAuthority(at(stranger, 100), arbiter))
	ids := make([]uint64, 0, 4)
	for i := 0; i < 4; i++ {
		ids = append(ids, f.initiate(t, stxParams(int64(i+1), 10, 10)))
	}
	require.NoError(t, f.engine.RaiseDispute(at(buyer, 101), ids[3]))

	// Attempt every exit on every escrow at several heights.
	for _, h := range []uint64{105, 110, 111, 200} {
		for _, id := range ids {
			_ = f.engine.Release(at(producer, h), id)
			_ = f.engine.Refund(at(buyer, h), id)
			_ = f.engine.Cancel(at(buyer, h), id)
			_ = f.engine.ResolveDispute(at(arbiter, h), id, false)
		}
	}
	for _, id := range ids {
		require.Equal(t, 1, f.state.created[id], "escrow %d", id)
		require.Equal(t, 1, f.state.deleted[id], "escrow %d", id)
	}
	// One inbound and one outbound transfer per escrow.
	require.Len(t, f.transfers.records, 2*len(ids))
}

func TestErrorTaxonomy(t *testing.T) {
	code, ok := coreerrors.CodeOf(ErrInvalidState)
	require.True(t, ok)
	require.Equal(t, uint32(102), code)
	require.Equal(t, coreerrors.CategoryTiming, coreerrors.CategoryOf(ErrEscrowNotExpired))
	require.Equal(t, coreerrors.CategoryAuthorization, coreerrors.CategoryOf(ErrNotAuthorized))
	wrapped := fmt.Errorf("%w: boom", ErrValueTransferFailed)
	code, ok = coreerrors.CodeOf(wrapped)
	require.True(t, ok)
	require.Equal(t, uint32(108), code)
	require.Equal(t, moduleName, coreerrors.ModuleOf(wrapped))
}
