package bank

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"energymarket/core/events"
	"energymarket/core/types"
)

type mockState struct {
	balances map[types.Principal]*big.Int
	failOn   types.Principal
}

func (m *mockState) BankBalance(addr types.Principal) (*big.Int, error) {
	return m.balances[addr], nil
}

func (m *mockState) BankSetBalance(addr types.Principal, amount *big.Int) error {
	if addr == m.failOn {
		return errors.New("write failed")
	}
	m.balances[addr] = new(big.Int).Set(amount)
	return nil
}

type countingEmitter struct{ seen []string }

func (c *countingEmitter) Emit(evt events.Event) { c.seen = append(c.seen, evt.EventType()) }

func newTestEngine() (*Engine, *mockState, *countingEmitter) {
	state := &mockState{balances: map[types.Principal]*big.Int{"alice": big.NewInt(100)}}
	emitter := &countingEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetEmitter(emitter)
	return engine, state, emitter
}

func TestTransferValue(t *testing.T) {
	engine, state, emitter := newTestEngine()
	require.NoError(t, engine.TransferValue(big.NewInt(40), "alice", "bob"))
	require.Equal(t, int64(60), state.balances["alice"].Int64())
	require.Equal(t, int64(40), state.balances["bob"].Int64())
	require.Equal(t, []string{EventTypeTransferred}, emitter.seen)
}

func TestTransferValueRejections(t *testing.T) {
	engine, state, emitter := newTestEngine()
	require.ErrorIs(t, engine.TransferValue(big.NewInt(0), "alice", "bob"), ErrInvalidAmount)
	require.ErrorIs(t, engine.TransferValue(nil, "alice", "bob"), ErrInvalidAmount)
	require.ErrorIs(t, engine.TransferValue(big.NewInt(1), "alice", "alice"), ErrInvalidRecipient)
	require.ErrorIs(t, engine.TransferValue(big.NewInt(1), "alice", ""), ErrInvalidRecipient)
	require.ErrorIs(t, engine.TransferValue(big.NewInt(101), "alice", "bob"), ErrInsufficientBalance)
	require.ErrorIs(t, engine.TransferValue(big.NewInt(1), "carol", "bob"), ErrInsufficientBalance)
	require.Equal(t, int64(100), state.balances["alice"].Int64())
	require.Nil(t, state.balances["bob"])
	require.Empty(t, emitter.seen)
}

func TestSendUsesCaller(t *testing.T) {
	engine, state, _ := newTestEngine()
	require.NoError(t, engine.Send(types.NewCallContext("alice", 1), big.NewInt(5), "bob"))
	require.Equal(t, int64(5), state.balances["bob"].Int64())
	require.ErrorIs(t, engine.Send(types.NewCallContext("", 1), big.NewInt(5), "bob"), ErrNotAuthorized)
}

func TestSendRejectsCustodian(t *testing.T) {
	engine, state, _ := newTestEngine()
	engine.SetCustodian("vault")
	state.balances["vault"] = big.NewInt(50)

	require.ErrorIs(t, engine.Send(types.NewCallContext("vault", 1), big.NewInt(5), "bob"), ErrNotAuthorized)
	require.ErrorIs(t, engine.Send(types.NewCallContext("alice", 1), big.NewInt(5), "vault"), ErrInvalidRecipient)
	require.Equal(t, int64(50), state.balances["vault"].Int64())
	require.Equal(t, int64(100), state.balances["alice"].Int64())

	require.NoError(t, engine.TransferValue(big.NewInt(5), "vault", "bob"))
	require.Equal(t, int64(45), state.balances["vault"].Int64())
}

func TestCredit(t *testing.T) {
	engine, _, emitter := newTestEngine()
	require.NoError(t, engine.Credit("bob", big.NewInt(7)))
	require.NoError(t, engine.Credit("bob", big.NewInt(3)))
	bal, err := engine.Balance("bob")
	require.NoError(t, err)
	require.Equal(t, int64(10), bal.Int64())
	require.ErrorIs(t, engine.Credit("bob", big.NewInt(-1)), ErrInvalidAmount)
	require.ErrorIs(t, engine.Credit("", big.NewInt(1)), ErrInvalidRecipient)
	require.Equal(t, []string{EventTypeCredited, EventTypeCredited}, emitter.seen)
}

func TestUnconfiguredEngine(t *testing.T) {
	engine := NewEngine()
	_, err := engine.Balance("alice")
	require.ErrorIs(t, err, errNilState)
}
