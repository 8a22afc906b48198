package core

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"energymarket/core/types"
	"energymarket/native/bank"
	"energymarket/native/escrow"
	"energymarket/native/market"
	"energymarket/native/token"
	"energymarket/storage"
)

const (
	authority types.Principal = "ST_AUTHORITY"
	producer  types.Principal = "ST1PRODUCER"
	buyer     types.Principal = "ST2BUYER"
)

type recordingSink struct {
	mu       sync.Mutex
	receipts []*types.Receipt
	err      error
}

func (s *recordingSink) HandleReceipt(r *types.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return s.err
}

func newTestNode(t *testing.T, db storage.Database, clock Clock) *Node {
	t.Helper()
	node, err := NewNode(db, Options{Clock: clock})
	require.NoError(t, err)
	return node
}

// listAndMatch configures the market and reserves a 100 unit solar offer at
// price 50 for a matching bid.
func listAndMatch(t *testing.T, node *Node) (uint64, uint64) {
	t.Helper()
	ctx := context.Background()
	_, err := node.Apply(ctx, authority, "market.set_authority_contract", func(call types.CallContext, m *Modules) error {
		return m.Market.SetAuthorityContract(call, authority)
	})
	require.NoError(t, err)

	var offerID, bidID uint64
	_, err = node.Apply(ctx, producer, "market.list_offer", func(call types.CallContext, m *Modules) error {
		var err error
		offerID, err = m.Market.ListOffer(call, market.OfferParams{
			Amount: big.NewInt(100), Price: big.NewInt(50), EnergyType: market.EnergySolar,
			Location: "California", Expiry: 1000, Currency: types.CurrencySTX,
		})
		return err
	})
	require.NoError(t, err)
	_, err = node.Apply(ctx, buyer, "market.create_bid", func(call types.CallContext, m *Modules) error {
		var err error
		bidID, err = m.Market.CreateBid(call, market.BidParams{
			Amount: big.NewInt(100), MaxPrice: big.NewInt(60), PreferredType: market.EnergyAny,
			PreferredLocation: market.AnyLocation, Expiry: 1000, Currency: types.CurrencySTX,
		})
		return err
	})
	require.NoError(t, err)
	_, err = node.Apply(ctx, buyer, "market.match_order", func(call types.CallContext, m *Modules) error {
		return m.Market.MatchOrder(call, offerID, bidID)
	})
	require.NoError(t, err)
	return offerID, bidID
}

func creditBuyer(t *testing.T, node *Node, amount int64) {
	t.Helper()
	_, err := node.Apply(context.Background(), buyer, "bank.credit", func(call types.CallContext, m *Modules) error {
		return m.Bank.Credit(buyer, big.NewInt(amount))
	})
	require.NoError(t, err)
}

func TestApplyCommitsAndProducesReceipt(t *testing.T) {
	clock := NewManualClock(10)
	node := newTestNode(t, storage.NewMemDB(), clock)
	sink := &recordingSink{}
	node.AddSink("test", sink)

	receipt, err := node.Apply(context.Background(), producer, "token.set_mint_authority", func(call types.CallContext, m *Modules) error {
		require.Equal(t, producer, call.Caller)
		require.Equal(t, uint64(10), call.Height)
		return m.Token.SetMintAuthority(call, authority)
	})
	require.NoError(t, err)
	require.NotEmpty(t, receipt.ID)
	require.Equal(t, uint64(1), receipt.Sequence)
	require.Equal(t, uint64(10), receipt.Height)
	require.Equal(t, "token.set_mint_authority", receipt.Operation)
	require.Len(t, receipt.Events, 1)
	require.Equal(t, token.EventTypeMintAuthoritySet, receipt.Events[0].Type)

	require.Len(t, sink.receipts, 1)
	require.Equal(t, receipt.ID, sink.receipts[0].ID)
	require.Equal(t, uint64(1), node.Sequence())
}

func TestApplyRollsBackFailedCall(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB(), NewManualClock(1))
	sink := &recordingSink{}
	node.AddSink("test", sink)
	boom := errors.New("boom")

	_, err := node.Apply(context.Background(), producer, "token.set_mint_authority", func(call types.CallContext, m *Modules) error {
		require.NoError(t, m.Token.SetMintAuthority(call, authority))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, sink.receipts)
	require.Zero(t, node.Sequence())

	require.NoError(t, node.View(func(_ types.CallContext, m *Modules) error {
		_, set, err := m.Token.MintAuthority()
		require.NoError(t, err)
		require.False(t, set)
		return nil
	}))

	// the rejected call's events must not leak into the next receipt
	receipt, err := node.Apply(context.Background(), producer, "token.set_mint_authority", func(call types.CallContext, m *Modules) error {
		return m.Token.SetMintAuthority(call, authority)
	})
	require.NoError(t, err)
	require.Len(t, receipt.Events, 1)
}

func TestApplyRejectsNilCall(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB(), nil)
	_, err := node.Apply(context.Background(), producer, "noop", nil)
	require.Error(t, err)
}

func TestViewDiscardsWrites(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB(), nil)
	require.NoError(t, node.View(func(call types.CallContext, m *Modules) error {
		return m.Token.SetMintAuthority(call.As(producer), authority)
	}))
	require.NoError(t, node.View(func(_ types.CallContext, m *Modules) error {
		_, set, err := m.Token.MintAuthority()
		require.NoError(t, err)
		require.False(t, set)
		return nil
	}))
}

func TestSinkFailureDoesNotFailCall(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB(), nil)
	failing := &recordingSink{err: errors.New("disk full")}
	after := &recordingSink{}
	node.AddSink("failing", failing)
	node.AddSink("after", after)

	_, err := node.Apply(context.Background(), producer, "token.set_mint_authority", func(call types.CallContext, m *Modules) error {
		return m.Token.SetMintAuthority(call, authority)
	})
	require.NoError(t, err)
	require.Len(t, failing.receipts, 1)
	require.Len(t, after.receipts, 1)
}

func TestRestartContinuesSequenceAndHeight(t *testing.T) {
	db, err := storage.NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(db.Close)

	first := newTestNode(t, db, NewManualClock(25))
	_, err = first.Apply(context.Background(), producer, "token.set_mint_authority", func(call types.CallContext, m *Modules) error {
		return m.Token.SetMintAuthority(call, authority)
	})
	require.NoError(t, err)

	second := newTestNode(t, db, NewManualClock(3))
	require.Equal(t, uint64(1), second.Sequence())
	require.Equal(t, uint64(25), second.Height(), "height never moves backwards")

	receipt, err := second.Apply(context.Background(), authority, "token.verify_producer", func(call types.CallContext, m *Modules) error {
		return m.Token.VerifyProducer(call, producer)
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), receipt.Sequence)
	require.Equal(t, uint64(25), receipt.Height)
}

func TestPausedModuleRejectsCalls(t *testing.T) {
	node, err := NewNode(storage.NewMemDB(), Options{Paused: []string{"market"}})
	require.NoError(t, err)
	_, err = node.Apply(context.Background(), authority, "market.set_authority_contract", func(call types.CallContext, m *Modules) error {
		return m.Market.SetAuthorityContract(call, authority)
	})
	require.Error(t, err)

	node.Pauses().Resume("market")
	_, err = node.Apply(context.Background(), authority, "market.set_authority_contract", func(call types.CallContext, m *Modules) error {
		return m.Market.SetAuthorityContract(call, authority)
	})
	require.NoError(t, err)
}

func TestExecuteTradeWithEscrow(t *testing.T) {
	clock := NewManualClock(5)
	node := newTestNode(t, storage.NewMemDB(), clock)
	offerID, bidID := listAndMatch(t, node)
	creditBuyer(t, node, 6000)

	settlement, err := node.ExecuteTrade(context.Background(), buyer, offerID, bidID, 20, nil)
	require.NoError(t, err)
	require.True(t, settlement.HasEscrow)
	require.Equal(t, big.NewInt(5000), settlement.Trade.Total())

	var eventTypes []string
	for _, evt := range settlement.Receipt.Events {
		eventTypes = append(eventTypes, evt.Type)
	}
	require.Contains(t, eventTypes, market.EventTypeTradeExecuted)
	require.Contains(t, eventTypes, escrow.EventTypeEscrowInitiated)

	require.NoError(t, node.View(func(_ types.CallContext, m *Modules) error {
		esc, ok, err := m.Escrow.Escrow(settlement.EscrowID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, producer, esc.Producer)
		require.Equal(t, buyer, esc.Buyer)
		require.Equal(t, uint64(25), esc.ExpiresAt)

		remaining, err := m.Bank.Balance(buyer)
		require.NoError(t, err)
		require.Equal(t, big.NewInt(1000), remaining)
		return nil
	}))
}

func TestEscrowCustodyCannotBeMovedBySend(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB(), NewManualClock(5))
	offerID, bidID := listAndMatch(t, node)
	creditBuyer(t, node, 6000)
	settlement, err := node.ExecuteTrade(context.Background(), buyer, offerID, bidID, 20, nil)
	require.NoError(t, err)

	custodian := escrow.DefaultCustodian
	_, err = node.Apply(context.Background(), custodian, "bank.send", func(call types.CallContext, m *Modules) error {
		return m.Bank.Send(call, big.NewInt(5000), buyer)
	})
	require.ErrorIs(t, err, bank.ErrNotAuthorized)
	_, err = node.Apply(context.Background(), buyer, "bank.send", func(call types.CallContext, m *Modules) error {
		return m.Bank.Send(call, big.NewInt(10), custodian)
	})
	require.ErrorIs(t, err, bank.ErrInvalidRecipient)

	_, err = node.Apply(context.Background(), buyer, "escrow.release", func(call types.CallContext, m *Modules) error {
		return m.Escrow.Release(call, settlement.EscrowID)
	})
	require.NoError(t, err)
	require.NoError(t, node.View(func(_ types.CallContext, m *Modules) error {
		paid, err := m.Bank.Balance(producer)
		require.NoError(t, err)
		require.Equal(t, big.NewInt(5000), paid)
		held, err := m.Bank.Balance(custodian)
		require.NoError(t, err)
		require.Zero(t, held.Sign())
		return nil
	}))
}

func TestExecuteTradeWithoutEscrow(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB(), NewManualClock(5))
	offerID, bidID := listAndMatch(t, node)

	settlement, err := node.ExecuteTrade(context.Background(), producer, offerID, bidID, 0, nil)
	require.NoError(t, err)
	require.False(t, settlement.HasEscrow)
	require.Equal(t, buyer, settlement.Trade.Buyer)
}

func TestFailedEscrowLegRollsBackTrade(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB(), NewManualClock(5))
	offerID, bidID := listAndMatch(t, node)
	creditBuyer(t, node, 10)
	sink := &recordingSink{}
	node.AddSink("test", sink)
	seq := node.Sequence()

	_, err := node.ExecuteTrade(context.Background(), buyer, offerID, bidID, 20, nil)
	require.ErrorIs(t, err, market.ErrEscrowFailed)
	require.ErrorIs(t, err, escrow.ErrValueTransferFailed)
	require.Empty(t, sink.receipts)
	require.Equal(t, seq, node.Sequence())

	require.NoError(t, node.View(func(_ types.CallContext, m *Modules) error {
		offer, _, err := m.Market.Offer(offerID)
		require.NoError(t, err)
		require.Equal(t, market.OrderOpen, offer.Status)
		bid, _, err := m.Market.Bid(bidID)
		require.NoError(t, err)
		require.Equal(t, market.OrderOpen, bid.Status)
		matched, ok, err := m.Market.OfferMatch(offerID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, bidID, matched)

		_, ok, err = m.Escrow.Escrow(0)
		require.NoError(t, err)
		require.False(t, ok)
		balance, err := m.Bank.Balance(buyer)
		require.NoError(t, err)
		require.Equal(t, big.NewInt(10), balance)
		return nil
	}))
}

func TestExecuteTradeEscrowRequiresBuyer(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB(), NewManualClock(5))
	offerID, bidID := listAndMatch(t, node)
	creditBuyer(t, node, 6000)

	_, err := node.ExecuteTrade(context.Background(), producer, offerID, bidID, 20, nil)
	require.ErrorIs(t, err, market.ErrEscrowFailed)
	require.ErrorIs(t, err, escrow.ErrInvalidParty)
}

func TestManualClockMonotonic(t *testing.T) {
	clock := NewManualClock(5)
	clock.Set(3)
	require.Equal(t, uint64(5), clock.Height())
	require.Equal(t, uint64(7), clock.Advance(2))
	clock.Set(9)
	require.Equal(t, uint64(9), clock.Height())
}

func TestBlockClockTicks(t *testing.T) {
	clock := NewBlockClock(4, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		clock.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return clock.Height() >= 6 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestBlockClockSetNeverLowers(t *testing.T) {
	clock := NewBlockClock(4, time.Hour)
	clock.Set(2)
	require.Equal(t, uint64(4), clock.Height())
	clock.Set(12)
	require.Equal(t, uint64(12), clock.Height())
}
