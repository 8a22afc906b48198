package genesis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"energymarket/core"
	"energymarket/core/types"
)

// Label is the operation label of the genesis receipt.
const Label = "node.genesis"

// Caller is the principal recorded on the genesis receipt.
const Caller types.Principal = "genesis"

// Spec is the initial state of a node.
type Spec struct {
	Balances map[string]string `yaml:"balances"`
	Token    TokenSpec         `yaml:"token"`
	Escrow   EscrowSpec        `yaml:"escrow"`
	Market   MarketSpec        `yaml:"market"`
}

type TokenSpec struct {
	MintAuthority     string     `yaml:"mintAuthority"`
	VerifiedProducers []string   `yaml:"verifiedProducers"`
	Mints             []MintSpec `yaml:"mints"`
}

// MintSpec mints Amount on behalf of a verified Producer.
type MintSpec struct {
	Producer  string `yaml:"producer"`
	Recipient string `yaml:"recipient"`
	Amount    string `yaml:"amount"`
}

type EscrowSpec struct {
	DisputeAuthority string `yaml:"disputeAuthority"`
}

type MarketSpec struct {
	AuthorityContract string  `yaml:"authorityContract"`
	MaxOffers         *uint64 `yaml:"maxOffers"`
	MaxBids           *uint64 `yaml:"maxBids"`
	Fee               *uint64 `yaml:"fee"`
}

// Load reads and validates a genesis file.
func Load(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis %q: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a YAML genesis document. Unknown fields are rejected.
func Parse(raw []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks amounts and the roles the spec depends on.
func (s *Spec) Validate() error {
	for addr, amount := range s.Balances {
		if _, ok := types.ParsePrincipal(addr); !ok {
			return fmt.Errorf("balances: empty account")
		}
		if _, err := parseAmount(amount); err != nil {
			return fmt.Errorf("balances[%s]: %w", addr, err)
		}
	}
	if len(s.Token.VerifiedProducers) > 0 && strings.TrimSpace(s.Token.MintAuthority) == "" {
		return fmt.Errorf("token.verifiedProducers requires token.mintAuthority")
	}
	for i, mint := range s.Token.Mints {
		if strings.TrimSpace(mint.Producer) == "" || strings.TrimSpace(mint.Recipient) == "" {
			return fmt.Errorf("token.mints[%d]: producer and recipient required", i)
		}
		if _, err := parseAmount(mint.Amount); err != nil {
			return fmt.Errorf("token.mints[%d]: %w", i, err)
		}
	}
	hasLimits := s.Market.MaxOffers != nil || s.Market.MaxBids != nil || s.Market.Fee != nil
	if hasLimits && strings.TrimSpace(s.Market.AuthorityContract) == "" {
		return fmt.Errorf("market limits require market.authorityContract")
	}
	return nil
}

func parseAmount(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

func principal(raw string) types.Principal {
	return types.Principal(strings.TrimSpace(raw))
}

// Apply seeds node state from the spec in a single atomic call. It is a no-op
// on a node that has already committed a call.
func Apply(ctx context.Context, node *core.Node, spec *Spec) (*types.Receipt, error) {
	if node == nil || spec == nil {
		return nil, fmt.Errorf("genesis: node and spec required")
	}
	if node.Sequence() > 0 {
		return nil, nil
	}
	return node.Apply(ctx, Caller, Label, func(call types.CallContext, m *core.Modules) error {
		accounts := make([]string, 0, len(spec.Balances))
		for addr := range spec.Balances {
			accounts = append(accounts, addr)
		}
		sort.Strings(accounts)
		for _, addr := range accounts {
			amount, err := parseAmount(spec.Balances[addr])
			if err != nil {
				return err
			}
			if err := m.Bank.Credit(principal(addr), amount); err != nil {
				return fmt.Errorf("balances[%s]: %w", addr, err)
			}
		}

		if raw := strings.TrimSpace(spec.Token.MintAuthority); raw != "" {
			mintAuthority := principal(raw)
			if err := m.Token.SetMintAuthority(call, mintAuthority); err != nil {
				return fmt.Errorf("token.mintAuthority: %w", err)
			}
			for _, producer := range spec.Token.VerifiedProducers {
				if err := m.Token.VerifyProducer(call.As(mintAuthority), principal(producer)); err != nil {
					return fmt.Errorf("token.verifiedProducers[%s]: %w", producer, err)
				}
			}
		}
		for i, mint := range spec.Token.Mints {
			amount, err := parseAmount(mint.Amount)
			if err != nil {
				return err
			}
			if err := m.Token.Mint(call.As(principal(mint.Producer)), amount, principal(mint.Recipient)); err != nil {
				return fmt.Errorf("token.mints[%d]: %w", i, err)
			}
		}

		if raw := strings.TrimSpace(spec.Escrow.DisputeAuthority); raw != "" {
			if err := m.Escrow.SetDisputeAuthority(call, principal(raw)); err != nil {
				return fmt.Errorf("escrow.disputeAuthority: %w", err)
			}
		}

		if raw := strings.TrimSpace(spec.Market.AuthorityContract); raw != "" {
			marketAuthority := principal(raw)
			if err := m.Market.SetAuthorityContract(call, marketAuthority); err != nil {
				return fmt.Errorf("market.authorityContract: %w", err)
			}
			admin := call.As(marketAuthority)
			if spec.Market.MaxOffers != nil {
				if err := m.Market.SetMaxOffers(admin, *spec.Market.MaxOffers); err != nil {
					return fmt.Errorf("market.maxOffers: %w", err)
				}
			}
			if spec.Market.MaxBids != nil {
				if err := m.Market.SetMaxBids(admin, *spec.Market.MaxBids); err != nil {
					return fmt.Errorf("market.maxBids: %w", err)
				}
			}
			if spec.Market.Fee != nil {
				if err := m.Market.SetMarketplaceFee(admin, *spec.Market.Fee); err != nil {
					return fmt.Errorf("market.fee: %w", err)
				}
			}
		}
		return nil
	})
}
