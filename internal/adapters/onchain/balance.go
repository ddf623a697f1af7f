package onchain

// balance.go — saldo USDC.e de la wallet de trading en Polygon.
//
// El saldo se cachea con TTL. Si el RPC falla se devuelve el último valor
// bueno; solo es error si nunca se leyó ninguno.

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

const (
	// USDC.e, colateral de Polymarket en Polygon
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	usdcDecimals = 6
	defaultTTL   = 30 * time.Second
	dialTimeout  = 10 * time.Second
)

var erc20ABI abi.ABI

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("erc20 abi parse: " + err.Error())
	}
}

// ContractCaller es la parte de ethclient que se usa. Permite fakes en tests.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Dial conecta al RPC de Polygon.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.Dial: %w", err)
	}
	return c, nil
}

// BalanceReader implementa ports.BalanceSource con balanceOf sobre USDC.e.
type BalanceReader struct {
	caller ContractCaller
	owner  common.Address
	token  common.Address
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	cached   float64
	cachedAt time.Time
	ok       bool
}

// NewBalanceReader crea el lector. ttl <= 0 usa 30s.
func NewBalanceReader(caller ContractCaller, owner common.Address, ttl time.Duration) *BalanceReader {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &BalanceReader{
		caller: caller,
		owner:  owner,
		token:  common.HexToAddress(usdcEAddress),
		ttl:    ttl,
		now:    time.Now,
	}
}

// GetBalance devuelve el saldo en USDC.
func (b *BalanceReader) GetBalance(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ok && b.now().Sub(b.cachedAt) < b.ttl {
		return b.cached, nil
	}

	bal, err := b.fetch(ctx)
	if err != nil {
		if b.ok {
			slog.Warn("onchain: balance refresh failed, using cached", "balance", b.cached, "age", b.now().Sub(b.cachedAt), "err", err)
			return b.cached, nil
		}
		return 0, err
	}
	b.cached, b.cachedAt, b.ok = bal, b.now(), true
	slog.Debug("onchain: balance refreshed", "owner", b.owner.Hex(), "usdc", bal)
	return bal, nil
}

func (b *BalanceReader) fetch(ctx context.Context) (float64, error) {
	data, err := erc20ABI.Pack("balanceOf", b.owner)
	if err != nil {
		return 0, fmt.Errorf("onchain.GetBalance: pack: %w", err)
	}
	out, err := b.caller.CallContract(ctx, ethereum.CallMsg{To: &b.token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("onchain.GetBalance: call: %w", err)
	}
	vals, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return 0, fmt.Errorf("onchain.GetBalance: unpack: %w", err)
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("onchain.GetBalance: empty result")
	}
	raw, ok := vals[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("onchain.GetBalance: unexpected type %T", vals[0])
	}
	f, _ := decimal.NewFromBigInt(raw, -usdcDecimals).Float64()
	return f, nil
}
