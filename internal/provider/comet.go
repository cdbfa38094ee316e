package provider

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"cometguard/internal/domain"
)

// Minimal Comet (Compound V3) ABI: only the views the snapshot needs.
const cometABIJSON = `[
  {"name":"totalSupply","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"totalBorrow","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"getUtilization","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"numAssets","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"name":"getAssetInfo","type":"function","stateMutability":"view","inputs":[{"name":"i","type":"uint8"}],"outputs":[{"name":"","type":"tuple","components":[
    {"name":"offset","type":"uint8"},
    {"name":"asset","type":"address"},
    {"name":"priceFeed","type":"address"},
    {"name":"scale","type":"uint64"},
    {"name":"borrowCollateralFactor","type":"uint64"},
    {"name":"liquidateCollateralFactor","type":"uint64"},
    {"name":"liquidationFactor","type":"uint64"},
    {"name":"supplyCap","type":"uint128"}]}]},
  {"name":"getPrice","type":"function","stateMutability":"view","inputs":[{"name":"priceFeed","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"totalsCollateral","type":"function","stateMutability":"view","inputs":[{"name":"asset","type":"address"}],"outputs":[{"name":"totalSupplyAsset","type":"uint128"},{"name":"reserved","type":"uint128"}]},
  {"name":"borrowBalanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"userCollateral","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"},{"name":"asset","type":"address"}],"outputs":[{"name":"balance","type":"uint128"},{"name":"reserved","type":"uint128"}]}
]`

const erc20ABIJSON = `[
  {"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

// Comet factor values are 1e18-scaled; prices are 1e8-scaled USD.
const (
	factorScale = 1e18
	priceScale  = 1e8
)

// volatilityWindow bounds the per-asset price history kept for the
// companion volatility figure.
const volatilityWindow = 32

// assetInfo mirrors the Comet AssetInfo tuple.
type assetInfo struct {
	Offset                    uint8
	Asset                     common.Address
	PriceFeed                 common.Address
	Scale                     uint64
	BorrowCollateralFactor    uint64
	LiquidateCollateralFactor uint64
	LiquidationFactor         uint64
	SupplyCap                 *big.Int
}

// CometClient reads market state from Comet deployments over JSON-RPC.
type CometClient struct {
	client   *ethclient.Client
	cometABI abi.ABI
	erc20ABI abi.ABI
	markets  map[string]MarketConfig // keyed by lowercased proxy address
	logger   *zap.Logger

	// Price samples across successive fetches feed the volatility figure:
	// a single snapshot carries no price movement of its own.
	mu      sync.Mutex
	history map[string][]float64 // asset address -> recent prices
}

// NewCometClient dials the RPC endpoint and indexes the configured markets.
func NewCometClient(rpcURL string, markets []MarketConfig, logger *zap.Logger) (*CometClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}

	cometABI, err := abi.JSON(strings.NewReader(cometABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse comet abi: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	idx := make(map[string]MarketConfig, len(markets))
	for _, m := range markets {
		if !common.IsHexAddress(m.MarketID) {
			return nil, fmt.Errorf("market %q: invalid comet address %q", m.Name, m.MarketID)
		}
		idx[strings.ToLower(m.MarketID)] = m
	}

	return &CometClient{
		client:   client,
		cometABI: cometABI,
		erc20ABI: erc20ABI,
		markets:  idx,
		logger:   logger,
		history:  make(map[string][]float64),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *CometClient) Close() {
	c.client.Close()
}

// FetchMarketSnapshot captures the current state of one configured market.
func (c *CometClient) FetchMarketSnapshot(ctx context.Context, marketID string) (*domain.MarketSnapshot, error) {
	cfg, ok := c.markets[strings.ToLower(marketID)]
	if !ok {
		return nil, fmt.Errorf("market %s not configured", marketID)
	}
	comet := common.HexToAddress(cfg.MarketID)

	baseDecimals, err := c.callUint8(ctx, comet, "decimals")
	if err != nil {
		return nil, fmt.Errorf("market %s: decimals: %w", cfg.Name, err)
	}
	baseScale := math.Pow10(int(baseDecimals))

	totalSupplyRaw, err := c.callBig(ctx, comet, "totalSupply")
	if err != nil {
		return nil, fmt.Errorf("market %s: totalSupply: %w", cfg.Name, err)
	}
	totalBorrowRaw, err := c.callBig(ctx, comet, "totalBorrow")
	if err != nil {
		return nil, fmt.Errorf("market %s: totalBorrow: %w", cfg.Name, err)
	}
	utilizationRaw, err := c.callBig(ctx, comet, "getUtilization")
	if err != nil {
		return nil, fmt.Errorf("market %s: getUtilization: %w", cfg.Name, err)
	}

	numAssets, err := c.callUint8(ctx, comet, "numAssets")
	if err != nil {
		return nil, fmt.Errorf("market %s: numAssets: %w", cfg.Name, err)
	}

	collateral := make([]domain.CollateralAsset, 0, numAssets)
	for i := uint8(0); i < numAssets; i++ {
		asset, err := c.fetchCollateral(ctx, comet, i)
		if err != nil {
			return nil, fmt.Errorf("market %s: asset %d: %w", cfg.Name, i, err)
		}
		collateral = append(collateral, asset)
	}
	assignWeights(collateral)

	utilization := bigToFloat(utilizationRaw, factorScale)
	if utilization < 0 {
		utilization = 0
	}
	if utilization > 1 {
		utilization = 1
	}

	snap := &domain.MarketSnapshot{
		MarketID:             strings.ToLower(cfg.MarketID),
		MarketName:           cfg.Name,
		TotalSupply:          bigToFloat(totalSupplyRaw, baseScale),
		TotalBorrow:          bigToFloat(totalBorrowRaw, baseScale),
		Utilization:          utilization,
		LiquidationThreshold: weightedLiquidationThreshold(collateral),
		Collateral:           collateral,
		Timestamp:            time.Now().UTC(),
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("market %s: %w", cfg.Name, err)
	}

	c.logger.Debug("fetched market snapshot",
		zap.String("market", cfg.Name),
		zap.Float64("utilization", snap.Utilization),
		zap.Int("collateral_assets", len(snap.Collateral)))
	return snap, nil
}

// FetchUserPosition captures one account's borrow and collateral in a
// configured market.
func (c *CometClient) FetchUserPosition(ctx context.Context, marketID, userAddr string) (*domain.UserPosition, error) {
	cfg, ok := c.markets[strings.ToLower(marketID)]
	if !ok {
		return nil, fmt.Errorf("market %s not configured", marketID)
	}
	if !common.IsHexAddress(userAddr) {
		return nil, fmt.Errorf("invalid user address %q", userAddr)
	}
	comet := common.HexToAddress(cfg.MarketID)
	user := common.HexToAddress(userAddr)

	baseDecimals, err := c.callUint8(ctx, comet, "decimals")
	if err != nil {
		return nil, fmt.Errorf("market %s: decimals: %w", cfg.Name, err)
	}

	borrowRaw, err := c.callBig(ctx, comet, "borrowBalanceOf", user)
	if err != nil {
		return nil, fmt.Errorf("market %s: borrowBalanceOf: %w", cfg.Name, err)
	}

	numAssets, err := c.callUint8(ctx, comet, "numAssets")
	if err != nil {
		return nil, fmt.Errorf("market %s: numAssets: %w", cfg.Name, err)
	}

	balances := make(map[string]float64)
	var collateralValue float64
	for i := uint8(0); i < numAssets; i++ {
		info, err := c.assetInfoAt(ctx, comet, i)
		if err != nil {
			return nil, fmt.Errorf("market %s: getAssetInfo(%d): %w", cfg.Name, i, err)
		}

		out, err := c.call(ctx, comet, "userCollateral", user, info.Asset)
		if err != nil {
			return nil, fmt.Errorf("market %s: userCollateral: %w", cfg.Name, err)
		}
		balanceRaw := out[0].(*big.Int)
		if balanceRaw.Sign() == 0 {
			continue
		}

		priceRaw, err := c.callBig(ctx, comet, "getPrice", info.PriceFeed)
		if err != nil {
			return nil, fmt.Errorf("market %s: getPrice: %w", cfg.Name, err)
		}

		quantity := bigToFloat(balanceRaw, float64(info.Scale))
		price := bigToFloat(priceRaw, priceScale)
		addr := strings.ToLower(info.Asset.Hex())
		balances[addr] = quantity
		collateralValue += quantity * price
	}

	return &domain.UserPosition{
		Address:            strings.ToLower(user.Hex()),
		BorrowBalance:      bigToFloat(borrowRaw, math.Pow10(int(baseDecimals))),
		CollateralValue:    collateralValue,
		CollateralBalances: balances,
	}, nil
}

// fetchCollateral reads one collateral asset's config, totals and price,
// and folds the price into the volatility history.
func (c *CometClient) fetchCollateral(ctx context.Context, comet common.Address, i uint8) (domain.CollateralAsset, error) {
	info, err := c.assetInfoAt(ctx, comet, i)
	if err != nil {
		return domain.CollateralAsset{}, fmt.Errorf("getAssetInfo: %w", err)
	}

	priceRaw, err := c.callBig(ctx, comet, "getPrice", info.PriceFeed)
	if err != nil {
		return domain.CollateralAsset{}, fmt.Errorf("getPrice: %w", err)
	}
	price := bigToFloat(priceRaw, priceScale)

	out, err := c.call(ctx, comet, "totalsCollateral", info.Asset)
	if err != nil {
		return domain.CollateralAsset{}, fmt.Errorf("totalsCollateral: %w", err)
	}
	quantity := bigToFloat(out[0].(*big.Int), float64(info.Scale))

	symbol, err := c.tokenSymbol(ctx, info.Asset)
	if err != nil {
		// Some tokens expose non-standard symbols; fall back to the address.
		c.logger.Warn("symbol lookup failed", zap.String("asset", info.Asset.Hex()), zap.Error(err))
		symbol = info.Asset.Hex()
	}

	addr := strings.ToLower(info.Asset.Hex())
	return domain.CollateralAsset{
		AssetID:           addr,
		Symbol:            symbol,
		Price:             price,
		Quantity:          quantity,
		Volatility:        c.recordPrice(addr, price),
		LiquidationFactor: float64(info.LiquidateCollateralFactor) / factorScale,
	}, nil
}

func (c *CometClient) assetInfoAt(ctx context.Context, comet common.Address, i uint8) (*assetInfo, error) {
	out, err := c.call(ctx, comet, "getAssetInfo", i)
	if err != nil {
		return nil, err
	}
	info := abi.ConvertType(out[0], new(assetInfo)).(*assetInfo)
	return info, nil
}

func (c *CometClient) tokenSymbol(ctx context.Context, token common.Address) (string, error) {
	data, err := c.erc20ABI.Pack("symbol")
	if err != nil {
		return "", err
	}
	raw, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return "", err
	}
	out, err := c.erc20ABI.Unpack("symbol", raw)
	if err != nil {
		return "", err
	}
	return out[0].(string), nil
}

// recordPrice appends a sample to the asset's bounded history and returns
// the standard deviation of returns over the window. Fewer than two samples
// yield zero volatility.
func (c *CometClient) recordPrice(asset string, price float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := append(c.history[asset], price)
	if len(h) > volatilityWindow {
		h = h[len(h)-volatilityWindow:]
	}
	c.history[asset] = h

	if len(h) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(h)-1)
	for i := 1; i < len(h); i++ {
		if h[i-1] > 0 {
			returns = append(returns, h[i]/h[i-1]-1)
		}
	}
	if len(returns) == 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

// call packs, executes and unpacks one view call.
func (c *CometClient) call(ctx context.Context, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.cometABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := c.cometABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

func (c *CometClient) callBig(ctx context.Context, to common.Address, method string, args ...interface{}) (*big.Int, error) {
	out, err := c.call(ctx, to, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected return type %T", method, out[0])
	}
	return v, nil
}

func (c *CometClient) callUint8(ctx context.Context, to common.Address, method string, args ...interface{}) (uint8, error) {
	out, err := c.call(ctx, to, method, args...)
	if err != nil {
		return 0, err
	}
	v, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected return type %T", method, out[0])
	}
	return v, nil
}

// bigToFloat converts a scaled integer to its unit value.
func bigToFloat(v *big.Int, scale float64) float64 {
	f := new(big.Float).SetInt(v)
	out, _ := new(big.Float).Quo(f, big.NewFloat(scale)).Float64()
	return out
}

// assignWeights sets each asset's share of total collateral value. A market
// with collateral listed but none supplied gets equal weights so the
// snapshot invariant still holds.
func assignWeights(collateral []domain.CollateralAsset) {
	if len(collateral) == 0 {
		return
	}
	var total float64
	for _, a := range collateral {
		total += a.Value()
	}
	if total <= 0 {
		for i := range collateral {
			collateral[i].Weight = 1 / float64(len(collateral))
		}
		return
	}
	for i := range collateral {
		collateral[i].Weight = collateral[i].Value() / total
	}
}

// weightedLiquidationThreshold averages per-asset liquidation factors by
// collateral weight. No collateral means no liquidation surface.
func weightedLiquidationThreshold(collateral []domain.CollateralAsset) float64 {
	var threshold float64
	for _, a := range collateral {
		threshold += a.Weight * a.LiquidationFactor
	}
	return threshold
}
