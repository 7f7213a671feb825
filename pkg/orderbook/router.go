package orderbook

// LiquidityFlag labels the aggressor side of a fill.
type LiquidityFlag string

const (
	// TAKER marks a fill whose aggressor removed liquidity.
	TAKER LiquidityFlag = "TAKER"
	// MAKER marks a fill whose aggressor provided liquidity.
	MAKER LiquidityFlag = "MAKER"
	// MAKER_MAKER marks symmetric fills injected by synthetic feeds where
	// neither side crossed the book.
	MAKER_MAKER LiquidityFlag = "MAKER_MAKER"
)

// EnhancedFill is the router's account-attributed view of a base fill.
type EnhancedFill struct {
	FillID          uint64
	Base            Fill
	BuyAccountID    int64
	SellAccountID   int64
	Symbol          string
	IsAggressiveBuy bool
	Liquidity       LiquidityFlag
	BuyerFee        float64
	SellerFee       float64
}

type FillCallback func(fill *EnhancedFill)

type SelfTradeCallback func(accountID int64, aggressive, passive *Order)

// FillRouter attributes fills to accounts, blocks self-trades, applies the
// maker/taker fee schedule and fans fills out to registered callbacks.
// Callbacks run synchronously inside Submit and must not mutate the book.
type FillRouter struct {
	nextFillID uint64

	fills     []*EnhancedFill
	byAccount map[int64][]*EnhancedFill
	bySymbol  map[string][]*EnhancedFill
	byID      map[uint64]*EnhancedFill

	selfTradePrevention bool
	selfTradesPrevented uint64

	makerFeeRate float64
	takerFeeRate float64

	totalVolume   int64
	totalNotional float64

	fillCallbacks      []FillCallback
	selfTradeCallbacks []SelfTradeCallback
}

func NewFillRouter(selfTradePrevention bool) *FillRouter {
	return &FillRouter{
		byAccount:           make(map[int64][]*EnhancedFill),
		bySymbol:            make(map[string][]*EnhancedFill),
		byID:                make(map[uint64]*EnhancedFill),
		selfTradePrevention: selfTradePrevention,
	}
}

func (r *FillRouter) RegisterFillCallback(cb FillCallback) {
	r.fillCallbacks = append(r.fillCallbacks, cb)
}

func (r *FillRouter) RegisterSelfTradeCallback(cb SelfTradeCallback) {
	r.selfTradeCallbacks = append(r.selfTradeCallbacks, cb)
}

func (r *FillRouter) SetSelfTradePrevention(enabled bool) {
	r.selfTradePrevention = enabled
}

// SetFeeSchedule sets maker and taker fee rates as fractions of notional
// (e.g. 0.0005 for 5 bps).
func (r *FillRouter) SetFeeSchedule(maker, taker float64) {
	r.makerFeeRate = maker
	r.takerFeeRate = taker
}

// RouteFill either accepts the fill (attributing accounts and fees, firing
// callbacks) and returns true, or rejects it as a self-trade and returns
// false. On rejection the engine reverts the trade step, so the router must
// be consulted before any quantity is committed.
func (r *FillRouter) RouteFill(base Fill, aggressive, passive *Order, symbol string) bool {
	if r.selfTradePrevention &&
		aggressive.AccountID != 0 &&
		aggressive.AccountID == passive.AccountID {
		r.selfTradesPrevented++
		for _, cb := range r.selfTradeCallbacks {
			cb(aggressive.AccountID, aggressive, passive)
		}
		return false
	}

	r.nextFillID++
	ef := &EnhancedFill{
		FillID:          r.nextFillID,
		Base:            base,
		Symbol:          symbol,
		IsAggressiveBuy: aggressive.Side == BUY,
		Liquidity:       classifyLiquidity(aggressive, passive),
	}

	if aggressive.Side == BUY {
		ef.BuyAccountID = aggressive.AccountID
		ef.SellAccountID = passive.AccountID
	} else {
		ef.BuyAccountID = passive.AccountID
		ef.SellAccountID = aggressive.AccountID
	}

	notional := base.Price * float64(base.Quantity)
	aggressorFee := r.takerFeeRate * notional
	passiveFee := r.makerFeeRate * notional
	if ef.Liquidity == MAKER_MAKER {
		aggressorFee = r.makerFeeRate * notional
	}
	if ef.IsAggressiveBuy {
		ef.BuyerFee = aggressorFee
		ef.SellerFee = passiveFee
	} else {
		ef.BuyerFee = passiveFee
		ef.SellerFee = aggressorFee
	}

	r.fills = append(r.fills, ef)
	r.byAccount[ef.BuyAccountID] = append(r.byAccount[ef.BuyAccountID], ef)
	if ef.SellAccountID != ef.BuyAccountID {
		r.byAccount[ef.SellAccountID] = append(r.byAccount[ef.SellAccountID], ef)
	}
	r.bySymbol[symbol] = append(r.bySymbol[symbol], ef)
	r.byID[ef.FillID] = ef

	r.totalVolume += base.Quantity
	r.totalNotional += notional

	for _, cb := range r.fillCallbacks {
		cb(ef)
	}
	return true
}

// classifyLiquidity labels the aggressor. A market aggressor and a crossing
// limit aggressor are takers; anything else is the symmetric MAKER_MAKER
// case used by synthetic feeds.
func classifyLiquidity(aggressive, passive *Order) LiquidityFlag {
	if aggressive.IsMarket() {
		return TAKER
	}
	if aggressive.Side == BUY && aggressive.Price >= passive.Price {
		return TAKER
	}
	if aggressive.Side == SELL && aggressive.Price <= passive.Price {
		return TAKER
	}
	return MAKER_MAKER
}

func (r *FillRouter) TotalFills() uint64 {
	return uint64(len(r.fills))
}

func (r *FillRouter) SelfTradesPrevented() uint64 {
	return r.selfTradesPrevented
}

func (r *FillRouter) TotalVolume() int64 {
	return r.totalVolume
}

func (r *FillRouter) TotalNotional() float64 {
	return r.totalNotional
}

func (r *FillRouter) AllFills() []*EnhancedFill {
	return r.fills
}

func (r *FillRouter) FillsForAccount(accountID int64) []*EnhancedFill {
	return r.byAccount[accountID]
}

func (r *FillRouter) FillsForSymbol(symbol string) []*EnhancedFill {
	return r.bySymbol[symbol]
}

func (r *FillRouter) FillByID(id uint64) (*EnhancedFill, bool) {
	ef, ok := r.byID[id]
	return ef, ok
}
