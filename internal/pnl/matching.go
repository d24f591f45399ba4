package pnl

import (
	"github.com/shopspring/decimal"

	"github.com/skintrack/tracker/internal/model"
)

// Matching policies accepted by Match.
const (
	MatchGlobal  = "global"
	MatchPerItem = "per_item"
)

// MatchResult is the output of FIFO matching.
type MatchResult struct {
	Trades    []model.Trade
	Unmatched []model.SaleEvent

	// WinRate is the percentage of trades with PnL > 0.
	WinRate decimal.Decimal

	// AvgTradePnL is the mean PnL over matched trades.
	AvgTradePnL decimal.Decimal
}

// Match dispatches to MatchFIFO or MatchFIFOPerItem by policy name. Unknown
// names fall back to the global policy.
func Match(policy string, purchases []model.PurchaseEvent, sales []model.SaleEvent) MatchResult {
	if policy == MatchPerItem {
		return MatchFIFOPerItem(purchases, sales)
	}
	return MatchFIFO(purchases, sales)
}

// MatchFIFO pairs sale #k with purchase #k across the whole portfolio, in
// timestamp order, ignoring which item either event refers to. This is the
// dashboard's win-rate semantics. Sales arriving after the purchase queue is
// exhausted are returned in Unmatched and excluded from the statistics.
func MatchFIFO(purchases []model.PurchaseEvent, sales []model.SaleEvent) MatchResult {
	queue := sortedPurchases(purchases)

	var res MatchResult
	for _, s := range sortedSales(sales) {
		if len(queue) == 0 {
			res.Unmatched = append(res.Unmatched, s)
			continue
		}
		head := queue[0]
		queue = queue[1:]
		res.Trades = append(res.Trades, newTrade(s, head))
	}
	res.summarize()
	return res
}

// MatchFIFOPerItem pairs each sale with the earliest unsold purchase of the
// same item. Trades are returned in sale order.
func MatchFIFOPerItem(purchases []model.PurchaseEvent, sales []model.SaleEvent) MatchResult {
	queues := make(map[int64][]model.PurchaseEvent)
	for _, p := range sortedPurchases(purchases) {
		queues[p.ItemID] = append(queues[p.ItemID], p)
	}

	var res MatchResult
	for _, s := range sortedSales(sales) {
		q := queues[s.ItemID]
		if len(q) == 0 {
			res.Unmatched = append(res.Unmatched, s)
			continue
		}
		queues[s.ItemID] = q[1:]
		res.Trades = append(res.Trades, newTrade(s, q[0]))
	}
	res.summarize()
	return res
}

func newTrade(s model.SaleEvent, p model.PurchaseEvent) model.Trade {
	return model.Trade{
		Sale:     s,
		Purchase: p,
		PnL:      s.Net().Sub(p.UnitPrice),
	}
}

func (r *MatchResult) summarize() {
	total := decimal.Zero
	wins := 0
	for _, t := range r.Trades {
		total = total.Add(t.PnL)
		if t.PnL.IsPositive() {
			wins++
		}
	}
	n := len(r.Trades)
	r.WinRate = percent(decimal.NewFromInt(int64(wins)), decimal.NewFromInt(int64(n)))
	r.AvgTradePnL = mean(total, n)
}
