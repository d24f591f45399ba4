package pnl

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/skintrack/tracker/internal/model"
)

// Converter turns base-currency results into a display currency. It is a
// pure presentation pass: every monetary field is multiplied by Rate and
// rounded to the currency's minor unit. Percentages are left untouched.
//
// Differences are taken after rounding (realized and kline pnl from revenue
// and invested, unrealized pnl from market value and cost basis) so the
// converted figures still add up.
type Converter struct {
	Currency string
	Rate     decimal.Decimal
	places   int32
}

// NewConverter builds a converter for currency at rate units per USD.
// An empty currency means the base currency at rate 1.
func NewConverter(currency string, rate decimal.Decimal) Converter {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = model.BaseCurrency
		rate = decimal.NewFromInt(1)
	}
	places := int32(2)
	if c := money.GetCurrency(currency); c != nil {
		places = int32(c.Fraction)
	}
	return Converter{Currency: currency, Rate: rate, places: places}
}

// Amount converts one base-currency amount.
func (c Converter) Amount(v decimal.Decimal) decimal.Decimal {
	return v.Mul(c.Rate).Round(c.places)
}

// Format renders an amount already in the display currency, e.g. "$1.50".
func (c Converter) Format(v decimal.Decimal) string {
	minor := v.Round(c.places).Shift(c.places).IntPart()
	return money.New(minor, c.Currency).Display()
}

// Holding converts the cost fields of a holding.
func (c Converter) Holding(h model.Holding) model.Holding {
	h.AvgBuyCost = c.Amount(h.AvgBuyCost)
	h.TotalCostBasis = c.Amount(h.TotalCostBasis)
	return h
}

// Valuation converts every monetary field of a valuation.
func (c Converter) Valuation(v model.Valuation) model.Valuation {
	v.Holding = c.Holding(v.Holding)
	v.MarketPrice = c.Amount(v.MarketPrice)
	v.CurrentMarketValue = c.Amount(v.CurrentMarketValue)
	v.UnrealizedPnL = v.CurrentMarketValue.Sub(v.TotalCostBasis)
	return v
}

// Kline converts a cumulative series into a new slice.
func (c Converter) Kline(points []model.KlinePoint) []model.KlinePoint {
	out := make([]model.KlinePoint, len(points))
	for i, p := range points {
		invested, revenue := c.Amount(p.Invested), c.Amount(p.Revenue)
		out[i] = model.KlinePoint{
			Date:     p.Date,
			Invested: invested,
			Revenue:  revenue,
			PnL:      revenue.Sub(invested),
		}
	}
	return out
}

// Stats converts monetary statistics. ROIPercent and WinRate are ratios
// computed in the base currency and are copied unchanged.
func (c Converter) Stats(s model.FinancialStats) model.FinancialStats {
	s.Currency = c.Currency
	s.TotalInvested = c.Amount(s.TotalInvested)
	s.TotalRevenue = c.Amount(s.TotalRevenue)
	s.TotalFees = c.Amount(s.TotalFees)
	s.RealizedPnL = s.TotalRevenue.Sub(s.TotalInvested)
	s.AvgTradePnL = c.Amount(s.AvgTradePnL)
	s.KlineData = c.Kline(s.KlineData)
	return s
}
