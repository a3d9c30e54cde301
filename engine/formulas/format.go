package formulas

import (
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/retail-analytics/engine/types"
)

// FormatValue renders a metric value for tables and exports: US dollars for
// money metrics, two decimals with a percent sign for margin, rounded whole
// numbers for counts and grouped plain numbers for everything else.
func FormatValue(m types.Metric, value float64) string {
	switch m {
	case types.MetricRevenue, types.MetricCost, types.MetricProfit, types.MetricTax,
		types.MetricDiscounts, types.MetricNetRevenue, types.MetricAvgOrderValue:
		return formatCurrency(value)
	case types.MetricMargin:
		return decimal.NewFromFloat(value).StringFixed(2) + "%"
	case types.MetricOrders, types.MetricQuantity:
		return humanize.Comma(int64(math.Floor(value + 0.5)))
	default:
		return groupDigits(decimal.NewFromFloat(value).Round(3).String())
	}
}

func formatCurrency(value float64) string {
	d := decimal.NewFromFloat(value).Round(2)
	formatted := "$" + groupDigits(d.Abs().StringFixed(2))
	if d.IsNegative() {
		return "-" + formatted
	}
	return formatted
}

// groupDigits inserts thousands separators into the integer part of a plain
// decimal string.
func groupDigits(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")
	n, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return sign + s
	}
	out := humanize.Comma(n)
	if hasFrac {
		out += "." + frac
	}
	return sign + out
}
