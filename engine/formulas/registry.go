package formulas

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/retail-analytics/engine/types"
)

// Format describes how a metric value is rendered for display
type Format string

const (
	FormatCurrency Format = "currency"
	FormatPercent  Format = "percent"
	FormatCount    Format = "count"
	FormatNumber   Format = "number"
)

// Definition describes one metric of the registry
type Definition struct {
	Metric types.Metric `json:"metric"`
	Label  string       `json:"label"`
	Format Format       `json:"format"`

	formula func(e *evaluation) float64
}

// Registry maps metric names to formulas. It is immutable after construction
// and safe for concurrent use.
type Registry struct {
	defs  map[types.Metric]Definition
	order []types.Metric
}

// Source field synonyms, tried in order. The first present, non-zero value wins.
var (
	revenueFields     = []string{"total_revenue", "revenue", "total_amount"}
	costFields        = []string{"total_cogs", "total_cost", "cost"}
	taxFields         = []string{"total_tax", "tax_amount", "tax"}
	discountFields    = []string{"total_discounts", "discount_amount", "discounts"}
	quantityFields    = []string{"quantity_sold", "quantity", "qty"}
	poItemFields      = []string{"total_quantity", "item_count"}
	poTotalFields     = []string{"total_amount"}
	poPaidFields      = []string{"amount_paid"}
	poOutstandingFlds = []string{"amount_outstanding"}
)

// NewRegistry builds the standard metric registry
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[types.Metric]Definition)}

	r.add(types.MetricOrders, "Orders", FormatCount, countOrders)
	r.add(types.MetricRevenue, "Revenue", FormatCurrency, sumOf(revenueFields))
	r.add(types.MetricCost, "Cost", FormatCurrency, sumOf(costFields))
	r.add(types.MetricProfit, "Profit", FormatCurrency, func(e *evaluation) float64 {
		return e.value(types.MetricRevenue) - e.value(types.MetricCost)
	})
	r.add(types.MetricMargin, "Margin %", FormatPercent, func(e *evaluation) float64 {
		revenue := e.value(types.MetricRevenue)
		if revenue <= 0 {
			return 0
		}
		return e.value(types.MetricProfit) / revenue * 100
	})
	r.add(types.MetricTax, "Tax", FormatCurrency, sumOf(taxFields))
	r.add(types.MetricDiscounts, "Discounts", FormatCurrency, sumOf(discountFields))
	r.add(types.MetricNetRevenue, "Net Revenue", FormatCurrency, func(e *evaluation) float64 {
		return e.value(types.MetricRevenue) - e.value(types.MetricDiscounts)
	})
	r.add(types.MetricQuantity, "Quantity", FormatCount, sumOf(quantityFields))
	r.add(types.MetricAvgOrderValue, "Avg Order Value", FormatCurrency, func(e *evaluation) float64 {
		orders := e.value(types.MetricOrders)
		if orders <= 0 {
			return 0
		}
		return e.value(types.MetricRevenue) / orders
	})
	r.add(types.MetricPOCount, "PO Count", FormatNumber, countOrders)
	r.add(types.MetricPOTotal, "PO Total", FormatNumber, sumOf(poTotalFields))
	r.add(types.MetricPOPaid, "PO Paid", FormatNumber, sumOf(poPaidFields))
	r.add(types.MetricPOOutstanding, "PO Outstanding", FormatNumber, sumOf(poOutstandingFlds))
	r.add(types.MetricPOItems, "PO Items", FormatNumber, sumOf(poItemFields))

	return r
}

func (r *Registry) add(m types.Metric, label string, format Format, formula func(e *evaluation) float64) {
	r.defs[m] = Definition{Metric: m, Label: label, Format: format, formula: formula}
	r.order = append(r.order, m)
}

// Known reports whether the registry has a formula for m
func (r *Registry) Known(m types.Metric) bool {
	_, ok := r.defs[m]
	return ok
}

// Definition returns the metadata of m
func (r *Registry) Definition(m types.Metric) (Definition, bool) {
	def, ok := r.defs[m]
	return def, ok
}

// Definitions lists every metric in registration order
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, m := range r.order {
		out = append(out, r.defs[m])
	}
	return out
}

// Evaluate computes a single metric over rows. Unknown metrics evaluate to 0.
func (r *Registry) Evaluate(m types.Metric, rows []types.FactRow) float64 {
	return r.newEvaluation(rows).value(m)
}

// EvaluateAll computes every requested metric over the same group of rows.
// Derived metrics reuse the base sums computed for the group.
func (r *Registry) EvaluateAll(metrics []types.Metric, rows []types.FactRow) map[types.Metric]float64 {
	e := r.newEvaluation(rows)
	out := make(map[types.Metric]float64, len(metrics))
	for _, m := range metrics {
		out[m] = e.value(m)
	}
	return out
}

// evaluation memoizes metric values for one group of rows so that derived
// formulas see their dependencies computed exactly once.
type evaluation struct {
	registry *Registry
	rows     []types.FactRow
	memo     map[types.Metric]float64
}

func (r *Registry) newEvaluation(rows []types.FactRow) *evaluation {
	return &evaluation{registry: r, rows: rows, memo: make(map[types.Metric]float64)}
}

func (e *evaluation) value(m types.Metric) float64 {
	if v, ok := e.memo[m]; ok {
		return v
	}
	def, ok := e.registry.defs[m]
	if !ok {
		return 0
	}
	v := def.formula(e)
	e.memo[m] = v
	return v
}

func sumOf(fields []string) func(e *evaluation) float64 {
	return func(e *evaluation) float64 {
		var total float64
		for _, row := range e.rows {
			total += FieldValue(row, fields...)
		}
		return total
	}
}

// countOrders treats an absent or zero order_count as a single order
func countOrders(e *evaluation) float64 {
	var total float64
	for _, row := range e.rows {
		n := Number(row["order_count"])
		if n == 0 {
			n = 1
		}
		total += n
	}
	return total
}

// FieldValue returns the first non-zero numeric value among the candidate fields
func FieldValue(row types.FactRow, candidates ...string) float64 {
	for _, field := range candidates {
		if v := Number(row[field]); v != 0 {
			return v
		}
	}
	return 0
}

// Number coerces a decoded field value into a float64. Values that cannot be
// read as a finite number yield 0.
func Number(v any) float64 {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		f = parsed
	case []byte:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
