package reports

import (
	"context"
	"fmt"

	"github.com/retail-analytics/engine/types"
)

// TemplateParams are the caller-supplied parts of a template query
type TemplateParams struct {
	DateFrom    string            `json:"date_from,omitempty"`
	DateTo      string            `json:"date_to,omitempty"`
	StoreID     string            `json:"store_id,omitempty"`
	LocationID  string            `json:"location_id,omitempty"`
	Granularity types.Granularity `json:"granularity,omitempty"`
}

var templates = []types.ReportTemplate{
	{
		ID:          "revenue_summary",
		Name:        "Revenue Summary",
		Description: "Daily revenue, orders and average order value",
		Query: types.ReportQuery{
			DataSource:  types.DataSourceSales,
			Dimensions:  []types.Dimension{types.DimensionDate},
			Metrics:     []types.Metric{types.MetricRevenue, types.MetricOrders, types.MetricAvgOrderValue, types.MetricNetRevenue},
			Granularity: types.GranularityDay,
		},
	},
	{
		ID:          "pnl_statement",
		Name:        "Profit & Loss",
		Description: "Revenue, cost, profit and margin by store",
		Query: types.ReportQuery{
			DataSource: types.DataSourceSales,
			Dimensions: []types.Dimension{types.DimensionStore},
			Metrics: []types.Metric{
				types.MetricRevenue, types.MetricCost, types.MetricProfit, types.MetricMargin,
				types.MetricTax, types.MetricDiscounts, types.MetricNetRevenue,
			},
		},
	},
	{
		ID:          "location_performance",
		Name:        "Location Performance",
		Description: "Sales and profitability by location",
		Query: types.ReportQuery{
			DataSource: types.DataSourceSales,
			Dimensions: []types.Dimension{types.DimensionLocation},
			Metrics:    []types.Metric{types.MetricRevenue, types.MetricOrders, types.MetricProfit, types.MetricMargin, types.MetricAvgOrderValue},
		},
	},
	{
		ID:          "channel_mix",
		Name:        "Channel Mix",
		Description: "In-store versus online sales",
		Query: types.ReportQuery{
			DataSource: types.DataSourceSales,
			Dimensions: []types.Dimension{types.DimensionChannel},
			Metrics:    []types.Metric{types.MetricRevenue, types.MetricOrders, types.MetricAvgOrderValue},
		},
	},
	{
		ID:          "purchase_order_status",
		Name:        "Purchase Order Status",
		Description: "Purchase order totals and balances by status and supplier",
		Query: types.ReportQuery{
			DataSource: types.DataSourcePurchaseOrders,
			Dimensions: []types.Dimension{types.DimensionPOStatus, types.DimensionSupplier},
			Metrics:    []types.Metric{types.MetricPOCount, types.MetricPOTotal, types.MetricPOPaid, types.MetricPOOutstanding},
		},
	},
}

// Templates lists the report presets
func (s *service) Templates() []types.ReportTemplate {
	out := make([]types.ReportTemplate, len(templates))
	copy(out, templates)
	return out
}

// Template expands the preset id with params
func Template(id string, params TemplateParams) (types.ReportQuery, error) {
	for _, t := range templates {
		if t.ID != id {
			continue
		}
		q := t.Query
		q.Dimensions = append([]types.Dimension(nil), t.Query.Dimensions...)
		q.Metrics = append([]types.Metric(nil), t.Query.Metrics...)
		q.DateFrom = params.DateFrom
		q.DateTo = params.DateTo
		q.StoreID = params.StoreID
		q.LocationID = params.LocationID
		if params.Granularity != "" {
			q.Granularity = params.Granularity
		}
		return q, nil
	}
	return types.ReportQuery{}, fmt.Errorf("template %q: %w", id, ErrNotFound)
}

// ExecuteTemplate expands and executes a preset
func (s *service) ExecuteTemplate(ctx context.Context, id string, params TemplateParams) (*types.ReportResult, error) {
	q, err := Template(id, params)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, q)
}
