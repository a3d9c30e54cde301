package types

import "time"

// FactRow is a flat record read from one of the fact views. Values keep the
// types produced by the decoder (float64, string, json.Number, time.Time, nil).
type FactRow map[string]any

// Dimension is a categorical grouping key
type Dimension string

const (
	DimensionDate          Dimension = "date"
	DimensionLocation      Dimension = "location"
	DimensionStore         Dimension = "store"
	DimensionCategory      Dimension = "category"
	DimensionProduct       Dimension = "product"
	DimensionEmployee      Dimension = "employee"
	DimensionChannel       Dimension = "channel"
	DimensionPaymentMethod Dimension = "payment_method"
	DimensionOrderType     Dimension = "order_type"
	DimensionSupplier      Dimension = "supplier"
	DimensionPONumber      Dimension = "po_number"
	DimensionPOStatus      Dimension = "po_status"
	DimensionPaymentStatus Dimension = "payment_status"
)

// Dimensions lists every dimension accepted by the report API
var Dimensions = []Dimension{
	DimensionDate, DimensionLocation, DimensionStore, DimensionCategory, DimensionProduct,
	DimensionEmployee, DimensionChannel, DimensionPaymentMethod, DimensionOrderType,
	DimensionSupplier, DimensionPONumber, DimensionPOStatus, DimensionPaymentStatus,
}

// Metric is a numeric measure computed over a group of fact rows
type Metric string

const (
	MetricOrders        Metric = "orders"
	MetricRevenue       Metric = "revenue"
	MetricCost          Metric = "cost"
	MetricProfit        Metric = "profit"
	MetricMargin        Metric = "margin"
	MetricTax           Metric = "tax"
	MetricDiscounts     Metric = "discounts"
	MetricNetRevenue    Metric = "net_revenue"
	MetricQuantity      Metric = "quantity"
	MetricAvgOrderValue Metric = "avg_order_value"
	MetricPOCount       Metric = "po_count"
	MetricPOTotal       Metric = "po_total"
	MetricPOPaid        Metric = "po_paid"
	MetricPOOutstanding Metric = "po_outstanding"
	MetricPOItems       Metric = "po_items"
)

// Granularity is the bucketing resolution of the date dimension
type Granularity string

const (
	GranularityDay     Granularity = "day"
	GranularityWeek    Granularity = "week"
	GranularityMonth   Granularity = "month"
	GranularityQuarter Granularity = "quarter"
	GranularityYear    Granularity = "year"
)

// Valid reports whether g is one of the supported granularities
func (g Granularity) Valid() bool {
	switch g {
	case GranularityDay, GranularityWeek, GranularityMonth, GranularityQuarter, GranularityYear:
		return true
	}
	return false
}

// DataSource selects which fact view a report reads from
type DataSource string

const (
	DataSourceSales          DataSource = "sales"
	DataSourcePurchaseOrders DataSource = "purchase_orders"
)

// Valid reports whether d names a known fact view
func (d DataSource) Valid() bool {
	return d == DataSourceSales || d == DataSourcePurchaseOrders
}

// View returns the fact view backing the data source
func (d DataSource) View() string {
	if d == DataSourcePurchaseOrders {
		return "v_purchase_order_detail"
	}
	return "v_daily_sales_detail"
}

// DateColumn returns the column holding the business date for the data source
func (d DataSource) DateColumn() string {
	if d == DataSourcePurchaseOrders {
		return "order_date"
	}
	return "sale_date"
}

// FactFilter narrows the rows fetched from a fact view
type FactFilter struct {
	Source     DataSource
	DateFrom   *time.Time
	DateTo     *time.Time
	StoreID    string
	LocationID string
	Limit      int
}
