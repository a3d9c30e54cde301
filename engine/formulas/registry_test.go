package formulas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/retail-analytics/engine/types"
)

type RegistryTestSuite struct {
	suite.Suite
	registry *Registry
}

func (suite *RegistryTestSuite) SetupTest() {
	suite.registry = NewRegistry()
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (suite *RegistryTestSuite) TestAdditiveSynonyms() {
	rows := []types.FactRow{
		{"total_revenue": 100.0, "total_cogs": 40.0, "total_tax": 8.0, "total_discounts": 5.0, "quantity_sold": 3.0},
		{"revenue": "50.5", "total_cost": 20, "tax_amount": json.Number("4"), "discount_amount": 1.0, "quantity": 2},
		{"total_amount": 25.0, "cost": 10.0, "tax": 2.0, "discounts": 0.5, "qty": int64(1)},
	}

	assert.InDelta(suite.T(), 175.5, suite.registry.Evaluate(types.MetricRevenue, rows), 1e-9)
	assert.InDelta(suite.T(), 70.0, suite.registry.Evaluate(types.MetricCost, rows), 1e-9)
	assert.InDelta(suite.T(), 14.0, suite.registry.Evaluate(types.MetricTax, rows), 1e-9)
	assert.InDelta(suite.T(), 6.5, suite.registry.Evaluate(types.MetricDiscounts, rows), 1e-9)
	assert.InDelta(suite.T(), 6.0, suite.registry.Evaluate(types.MetricQuantity, rows), 1e-9)
}

func (suite *RegistryTestSuite) TestZeroFallsThroughToNextSynonym() {
	rows := []types.FactRow{{"total_revenue": 0.0, "revenue": 0, "total_amount": 42.0}}
	assert.Equal(suite.T(), 42.0, suite.registry.Evaluate(types.MetricRevenue, rows))
}

func (suite *RegistryTestSuite) TestOrdersDefaultToOnePerRow() {
	rows := []types.FactRow{
		{"order_count": 5.0},
		{},
		{"order_count": 0.0},
		{"order_count": nil},
	}
	assert.Equal(suite.T(), 8.0, suite.registry.Evaluate(types.MetricOrders, rows))
	assert.Equal(suite.T(), 8.0, suite.registry.Evaluate(types.MetricPOCount, rows))
}

func (suite *RegistryTestSuite) TestDerivedMetrics() {
	rows := []types.FactRow{
		{"total_revenue": 200.0, "total_cogs": 150.0, "total_discounts": 10.0, "order_count": 4.0},
	}
	values := suite.registry.EvaluateAll([]types.Metric{
		types.MetricMargin, types.MetricProfit, types.MetricNetRevenue, types.MetricAvgOrderValue,
	}, rows)

	assert.Equal(suite.T(), 50.0, values[types.MetricProfit])
	assert.Equal(suite.T(), 25.0, values[types.MetricMargin])
	assert.Equal(suite.T(), 190.0, values[types.MetricNetRevenue])
	assert.Equal(suite.T(), 50.0, values[types.MetricAvgOrderValue])
}

func (suite *RegistryTestSuite) TestRatioGuards() {
	rows := []types.FactRow{{"total_revenue": -10.0, "total_cogs": 5.0, "order_count": -1.0}}
	assert.Equal(suite.T(), 0.0, suite.registry.Evaluate(types.MetricMargin, rows))
	assert.Equal(suite.T(), 0.0, suite.registry.Evaluate(types.MetricAvgOrderValue, rows))
	assert.Equal(suite.T(), 0.0, suite.registry.Evaluate(types.MetricMargin, nil))
}

func (suite *RegistryTestSuite) TestPurchaseOrderMetrics() {
	rows := []types.FactRow{
		{"total_amount": 300.0, "amount_paid": 100.0, "amount_outstanding": 200.0, "total_quantity": 12.0},
		{"total_amount": 50.0, "amount_paid": 50.0, "item_count": 3.0},
	}
	assert.Equal(suite.T(), 350.0, suite.registry.Evaluate(types.MetricPOTotal, rows))
	assert.Equal(suite.T(), 150.0, suite.registry.Evaluate(types.MetricPOPaid, rows))
	assert.Equal(suite.T(), 200.0, suite.registry.Evaluate(types.MetricPOOutstanding, rows))
	assert.Equal(suite.T(), 15.0, suite.registry.Evaluate(types.MetricPOItems, rows))
}

func (suite *RegistryTestSuite) TestUnknownMetricIsZero() {
	rows := []types.FactRow{{"total_revenue": 10.0}}
	assert.Equal(suite.T(), 0.0, suite.registry.Evaluate(types.Metric("basket_size"), rows))
	assert.False(suite.T(), suite.registry.Known(types.Metric("basket_size")))
	assert.True(suite.T(), suite.registry.Known(types.MetricRevenue))
}

func (suite *RegistryTestSuite) TestDefinitionsKeepRegistrationOrder() {
	defs := suite.registry.Definitions()
	suite.Require().Len(defs, 15)
	assert.Equal(suite.T(), types.MetricOrders, defs[0].Metric)
	assert.Equal(suite.T(), FormatPercent, defs[4].Format)
}

func TestNumber(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  float64
	}{
		{"nil", nil, 0},
		{"float", 1.5, 1.5},
		{"int", 7, 7},
		{"numeric string", " 12.25 ", 12.25},
		{"garbage string", "n/a", 0},
		{"bytes", []byte("3.5"), 3.5},
		{"json number", json.Number("9"), 9},
		{"bool", true, 0},
		{"nan string", "NaN", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Number(tt.input))
		})
	}
}
