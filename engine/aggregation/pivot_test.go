package aggregation

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/retail-analytics/engine/formulas"
	"github.com/retail-analytics/engine/types"
)

type PivotTestSuite struct {
	suite.Suite
	registry   *formulas.Registry
	aggregator Aggregator
}

func (suite *PivotTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	suite.registry = formulas.NewRegistry()
	suite.aggregator = NewAggregator(suite.registry, logger)
}

func TestPivotTestSuite(t *testing.T) {
	suite.Run(t, new(PivotTestSuite))
}

func salesRows() []types.FactRow {
	return []types.FactRow{
		{"sale_date": "2026-01-05", "store_id": "s1", "location_id": "l1", "total_revenue": 100.0, "total_cogs": 60.0, "total_discounts": 5.0, "order_count": 4.0, "quantity_sold": 10.0},
		{"sale_date": "2026-01-07", "store_id": "s2", "store_name": "Mall", "location_id": "l2", "pickup_location_id": "l2", "total_revenue": 300.0, "total_cogs": 120.0, "order_count": 6.0, "quantity_sold": 20.0},
		{"sale_date": "2026-01-05", "store_id": "s1", "location_name": "Annex", "total_revenue": 50.0, "total_cogs": 40.0, "total_discounts": 2.0, "quantity_sold": 3.0},
		{"sale_date": "2026-02-10", "total_revenue": 80.0, "total_cogs": 20.0, "order_count": 2.0},
	}
}

func (suite *PivotTestSuite) TestEmptyInput() {
	result, err := suite.aggregator.Aggregate(nil, Request{
		Dimensions: []types.Dimension{types.DimensionStore},
		Metrics:    []types.Metric{types.MetricRevenue},
	})

	require.NoError(suite.T(), err)
	assert.NotNil(suite.T(), result.Rows)
	assert.Empty(suite.T(), result.Rows)
	assert.NotNil(suite.T(), result.Totals)
	assert.Empty(suite.T(), result.Totals)
	assert.Equal(suite.T(), 0, result.RowCount)
}

func (suite *PivotTestSuite) TestStoreLookupAndFallbacks() {
	result, err := suite.aggregator.Aggregate(salesRows(), Request{
		Dimensions: []types.Dimension{types.DimensionStore},
		Metrics:    []types.Metric{types.MetricRevenue, types.MetricOrders},
		Lookups:    Lookups{Stores: map[string]string{"s1": "Downtown"}},
	})

	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 3, result.RowCount)

	assert.Equal(suite.T(), "Downtown", result.Rows[0].Dimensions[types.DimensionStore])
	assert.Equal(suite.T(), 150.0, result.Rows[0].Values[types.MetricRevenue])
	assert.Equal(suite.T(), 5.0, result.Rows[0].Values[types.MetricOrders])

	assert.Equal(suite.T(), "Mall", result.Rows[1].Dimensions[types.DimensionStore])
	assert.Equal(suite.T(), UnknownLabel, result.Rows[2].Dimensions[types.DimensionStore])

	assert.Equal(suite.T(), 530.0, result.Totals[types.MetricRevenue])
	assert.Equal(suite.T(), 13.0, result.Totals[types.MetricOrders])
}

func (suite *PivotTestSuite) TestLocationLookupFallsBackToRowName() {
	result, err := suite.aggregator.Aggregate(salesRows(), Request{
		Dimensions: []types.Dimension{types.DimensionLocation},
		Metrics:    []types.Metric{types.MetricRevenue},
		Lookups:    Lookups{Locations: map[string]string{"l1": "Front Counter"}},
	})

	require.NoError(suite.T(), err)
	labels := make([]string, 0, result.RowCount)
	for _, row := range result.Rows {
		labels = append(labels, row.Dimensions[types.DimensionLocation])
	}
	assert.Equal(suite.T(), []string{"Annex", "Front Counter", UnknownLabel}, labels)
}

func (suite *PivotTestSuite) TestDateDimensionSortsNewestFirst() {
	result, err := suite.aggregator.Aggregate(salesRows(), Request{
		Dimensions: []types.Dimension{types.DimensionDate},
		Metrics:    []types.Metric{types.MetricRevenue},
	})

	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 3, result.RowCount)
	assert.Equal(suite.T(), "Feb 10, 2026", result.Rows[0].Dimensions[types.DimensionDate])
	assert.Equal(suite.T(), "Jan 7, 2026", result.Rows[1].Dimensions[types.DimensionDate])
	assert.Equal(suite.T(), "Jan 5, 2026", result.Rows[2].Dimensions[types.DimensionDate])
	assert.Equal(suite.T(), 150.0, result.Rows[2].Values[types.MetricRevenue])
}

func (suite *PivotTestSuite) TestGranularityLabels() {
	tests := []struct {
		granularity types.Granularity
		want        []string
	}{
		{types.GranularityWeek, []string{"Week of Feb 8", "Week of Jan 4"}},
		{types.GranularityMonth, []string{"February 2026", "January 2026"}},
		{types.GranularityQuarter, []string{"Q1 2026"}},
		{types.GranularityYear, []string{"2026"}},
	}

	for _, tt := range tests {
		result, err := suite.aggregator.Aggregate(salesRows(), Request{
			Dimensions:  []types.Dimension{types.DimensionDate},
			Metrics:     []types.Metric{types.MetricRevenue},
			Granularity: tt.granularity,
		})
		require.NoError(suite.T(), err)

		var labels []string
		for _, row := range result.Rows {
			labels = append(labels, row.Dimensions[types.DimensionDate])
		}
		assert.Equal(suite.T(), tt.want, labels, "granularity %s", tt.granularity)
	}
}

func (suite *PivotTestSuite) TestChannelIsDerived() {
	result, err := suite.aggregator.Aggregate(salesRows(), Request{
		Dimensions: []types.Dimension{types.DimensionChannel},
		Metrics:    []types.Metric{types.MetricRevenue},
	})

	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 2, result.RowCount)
	assert.Equal(suite.T(), "In-Store", result.Rows[0].Dimensions[types.DimensionChannel])
	assert.Equal(suite.T(), 300.0, result.Rows[0].Values[types.MetricRevenue])
	assert.Equal(suite.T(), "Online", result.Rows[1].Dimensions[types.DimensionChannel])
	assert.Equal(suite.T(), 230.0, result.Rows[1].Values[types.MetricRevenue])
}

func (suite *PivotTestSuite) TestAdditivityAcrossGroupings() {
	rows := salesRows()
	additive := []types.Metric{
		types.MetricOrders, types.MetricRevenue, types.MetricCost, types.MetricTax,
		types.MetricDiscounts, types.MetricQuantity, types.MetricPOTotal,
	}
	groupings := [][]types.Dimension{
		{types.DimensionDate},
		{types.DimensionStore, types.DimensionChannel},
		{types.DimensionLocation, types.DimensionDate},
		{types.DimensionSupplier},
	}

	for _, dims := range groupings {
		result, err := suite.aggregator.Aggregate(rows, Request{Dimensions: dims, Metrics: additive})
		require.NoError(suite.T(), err)

		for _, m := range additive {
			var sum float64
			for _, row := range result.Rows {
				sum += row.Values[m]
			}
			want := suite.registry.Evaluate(m, rows)
			assert.InDelta(suite.T(), want, sum, 1e-9, "metric %s grouped by %v", m, dims)
			assert.InDelta(suite.T(), want, result.Totals[m], 1e-9, "total %s grouped by %v", m, dims)
		}
	}
}

func (suite *PivotTestSuite) TestDerivedConsistencyPerRow() {
	result, err := suite.aggregator.Aggregate(salesRows(), Request{
		Dimensions: []types.Dimension{types.DimensionDate, types.DimensionStore},
		Metrics: []types.Metric{
			types.MetricNetRevenue, types.MetricProfit, types.MetricRevenue,
			types.MetricCost, types.MetricDiscounts,
		},
	})

	require.NoError(suite.T(), err)
	for _, row := range result.Rows {
		v := row.Values
		assert.Equal(suite.T(), v[types.MetricRevenue]-v[types.MetricCost], v[types.MetricProfit])
		assert.Equal(suite.T(), v[types.MetricRevenue]-v[types.MetricDiscounts], v[types.MetricNetRevenue])
	}
}

func (suite *PivotTestSuite) TestRatioTotalsAreSummedPerGroup() {
	rows := []types.FactRow{
		{"supplier_name": "Acme", "total_revenue": 100.0, "total_cogs": 50.0},
		{"supplier_name": "Bolt", "total_revenue": 100.0, "total_cogs": 75.0},
	}

	result, err := suite.aggregator.Aggregate(rows, Request{
		Dimensions: []types.Dimension{types.DimensionSupplier},
		Metrics:    []types.Metric{types.MetricMargin},
	})

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 50.0, result.Rows[0].Values[types.MetricMargin])
	assert.Equal(suite.T(), 25.0, result.Rows[1].Values[types.MetricMargin])
	assert.Equal(suite.T(), 75.0, result.Totals[types.MetricMargin])
}

func (suite *PivotTestSuite) TestDeterminism() {
	req := Request{
		Dimensions:  []types.Dimension{types.DimensionStore, types.DimensionDate},
		Metrics:     []types.Metric{types.MetricRevenue, types.MetricMargin, types.MetricAvgOrderValue},
		Granularity: types.GranularityMonth,
		Lookups:     Lookups{Stores: map[string]string{"s1": "Downtown", "s2": "Mall"}},
	}

	first, err := suite.aggregator.Aggregate(salesRows(), req)
	require.NoError(suite.T(), err)
	second, err := suite.aggregator.Aggregate(salesRows(), req)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), first.Rows, second.Rows)
	assert.Equal(suite.T(), first.Totals, second.Totals)
	assert.Equal(suite.T(), first.RowCount, second.RowCount)
}

func (suite *PivotTestSuite) TestAlphabeticalOrderIsLocaleAware() {
	rows := []types.FactRow{
		{"supplier_name": "cherry", "total_revenue": 1.0},
		{"supplier_name": "Banana", "total_revenue": 1.0},
		{"supplier_name": "apple", "total_revenue": 1.0},
	}

	result, err := suite.aggregator.Aggregate(rows, Request{
		Dimensions: []types.Dimension{types.DimensionSupplier},
		Metrics:    []types.Metric{types.MetricRevenue},
	})

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "apple", result.Rows[0].Dimensions[types.DimensionSupplier])
	assert.Equal(suite.T(), "Banana", result.Rows[1].Dimensions[types.DimensionSupplier])
	assert.Equal(suite.T(), "cherry", result.Rows[2].Dimensions[types.DimensionSupplier])
}

func (suite *PivotTestSuite) TestSeparatorInValuesDoesNotMergeGroups() {
	rows := []types.FactRow{
		{"supplier_name": "A|B", "status": "C", "total_amount": 1.0},
		{"supplier_name": "A", "status": "B|C", "total_amount": 2.0},
	}

	result, err := suite.aggregator.Aggregate(rows, Request{
		Dimensions: []types.Dimension{types.DimensionSupplier, types.DimensionPOStatus},
		Metrics:    []types.Metric{types.MetricPOTotal},
	})

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, result.RowCount)
}

func (suite *PivotTestSuite) TestMalformedDatePropagates() {
	rows := []types.FactRow{{"sale_date": "05/01/2026", "total_revenue": 1.0}}

	_, err := suite.aggregator.Aggregate(rows, Request{
		Dimensions: []types.Dimension{types.DimensionDate},
		Metrics:    []types.Metric{types.MetricRevenue},
	})

	require.Error(suite.T(), err)
	assert.True(suite.T(), errors.Is(err, types.ErrInvalidDate))
}

func (suite *PivotTestSuite) TestPurchaseOrderDimensions() {
	rows := []types.FactRow{
		{"order_date": "2026-03-01", "po_number": "PO-1", "status": "received", "payment_status": "paid", "total_amount": 10.0},
		{"order_date": "2026-03-02", "po_number": "PO-2", "payment_status": "unpaid", "total_amount": 5.0},
	}

	result, err := suite.aggregator.Aggregate(rows, Request{
		Dimensions: []types.Dimension{types.DimensionPONumber, types.DimensionPOStatus, types.DimensionPaymentStatus},
		Metrics:    []types.Metric{types.MetricPOTotal},
	})

	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 2, result.RowCount)
	assert.Equal(suite.T(), "received", result.Rows[0].Dimensions[types.DimensionPOStatus])
	assert.Equal(suite.T(), UnknownLabel, result.Rows[1].Dimensions[types.DimensionPOStatus])
	assert.Equal(suite.T(), "unpaid", result.Rows[1].Dimensions[types.DimensionPaymentStatus])
}

func (suite *PivotTestSuite) TestTimeSeriesAscending() {
	points, err := suite.aggregator.TimeSeries(salesRows(), types.MetricRevenue, types.GranularityWeek)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []types.TimeSeriesPoint{
		{Date: "2026-01-04", Value: 450},
		{Date: "2026-02-08", Value: 80},
	}, points)
}

func TestBucketUsesSundayWeekStart(t *testing.T) {
	sunday := time.Date(2026, time.January, 4, 0, 0, 0, 0, time.UTC)
	for offset := 0; offset < 7; offset++ {
		label, start := Bucket(sunday.AddDate(0, 0, offset).Add(15*time.Hour), types.GranularityWeek)
		assert.Equal(t, "Week of Jan 4", label)
		assert.Equal(t, sunday, start)
	}
}

func TestDistinctValues(t *testing.T) {
	rows := []types.FactRow{{"store_id": "b"}, {"store_id": "a"}, {}, {"store_id": "b"}, {"store_id": 7.0}}
	assert.Equal(t, []string{"b", "a", "7"}, DistinctValues(rows, "store_id"))
}
