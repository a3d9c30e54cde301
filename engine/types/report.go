package types

// ReportQuery is the caller-facing description of a pivot report
type ReportQuery struct {
	DataSource  DataSource  `json:"data_source,omitempty"`
	Dimensions  []Dimension `json:"dimensions"`
	Metrics     []Metric    `json:"metrics"`
	Granularity Granularity `json:"granularity,omitempty"`
	DateFrom    string      `json:"date_from,omitempty"`
	DateTo      string      `json:"date_to,omitempty"`
	StoreID     string      `json:"store_id,omitempty"`
	LocationID  string      `json:"location_id,omitempty"`
	Limit       int         `json:"limit,omitempty"`
}

// AggregatedRow holds one group of the pivot: its resolved dimension values
// and one value per requested metric.
type AggregatedRow struct {
	Dimensions map[Dimension]string `json:"dimensions"`
	Values     map[Metric]float64   `json:"values"`
}

// ReportResult is the output of a pivot aggregation
type ReportResult struct {
	ID              string             `json:"id,omitempty"`
	Rows            []AggregatedRow    `json:"rows"`
	Totals          map[Metric]float64 `json:"totals"`
	RowCount        int                `json:"row_count"`
	ExecutionTimeMs int64              `json:"execution_time_ms"`
}

// ReportTemplate is a named preset expanding to a ReportQuery
type ReportTemplate struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Query       ReportQuery `json:"query"`
}
