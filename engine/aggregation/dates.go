package aggregation

import (
	"fmt"
	"time"

	"github.com/retail-analytics/engine/types"
)

// rowDate returns the business date of a sales or purchase order row
func rowDate(row types.FactRow) (time.Time, error) {
	if v := row["sale_date"]; fieldString(v) != "" {
		return types.ParseDate(v)
	}
	return types.ParseDate(row["order_date"])
}

// Bucket returns the display label and the start instant of the granularity
// bucket containing t. Unknown granularities bucket by day.
func Bucket(t time.Time, g types.Granularity) (string, time.Time) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	switch g {
	case types.GranularityWeek:
		sunday := day.AddDate(0, 0, -int(day.Weekday()))
		return "Week of " + sunday.Format("Jan 2"), sunday
	case types.GranularityMonth:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start.Format("January 2006"), start
	case types.GranularityQuarter:
		q := (int(day.Month())-1)/3 + 1
		start := time.Date(day.Year(), time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		return fmt.Sprintf("Q%d %d", q, day.Year()), start
	case types.GranularityYear:
		start := time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start.Format("2006"), start
	default:
		return day.Format("Jan 2, 2006"), day
	}
}
