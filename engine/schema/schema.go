package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/xeipuuv/gojsonschema"

	"github.com/retail-analytics/engine/formulas"
	"github.com/retail-analytics/engine/types"
)

// Names of the request schemas
const (
	ReportQuery     = "report_query"
	TemplateRequest = "template_request"
	SeriesRequest   = "series_request"
)

// ValidationError lists every problem found in a request body
type ValidationError struct {
	Schema   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Schema, strings.Join(e.Problems, "; "))
}

// Validator validates request bodies against compiled JSON schemas
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewValidator compiles every request schema. Dimension and metric enums are
// taken from the registry so the schemas never drift from the engine.
func NewValidator(registry *formulas.Registry) (*Validator, error) {
	metrics := lo.Map(registry.Definitions(), func(d formulas.Definition, _ int) string {
		return string(d.Metric)
	})
	dimensions := lo.Map(types.Dimensions, func(d types.Dimension, _ int) string {
		return string(d)
	})

	definitions := map[string]map[string]any{
		ReportQuery:     reportQuerySchema(dimensions, metrics),
		TemplateRequest: templateRequestSchema(),
		SeriesRequest:   seriesRequestSchema(),
	}

	v := &Validator{schemas: make(map[string]*gojsonschema.Schema, len(definitions))}
	for name, def := range definitions {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def))
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s schema: %w", name, err)
		}
		v.schemas[name] = compiled
	}
	return v, nil
}

// Validate checks body against the named schema. Problems are returned as a
// *ValidationError; an unknown schema name is a plain error.
func (v *Validator) Validate(name string, body []byte) error {
	compiled, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("no schema named %s", name)
	}

	result, err := compiled.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &ValidationError{Schema: name, Problems: []string{"malformed JSON: " + err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	problems := lo.Map(result.Errors(), func(e gojsonschema.ResultError, _ int) string {
		return e.String()
	})
	sort.Strings(problems)
	return &ValidationError{Schema: name, Problems: problems}
}

var dateString = map[string]any{
	"type":    "string",
	"pattern": `^\d{4}-\d{2}-\d{2}`,
}

func filterProperties() map[string]any {
	return map[string]any{
		"date_from":   dateString,
		"date_to":     dateString,
		"store_id":    map[string]any{"type": "string"},
		"location_id": map[string]any{"type": "string"},
		"granularity": map[string]any{"enum": []string{"day", "week", "month", "quarter", "year"}},
	}
}

func reportQuerySchema(dimensions, metrics []string) map[string]any {
	properties := filterProperties()
	properties["data_source"] = map[string]any{"enum": []string{string(types.DataSourceSales), string(types.DataSourcePurchaseOrders)}}
	properties["dimensions"] = map[string]any{
		"type":     "array",
		"minItems": 1,
		"items":    map[string]any{"enum": dimensions},
	}
	properties["metrics"] = map[string]any{
		"type":     "array",
		"minItems": 1,
		"items":    map[string]any{"enum": metrics},
	}
	properties["limit"] = map[string]any{"type": "integer", "minimum": 0}

	return map[string]any{
		"type":       "object",
		"required":   []string{"dimensions", "metrics"},
		"properties": properties,
	}
}

func templateRequestSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": filterProperties(),
	}
}

func seriesRequestSchema() map[string]any {
	positive := map[string]any{"type": "number", "exclusiveMinimum": 0}
	unit := map[string]any{"type": "number", "exclusiveMinimum": 0, "maximum": 1}

	return map[string]any{
		"type":     "object",
		"required": []string{"points"},
		"properties": map[string]any{
			"points": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"date", "value"},
					"properties": map[string]any{
						"date":  dateString,
						"value": map[string]any{"type": "number"},
					},
				},
			},
			"anomaly": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"method":           map[string]any{"enum": []string{"zscore", "iqr", "mad", "ensemble"}},
					"zscore_threshold": positive,
					"mad_threshold":    positive,
					"window_size":      map[string]any{"type": "integer", "minimum": 2},
					"rolling":          map[string]any{"type": "boolean"},
				},
			},
			"forecast": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"alpha":            unit,
					"beta":             unit,
					"periods":          map[string]any{"type": "integer", "minimum": 1, "maximum": 365},
					"confidence_level": map[string]any{"type": "number", "exclusiveMinimum": 0, "exclusiveMaximum": 1},
				},
			},
		},
	}
}
