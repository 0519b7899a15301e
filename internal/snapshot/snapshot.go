// Package snapshot caches the last computed payload of report and dashboard
// widgets and shapes query results into the stable widget data contract.
package snapshot

import (
	"time"

	"github.com/agencyhub/agencyhub/internal/formula"
	"github.com/agencyhub/agencyhub/internal/metrics"
	"github.com/agencyhub/agencyhub/internal/shared"
)

// WidgetSnapshot is the persisted payload of one widget. Exactly one of Data
// and Error is set.
type WidgetSnapshot struct {
	WidgetID    int64          `json:"widgetId"`
	ReportID    int64          `json:"reportId"`
	GeneratedAt time.Time      `json:"generatedAt"`
	CacheKey    string         `json:"cacheKey"`
	Data        *WidgetData    `json:"data,omitempty"`
	Error       *SnapshotError `json:"error,omitempty"`
}

// Failed reports whether the snapshot captures a generation failure.
func (s WidgetSnapshot) Failed() bool {
	return s.Error != nil
}

// SnapshotError is the failure recorded in place of data.
type SnapshotError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorSnapshot captures err for a widget. Request errors keep their code;
// anything else is recorded as an internal failure.
func NewErrorSnapshot(reportID, widgetID int64, generatedAt time.Time, err error) WidgetSnapshot {
	snapErr := &SnapshotError{Code: "INTERNAL", Message: "widget generation failed"}
	if appErr, ok := shared.AsError(err); ok {
		snapErr = &SnapshotError{Code: string(appErr.Code), Message: appErr.Message}
	}
	return WidgetSnapshot{WidgetID: widgetID, ReportID: reportID, GeneratedAt: generatedAt, Error: snapErr}
}

// Column describes one table column.
type Column struct {
	Key           string `json:"key"`
	Label         string `json:"label"`
	Kind          string `json:"kind"`
	DisplayFormat string `json:"displayFormat,omitempty"`
}

// Table is the tabular view of the rows.
type Table struct {
	Columns []Column      `json:"columns"`
	Rows    []metrics.Row `json:"rows"`
}

// DisplayValue is a rendered total.
type DisplayValue struct {
	Key       string   `json:"key"`
	Label     string   `json:"label"`
	Value     any      `json:"value"`
	Formatted string   `json:"formatted"`
	Previous  any      `json:"previous,omitempty"`
	ChangePct *float64 `json:"changePct,omitempty"`
}

// DataMeta is the query meta plus rendering hints.
type DataMeta struct {
	metrics.Meta
	PageInfo *metrics.PageInfo `json:"pageInfo,omitempty"`
	Display  []DisplayValue    `json:"display"`
}

// WidgetData is the stable data contract read by exports and dashboards.
type WidgetData struct {
	Totals  metrics.Row      `json:"totals"`
	Series  []formula.Series `json:"series"`
	Table   Table            `json:"table"`
	Meta    DataMeta         `json:"meta"`
	Compare *metrics.Block   `json:"compare,omitempty"`
}

// BuildWidgetData shapes a query result into widget data.
func BuildWidgetData(result metrics.Result, f *Formatter) WidgetData {
	columns := make([]Column, 0, len(result.Meta.Dimensions)+len(result.Meta.Metrics))
	for _, dim := range result.Meta.Dimensions {
		columns = append(columns, Column{Key: dim, Label: dim, Kind: "dimension"})
	}
	display := make([]DisplayValue, 0, len(result.Meta.Metrics))
	for _, m := range result.Meta.Metrics {
		label := m.Label
		if label == "" {
			label = m.Key
		}
		columns = append(columns, Column{Key: m.Key, Label: label, Kind: "metric", DisplayFormat: string(m.DisplayFormat)})

		value := result.Totals[m.Key]
		dv := DisplayValue{Key: m.Key, Label: label, Value: value, Formatted: f.Format(m.DisplayFormat, value)}
		if result.Compare != nil {
			prev := result.Compare.Totals[m.Key]
			dv.Previous = prev
			cur, okCur := formula.ToFloat(value)
			old, okOld := formula.ToFloat(prev)
			if okCur && okOld && old != 0 {
				change := formula.SafeDivide(cur-old, old) * 100
				dv.ChangePct = &change
			}
		}
		display = append(display, dv)
	}

	series := result.Series
	if series == nil {
		series = []formula.Series{}
	}
	rows := result.Rows
	if rows == nil {
		rows = []metrics.Row{}
	}
	return WidgetData{
		Totals: result.Totals,
		Series: series,
		Table:  Table{Columns: columns, Rows: rows},
		Meta: DataMeta{
			Meta:     result.Meta,
			PageInfo: result.PageInfo,
			Display:  display,
		},
		Compare: result.Compare,
	}
}
