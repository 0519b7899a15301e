package query

// FactTable is the pre-aggregated daily fact table.
const FactTable = "metrics_daily"

// Dimension keys accepted from callers.
const (
	DimensionDate       = "date"
	DimensionPlatform   = "platform"
	DimensionAccountID  = "account_id"
	DimensionCampaignID = "campaign_id"
)

// Whitelist maps caller-facing keys to physical identifiers. It is the only
// source of identifiers interpolated into SQL.
type Whitelist struct {
	Table      string
	Dimensions map[string]string
	Metrics    map[string]string
}

// DefaultWhitelist returns the production mapping for the daily fact table.
func DefaultWhitelist() Whitelist {
	return Whitelist{
		Table: FactTable,
		Dimensions: map[string]string{
			DimensionDate:       "date",
			DimensionPlatform:   "platform",
			DimensionAccountID:  "account_id",
			DimensionCampaignID: "campaign_id",
		},
		Metrics: map[string]string{
			"impressions": "impressions",
			"clicks":      "clicks",
			"spend":       "spend",
			"conversions": "conversions",
			"revenue":     "revenue",
			"reach":       "reach",
			"engagements": "engagements",
			"video_views": "video_views",
		},
	}
}

// DimensionColumn returns the column for a whitelisted dimension.
func (w Whitelist) DimensionColumn(key string) (string, bool) {
	col, ok := w.Dimensions[key]
	return col, ok
}

// MetricColumn returns the column for a whitelisted base metric.
func (w Whitelist) MetricColumn(key string) (string, bool) {
	col, ok := w.Metrics[key]
	return col, ok
}

// HasDimension reports whether key is a whitelisted dimension.
func (w Whitelist) HasDimension(key string) bool {
	_, ok := w.Dimensions[key]
	return ok
}
