package catalog

// BuiltinRegistry returns the platform-wide metric definitions. The slice is
// freshly allocated so callers can treat it as immutable configuration.
func BuiltinRegistry() []MetricDefinition {
	return []MetricDefinition{
		{Key: "impressions", Label: "Impressions", DisplayFormat: FormatNumber},
		{Key: "clicks", Label: "Clicks", DisplayFormat: FormatNumber},
		{Key: "spend", Label: "Spend", DisplayFormat: FormatCurrency},
		{Key: "conversions", Label: "Conversions", DisplayFormat: FormatNumber},
		{Key: "revenue", Label: "Revenue", DisplayFormat: FormatCurrency},
		{Key: "reach", Label: "Reach", DisplayFormat: FormatNumber},
		{Key: "engagements", Label: "Engagements", DisplayFormat: FormatNumber},
		{Key: "video_views", Label: "Video views", DisplayFormat: FormatNumber},
		{
			Key: "ctr", Label: "CTR", DisplayFormat: FormatPercent, Kind: KindCTR,
			Formula: strPtr("{clicks} / {impressions}"), RequiredFields: []string{"clicks", "impressions"},
		},
		{
			Key: "cpc", Label: "CPC", DisplayFormat: FormatCurrency, Kind: KindCPC,
			Formula: strPtr("{spend} / {clicks}"), RequiredFields: []string{"spend", "clicks"},
		},
		{
			Key: "cpm", Label: "CPM", DisplayFormat: FormatCurrency, Kind: KindCPM,
			Formula: strPtr("{spend} / {impressions} * 1000"), RequiredFields: []string{"spend", "impressions"},
		},
		{
			Key: "cpa", Label: "CPA", DisplayFormat: FormatCurrency, Kind: KindCPA,
			Formula: strPtr("{spend} / {conversions}"), RequiredFields: []string{"spend", "conversions"},
		},
		{
			Key: "roas", Label: "ROAS", DisplayFormat: FormatDecimal, Kind: KindROAS,
			Formula: strPtr("{revenue} / {spend}"), RequiredFields: []string{"revenue", "spend"},
		},
	}
}
