package catalog

import (
	"regexp"
	"strings"
)

// DisplayFormat tells renderers how to present a metric value.
type DisplayFormat string

const (
	FormatNumber   DisplayFormat = "number"
	FormatDecimal  DisplayFormat = "decimal"
	FormatPercent  DisplayFormat = "percent"
	FormatCurrency DisplayFormat = "currency"
	FormatDuration DisplayFormat = "duration"
)

// DerivedKind classifies how a derived metric is computed.
type DerivedKind string

const (
	KindCTR     DerivedKind = "ctr"
	KindCPC     DerivedKind = "cpc"
	KindCPM     DerivedKind = "cpm"
	KindCPA     DerivedKind = "cpa"
	KindROAS    DerivedKind = "roas"
	KindFormula DerivedKind = "formula"
)

// IsRatio reports whether the kind is one of the built-in safe-division ratios.
func (k DerivedKind) IsRatio() bool {
	switch k {
	case KindCTR, KindCPC, KindCPM, KindCPA, KindROAS:
		return true
	}
	return false
}

// Supported reports whether the engine knows how to compute the kind.
func (k DerivedKind) Supported() bool {
	return k.IsRatio() || k == KindFormula
}

// MetricDefinition describes one metric visible to a tenant/source/level.
type MetricDefinition struct {
	Key            string        `json:"key"`
	Label          string        `json:"label"`
	DisplayFormat  DisplayFormat `json:"displayFormat"`
	Formula        *string       `json:"formula,omitempty"`
	RequiredFields []string      `json:"requiredFields,omitempty"`
	Kind           DerivedKind   `json:"kind,omitempty"`
}

// IsDerived reports whether the metric is computed from a formula.
func (d MetricDefinition) IsDerived() bool {
	return d.Formula != nil
}

// DerivedKind returns the explicit kind, inferring it from the key when empty.
func (d MetricDefinition) DerivedKind() DerivedKind {
	if d.Kind != "" {
		return d.Kind
	}
	if k := DerivedKind(d.Key); k.IsRatio() {
		return k
	}
	return KindFormula
}

// FormulaText returns the formula or an empty string for base metrics.
func (d MetricDefinition) FormulaText() string {
	if d.Formula == nil {
		return ""
	}
	return *d.Formula
}

// Scope selects the catalog visible to a request.
type Scope struct {
	TenantID int64
	Source   string
	Level    string
}

var tokenPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// FormulaTokens returns the metric keys referenced by a formula, in order of first appearance.
func FormulaTokens(formula string) []string {
	matches := tokenPattern.FindAllStringSubmatch(formula, -1)
	seen := make(map[string]struct{}, len(matches))
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		key := NormalizeKey(m[1])
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		tokens = append(tokens, key)
	}
	return tokens
}

// NormalizeKey trims and lower-cases a metric key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func strPtr(s string) *string {
	return &s
}
