// Package formula evaluates user-authored derived metric expressions.
//
// Formulas reference other metrics with {key} tokens and are compiled with
// tengo. Every evaluation runs on a clone of the compiled script with the
// referenced values bound as float variables; results that are not finite
// numbers are treated as unresolved.
package formula

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/d5/tengo/v2"
	"github.com/samber/lo"

	"github.com/agencyhub/agencyhub/internal/catalog"
)

// CodeInvalid marks a formula that could not be compiled.
const CodeInvalid = "formula_invalid"

const resultVar = "__value"

var tokenPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// reserved identifiers cannot be used for metric variables.
var reserved = map[string]bool{
	"break": true, "continue": true, "else": true, "for": true, "func": true,
	"error": true, "immutable": true, "if": true, "return": true, "export": true,
	"true": true, "false": true, "in": true, "undefined": true, "import": true,
	"len": true, "copy": true, "append": true, "delete": true, "splice": true,
	"string": true, "int": true, "bool": true, "float": true, "char": true,
	"bytes": true, "time": true, "format": true, "type_name": true,
}

// Definition is one formula to compile.
type Definition struct {
	Key     string
	Formula string
}

// FormulaError reports a formula excluded from evaluation.
type FormulaError struct {
	Key     string `json:"key"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type compiled struct {
	key    string
	refs   []string
	idents map[string]string
	script *tengo.Compiled
}

// Program is a set of compiled formulas. It is safe for concurrent use.
type Program struct {
	formulas []*compiled
	valid    map[string]bool
	invalid  map[string]bool
	errors   []FormulaError
}

// Compile parses every definition. Invalid formulas are recorded in Errors
// and never evaluated; the rest of the program is unaffected.
func Compile(defs []Definition) *Program {
	p := &Program{
		valid:   make(map[string]bool, len(defs)),
		invalid: make(map[string]bool),
	}
	for _, def := range defs {
		key := catalog.NormalizeKey(def.Key)
		if key == "" || p.valid[key] || p.invalid[key] {
			continue
		}
		c, err := compileOne(key, def.Formula)
		if err != nil {
			p.invalid[key] = true
			p.errors = append(p.errors, FormulaError{Key: key, Code: CodeInvalid, Message: err.Error()})
			continue
		}
		p.valid[key] = true
		p.formulas = append(p.formulas, c)
	}
	return p
}

// Errors returns the compile failures in definition order.
func (p *Program) Errors() []FormulaError {
	return append([]FormulaError(nil), p.errors...)
}

// Keys returns the compiled formula keys in definition order.
func (p *Program) Keys() []string {
	return lo.Map(p.formulas, func(c *compiled, _ int) string { return c.key })
}

// Has reports whether key is a formula of this program, valid or not.
func (p *Program) Has(key string) bool {
	return p.valid[key] || p.invalid[key]
}

func compileOne(key, formula string) (*compiled, error) {
	if strings.TrimSpace(formula) == "" {
		return nil, fmt.Errorf("formula is empty")
	}
	refs := catalog.FormulaTokens(formula)
	idents := identifiers(refs)

	src, err := rewrite(formula, idents)
	if err != nil {
		return nil, err
	}
	script := tengo.NewScript([]byte(resultVar + " := (" + src + ")"))
	for name, fn := range libraryObjects() {
		if err := script.Add(name, fn); err != nil {
			return nil, err
		}
	}
	for _, ident := range idents {
		if err := script.Add(ident, 0.0); err != nil {
			return nil, err
		}
	}
	c, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", key, err)
	}
	return &compiled{key: key, refs: refs, idents: idents, script: c}, nil
}

// identifiers maps every referenced key to a unique variable name.
func identifiers(refs []string) map[string]string {
	out := make(map[string]string, len(refs))
	taken := make(map[string]bool, len(refs))
	for _, ref := range refs {
		base := normalizeIdent(ref)
		ident := base
		for n := 2; taken[ident]; n++ {
			ident = base + "_" + strconv.Itoa(n)
		}
		taken[ident] = true
		out[ref] = ident
	}
	return out
}

func normalizeIdent(key string) string {
	var sb strings.Builder
	for _, r := range key {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			sb.WriteRune(r)
			continue
		}
		sb.WriteByte('_')
	}
	ident := sb.String()
	if ident == "" || !unicode.IsLetter(rune(ident[0])) || reserved[ident] {
		ident = "m_" + ident
	}
	return ident
}

// rewrite replaces {key} tokens with their variables, maps library function
// names to their compiled names and turns integer literals into floats so
// division is never truncated.
func rewrite(formula string, idents map[string]string) (string, error) {
	var sb strings.Builder
	last := 0
	for _, loc := range tokenPattern.FindAllStringSubmatchIndex(formula, -1) {
		if err := rewriteBare(&sb, formula[last:loc[0]]); err != nil {
			return "", err
		}
		key := catalog.NormalizeKey(formula[loc[2]:loc[3]])
		sb.WriteString(idents[key])
		last = loc[1]
	}
	if err := rewriteBare(&sb, formula[last:]); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func rewriteBare(sb *strings.Builder, s string) error {
	runes := []rune(s)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case r == '{' || r == '}':
			return fmt.Errorf("unbalanced braces")
		case isIdentStart(r):
			j := i
			for j < len(runes) && isIdentPart(runes[j]) {
				j++
			}
			word := string(runes[i:j])
			if name, ok := library[word]; ok {
				word = name
			} else if word != "true" && word != "false" {
				return fmt.Errorf("unknown identifier %q", word)
			}
			sb.WriteString(word)
			i = j
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			j, isFloat := scanNumber(runes, i)
			if runes[i] == '.' {
				sb.WriteByte('0')
			}
			sb.WriteString(string(runes[i:j]))
			if !isFloat {
				sb.WriteString(".0")
			}
			i = j
		default:
			sb.WriteRune(r)
			i++
		}
	}
	return nil
}

// scanNumber consumes a numeric literal starting at i and reports whether it
// already has a fraction or an exponent.
func scanNumber(runes []rune, i int) (int, bool) {
	digits := func(j int) int {
		for j < len(runes) && unicode.IsDigit(runes[j]) {
			j++
		}
		return j
	}
	j := digits(i)
	isFloat := false
	if j < len(runes) && runes[j] == '.' {
		isFloat = true
		j = digits(j + 1)
	}
	if j < len(runes) && (runes[j] == 'e' || runes[j] == 'E') {
		k := j + 1
		if k < len(runes) && (runes[k] == '+' || runes[k] == '-') {
			k++
		}
		if k < len(runes) && unicode.IsDigit(runes[k]) {
			isFloat = true
			j = digits(k)
		}
	}
	return j, isFloat
}

func isIdentStart(r rune) bool {
	return r == '_' || (r < unicode.MaxASCII && unicode.IsLetter(r))
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

// eval runs the formula against scope. Missing references evaluate as 0.
func (c *compiled) eval(scope map[string]float64) (v float64, ok bool) {
	defer func() {
		if recover() != nil {
			v, ok = 0, false
		}
	}()
	run := c.script.Clone()
	for key, ident := range c.idents {
		if err := run.Set(ident, scope[key]); err != nil {
			return 0, false
		}
	}
	if err := run.Run(); err != nil {
		return 0, false
	}
	return finite(run.Get(resultVar).Value())
}

func finite(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case int64:
		v = float64(n)
	case bool:
		if n {
			v = 1
		}
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// SafeDivide returns n/d, or 0 when d is zero or either side is not finite.
func SafeDivide(n, d float64) float64 {
	if d == 0 || math.IsNaN(n) || math.IsNaN(d) || math.IsInf(n, 0) || math.IsInf(d, 0) {
		return 0
	}
	return n / d
}

func sortedKeys(set map[string]bool) []string {
	out := lo.Keys(set)
	sort.Strings(out)
	return out
}
