package formula

import (
	"math"

	"github.com/d5/tengo/v2"
)

// Function names as written in formulas, mapped to the identifiers they are
// compiled under. The expression language reserves "if", so every library
// function is renamed into a private namespace.
var library = map[string]string{
	"if":    "__if",
	"round": "__round",
	"clamp": "__clamp",
	"abs":   "__abs",
	"min":   "__min",
	"max":   "__max",
}

func libraryObjects() map[string]tengo.Object {
	return map[string]tengo.Object{
		"__if":    &tengo.UserFunction{Name: "if", Value: fnIf},
		"__round": &tengo.UserFunction{Name: "round", Value: fnRound},
		"__clamp": &tengo.UserFunction{Name: "clamp", Value: fnClamp},
		"__abs":   &tengo.UserFunction{Name: "abs", Value: fnAbs},
		"__min":   &tengo.UserFunction{Name: "min", Value: fnMin},
		"__max":   &tengo.UserFunction{Name: "max", Value: fnMax},
	}
}

func fnIf(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 3 {
		return nil, tengo.ErrWrongNumArguments
	}
	if args[0].IsFalsy() {
		return args[2], nil
	}
	return args[1], nil
}

func fnRound(args ...tengo.Object) (tengo.Object, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	x, err := numberArg(args, 0, "x")
	if err != nil {
		return nil, err
	}
	precision := 0.0
	if len(args) == 2 {
		if precision, err = numberArg(args, 1, "precision"); err != nil {
			return nil, err
		}
	}
	scale := math.Pow(10, math.Trunc(precision))
	return &tengo.Float{Value: math.Round(x*scale) / scale}, nil
}

func fnClamp(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 3 {
		return nil, tengo.ErrWrongNumArguments
	}
	x, err := numberArg(args, 0, "x")
	if err != nil {
		return nil, err
	}
	lower, err := numberArg(args, 1, "min")
	if err != nil {
		return nil, err
	}
	upper, err := numberArg(args, 2, "max")
	if err != nil {
		return nil, err
	}
	return &tengo.Float{Value: math.Min(math.Max(x, lower), upper)}, nil
}

func fnAbs(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	x, err := numberArg(args, 0, "x")
	if err != nil {
		return nil, err
	}
	return &tengo.Float{Value: math.Abs(x)}, nil
}

func fnMin(args ...tengo.Object) (tengo.Object, error) {
	return fold(args, math.Min)
}

func fnMax(args ...tengo.Object) (tengo.Object, error) {
	return fold(args, math.Max)
}

func fold(args []tengo.Object, fn func(a, b float64) float64) (tengo.Object, error) {
	if len(args) < 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	acc, err := numberArg(args, 0, "a")
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(args); i++ {
		v, err := numberArg(args, i, "b")
		if err != nil {
			return nil, err
		}
		acc = fn(acc, v)
	}
	return &tengo.Float{Value: acc}, nil
}

func numberArg(args []tengo.Object, i int, name string) (float64, error) {
	if v, ok := tengo.ToFloat64(args[i]); ok {
		return v, nil
	}
	if b, ok := args[i].(*tengo.Bool); ok {
		if b.IsFalsy() {
			return 0, nil
		}
		return 1, nil
	}
	return 0, tengo.ErrInvalidArgumentType{Name: name, Expected: "float", Found: args[i].TypeName()}
}
