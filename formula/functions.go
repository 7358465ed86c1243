package formula

import (
	"errors"
	"math"
)

type function struct {
	minArgs int
	maxArgs int // -1 = variadic
	call    func(args []float64) (float64, error)
}

var functions = map[string]*function{
	"abs":   {1, 1, func(a []float64) (float64, error) { return math.Abs(a[0]), nil }},
	"ceil":  {1, 1, func(a []float64) (float64, error) { return math.Ceil(a[0]), nil }},
	"floor": {1, 1, func(a []float64) (float64, error) { return math.Floor(a[0]), nil }},
	"sqrt":  {1, 1, func(a []float64) (float64, error) { return math.Sqrt(a[0]), nil }},
	"round": {1, 2, roundFn},
	"min":   {1, -1, func(a []float64) (float64, error) { return fold(a, math.Min), nil }},
	"max":   {1, -1, func(a []float64) (float64, error) { return fold(a, math.Max), nil }},
}

func roundFn(a []float64) (float64, error) {
	if len(a) == 1 {
		return math.Round(a[0]), nil
	}
	digits := a[1]
	if digits != math.Trunc(digits) || digits < 0 || digits > 15 {
		return 0, errors.New("digits must be an integer in [0, 15]")
	}
	scale := math.Pow(10, digits)
	return math.Round(a[0]*scale) / scale, nil
}

func fold(a []float64, f func(x, y float64) float64) float64 {
	r := a[0]
	for _, v := range a[1:] {
		r = f(r, v)
	}
	return r
}
