package vm

import (
	"math"
	"math/rand"
	"time"
)

// ---------------------------------------------------------------------------
// Math library
// ---------------------------------------------------------------------------

// RandMax is the largest value math.rand returns.
const RandMax = math.MaxInt32

func unaryFloat(fn func(float64) float64) NativeDef {
	return NativeDef{". n", func(_ *VM, _ Value, args []Value) (Value, error) {
		return Float(fn(args[0].AsFloat())), nil
	}}
}

func (vm *VM) registerMathPrimitives() error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	defs := map[string]NativeDef{
		// abs - integer absolute value; floats keep their kind
		"abs": {". n", func(_ *VM, _ Value, args []Value) (Value, error) {
			if v := args[0]; v.IsInteger() {
				if n := v.AsInt(); n < 0 {
					return Int(-n), nil
				}
				return v, nil
			}
			return Float(math.Abs(args[0].AsFloat())), nil
		}},
		"fabs":  unaryFloat(math.Abs),
		"sqrt":  unaryFloat(math.Sqrt),
		"sin":   unaryFloat(math.Sin),
		"cos":   unaryFloat(math.Cos),
		"tan":   unaryFloat(math.Tan),
		"asin":  unaryFloat(math.Asin),
		"acos":  unaryFloat(math.Acos),
		"atan":  unaryFloat(math.Atan),
		"exp":   unaryFloat(math.Exp),
		"log":   unaryFloat(math.Log),
		"log10": unaryFloat(math.Log10),
		"floor": unaryFloat(math.Floor),
		"ceil":  unaryFloat(math.Ceil),
		"atan2": {". n n", func(_ *VM, _ Value, args []Value) (Value, error) {
			return Float(math.Atan2(args[0].AsFloat(), args[1].AsFloat())), nil
		}},
		"pow": {". n n", func(_ *VM, _ Value, args []Value) (Value, error) {
			return Float(math.Pow(args[0].AsFloat(), args[1].AsFloat())), nil
		}},

		// min, max - extreme of the arguments, keeping the winner's kind
		"min": {". n n ...", func(_ *VM, _ Value, args []Value) (Value, error) {
			return extreme(args, -1)
		}},
		"max": {". n n ...", func(_ *VM, _ Value, args []Value) (Value, error) {
			return extreme(args, 1)
		}},

		// rand - pseudo-random integer in [0, RAND_MAX]
		"rand": {".", func(_ *VM, _ Value, _ []Value) (Value, error) {
			return Int(rng.Int63n(RandMax + 1)), nil
		}},
		"srand": {". n", func(_ *VM, _ Value, args []Value) (Value, error) {
			rng.Seed(args[0].AsInt())
			return Null, nil
		}},
	}
	consts := map[string]Value{
		"PI":       Float(math.Pi),
		"RAND_MAX": Int(RandMax),
	}
	_, err := vm.RegisterModule("math", defs, consts)
	return err
}

func extreme(args []Value, sign int) (Value, error) {
	best := args[0]
	for _, a := range args[1:] {
		if !a.IsNumber() {
			return Null, mismatch(2, maskOf(KindInteger, KindFloat), a)
		}
		c, err := Compare(a, best)
		if err != nil {
			return Null, err
		}
		if c*sign > 0 {
			best = a
		}
	}
	return best, nil
}
