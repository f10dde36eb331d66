// Package expr compiles save-schedule predicates.
//
// A predicate is an expr-lang expression evaluated against the training
// position and must yield a bool:
//
//	step % 500 == 0 || seconds_since_save > 1800
//	!has_checkpoint || steps_since_save >= 1000
//
// Available variables:
//
//	step                int     step being considered
//	latest_step         int     latest saved step, -1 when none
//	steps_since_save    int     step - latest_step, or step + 1 when none
//	seconds_since_save  float   seconds since the last save committed
//	has_checkpoint      bool    whether any checkpoint exists
package expr

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Vars is the environment a predicate is evaluated against.
type Vars struct {
	Step             int64   `expr:"step"`
	LatestStep       int64   `expr:"latest_step"`
	StepsSinceSave   int64   `expr:"steps_since_save"`
	SecondsSinceSave float64 `expr:"seconds_since_save"`
	HasCheckpoint    bool    `expr:"has_checkpoint"`
}

// Predicate is a compiled boolean expression over Vars.
// It is safe for concurrent use.
type Predicate struct {
	source  string
	program *vm.Program
}

// Compile type-checks source against Vars. Unknown variables and
// non-boolean results are compile errors.
func Compile(source string) (*Predicate, error) {
	if source == "" {
		return nil, fmt.Errorf("predicate must not be empty")
	}
	program, err := exprlang.Compile(source, exprlang.Env(Vars{}), exprlang.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile predicate %q: %w", source, err)
	}
	return &Predicate{source: source, program: program}, nil
}

// String returns the source expression.
func (p *Predicate) String() string {
	return p.source
}

// Eval runs the predicate.
func (p *Predicate) Eval(v Vars) (bool, error) {
	out, err := exprlang.Run(p.program, v)
	if err != nil {
		return false, fmt.Errorf("evaluate predicate %q: %w", p.source, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("predicate %q returned %T, expected bool", p.source, out)
	}
	return b, nil
}
