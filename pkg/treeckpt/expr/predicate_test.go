package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicate_Eval(t *testing.T) {
	tests := []struct {
		source string
		vars   Vars
		want   bool
	}{
		{"step % 100 == 0", Vars{Step: 200}, true},
		{"step % 100 == 0", Vars{Step: 201}, false},
		{"steps_since_save >= 50", Vars{Step: 120, LatestStep: 100, StepsSinceSave: 20}, false},
		{"steps_since_save >= 50", Vars{Step: 150, LatestStep: 100, StepsSinceSave: 50}, true},
		{"seconds_since_save > 60.5", Vars{SecondsSinceSave: 61}, true},
		{"!has_checkpoint || step - latest_step > 10", Vars{Step: 5, LatestStep: -1}, true},
		{"!has_checkpoint || step - latest_step > 10", Vars{Step: 15, LatestStep: 10, HasCheckpoint: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			p, err := Compile(tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.source, p.String())

			got, err := p.Eval(tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	for _, source := range []string{
		"",
		"step +",
		"step * 2",
		"unknown_var > 1",
	} {
		t.Run(source, func(t *testing.T) {
			_, err := Compile(source)
			assert.Error(t, err)
		})
	}
}
