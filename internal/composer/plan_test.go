package composer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/piggybank/internal/apperr"
	"github.com/templui/piggybank/internal/ledger"
	"github.com/templui/piggybank/internal/refresh"
)

func call(result Handle, consumes ...Handle) ledger.Command {
	args := make([]ledger.Arg, len(consumes))
	for i, h := range consumes {
		args[i] = ledger.Result(string(h))
	}
	return moveCall("0x1::m::f", nil, result, args...)
}

func TestPlanValidate(t *testing.T) {
	tests := []struct {
		name    string
		plan    *Plan
		wantErr string
	}{
		{
			name: "chained values",
			plan: NewPlan(refresh.OpDeposit).
				Add("a", call("x")).
				Add("b", call("y", "x")).
				Add("c", call("", "y")),
		},
		{
			name:    "empty",
			plan:    NewPlan(refresh.OpDeposit),
			wantErr: "plan has no steps",
		},
		{
			name: "consumed before produced",
			plan: NewPlan(refresh.OpDeposit).
				Add("a", call("", "x")).
				Add("b", call("x")),
			wantErr: `step 0 (a) consumes "x" before it is produced`,
		},
		{
			name: "produced twice",
			plan: NewPlan(refresh.OpDeposit).
				Add("a", call("x")).
				Add("b", call("x", "x")),
			wantErr: `step 1 (b) produces "x" already produced by step 0`,
		},
		{
			name: "never consumed",
			plan: NewPlan(refresh.OpDeposit).
				Add("a", call("x")),
			wantErr: `value "x" produced by step 0 (a) is never consumed`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperr.KindInternal, appErr.Kind)
			assert.Equal(t, tt.wantErr, appErr.Details["reason"])
		})
	}
}

func TestPlanSubmission(t *testing.T) {
	plan := NewPlan(refresh.OpClaimReward).
		Add("harvestRewards", call("r")).
		Add("splitReward", call("", "r"))

	sub := plan.Submission("0xalice")
	assert.Equal(t, "0xalice", sub.Sender)
	require.Len(t, sub.Commands, 2)
	assert.Equal(t, "r", sub.Commands[0].Result)
	assert.Equal(t, []string{"harvestRewards", "splitReward"}, plan.StepNames())
	assert.Equal(t, []Handle{"r"}, plan.Steps[1].Consumes())
}
