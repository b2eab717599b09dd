package operations

import (
	"context"
	"errors"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandle struct {
	id  string
	v   any
	err error
}

func (h stubHandle) ID() string { return h.id }

func (h stubHandle) Wait(context.Context) (any, error) { return h.v, h.err }

func noop(Bundle, *Context) (Outcome, error) { return Queried(nil), nil }

func Test_NewStep(t *testing.T) {
	t.Parallel()

	version := semver.MustParse("1.0.0")

	step := NewStep("deploy-admin", version, "deploy admin", noop)
	assert.Equal(t, "deploy-admin", step.ID())
	assert.Equal(t, Definition{ID: "deploy-admin", Version: version, Description: "deploy admin"}, step.Def())
	assert.True(t, step.Required())

	optional := NewStep("verify-admin", version, "verify admin", noop, Optional())
	assert.False(t, optional.Required())
}

func Test_Outcome_resolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		give       Outcome
		wantValue  any
		wantHandle string
		wantErr    string
	}{
		{
			name:      "queried",
			give:      Queried(42),
			wantValue: 42,
		},
		{
			name:       "submitted",
			give:       Submitted(stubHandle{id: "0xabc", v: "0xdef"}),
			wantValue:  "0xdef",
			wantHandle: "0xabc",
		},
		{
			name:       "submitted and reverted",
			give:       Submitted(stubHandle{id: "0xabc", err: errors.New("execution reverted")}),
			wantHandle: "0xabc",
			wantErr:    "execution reverted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v, id, err := tt.give.resolve(t.Context())
			assert.Equal(t, tt.wantHandle, id)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, v)
		})
	}
}

func Test_Outcome_Then(t *testing.T) {
	t.Parallel()

	called := false
	o := Queried("x").Then(func(rc *Context, v any) error {
		called = true
		return nil
	})

	assert.Nil(t, o.Handle())
	require.NotNil(t, o.then)
	require.NoError(t, o.then(NewContext(nil), "x"))
	assert.True(t, called)
}

func Test_Bundle_defaultReporter(t *testing.T) {
	t.Parallel()

	b := NewBundle(context.Background, nil, nil)
	require.NotNil(t, b.Reporter())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.withContext(ctx).GetContext().Err(), context.Canceled)
	require.NoError(t, b.GetContext().Err())
}
