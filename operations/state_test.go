package operations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RunState_transition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    RunState
		to      RunState
		wantErr bool
	}{
		{from: StatePending, to: StateRunning},
		{from: StateRunning, to: StateCompleted},
		{from: StateRunning, to: StateAborted},
		{from: StatePending, to: StateCompleted, wantErr: true},
		{from: StateCompleted, to: StateRunning, wantErr: true},
		{from: StateAborted, to: StateCompleted, wantErr: true},
		{from: StateCompleted, to: StateAborted, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			t.Parallel()

			got, err := tt.from.transition(tt.to)
			if tt.wantErr {
				require.ErrorContains(t, err, "illegal run state transition")
				assert.Equal(t, tt.from, got)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.to, got)
		})
	}
}

func Test_RunState_Text(t *testing.T) {
	t.Parallel()

	b, err := StateAborted.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "aborted", string(b))
	assert.Equal(t, "RunState(9)", RunState(9).String())
	assert.True(t, StateCompleted.Terminal())
	assert.False(t, StateRunning.Terminal())
}
