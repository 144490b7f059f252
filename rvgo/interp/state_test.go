package interp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitReasonText(t *testing.T) {
	for r := ExitNone; r <= ExitEcall; r++ {
		text, err := r.MarshalText()
		require.NoError(t, err)
		var got ExitReason
		require.NoError(t, got.UnmarshalText(text))
		require.Equal(t, r, got)
	}
	require.Equal(t, "ExitReason(9)", ExitReason(9).String())
	var r ExitReason
	require.Error(t, r.UnmarshalText([]byte("halt")))
}

func TestStateJSON(t *testing.T) {
	s := NewState(0x10000)
	s.X[10] = 42
	s.F[1] = BoxF32(1.5)
	s.ExitReason = ExitIndirectBranch
	data, err := json.Marshal(s)
	require.NoError(t, err)
	require.Contains(t, string(data), `"exitReason":"indirect-branch"`)

	var out State
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, *s, out)
}

func TestResume(t *testing.T) {
	s := NewState(0x10000)
	require.Equal(t, uint64(0x10000), s.ReenterPC)
	s.ReenterPC = 0x20000
	s.ExitReason = ExitDirectBranch
	s.Resume()
	require.Equal(t, uint64(0x20000), s.PC)
	require.Equal(t, ExitNone, s.ExitReason)
}
