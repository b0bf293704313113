package commitment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBindToKeypathsMatchesNearestWithinTolerance(t *testing.T) {
	keys := []KeyEnd{
		{Keypath: ".token", End: 10},
		{Keypath: ".user", End: 40},
	}
	commitments := []TranscriptCommitment{
		{RangeStart: 12, RangeEnd: 20, Hash: []byte("a")},
		{RangeStart: 100, RangeEnd: 110, Hash: []byte("b")},
	}

	result := BindToKeypaths(keys, commitments)
	require.Len(t, result.Bound, 1)
	require.Equal(t, ".token", result.Bound[".token"].Keypath)
	require.Len(t, result.Unbound, 1)
	require.Equal(t, 100, result.Unbound[0].RangeStart)
}

func TestBindToKeypathsDoesNotDoubleBindOneCommitment(t *testing.T) {
	keys := []KeyEnd{
		{Keypath: ".a", End: 5},
		{Keypath: ".b", End: 6},
	}
	commitments := []TranscriptCommitment{
		{RangeStart: 7, RangeEnd: 15, Hash: []byte("only")},
	}

	result := BindToKeypaths(keys, commitments)
	require.Len(t, result.Bound, 1)
	require.Empty(t, result.Unbound)
}

func TestValidatorBuilderCollectsAllFailures(t *testing.T) {
	v := NewValidatorBuilder().
		ExpectServerName("api.example.com").
		MinSentBytes(100).
		MinRecvBytes(100).
		RequireHashAlgorithm("blake3").
		RequireKeypathBound(".token").
		Build()

	errs := v.Validate(NotarizationResult{
		ServerName:    "evil.example.com",
		SentBytes:     10,
		RecvBytes:     500,
		HashAlgorithm: "sha256",
		Bound:         map[string]BoundCommitment{},
	})
	require.Len(t, errs, 4)
}

func TestValidatorBuilderPassesOnValidResult(t *testing.T) {
	v := NewValidatorBuilder().
		ExpectServerName("api.example.com").
		MinSentBytes(10).
		RequireKeypathBound(".token").
		Build()

	errs := v.Validate(NotarizationResult{
		ServerName: "api.example.com",
		SentBytes:  20,
		Bound: map[string]BoundCommitment{
			".token": {Keypath: ".token"},
		},
	})
	require.Empty(t, errs)
}
