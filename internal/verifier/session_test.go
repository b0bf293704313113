package verifier

import "testing"

func TestTransitionAllowsForwardMovement(t *testing.T) {
	cases := []struct {
		from, to Phase
	}{
		{PhaseNotarizing, PhaseVerifying},
		{PhaseNotarizing, PhaseFailed},
		{PhaseVerifying, PhaseVerified},
		{PhaseVerifying, PhaseFailed},
	}
	for _, c := range cases {
		if err := Transition(c.from, c.to); err != nil {
			t.Errorf("Transition(%s, %s) = %v, want nil", c.from, c.to, err)
		}
	}
}

func TestTransitionRejectsSkippingOrRevisiting(t *testing.T) {
	cases := []struct {
		from, to Phase
	}{
		{PhaseNotarizing, PhaseVerified},
		{PhaseVerified, PhaseNotarizing},
		{PhaseFailed, PhaseVerifying},
		{PhaseVerifying, PhaseNotarizing},
	}
	for _, c := range cases {
		if err := Transition(c.from, c.to); err == nil {
			t.Errorf("Transition(%s, %s) = nil, want error", c.from, c.to)
		}
	}
}

func TestTerminalPhases(t *testing.T) {
	if !PhaseVerified.Terminal() {
		t.Error("PhaseVerified should be terminal")
	}
	if !PhaseFailed.Terminal() {
		t.Error("PhaseFailed should be terminal")
	}
	if PhaseNotarizing.Terminal() {
		t.Error("PhaseNotarizing should not be terminal")
	}
}
