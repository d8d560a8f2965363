package safety

import (
	"testing"

	"gsplit/pkg/errors"
	"gsplit/pkg/state"
)

func TestCheckZ(t *testing.T) {
	l := Limits{MaxZ: 250}
	if err := l.CheckZ(250); err != nil {
		t.Errorf("CheckZ(250) = %v, want nil at the limit", err)
	}
	if err := l.CheckZ(250.01); !errors.Is(err, errors.ErrHeightLimit) {
		t.Errorf("CheckZ(250.01) = %v, want HEIGHT_LIMIT", err)
	}
}

func TestCapZ(t *testing.T) {
	l := Limits{MaxZ: 250}
	if z, capped := l.CapZ(100); z != 100 || capped {
		t.Errorf("CapZ(100) = %g,%v, want 100,false", z, capped)
	}
	if z, capped := l.CapZ(260); z != 250 || !capped {
		t.Errorf("CapZ(260) = %g,%v, want 250,true", z, capped)
	}
}

func TestCheckPrimeClearance(t *testing.T) {
	l := Limits{HeadClearanceX: 25}

	if err := l.CheckPrimeClearance(state.Optional{}); err != nil {
		t.Errorf("unknown minimum X = %v, want nil", err)
	}
	if err := l.CheckPrimeClearance(state.Optional{Known: true, Value: 25}); err != nil {
		t.Errorf("minimum X at clearance = %v, want nil", err)
	}
	err := l.CheckPrimeClearance(state.Optional{Known: true, Value: 10})
	if !errors.Is(err, errors.ErrClearance) {
		t.Errorf("minimum X 10 = %v, want CLEARANCE", err)
	}
}
