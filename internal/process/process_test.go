package process

import "testing"

func TestProcessFilter_Matches(t *testing.T) {
	st := ProcessStatus{
		Ref:   ProcessRef{LaunchID: "a1b2c3d4", Name: "vloc_main-3"},
		State: ProcessStateRunning,
	}

	tests := []struct {
		name   string
		filter ProcessFilter
		want   bool
	}{
		{"empty", ProcessFilter{}, true},
		{"same launch", ProcessFilter{LaunchID: "a1b2c3d4"}, true},
		{"other launch", ProcessFilter{LaunchID: "ffffffff"}, false},
		{"state match", ProcessFilter{States: []ProcessState{ProcessStateFailed, ProcessStateRunning}}, true},
		{"state miss", ProcessFilter{States: []ProcessState{ProcessStateExited}}, false},
		{"both", ProcessFilter{LaunchID: "a1b2c3d4", States: []ProcessState{ProcessStateRunning}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(st); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProcessState_Done(t *testing.T) {
	for state, want := range map[ProcessState]bool{
		ProcessStateRunning:  false,
		ProcessStateStarting: false,
		ProcessStateExited:   true,
		ProcessStateFailed:   true,
	} {
		if got := state.Done(); got != want {
			t.Errorf("%s.Done() = %v, want %v", state, got, want)
		}
	}
}

func TestProcessRef_String(t *testing.T) {
	ref := ProcessRef{LaunchID: "a1b2c3d4", Name: "rviz2-1"}
	if got := ref.String(); got != "a1b2c3d4/rviz2-1" {
		t.Errorf("String = %q", got)
	}
}
