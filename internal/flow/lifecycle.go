package flow

import (
	"github.com/looplab/fsm"
)

const (
	phaseNotStarted = "not_started"
	phaseInProgress = "in_progress"
	phaseDisabled   = "disabled"
	phaseCompleted  = "completed"

	eventBegin    = "begin"
	eventAdvance  = "advance"
	eventComplete = "complete"
	eventCancel   = "cancel"
	eventDisable  = "disable"
	eventEnable   = "enable"
)

var transitions = fsm.Events{
	{Name: eventBegin, Src: []string{phaseNotStarted}, Dst: phaseInProgress},
	{Name: eventAdvance, Src: []string{phaseInProgress}, Dst: phaseInProgress},
	{Name: eventComplete, Src: []string{phaseInProgress}, Dst: phaseCompleted},
	{Name: eventCancel, Src: []string{phaseNotStarted, phaseInProgress, phaseDisabled}, Dst: phaseNotStarted},
	{Name: eventDisable, Src: []string{phaseNotStarted, phaseInProgress}, Dst: phaseDisabled},
	{Name: eventEnable, Src: []string{phaseDisabled}, Dst: phaseInProgress},
}

func phaseOf(st State, exists bool) string {
	switch {
	case !exists:
		return phaseNotStarted
	case st.Disabled:
		return phaseDisabled
	default:
		return phaseInProgress
	}
}

func allowed(phase, event string) bool {
	return fsm.NewFSM(phase, transitions, fsm.Callbacks{}).Can(event)
}
