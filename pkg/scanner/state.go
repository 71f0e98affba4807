package scanner

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

type State string

const (
	StateIdle       State = "idle"
	StateLive       State = "live"
	StateCapturing  State = "capturing"
	StateResolving  State = "resolving"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
	StateReviewing  State = "reviewing"
)

var States = []State{
	StateIdle, StateLive, StateCapturing, StateResolving, StateRecording, StateFinalizing, StateReviewing,
}

type Mode string

const (
	ModePhoto Mode = "photo"
	ModeVideo Mode = "video"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePhoto, ModeVideo:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

const (
	evOpen           = "open"
	evCapture        = "capture"
	evCaptured       = "captured"
	evCaptureFailed  = "capture_failed"
	evResolve        = "resolve"
	evResolved       = "resolved"
	evResolveFailed  = "resolve_failed"
	evRecord         = "record"
	evStop           = "stop"
	evFinalized      = "finalized"
	evFinalizeEmpty  = "finalize_empty"
	evFinalizeFailed = "finalize_failed"
	evAbort          = "abort"
	evRetake         = "retake"
	evClose          = "close"
)

func names(states ...State) []string {
	res := make([]string, 0, len(states))
	for _, s := range states {
		res = append(res, string(s))
	}
	return res
}

func newMachine(entered func(State)) *fsm.FSM {
	idle, live := string(StateIdle), string(StateLive)
	capturing, resolving := string(StateCapturing), string(StateResolving)
	recording, finalizing := string(StateRecording), string(StateFinalizing)
	reviewing := string(StateReviewing)

	return fsm.NewFSM(
		idle,
		fsm.Events{
			{Name: evOpen, Src: []string{idle}, Dst: live},
			{Name: evCapture, Src: []string{live, recording}, Dst: capturing},
			{Name: evCaptured, Src: []string{capturing}, Dst: reviewing},
			{Name: evCaptureFailed, Src: []string{capturing}, Dst: live},
			{Name: evResolve, Src: []string{live}, Dst: resolving},
			{Name: evResolved, Src: []string{resolving}, Dst: reviewing},
			{Name: evResolveFailed, Src: []string{resolving}, Dst: live},
			{Name: evRecord, Src: []string{live}, Dst: recording},
			{Name: evStop, Src: []string{recording}, Dst: finalizing},
			{Name: evFinalized, Src: []string{finalizing}, Dst: reviewing},
			{Name: evFinalizeEmpty, Src: []string{finalizing}, Dst: live},
			{Name: evFinalizeFailed, Src: []string{finalizing}, Dst: live},
			{Name: evAbort, Src: []string{recording}, Dst: live},
			{Name: evRetake, Src: []string{reviewing}, Dst: idle},
			{Name: evClose, Src: names(StateLive, StateCapturing, StateResolving, StateRecording, StateFinalizing, StateReviewing), Dst: idle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				entered(State(e.Dst))
			},
		},
	)
}
