package display

import (
	"context"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/metrics"
)

const (
	StateIdle    = "idle"
	StateShowing = "showing"

	eventShow = "show"
	eventHide = "hide"
)

// newMachine builds the idle/showing machine. Callbacks only log and count;
// they run with the scheduler lock held and must not call back into it.
func newMachine(logger *zap.Logger) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventShow, Src: []string{StateIdle}, Dst: StateShowing},
			{Name: eventHide, Src: []string{StateShowing}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_" + StateShowing: func(_ context.Context, e *fsm.Event) {
				metrics.CodesDisplayed.Inc()
				logger.Debug("FSM: showing", zap.Any("args", e.Args))
			},
			"enter_" + StateIdle: func(_ context.Context, e *fsm.Event) {
				logger.Debug("FSM: idle", zap.Any("args", e.Args))
			},
		},
	)
}
