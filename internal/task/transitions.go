// Package task はタスクのワークフロー（状態遷移、承認、完了時のポイント付与）を提供する。
package task

import "github.com/hitoshi/labquest/internal/model"

// Event はタスクの状態を変化させる操作を表す。
type Event string

const (
	EventStart    Event = "start"
	EventSubmit   Event = "submit"
	EventApprove  Event = "approve"
	EventReject   Event = "reject"
	EventComplete Event = "complete"
)

type transition struct {
	from []model.TaskStatus
	to   model.TaskStatus
}

// transitions は操作ごとの遷移元と遷移先。ここにない組み合わせはすべて不正。
// done から出る遷移はない。adjust からの直接完了は不可で、再提出を経る。
var transitions = map[Event]transition{
	EventStart: {
		from: []model.TaskStatus{model.TaskStatusToDo, model.TaskStatusAdjust},
		to:   model.TaskStatusInProgress,
	},
	EventSubmit: {
		from: []model.TaskStatus{model.TaskStatusToDo, model.TaskStatusInProgress, model.TaskStatusAdjust},
		to:   model.TaskStatusInReview,
	},
	EventApprove: {
		from: []model.TaskStatus{model.TaskStatusInReview},
		to:   model.TaskStatusDone,
	},
	EventReject: {
		from: []model.TaskStatus{model.TaskStatusInReview},
		to:   model.TaskStatusAdjust,
	},
	EventComplete: {
		from: []model.TaskStatus{model.TaskStatusToDo, model.TaskStatusInProgress, model.TaskStatusInReview},
		to:   model.TaskStatusDone,
	},
}

// CanTransition はfromの状態でeventを適用できるかを返す。
func CanTransition(from model.TaskStatus, event Event) bool {
	t, ok := transitions[event]
	if !ok {
		return false
	}
	for _, s := range t.from {
		if s == from {
			return true
		}
	}
	return false
}

// Target はeventの遷移先を返す。未知のeventの場合はfalseを返す。
func Target(event Event) (model.TaskStatus, bool) {
	t, ok := transitions[event]
	return t.to, ok
}

// checkTransition は遷移可能性を検証し、不正な場合はconflictエラーを返す。
// doneのタスクには専用のエラーを返す。
func checkTransition(task *model.Task, event Event) error {
	if task.Status == model.TaskStatusDone {
		return model.NewTaskAlreadyDoneError(task.ID)
	}
	if !CanTransition(task.Status, event) {
		return model.NewIllegalTransitionError(task.Status, string(event))
	}
	return nil
}
