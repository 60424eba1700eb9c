// Package points はポイント台帳と遅延ペナルティ計算を提供する。
package points

import "time"

const day = 24 * time.Hour

// DaysLate は期限からの遅延日数を切り上げで返す。期限なし、または期限内の場合は0。
func DaysLate(due *time.Time, completedAt time.Time) int {
	if due == nil {
		return 0
	}
	late := completedAt.Sub(*due)
	if late <= 0 {
		return 0
	}
	days := int(late / day)
	if late%day != 0 {
		days++
	}
	return days
}

// Penalty は遅延ペナルティを返す。遅延日数 × タスクポイントで上限はない。
func Penalty(due *time.Time, taskPoints int, completedAt time.Time) int {
	return DaysLate(due, completedAt) * taskPoints
}

// Result はタスク完了時に付与されるポイントの内訳。
type Result struct {
	Points   int // タスクのポイント
	Penalty  int // 遅延ペナルティ
	DaysLate int
	Net      int // Points - Penalty。負になり得る
}

// Award はタスク完了時のポイント内訳を計算する。
func Award(due *time.Time, taskPoints int, completedAt time.Time) Result {
	daysLate := DaysLate(due, completedAt)
	penalty := daysLate * taskPoints
	return Result{
		Points:   taskPoints,
		Penalty:  penalty,
		DaysLate: daysLate,
		Net:      taskPoints - penalty,
	}
}
