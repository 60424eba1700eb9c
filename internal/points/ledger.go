package points

import "github.com/hitoshi/labquest/internal/model"

// AddPoints は通常付与を行う。結果が負になる場合は0に切り上げる。
// 負の値は受け付けない。
func AddPoints(u *model.User, amount int) error {
	if amount < 0 {
		return model.NewInvalidAmountError(amount)
	}
	u.Points += amount
	if u.Points < 0 {
		u.Points = 0
	}
	return nil
}

// ApplyPenalty は符号付きの加減算を下限なしで行う。
// 残高が負になり得る唯一の経路であり、失敗しない。
func ApplyPenalty(u *model.User, amount int) {
	u.Points += amount
}

// RemovePoints は管理者による減算を行う。残高不足の場合はconflictエラーを返す。
func RemovePoints(u *model.User, amount int) error {
	if amount <= 0 {
		return model.NewInvalidAmountError(amount)
	}
	if u.Points < amount {
		return model.NewInsufficientPointsError(u.Points, amount)
	}
	u.Points -= amount
	return nil
}

// Credit はタスク完了の内訳を担当者に反映し、完了タスク数を1増やす。
// ペナルティがない場合は AddPoints、ある場合は ApplyPenalty で正味ポイントを適用する。
func Credit(u *model.User, r Result) error {
	if r.Penalty == 0 {
		if err := AddPoints(u, r.Net); err != nil {
			return err
		}
	} else {
		ApplyPenalty(u, r.Net)
	}
	u.CompletedTasks++
	return nil
}
