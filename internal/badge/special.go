package badge

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hitoshi/labquest/internal/model"
	"github.com/hitoshi/labquest/internal/repository"
)

// ConditionKind は特別条件の種類を表す。
type ConditionKind int

const (
	// ConditionUnknown は解釈できない条件。常に満たさない。
	ConditionUnknown ConditionKind = iota
	// ConditionFirstToReach は「最初にN件に到達した」条件。
	ConditionFirstToReach
	// ConditionTopN は「上位N人に入っている」条件。
	ConditionTopN
)

// SpecialCondition は特別条件の自由記述を解釈した結果。
type SpecialCondition struct {
	Kind   ConditionKind
	N      int
	Metric repository.Metric
}

var (
	firstToReachPattern = regexp.MustCompile(`(?i)\bfirst\s+to\s+reach\s+(\d+)\s+(tasks?|points?)\b`)
	topNPattern         = regexp.MustCompile(`(?i)\btop\s+(\d+)\s+by\s+(tasks?|points?)\b`)
)

// ParseSpecialCondition は特別条件の記述をキーワードで解釈する。
// 「first to reach N tasks|points」と「top N by tasks|points」に対応する。
func ParseSpecialCondition(text string) SpecialCondition {
	if m := firstToReachPattern.FindStringSubmatch(text); m != nil {
		return newCondition(ConditionFirstToReach, m[1], m[2])
	}
	if m := topNPattern.FindStringSubmatch(text); m != nil {
		return newCondition(ConditionTopN, m[1], m[2])
	}
	return SpecialCondition{Kind: ConditionUnknown}
}

func newCondition(kind ConditionKind, n, unit string) SpecialCondition {
	v, err := strconv.Atoi(n)
	if err != nil || v <= 0 {
		return SpecialCondition{Kind: ConditionUnknown}
	}
	metric := repository.MetricPoints
	if strings.HasPrefix(strings.ToLower(unit), "task") {
		metric = repository.MetricCompletedTasks
	}
	return SpecialCondition{Kind: kind, N: v, Metric: metric}
}

func metricOf(u *model.User, m repository.Metric) int {
	if m == repository.MetricCompletedTasks {
		return u.CompletedTasks
	}
	return u.Points
}

// HolderCounter はバッジの保持者数を数えるインターフェース。
type HolderCounter interface {
	CountHolders(ctx context.Context, badgeID, excludeUserID string) (int, error)
}

// Satisfied は特別条件を問い合わせ時点のユーザー集合に対して判定する。
// 「最初に到達」はN以上に達していて、他に誰もbadgeIDを保持していない場合に満たす。
// 同じ判定パスでN以上のユーザーが複数いる場合は先に評価されたユーザーだけが満たす。
// 並行評価では両者が保持者0件を観測しうる時点判定であり、一度満たした結果を保証するものではない。
func (c SpecialCondition) Satisfied(ctx context.Context, stats repository.StatsRepository, holders HolderCounter, badgeID string, u *model.User) (bool, error) {
	value := metricOf(u, c.Metric)
	switch c.Kind {
	case ConditionFirstToReach:
		if value < c.N {
			return false, nil
		}
		others, err := holders.CountHolders(ctx, badgeID, u.ID)
		if err != nil {
			return false, fmt.Errorf("failed to count holders of %s: %w", badgeID, err)
		}
		return others == 0, nil
	case ConditionTopN:
		ahead, err := stats.CountOtherUsersAbove(ctx, c.Metric, value, u.ID)
		if err != nil {
			return false, fmt.Errorf("failed to count users above %d %s: %w", value, c.Metric, err)
		}
		return ahead < c.N, nil
	}
	return false, nil
}
