package points

import (
	"testing"
	"time"

	"github.com/hitoshi/labquest/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPenalty_NoDueDate(t *testing.T) {
	if got := Penalty(nil, 100, date(2030, 1, 1)); got != 0 {
		t.Errorf("Penalty(nil) = %d, want 0", got)
	}
}

func TestPenalty_OnOrBeforeDueDate(t *testing.T) {
	due := date(2026, 1, 10)
	for _, at := range []time.Time{due, due.Add(-time.Second), due.AddDate(0, 0, -5)} {
		if got := Penalty(&due, 100, at); got != 0 {
			t.Errorf("Penalty(due, 100, %s) = %d, want 0", at, got)
		}
	}
}

func TestPenalty_LinearInDaysLate(t *testing.T) {
	due := date(2026, 1, 1)
	for _, p := range []int{1, 7, 50, 100} {
		for k := 1; k <= 10; k++ {
			at := due.AddDate(0, 0, k)
			if got := Penalty(&due, p, at); got != k*p {
				t.Errorf("Penalty(points=%d, daysLate=%d) = %d, want %d", p, k, got, k*p)
			}
		}
	}
}

func TestDaysLate_RoundsUpPartialDays(t *testing.T) {
	due := date(2026, 1, 1)
	if got := DaysLate(&due, due.Add(time.Minute)); got != 1 {
		t.Errorf("DaysLate(+1m) = %d, want 1", got)
	}
	if got := DaysLate(&due, due.Add(49*time.Hour)); got != 3 {
		t.Errorf("DaysLate(+49h) = %d, want 3", got)
	}
}

// シナリオA: 100pt、期限1/1、1/4完了 → 3日遅延、ペナルティ300、正味-200
func TestAward_ScenarioA(t *testing.T) {
	due := date(2026, 1, 1)
	r := Award(&due, 100, date(2026, 1, 4))

	if r.DaysLate != 3 {
		t.Errorf("DaysLate = %d, want 3", r.DaysLate)
	}
	if r.Penalty != 300 {
		t.Errorf("Penalty = %d, want 300", r.Penalty)
	}
	if r.Net != -200 {
		t.Errorf("Net = %d, want -200", r.Net)
	}

	u := &model.User{Points: 50, CompletedTasks: 4}
	if err := Credit(u, r); err != nil {
		t.Fatalf("Credit returned error: %v", err)
	}
	if u.Points != -150 {
		t.Errorf("Points = %d, want -150", u.Points)
	}
	if u.CompletedTasks != 5 {
		t.Errorf("CompletedTasks = %d, want 5", u.CompletedTasks)
	}
}

// シナリオB: 50pt、期限なし → ペナルティ0、正味50をAddPointsで付与
func TestAward_ScenarioB(t *testing.T) {
	r := Award(nil, 50, date(2040, 6, 1))
	if r.Penalty != 0 || r.Net != 50 {
		t.Errorf("Award = %+v, want penalty 0, net 50", r)
	}

	u := &model.User{Points: 0}
	if err := Credit(u, r); err != nil {
		t.Fatalf("Credit returned error: %v", err)
	}
	if u.Points != 50 || u.CompletedTasks != 1 {
		t.Errorf("user = %+v, want points 50, completed 1", u)
	}
}

func TestAddPoints_NeverNegative(t *testing.T) {
	u := &model.User{Points: -200}
	if err := AddPoints(u, 50); err != nil {
		t.Fatalf("AddPoints returned error: %v", err)
	}
	if u.Points != 0 {
		t.Errorf("Points = %d, want 0 (clamped)", u.Points)
	}

	for i := 0; i < 20; i++ {
		if err := AddPoints(u, i); err != nil {
			t.Fatalf("AddPoints returned error: %v", err)
		}
		if u.Points < 0 {
			t.Fatalf("AddPoints produced negative balance %d", u.Points)
		}
	}
}

func TestAddPoints_RejectsNegativeAmount(t *testing.T) {
	u := &model.User{Points: 10}
	err := AddPoints(u, -5)
	if !model.HasCategory(err, model.CategoryValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if u.Points != 10 {
		t.Errorf("Points = %d, want 10 (unchanged)", u.Points)
	}
}

func TestApplyPenalty_CanGoNegative(t *testing.T) {
	u := &model.User{Points: 10}
	ApplyPenalty(u, -200)
	if u.Points != -190 {
		t.Errorf("Points = %d, want -190", u.Points)
	}
}

func TestRemovePoints(t *testing.T) {
	u := &model.User{Points: 30}
	if err := RemovePoints(u, 30); err != nil {
		t.Fatalf("RemovePoints returned error: %v", err)
	}
	if u.Points != 0 {
		t.Errorf("Points = %d, want 0", u.Points)
	}

	err := RemovePoints(u, 1)
	if !model.HasCategory(err, model.CategoryConflict) {
		t.Errorf("insufficient balance: expected conflict error, got %v", err)
	}
	if u.Points != 0 {
		t.Errorf("Points = %d, want 0 (unchanged)", u.Points)
	}

	if err := RemovePoints(u, 0); !model.HasCategory(err, model.CategoryValidation) {
		t.Errorf("zero amount: expected validation error, got %v", err)
	}
}

func TestCredit_PenaltyWithPositiveNet(t *testing.T) {
	due := date(2026, 3, 1)
	// 1日遅延でペナルティ40 → 正味0
	r := Award(&due, 40, date(2026, 3, 2))
	u := &model.User{Points: 5}
	if err := Credit(u, r); err != nil {
		t.Fatalf("Credit returned error: %v", err)
	}
	if u.Points != 5 {
		t.Errorf("Points = %d, want 5", u.Points)
	}
}
