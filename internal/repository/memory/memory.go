// Package memory はリポジトリのインメモリ実装を提供する。
// テストとローカル開発用であり、トランザクションは直列化して実行する。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/labquest/internal/model"
	"github.com/hitoshi/labquest/internal/repository"
)

// WorkSession は作業セッション1件。EndedAt がnilのセッションは進行中。
type WorkSession struct {
	UserID    string
	StartedAt time.Time
	EndedAt   *time.Time
}

type state struct {
	users       map[string]model.User
	tasks       map[string]model.Task
	projects    map[string]model.Project
	memberships map[string]model.ProjectMembership // key: projectID + "/" + userID
	badges      map[string]model.Badge
	userBadges  map[string]model.UserBadge // key: userID + "/" + badgeID
	sessions    []WorkSession
	dailyLogs   map[string]map[time.Time]struct{}
	history     []model.HistoryRecord
}

func newState() state {
	return state{
		users:       map[string]model.User{},
		tasks:       map[string]model.Task{},
		projects:    map[string]model.Project{},
		memberships: map[string]model.ProjectMembership{},
		badges:      map[string]model.Badge{},
		userBadges:  map[string]model.UserBadge{},
		dailyLogs:   map[string]map[time.Time]struct{}{},
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.memberships {
		c.memberships[k] = v
	}
	for k, v := range s.badges {
		c.badges[k] = v
	}
	for k, v := range s.userBadges {
		c.userBadges[k] = v
	}
	c.sessions = append([]WorkSession(nil), s.sessions...)
	for u, days := range s.dailyLogs {
		m := make(map[time.Time]struct{}, len(days))
		for d := range days {
			m[d] = struct{}{}
		}
		c.dailyLogs[u] = m
	}
	c.history = append([]model.HistoryRecord(nil), s.history...)
	return c
}

// Store はすべてのリポジトリインターフェースを実装するインメモリストア。
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data state
}

// New は空のStoreを生成する。
func New() *Store {
	return &Store{data: newState()}
}

// Stores はこのストアを参照するリポジトリ群を返す。
func (s *Store) Stores() repository.Stores {
	return repository.Stores{
		Users:      (*userRepo)(s),
		Tasks:      (*taskRepo)(s),
		Projects:   (*projectRepo)(s),
		Badges:     (*badgeRepo)(s),
		UserBadges: (*userBadgeRepo)(s),
	}
}

// Stats は集計用リポジトリを返す。
func (s *Store) Stats() repository.StatsRepository { return (*statsRepo)(s) }

// History は履歴リポジトリを返す。
func (s *Store) History() repository.HistoryRepository { return (*historyRepo)(s) }

// WithinTx はfnを直列に実行し、エラー時は開始前の状態に戻す。
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, stores repository.Stores) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(ctx, s.Stores()); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// PutUser はユーザーを登録する。
func (s *Store) PutUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.users[u.ID] = copyUser(*u)
}

// PutTask はタスクを登録する。
func (s *Store) PutTask(t *model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.tasks[t.ID] = *t
}

// PutProject はプロジェクトを登録する。
func (s *Store) PutProject(p *model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.projects[p.ID] = *p
}

// PutMembership はプロジェクト所属を登録する。
func (s *Store) PutMembership(m *model.ProjectMembership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *m
	c.Roles = append([]model.Role(nil), m.Roles...)
	s.data.memberships[m.ProjectID+"/"+m.UserID] = c
}

// PutBadge はバッジ定義を登録する。
func (s *Store) PutBadge(b *model.Badge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.badges[b.ID] = *b
}

// AddWorkSession は作業セッションを追加する。
func (s *Store) AddWorkSession(ws WorkSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.sessions = append(s.data.sessions, ws)
}

// AddDailyLog は日報の記録日を追加する。同じ日の複数記録は1日として扱う。
func (s *Store) AddDailyLog(userID string, day time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	days, ok := s.data.dailyLogs[userID]
	if !ok {
		days = map[time.Time]struct{}{}
		s.data.dailyLogs[userID] = days
	}
	y, m, d := day.Date()
	days[time.Date(y, m, d, 0, 0, 0, 0, time.UTC)] = struct{}{}
}

// HistoryRecords は追記された履歴のコピーを返す。
func (s *Store) HistoryRecords() []model.HistoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.HistoryRecord(nil), s.data.history...)
}

func copyUser(u model.User) model.User {
	u.Roles = append([]model.Role(nil), u.Roles...)
	return u
}

type userRepo Store

func (r *userRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.data.users[id]
	if !ok {
		return nil, nil
	}
	c := copyUser(u)
	return &c, nil
}

func (r *userRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.User, error) {
	return r.FindByID(ctx, id)
}

func (r *userRepo) Update(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data.users[u.ID]; !ok {
		return model.NewUserNotFoundError(u.ID)
	}
	r.data.users[u.ID] = copyUser(*u)
	return nil
}

func (r *userRepo) ListActiveIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var users []model.User
	for _, u := range r.data.users {
		if u.Status == model.UserStatusActive {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

type taskRepo Store

func (r *taskRepo) FindByID(_ context.Context, id string) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.data.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *taskRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Task, error) {
	return r.FindByID(ctx, id)
}

func (r *taskRepo) Create(_ context.Context, t *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data.tasks[t.ID]; ok {
		return repository.ErrDuplicate
	}
	r.data.tasks[t.ID] = *t
	return nil
}

func (r *taskRepo) Update(_ context.Context, t *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data.tasks[t.ID]; !ok {
		return model.NewTaskNotFoundError(t.ID)
	}
	r.data.tasks[t.ID] = *t
	return nil
}

type projectRepo Store

func (r *projectRepo) FindByID(_ context.Context, id string) (*model.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.data.projects[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *projectRepo) FindMembership(_ context.Context, projectID, userID string) (*model.ProjectMembership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.data.memberships[projectID+"/"+userID]
	if !ok {
		return nil, nil
	}
	m.Roles = append([]model.Role(nil), m.Roles...)
	return &m, nil
}

type badgeRepo Store

func (r *badgeRepo) FindByID(_ context.Context, id string) (*model.Badge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.data.badges[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *badgeRepo) FindActiveCriteriaBadges(_ context.Context) ([]*model.Badge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Badge
	for _, b := range r.data.badges {
		if b.Active && b.Criteria != nil {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type userBadgeRepo Store

func (r *userBadgeRepo) FindByUserID(_ context.Context, userID string) ([]*model.UserBadge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.UserBadge
	for _, ub := range r.data.userBadges {
		if ub.UserID == userID {
			ub := ub
			out = append(out, &ub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BadgeID < out[j].BadgeID })
	return out, nil
}

func (r *userBadgeRepo) Create(_ context.Context, ub *model.UserBadge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ub.UserID + "/" + ub.BadgeID
	if _, ok := r.data.userBadges[key]; ok {
		return repository.ErrDuplicate
	}
	r.data.userBadges[key] = *ub
	return nil
}

func (r *userBadgeRepo) Delete(_ context.Context, userID, badgeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := userID + "/" + badgeID
	if _, ok := r.data.userBadges[key]; !ok {
		return false, nil
	}
	delete(r.data.userBadges, key)
	return true, nil
}

func (r *userBadgeRepo) CountHolders(_ context.Context, badgeID, excludeUserID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, ub := range r.data.userBadges {
		if ub.BadgeID == badgeID && ub.UserID != excludeUserID {
			n++
		}
	}
	return n, nil
}

type statsRepo Store

func (r *statsRepo) CountProjects(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.data.memberships {
		if m.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *statsRepo) CountWorkSessions(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, ws := range r.data.sessions {
		if ws.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *statsRepo) SumWorkHoursSince(_ context.Context, userID string, since time.Time) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total time.Duration
	for _, ws := range r.data.sessions {
		if ws.UserID != userID || ws.EndedAt == nil || ws.StartedAt.Before(since) {
			continue
		}
		total += ws.EndedAt.Sub(ws.StartedAt)
	}
	return total.Hours(), nil
}

func (r *statsRepo) ListDailyLogDates(_ context.Context, userID string) ([]time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	days := r.data.dailyLogs[userID]
	out := make([]time.Time, 0, len(days))
	for d := range days {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func metricValue(u model.User, m repository.Metric) int {
	if m == repository.MetricCompletedTasks {
		return u.CompletedTasks
	}
	return u.Points
}

func (r *statsRepo) CountOtherUsersAbove(_ context.Context, metric repository.Metric, value int, excludeUserID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for id, u := range r.data.users {
		if id != excludeUserID && metricValue(u, metric) > value {
			n++
		}
	}
	return n, nil
}

type historyRepo Store

func (r *historyRepo) Append(_ context.Context, rec *model.HistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.history = append(r.data.history, *rec)
	return nil
}

// compile-time interface check
var (
	_ repository.Transactor          = (*Store)(nil)
	_ repository.UserRepository      = (*userRepo)(nil)
	_ repository.TaskRepository      = (*taskRepo)(nil)
	_ repository.ProjectRepository   = (*projectRepo)(nil)
	_ repository.BadgeRepository     = (*badgeRepo)(nil)
	_ repository.UserBadgeRepository = (*userBadgeRepo)(nil)
	_ repository.StatsRepository     = (*statsRepo)(nil)
	_ repository.HistoryRepository   = (*historyRepo)(nil)
)
