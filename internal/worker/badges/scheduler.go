// Package badges はバッジ判定のバックグラウンド実行を提供する。
// 時間経過で成立する条件（週平均稼働時間、連続日数、順位）を定期的に再判定する。
package badges

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/labquest/internal/model"
)

// UserLister は判定対象のユーザーIDを列挙するインターフェース。
type UserLister interface {
	ListActiveIDs(ctx context.Context) ([]string, error)
}

// UserEvaluator はユーザー1人分のバッジ判定を行うインターフェース。
type UserEvaluator interface {
	EvaluateUser(ctx context.Context, userID string) ([]*model.Badge, error)
}

// CycleResult は1サイクルの判定結果。
type CycleResult struct {
	Users   int
	Awarded int
	Failed  int
}

// Scheduler は定期的に全アクティブユーザーのバッジ判定を行う。
// semaphoreで最大並列数を制御し、rate.Limiterで判定の開始ペースを抑える。
type Scheduler struct {
	users          UserLister
	evaluator      UserEvaluator
	logger         *slog.Logger
	maxConcurrency int
	limiter        *rate.Limiter
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
// perSecondが0以下の場合はペース制限を行わない。
func NewScheduler(
	users UserLister,
	evaluator UserEvaluator,
	logger *slog.Logger,
	maxConcurrency int,
	perSecond float64,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Scheduler{
		users:          users,
		evaluator:      evaluator,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		limiter:        rate.NewLimiter(limit, maxConcurrency),
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("バッジ判定スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	s.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("バッジ判定スケジューラを停止しました")
			return
		case <-ticker.C:
			s.runAndLog(ctx)
		}
	}
}

func (s *Scheduler) runAndLog(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("バッジ判定サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce はアクティブユーザーを1回列挙し、並列でバッジ判定を実行する。
// 個々のユーザーの判定失敗はログに記録してサイクルを継続する。
func (s *Scheduler) RunOnce(ctx context.Context) (CycleResult, error) {
	start := time.Now()

	ids, err := s.users.ListActiveIDs(ctx)
	if err != nil {
		return CycleResult{}, err
	}

	if len(ids) == 0 {
		s.logger.Info("判定対象のユーザーはいません")
		return CycleResult{}, nil
	}

	s.logger.Info("バッジ判定サイクルを開始します",
		slog.Int("user_count", len(ids)),
	)

	var awarded, failed atomic.Int64
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	dispatched := 0
	for _, id := range ids {
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）
		dispatched++

		go func(userID string) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			got, err := s.evaluator.EvaluateUser(ctx, userID)
			if err != nil {
				failed.Add(1)
				s.logger.Error("バッジ判定に失敗しました",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				return
			}
			awarded.Add(int64(len(got)))
		}(id)
	}

	wg.Wait()

	result := CycleResult{
		Users:   dispatched,
		Awarded: int(awarded.Load()),
		Failed:  int(failed.Load()),
	}
	s.logger.Info("バッジ判定サイクルが完了しました",
		slog.Int("user_count", result.Users),
		slog.Int("awarded", result.Awarded),
		slog.Int("failed", result.Failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return result, ctx.Err()
}
