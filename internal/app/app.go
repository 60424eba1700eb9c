package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/labquest/internal/badge"
	"github.com/hitoshi/labquest/internal/config"
	"github.com/hitoshi/labquest/internal/database"
	"github.com/hitoshi/labquest/internal/handler"
	"github.com/hitoshi/labquest/internal/history"
	"github.com/hitoshi/labquest/internal/logger"
	"github.com/hitoshi/labquest/internal/metrics"
	"github.com/hitoshi/labquest/internal/middleware"
	"github.com/hitoshi/labquest/internal/notify"
	"github.com/hitoshi/labquest/internal/repository"
	"github.com/hitoshi/labquest/internal/security"
	"github.com/hitoshi/labquest/internal/task"
	"github.com/hitoshi/labquest/internal/user"
	"github.com/hitoshi/labquest/internal/worker/badges"
)

// tokenTTL は token サブコマンドで発行するトークンの有効期間。
const tokenTTL = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
// 返却されたCloserはログファイルを閉じるため、終了時に呼び出すこと。
func Init(w io.Writer) (*config.Config, io.Closer, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定に従ってログレベルと出力先を再構成する
	closer, err := logger.Configure(w, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, nil, err
	}

	return cfg, closer, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, closer, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer closer.Close()

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, rest)
	case CommandToken:
		return runToken(cfg, os.Stdout, rest)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// newNotifier はレビュー通知の送出先を構成する。
// REDIS_ADDRが未設定の場合はログ出力のみを行う。
func newNotifier(cfg *config.Config) (notify.Sink, func()) {
	if cfg.RedisAddr == "" {
		slog.Info("REDIS_ADDR is not set, notifications are logged only")
		return notify.NewLogSink(slog.Default()), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	slog.Info("notification queue configured",
		slog.String("redis_addr", cfg.RedisAddr),
		slog.String("queue", cfg.NotifyQueue),
	)
	return notify.NewRedisQueue(client, cfg.NotifyQueue), func() { client.Close() }
}

// newEvaluator はPostgreSQL上のバッジ判定器を構成する。
func newEvaluator(db *sql.DB, recorder *history.Recorder, collector *metrics.Collector) *badge.Evaluator {
	return badge.NewEvaluator(
		repository.NewPostgresBadgeRepo(db),
		repository.NewPostgresUserBadgeRepo(db),
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresStatsRepo(db),
		recorder,
		collector,
		slog.Default(),
	)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewDBStatsCollector(db, "labquest"),
	)
	collector := metrics.NewCollector(registry)

	// 3. 横断的な依存
	recorder := history.NewRecorder(repository.NewPostgresHistoryRepo(db), slog.Default())
	notifier, closeNotifier := newNotifier(cfg)
	defer closeNotifier()
	transactor := repository.NewPostgresTransactor(db)

	// 4. ドメインサービスの初期化
	evaluator := newEvaluator(db, recorder, collector)

	taskService := task.NewService(
		transactor, recorder, notifier, collector,
		security.NewSanitizer(), slog.Default(),
	)
	taskService.SetBadgeEvaluator(evaluator)

	userService := user.NewService(transactor, recorder, collector, slog.Default())

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitPerMinute, cfg.WriteRateLimitPerMinute),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Verifier:          middleware.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),

		TaskService:  taskService,
		BadgeService: evaluator,
		UserService:  userService,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、バッジ判定スケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. 判定器の初期化。ワーカーのメトリクスはスクレイプしないため登録先は独立させる
	recorder := history.NewRecorder(repository.NewPostgresHistoryRepo(db), slog.Default())
	evaluator := newEvaluator(db, recorder, metrics.NewCollector(prometheus.NewRegistry()))

	scheduler := badges.NewScheduler(
		repository.NewPostgresUserRepo(db), evaluator, slog.Default(),
		cfg.BadgeEvalMaxConcurrent, cfg.BadgeEvalRate,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("worker starting",
		slog.Duration("badge_eval_interval", cfg.BadgeEvalInterval),
		slog.Int("max_concurrent", cfg.BadgeEvalMaxConcurrent),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.BadgeEvalInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしではすべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, args []string) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if len(args) == 0 {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
		return nil
	}

	switch args[0] {
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid rollback steps %q: %w", args[1], err)
			}
			steps = n
		}
		if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back", slog.Int("steps", steps))
		return nil
	case "version":
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("current migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
		return nil
	default:
		return fmt.Errorf("unknown migrate subcommand: %s", args[0])
	}
}

// runToken はユーザーIDに対するアクセストークンを発行してwに書き出す。
func runToken(cfg *config.Config, w io.Writer, args []string) error {
	if len(args) == 0 || args[0] == "" {
		return fmt.Errorf("usage: token <user-id>")
	}

	verifier := middleware.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	token, err := verifier.Issue(args[0], tokenTTL)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	_, err = fmt.Fprintln(w, token)
	return err
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
