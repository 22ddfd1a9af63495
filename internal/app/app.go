// Package app はcodepadサーバーの組み立てと起動を行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/codepad/internal/account"
	"github.com/hitoshi/codepad/internal/config"
	"github.com/hitoshi/codepad/internal/database"
	"github.com/hitoshi/codepad/internal/editor"
	"github.com/hitoshi/codepad/internal/handler"
	"github.com/hitoshi/codepad/internal/logger"
	"github.com/hitoshi/codepad/internal/metrics"
	"github.com/hitoshi/codepad/internal/middleware"
	"github.com/hitoshi/codepad/internal/preview"
	"github.com/hitoshi/codepad/internal/project"
	"github.com/hitoshi/codepad/internal/repository"
	"github.com/hitoshi/codepad/internal/security"
	"github.com/hitoshi/codepad/internal/store"
	"github.com/hitoshi/codepad/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンで処理中のリクエストを待つ時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込み、ログレベルを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ログレベルの反映
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		slog.Warn("LOG_LEVELが不正なためinfoを使用します", slog.String("error", err.Error()))
	}

	return cfg, nil
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

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("store_driver", cfg.StoreDriver),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	}
}

// storeBackend はストアのKVリポジトリとDB接続。memoryドライバではdbはnil。
type storeBackend struct {
	repo repository.KVRepository
	db   *sql.DB
}

func (b *storeBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// healthChecker はDB接続がある場合のみ疎通確認を行う。
func (b *storeBackend) healthChecker() handler.HealthChecker {
	if b.db == nil {
		return nil
	}
	return b.db
}

// openStore は設定に応じたKVリポジトリを開く。
// sqliteはローカルファイルのため、起動時にマイグレーションも適用する。
// postgresはmigrateサブコマンドで事前にスキーマを作成しておく。
func openStore(ctx context.Context, cfg *config.Config) (*storeBackend, error) {
	driver, err := database.ParseDriver(cfg.StoreDriver)
	if err != nil {
		return nil, err
	}

	if driver == database.DriverMemory {
		slog.Warn("メモリストアを使用します。再起動するとデータは失われます")
		return &storeBackend{repo: repository.NewMemoryKVRepo()}, nil
	}

	dsn := storeDSN(cfg, driver)
	if driver == database.DriverSQLite {
		if err := database.RunMigrations(driver, dsn); err != nil {
			return nil, err
		}
	}

	db, err := database.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established", slog.String("driver", string(driver)))

	var repo repository.KVRepository
	if driver == database.DriverPostgres {
		repo = repository.NewPostgresKVRepo(db)
	} else {
		repo = repository.NewSQLiteKVRepo(db)
	}
	return &storeBackend{repo: repo, db: db}, nil
}

func storeDSN(cfg *config.Config, driver database.Driver) string {
	if driver == database.DriverSQLite {
		return cfg.SQLitePath
	}
	return cfg.DatabaseURL
}

// server は組み立て済みのHTTPハンドラーとバックグラウンド処理。
type server struct {
	handler     http.Handler
	backend     *storeBackend
	editors     *editor.Manager
	rateLimiter *middleware.RateLimiter
	reaper      *cleanup.CleanupJob
	interval    time.Duration
}

// newServer は全依存関係をワイヤリングする。
func newServer(ctx context.Context, cfg *config.Config) (*server, error) {
	// 1. ストア
	backend, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	stores := store.NewProvider(backend.repo, store.WithRecorder(collector))

	// 3. ドメインサービス
	accountService := account.NewService(stores, security.NewAvatarValidator(cfg.AvatarMaxBytes), cfg.DemoAccountEnabled)
	projectService := project.NewService(stores, collector)
	editors := editor.NewManager(editor.Options{
		Preview: preview.SessionOptions{
			QuietPeriod: cfg.PreviewQuietPeriod,
			Recorder:    collector,
		},
		Gauge: collector,
	})

	// 4. レート制限（設定はreq/min単位なのでreq/secに変換する）
	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rlCfg.GeneralBurst = cfg.RateLimitGeneral
	rlCfg.AuthRate = rate.Limit(float64(cfg.RateLimitAuth) / 60.0)
	rlCfg.AuthBurst = cfg.RateLimitAuth
	rateLimiter := middleware.NewRateLimiter(rlCfg)

	// 5. ルーター
	router := handler.NewRouter(&handler.RouterDeps{
		Logger: slog.Default(),
		DeviceConfig: middleware.DeviceConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HTTPSOnly:         cfg.CookieSecure,
		RateLimiter:       rateLimiter,
		HealthChecker:     backend.healthChecker(),
		MetricsHandler:    metrics.Handler(reg),
		AccountService:    accountService,
		ProjectService:    projectService,
		Editors:           editors,
		ScriptErrors:      collector,
	})

	// 6. 放置セッションのクリーンアップ
	reaper := cleanup.NewCleanupJob(editors, slog.Default())
	reaper.IdleTTL = cfg.EditorIdleTTL

	return &server{
		handler:     router,
		backend:     backend,
		editors:     editors,
		rateLimiter: rateLimiter,
		reaper:      reaper,
		interval:    cfg.EditorReapInterval,
	}, nil
}

// close はバックグラウンド処理とストアを閉じる。
func (s *server) close() {
	s.editors.CloseAll()
	s.rateLimiter.Stop()
	if err := s.backend.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
	}
}

// serve はAPIサーバーを起動し、ctxがキャンセルされるまでリクエストを処理する。
// キャンセル後は処理中のリクエストを待ってからシャットダウンする。
func serve(ctx context.Context, cfg *config.Config) error {
	srv, err := newServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer srv.close()

	httpServer := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     srv.handler,
		ReadTimeout: 15 * time.Second,
		// WebSocketの描画通知は長時間接続のため、WriteTimeoutは設定しない
		IdleTimeout: 60 * time.Second,
	}

	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()
	go srv.reaper.Start(bgCtx, srv.interval)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", ln.Addr().String()))
		serveErr <- httpServer.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully",
		slog.Int("open_editor_sessions", srv.editors.Count()),
	)
	return nil
}

// runMigrate はストアのマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。memoryドライバでは何もしない。
func runMigrate(cfg *config.Config) error {
	driver, err := database.ParseDriver(cfg.StoreDriver)
	if err != nil {
		return err
	}

	dsn := storeDSN(cfg, driver)
	target := dsn
	if driver == database.DriverPostgres {
		target = maskDatabaseURL(dsn)
	}
	slog.Info("running database migrations",
		slog.String("driver", string(driver)),
		slog.String("target", target),
	)

	if err := database.RunMigrations(driver, dsn); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
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
