package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/codepad/internal/middleware"
)

// EditorSessions はルーターが必要とするエディタセッション管理インターフェース。
// editor.Managerが満たす。
type EditorSessions interface {
	EditorManagerInterface
	ProjectSessionCloser
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	DeviceConfig      middleware.DeviceConfig
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	HTTPSOnly         bool
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// アカウント
	AccountService AccountServiceInterface

	// ファイル
	ProjectService ProjectServiceInterface

	// エディタとプレビュー
	Editors      EditorSessions
	ScriptErrors ScriptErrorRecorder
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Device → Logging → CSRF → RateLimit(General)
//
// /api/files と /api/editor はさらにAccountミドルウェアを通す。
// 登録・ログインには専用のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HTTPSOnly))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	accountHandler := NewAccountHandler(deps.AccountService)
	fileHandler := NewFileHandler(deps.ProjectService, deps.Editors)
	editorHandler := NewEditorHandler(deps.Editors, deps.ProjectService, deps.ScriptErrors, EditorHandlerConfig{
		AllowedOrigin: deps.CORSAllowedOrigin,
	})
	previewHandler := NewPreviewHandler(deps.Editors)

	// --- 運用エンドポイント（デバイスCookie不要） ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewDeviceMiddleware(deps.DeviceConfig))
		r.Use(middleware.NewLoggingMiddleware(logger))

		// プレビュー文書（iframe用）
		r.Get("/preview/{sessionID}", previewHandler.Document)

		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

			// --- アカウント（ログイン不要） ---
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/accounts", accountHandler.Register)
			r.Route("/session", func(r chi.Router) {
				r.Get("/", accountHandler.Me)
				r.With(deps.RateLimiter.AuthMiddleware()).Post("/", accountHandler.Login)
				r.With(deps.RateLimiter.AuthMiddleware()).Post("/demo", accountHandler.DemoLogin)
				r.Delete("/", accountHandler.Logout)
			})

			// --- ログインが必要なルート ---
			r.Group(func(r chi.Router) {
				r.Use(middleware.NewAccountMiddleware(deps.AccountService))

				r.Route("/files", func(r chi.Router) {
					r.Get("/", fileHandler.ListFiles)
					r.Post("/", fileHandler.CreateFile)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", fileHandler.GetFile)
						r.Put("/", fileHandler.SaveFile)
						r.Delete("/", fileHandler.DeleteFile)
						r.Put("/name", fileHandler.RenameFile)
						r.Get("/export", fileHandler.ExportFile)
					})
				})

				r.Route("/editor", func(r chi.Router) {
					r.Post("/", editorHandler.Open)

					r.Route("/{sid}", func(r chi.Router) {
						r.Get("/", editorHandler.Get)
						r.Delete("/", editorHandler.Close)
						r.Put("/source", editorHandler.UpdateSource)
						r.Put("/autorender", editorHandler.SetAutoRender)
						r.Post("/run", editorHandler.Run)
						r.Post("/loaded", editorHandler.Loaded)
						r.Post("/save", editorHandler.Save)
						r.Post("/diagnostics", editorHandler.Diagnostics)
						r.Get("/events", editorHandler.Events)
					})
				})
			})
		})
	})

	return r
}
