package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/todoman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// セッションライブ状態
	Contexts SessionContextProvider

	// プロフィール・ユーザー管理
	ProfileService   ProfileServiceInterface
	DirectoryService DirectoryServiceInterface

	// 運用エンドポイント
	MetricsHandler http.Handler
	AvatarDir      string
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Logging → Recovery
//	→ (認証ルート: CSRF)
//	→ (APIルート: Session → CSRF → RateLimit(General) [→ RateLimit(Mutation)])
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewRecoveryMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.Contexts, deps.AuthConfig)
	todoHandler := NewTodoHandler(deps.Contexts)
	profileHandler := NewProfileHandler(deps.Contexts, deps.ProfileService)
	userHandler := NewUserHandler(deps.Contexts, deps.DirectoryService)

	// --- 認証不要のルート ---

	r.Get("/health", handleHealth)

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// アップロード済みアバター画像の配信
	if deps.AvatarDir != "" {
		r.Handle("/avatars/*", http.StripPrefix("/avatars/",
			http.FileServer(http.Dir(deps.AvatarDir))))
	}

	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// 認証ルート（セッション未確立でもアクセス可能）
	r.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Post("/signup", authHandler.SignUp)
		r.Post("/signin", authHandler.SignIn)
		r.Post("/signout", authHandler.SignOut)
		r.With(middleware.NewSessionMiddleware(deps.SessionResolver)).Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 状態変更エンドポイントには専用のレート制限を追加
		mutation := deps.RateLimiter.MutationMiddleware()

		// todo管理
		r.Route("/api/todos", func(r chi.Router) {
			r.Get("/", todoHandler.ListTodos)
			r.With(mutation).Post("/", todoHandler.CreateTodo)

			r.Route("/{id}", func(r chi.Router) {
				r.With(mutation).Put("/", todoHandler.UpdateTodo)
				r.With(mutation).Patch("/toggle", todoHandler.ToggleTodo)
				r.With(mutation).Delete("/", todoHandler.DeleteTodo)
			})
		})

		// 自分のプロフィール管理
		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.With(mutation).Put("/", profileHandler.UpdateProfile)

			r.Route("/avatar", func(r chi.Router) {
				r.With(mutation).Post("/", profileHandler.UploadAvatar)
				r.With(mutation).Put("/", profileHandler.SetAvatarURL)
				r.With(mutation).Delete("/", profileHandler.RemoveAvatar)
			})
		})

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Get("/", userHandler.ListUsers)
			r.With(mutation).Put("/{id}/role", userHandler.ChangeUserRole)
			r.With(mutation).Delete("/{id}", userHandler.DeleteUser)
		})
	})

	return r
}

// handleHealth はヘルスチェックエンドポイント。
// GET /health
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
