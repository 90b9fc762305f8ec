// Package session はセッション単位のライブ状態（プロフィールリゾルバと
// todoリポジトリのペア）の生成・検索・破棄を管理する。
//
// グローバルな可変状態は持たない。状態はすべてセッションIDをキーに
// Registryが所有し、サインインで生成、サインアウトまたは期限切れで
// ちょうど1回破棄される。
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/profile"
	"github.com/hitoshi/todoman/internal/store"
	"github.com/hitoshi/todoman/internal/todo"
)

// Context は1つの認証済みセッションのライブ状態を表す。
type Context struct {
	Session  *model.Session
	Resolver *profile.Resolver
	Todos    *todo.Repository

	destroyOnce sync.Once
}

// Profile は解決済みのプロフィールを返す。未解決の場合はnil。
func (c *Context) Profile() *model.Profile {
	return c.Resolver.Profile()
}

// destroy は購読を解放する。複数回呼んでも安全。
func (c *Context) destroy() {
	c.destroyOnce.Do(func() {
		c.Todos.Close()
		c.Resolver.Close()
	})
}

// RegistryConfig はRegistryの設定。
type RegistryConfig struct {
	CleanupInterval time.Duration // 期限切れセッションのクリーンアップ間隔
}

// DefaultRegistryConfig はデフォルト設定を返す。
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		CleanupInterval: 5 * time.Minute,
	}
}

// Registry はアクティブなセッションのライブ状態を所有する。
type Registry struct {
	config    RegistryConfig
	sessions  store.SessionStore
	profiles  store.ProfileStore
	todos     store.TodoStore
	feed      store.ChangeFeed
	collector metrics.MetricsCollector

	mu     sync.Mutex
	active map[string]*Context

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRegistry は新しいRegistryを生成する。
// バックグラウンドで期限切れセッションのクリーンアップを開始する。
func NewRegistry(
	config RegistryConfig,
	sessions store.SessionStore,
	profiles store.ProfileStore,
	todos store.TodoStore,
	feed store.ChangeFeed,
	collector metrics.MetricsCollector,
) *Registry {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	r := &Registry{
		config:    config,
		sessions:  sessions,
		profiles:  profiles,
		todos:     todos,
		feed:      feed,
		collector: collector,
		active:    make(map[string]*Context),
		stopCh:    make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go r.cleanupLoop()
	}

	return r
}

// Create はセッションのライブ状態を生成し、プロフィールを解決する。
// 同一セッションIDで再度呼ばれた場合は既存の状態を返す（二重購読の防止）。
func (r *Registry) Create(ctx context.Context, sess *model.Session, email string) (*Context, *model.APIError) {
	r.mu.Lock()
	if existing, ok := r.active[sess.ID]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.mu.Unlock()

	resolver := profile.NewResolver(sess.UserID, email, r.profiles, r.feed, r.collector)
	repo := todo.NewRepository(sess.UserID, resolver.Profile, r.todos, r.profiles, r.feed, r.collector)

	if _, apiErr := resolver.Resolve(ctx); apiErr != nil {
		resolver.Close()
		repo.Close()
		return nil, apiErr
	}

	sc := &Context{
		Session:  sess,
		Resolver: resolver,
		Todos:    repo,
	}

	r.mu.Lock()
	// 同時サインインとの競合: 先に登録された方を正とする
	if existing, ok := r.active[sess.ID]; ok {
		r.mu.Unlock()
		sc.destroy()
		return existing, nil
	}
	r.active[sess.ID] = sc
	count := len(r.active)
	r.mu.Unlock()

	r.collector.SetActiveSessions(count)
	slog.Info("session registered",
		slog.String("session_id", sess.ID),
		slog.String("user_id", sess.UserID),
	)
	return sc, nil
}

// Get は指定セッションIDのライブ状態を返す。存在しない場合はnil。
func (r *Registry) Get(sessionID string) *Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[sessionID]
}

// GetOrCreate は既存のライブ状態を返すか、なければ生成する。
// 有効なセッションが永続化されているがプロセス再起動等でライブ状態が
// 失われた場合の復元パス。
func (r *Registry) GetOrCreate(ctx context.Context, sess *model.Session, email string) (*Context, *model.APIError) {
	if sc := r.Get(sess.ID); sc != nil {
		return sc, nil
	}
	return r.Create(ctx, sess, email)
}

// Destroy は指定セッションのライブ状態を破棄する。
// 購読の解放はちょうど1回だけ行われ、複数回呼んでも安全。
func (r *Registry) Destroy(sessionID string) {
	r.mu.Lock()
	sc, ok := r.active[sessionID]
	if ok {
		delete(r.active, sessionID)
	}
	count := len(r.active)
	r.mu.Unlock()

	if !ok {
		return
	}

	sc.destroy()
	r.collector.SetActiveSessions(count)
	slog.Info("session destroyed", slog.String("session_id", sessionID))
}

// ActiveCount はアクティブなライブ状態の数を返す。テストおよびメトリクス用。
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止し、
// 全ライブ状態を破棄する。
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})

	r.mu.Lock()
	contexts := make([]*Context, 0, len(r.active))
	for id, sc := range r.active {
		contexts = append(contexts, sc)
		delete(r.active, id)
	}
	r.mu.Unlock()

	for _, sc := range contexts {
		sc.destroy()
	}
	r.collector.SetActiveSessions(0)
}

// cleanupLoop はバックグラウンドで期限切れセッションを定期的に破棄する。
func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.stopCh:
			return
		}
	}
}

// cleanup は期限切れセッションの永続行とライブ状態を破棄する。
func (r *Registry) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := r.sessions.DeleteExpired(ctx)
	if err != nil {
		slog.Warn("failed to delete expired sessions", slog.String("error", err.Error()))
	} else if deleted > 0 {
		slog.Info("expired sessions deleted", slog.Int64("count", deleted))
	}

	now := time.Now()
	r.mu.Lock()
	var expired []string
	for id, sc := range r.active {
		if sc.Session.ExpiresAt.Before(now) {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		r.Destroy(id)
	}
}
