// Package profile はセッションのロールプロフィール解決と、
// プロフィールの自己更新・ディレクトリ操作を提供する。
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/store"
)

// Resolver は1つの認証済みidentityに対するプロフィールの解決と
// ライブ同期を担う。セッションごとに1インスタンスを生成し、
// セッション終了時にCloseすること。
type Resolver struct {
	identityID    string
	identityEmail string
	profiles      store.ProfileStore
	feed          store.ChangeFeed
	collector     metrics.MetricsCollector

	mu      sync.Mutex
	profile *model.Profile
	loading bool
	lastErr *model.APIError

	subscribed bool
	cancelSub  func()
	closeOnce  sync.Once
	done       chan struct{}
}

// NewResolver はResolverを生成する。この時点では購読もクエリも行わない。
func NewResolver(identityID, identityEmail string, profiles store.ProfileStore, feed store.ChangeFeed, collector metrics.MetricsCollector) *Resolver {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Resolver{
		identityID:    identityID,
		identityEmail: identityEmail,
		profiles:      profiles,
		feed:          feed,
		collector:     collector,
		done:          make(chan struct{}),
	}
}

// Resolve はidentityのプロフィールを解決する。
// 行が存在しない場合は {id, email, role: user} を作成する。
// 作成が一意制約違反で失敗した場合（別の初期化処理との競合）は
// 既存行を読み直して返す。成功時にはidでフィルタした変更購読を
// 開始し、以後の通知で保持プロフィールを置き換える。
func (r *Resolver) Resolve(ctx context.Context) (*model.Profile, *model.APIError) {
	r.mu.Lock()
	r.loading = true
	r.mu.Unlock()

	p, apiErr := r.fetchOrCreate(ctx)

	r.mu.Lock()
	r.loading = false
	if apiErr != nil {
		r.lastErr = apiErr
		r.mu.Unlock()
		return nil, apiErr
	}
	r.profile = p
	r.lastErr = nil
	r.mu.Unlock()

	if err := r.ensureSubscription(); err != nil {
		slog.Warn("failed to subscribe to profile changes",
			slog.String("user_id", r.identityID),
			slog.String("error", err.Error()),
		)
	}

	result := *p
	return &result, nil
}

// fetchOrCreate は読み取りと欠損時作成を行う。
func (r *Resolver) fetchOrCreate(ctx context.Context) (*model.Profile, *model.APIError) {
	p, err := r.profiles.FindByID(ctx, r.identityID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNoRows) {
		return nil, model.NewRemoteError(fmt.Errorf("failed to find profile: %w", err))
	}

	// 欠損時作成: デフォルトロールはuser
	created, err := r.profiles.Insert(ctx, &model.Profile{
		ID:    r.identityID,
		Email: r.identityEmail,
		Role:  model.RoleUser,
	})
	if err == nil {
		r.collector.RecordProfileSelfHeal()
		slog.Info("profile created on first resolve", slog.String("user_id", r.identityID))
		return created, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return nil, model.NewRemoteError(fmt.Errorf("failed to create profile: %w", err))
	}

	// 競合: 別の初期化処理が先に行を作成済み。既存行を正とする。
	existing, err := r.profiles.FindByID(ctx, r.identityID)
	if err != nil {
		return nil, model.NewRemoteError(fmt.Errorf("failed to re-read profile after conflict: %w", err))
	}
	return existing, nil
}

// ensureSubscription は変更購読を1回だけ開始する。
func (r *Resolver) ensureSubscription() error {
	r.mu.Lock()
	if r.subscribed || r.feed == nil {
		r.mu.Unlock()
		return nil
	}
	r.subscribed = true
	r.mu.Unlock()

	ch, cancel, err := r.feed.Subscribe(store.CollectionProfiles)
	if err != nil {
		r.mu.Lock()
		r.subscribed = false
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.cancelSub = cancel
	r.mu.Unlock()

	go r.watch(ch)
	return nil
}

// watch は変更通知を監視し、自identityのプロフィールを同期する。
// 他のidentityに対する通知は破棄する。
func (r *Resolver) watch(ch <-chan store.ChangeEvent) {
	for {
		select {
		case <-r.done:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.OwnerID != r.identityID {
				r.collector.RecordChangeEventDropped(store.CollectionProfiles)
				continue
			}
			r.collector.RecordChangeEventApplied(store.CollectionProfiles)
			r.refresh(ev)
		}
	}
}

// refresh は通知を受けて保持プロフィールを置き換える。
// 行が削除されていた場合は保持プロフィールをクリアする。
func (r *Resolver) refresh(ev store.ChangeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := r.profiles.FindByID(ctx, r.identityID)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			r.mu.Lock()
			r.profile = nil
			r.mu.Unlock()
			slog.Info("profile deleted remotely", slog.String("user_id", r.identityID))
			return
		}
		slog.Warn("failed to refresh profile after change event",
			slog.String("user_id", r.identityID),
			slog.String("action", ev.Action),
			slog.String("error", err.Error()),
		)
		return
	}

	r.mu.Lock()
	r.profile = p
	r.mu.Unlock()
}

// Profile は保持中のプロフィールのスナップショットを返す。
// 未解決または削除済みの場合はnilを返す。
func (r *Resolver) Profile() *model.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.profile == nil {
		return nil
	}
	p := *r.profile
	return &p
}

// Loading は解決処理が進行中かを返す。
func (r *Resolver) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// LastErr は直近の解決エラーを返す。解決成功でクリアされる。
func (r *Resolver) LastErr() *model.APIError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// IdentityID はこのリゾルバが担当するidentityのIDを返す。
func (r *Resolver) IdentityID() string {
	return r.identityID
}

// Close は変更購読を解放する。複数回呼んでも安全。
func (r *Resolver) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.mu.Lock()
		cancel := r.cancelSub
		r.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
}
