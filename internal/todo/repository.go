// Package todo はセッション単位の可視todoセットを所有するリポジトリを提供する。
//
// リポジトリは全ての変更操作の前にアクセスポリシーを適用し、リモート操作の
// 結果からローカル状態を整合させ、変更フィードの通知で再同期する。
// 可視セットはセッション間で共有されない。
package todo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/policy"
	"github.com/hitoshi/todoman/internal/store"
)

// 変更通知を受けた再取得のタイムアウト。
const refetchTimeout = 10 * time.Second

// ProfileSource は現在のセッションのプロフィールを返す。
// プロフィールリゾルバが保持するライブなプロフィールを参照するため、
// 呼び出しごとに評価される。未解決の場合はnilを返す。
type ProfileSource func() *model.Profile

// Repository は1つの認証済みセッションに対する可視todoセットと
// その変更操作を提供する。セッション終了時にCloseすること。
type Repository struct {
	actorID   string
	profileFn ProfileSource
	todos     store.TodoStore
	profiles  store.ProfileStore
	feed      store.ChangeFeed
	collector metrics.MetricsCollector

	mu           sync.Mutex
	visibleTodos []model.Todo
	loading      bool
	lastErr      *model.APIError

	// 取得結果の適用順序を保証する単調増加シーケンス。
	// 古い取得の完了が新しい結果を上書きすることを防ぐ。
	fetchSeq   uint64
	appliedSeq uint64

	subscribed bool
	cancelSub  func()
	closeOnce  sync.Once
	done       chan struct{}
}

// NewRepository はRepositoryを生成する。この時点では購読もクエリも行わない。
func NewRepository(
	actorID string,
	profileFn ProfileSource,
	todos store.TodoStore,
	profiles store.ProfileStore,
	feed store.ChangeFeed,
	collector metrics.MetricsCollector,
) *Repository {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Repository{
		actorID:   actorID,
		profileFn: profileFn,
		todos:     todos,
		profiles:  profiles,
		feed:      feed,
		collector: collector,
		done:      make(chan struct{}),
	}
}

// Fetch は可視todoセットを全面的に再取得する。
// セッション開始時、ロール変更時、変更通知の受信時に呼ばれる。
// identityとプロフィールが解決済みでない場合はAuthenticationRequiredを
// 返し、既存の可視セットには触れない（一時的な欠落で表示を消さない）。
func (r *Repository) Fetch(ctx context.Context) *model.APIError {
	actor := r.profileFn()
	if r.actorID == "" || actor == nil {
		apiErr := model.NewAuthenticationRequiredError()
		r.mu.Lock()
		r.lastErr = apiErr
		r.mu.Unlock()
		return apiErr
	}

	r.mu.Lock()
	r.fetchSeq++
	seq := r.fetchSeq
	r.loading = true
	r.mu.Unlock()

	start := time.Now()
	rows, err := r.listVisible(ctx, actor)
	r.collector.RecordFetchLatency(time.Since(start))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = false

	if err != nil {
		apiErr := model.NewRemoteError(fmt.Errorf("failed to fetch todos: %w", err))
		r.lastErr = apiErr
		r.collector.RecordFetchFailure(string(actor.Role))
		return apiErr
	}

	// より新しい取得が既に反映済みなら、この結果は破棄する。
	// lastErrにも触れない: エラー状態はより新しい完了が所有しており、
	// 古い成功がより新しい失敗の記録を消してはならない
	if seq <= r.appliedSeq {
		return nil
	}
	r.appliedSeq = seq

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	r.visibleTodos = rows
	r.lastErr = nil
	r.collector.RecordFetchSuccess(string(actor.Role))

	r.ensureSubscriptionLocked()
	return nil
}

// listVisible はロール別の可視範囲クエリを実行する。
// managerの可視範囲（自分の所有分とuserロール所有分の和集合）は
// ストア側で1クエリとして解決され、部分的な結果が返ることはない。
func (r *Repository) listVisible(ctx context.Context, actor *model.Profile) ([]model.Todo, error) {
	switch actor.Role {
	case model.RoleAdmin:
		return r.todos.ListAll(ctx)
	case model.RoleManager:
		return r.todos.ListVisibleToManager(ctx, r.actorID)
	case model.RoleUser:
		return r.todos.ListByOwner(ctx, r.actorID)
	default:
		return nil, fmt.Errorf("unknown role: %s", actor.Role)
	}
}

// Create はtodoを作成し、正準行を可視セットの先頭へ加える。
// 所有者IDはサーバー側でactorのIDに強制され、呼び出し側の指定は信用しない。
func (r *Repository) Create(ctx context.Context, title, description string) (*model.Todo, *model.APIError) {
	trimmed := strings.TrimSpace(title)
	if apiErr := validateTitle(trimmed); apiErr != nil {
		r.collector.RecordMutation("create", false)
		return nil, apiErr
	}
	if apiErr := validateDescription(description); apiErr != nil {
		r.collector.RecordMutation("create", false)
		return nil, apiErr
	}

	actor := r.profileFn()
	if actor == nil {
		r.collector.RecordMutation("create", false)
		return nil, model.NewAuthenticationRequiredError()
	}
	if !policy.Permit(policy.ActionCreate, actor.Role, r.actorID, r.actorID, actor.Role) {
		r.collector.RecordMutation("create", false)
		return nil, model.NewAuthorizationDeniedError()
	}

	// idはストア任せにせずここで採番する（todos.idにDEFAULTはない）
	created, err := r.todos.Insert(ctx, &model.Todo{
		ID:          uuid.New().String(),
		Title:       trimmed,
		Description: description,
		Completed:   false,
		UserID:      r.actorID,
	})
	if err != nil {
		r.collector.RecordMutation("create", false)
		return nil, model.NewRemoteError(fmt.Errorf("failed to insert todo: %w", err))
	}

	r.mu.Lock()
	r.visibleTodos = append([]model.Todo{*created}, r.visibleTodos...)
	r.mu.Unlock()

	r.collector.RecordMutation("create", true)
	slog.Info("todo created",
		slog.String("todo_id", created.ID),
		slog.String("user_id", r.actorID),
	)
	result := *created
	return &result, nil
}

// Update は指定IDのtodoを部分更新する。
// 対象がローカルの可視セットに存在しない場合はNotFoundを返す
// （可視範囲外のtodoへの無駄なリモート往復を避ける事前チェック）。
// 成功時はローカルの該当エントリを正準行で置き換え、位置は保持する。
func (r *Repository) Update(ctx context.Context, id string, fields model.TodoFields) (*model.Todo, *model.APIError) {
	return r.mutate(ctx, "update", id, fields)
}

// Toggle は完了状態のみを変更するUpdate。
func (r *Repository) Toggle(ctx context.Context, id string, completed bool) (*model.Todo, *model.APIError) {
	return r.mutate(ctx, "toggle", id, model.TodoFields{Completed: &completed})
}

// mutate はUpdate/Toggleの共通処理。
func (r *Repository) mutate(ctx context.Context, action string, id string, fields model.TodoFields) (*model.Todo, *model.APIError) {
	local, apiErr := r.precheck(ctx, id, policy.ActionUpdate)
	if apiErr != nil {
		r.collector.RecordMutation(action, false)
		return nil, apiErr
	}

	if fields.Title != nil {
		trimmed := strings.TrimSpace(*fields.Title)
		if apiErr := validateTitle(trimmed); apiErr != nil {
			r.collector.RecordMutation(action, false)
			return nil, apiErr
		}
		fields.Title = &trimmed
	}
	if fields.Description != nil {
		if apiErr := validateDescription(*fields.Description); apiErr != nil {
			r.collector.RecordMutation(action, false)
			return nil, apiErr
		}
	}

	updated, err := r.todos.Update(ctx, id, fields)
	if err != nil {
		r.collector.RecordMutation(action, false)
		if errors.Is(err, store.ErrNoRows) {
			return nil, model.NewTodoNotFoundError(id)
		}
		return nil, model.NewRemoteError(fmt.Errorf("failed to update todo: %w", err))
	}

	// 位置を保ったまま正準行で置き換える（再ソートしない）
	r.mu.Lock()
	for i := range r.visibleTodos {
		if r.visibleTodos[i].ID == id {
			r.visibleTodos[i] = *updated
			break
		}
	}
	r.mu.Unlock()

	r.collector.RecordMutation(action, true)
	slog.Info("todo updated",
		slog.String("todo_id", id),
		slog.String("owner_id", local.UserID),
		slog.String("actor_id", r.actorID),
	)
	result := *updated
	return &result, nil
}

// Delete は指定IDのtodoを削除する。事前チェックはUpdateと同一。
func (r *Repository) Delete(ctx context.Context, id string) *model.APIError {
	local, apiErr := r.precheck(ctx, id, policy.ActionDelete)
	if apiErr != nil {
		r.collector.RecordMutation("delete", false)
		return apiErr
	}

	if err := r.todos.Delete(ctx, id); err != nil {
		r.collector.RecordMutation("delete", false)
		if errors.Is(err, store.ErrNoRows) {
			return model.NewTodoNotFoundError(id)
		}
		return model.NewRemoteError(fmt.Errorf("failed to delete todo: %w", err))
	}

	r.mu.Lock()
	for i := range r.visibleTodos {
		if r.visibleTodos[i].ID == id {
			r.visibleTodos = append(r.visibleTodos[:i], r.visibleTodos[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.collector.RecordMutation("delete", true)
	slog.Info("todo deleted",
		slog.String("todo_id", id),
		slog.String("owner_id", local.UserID),
		slog.String("actor_id", r.actorID),
	)
	return nil
}

// precheck はローカル存在確認とアクセスポリシーの事前チェックを行う。
func (r *Repository) precheck(ctx context.Context, id string, action policy.Action) (*model.Todo, *model.APIError) {
	actor := r.profileFn()
	if r.actorID == "" || actor == nil {
		return nil, model.NewAuthenticationRequiredError()
	}

	local := r.findLocal(id)
	if local == nil {
		return nil, model.NewTodoNotFoundError(id)
	}

	ownerRole, apiErr := r.resolveOwnerRole(ctx, local.UserID, actor)
	if apiErr != nil {
		return nil, apiErr
	}
	if !policy.Permit(action, actor.Role, r.actorID, local.UserID, ownerRole) {
		return nil, model.NewAuthorizationDeniedError()
	}
	return local, nil
}

// findLocal は可視セットから指定IDのtodoを探す。
func (r *Repository) findLocal(id string) *model.Todo {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.visibleTodos {
		if r.visibleTodos[i].ID == id {
			t := r.visibleTodos[i]
			return &t
		}
	}
	return nil
}

// resolveOwnerRole はポリシー判定に必要な所有者のロールを解決する。
// managerの可否は所有者のロールに依存するため、所有者が他人の場合のみ
// プロフィールを1回読み取る。他のロールの判定はロールを参照しない。
func (r *Repository) resolveOwnerRole(ctx context.Context, ownerID string, actor *model.Profile) (model.Role, *model.APIError) {
	if ownerID == r.actorID {
		return actor.Role, nil
	}
	if actor.Role != model.RoleManager {
		return "", nil
	}

	owner, err := r.profiles.FindByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			// 所有者プロフィールが欠損している場合、managerには許可しない
			return "", nil
		}
		return "", model.NewRemoteError(fmt.Errorf("failed to resolve owner role: %w", err))
	}
	return owner.Role, nil
}

// ensureSubscriptionLocked は変更購読を1回だけ開始する。r.mu保持中に呼ぶこと。
func (r *Repository) ensureSubscriptionLocked() {
	if r.subscribed || r.feed == nil {
		return
	}
	ch, cancel, err := r.feed.Subscribe(store.CollectionTodos)
	if err != nil {
		slog.Warn("failed to subscribe to todo changes",
			slog.String("user_id", r.actorID),
			slog.String("error", err.Error()),
		)
		return
	}
	r.subscribed = true
	r.cancelSub = cancel
	go r.watch(ch)
}

// watch は変更通知を監視し、関連するイベントで全再取得を行う。
// 関連性の判定: actorがadminまたはmanager、もしくは通知の所有者が
// actor自身の場合のみ。無関係な通知は状態を変えずに破棄する。
func (r *Repository) watch(ch <-chan store.ChangeEvent) {
	for {
		select {
		case <-r.done:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if !r.relevant(ev) {
				r.collector.RecordChangeEventDropped(store.CollectionTodos)
				continue
			}
			r.collector.RecordChangeEventApplied(store.CollectionTodos)

			ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
			if apiErr := r.Fetch(ctx); apiErr != nil {
				slog.Warn("refetch after change event failed",
					slog.String("user_id", r.actorID),
					slog.String("action", ev.Action),
					slog.String("error", apiErr.Error()),
				)
			}
			cancel()
		}
	}
}

// relevant は通知がこのセッションの可視セットに影響しうるかを判定する。
// managerの判定は意図的に粗い: 通知ペイロードに所有者のロールが
// 含まれないため、任意のtodo変更で再取得する。
func (r *Repository) relevant(ev store.ChangeEvent) bool {
	actor := r.profileFn()
	if actor == nil {
		return false
	}
	switch actor.Role {
	case model.RoleAdmin, model.RoleManager:
		return true
	default:
		return ev.OwnerID == r.actorID
	}
}

// VisibleTodos は可視セットのスナップショットを返す。
func (r *Repository) VisibleTodos() []model.Todo {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]model.Todo, len(r.visibleTodos))
	copy(result, r.visibleTodos)
	return result
}

// Loading は取得処理が進行中かを返す。
func (r *Repository) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// LastErr は直近のFetch失敗を返す。変更操作の失敗はここに保存されず、
// 呼び出し元へ直接返される。Fetch成功でクリアされる。
func (r *Repository) LastErr() *model.APIError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Close は変更購読を解放する。複数回呼んでも安全。
func (r *Repository) Close() {
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

// validateTitle はトリム済みタイトルを検証する。
func validateTitle(trimmed string) *model.APIError {
	if trimmed == "" {
		return model.NewValidationError("タイトルを入力してください")
	}
	if len([]rune(trimmed)) > model.TodoTitleMaxLen {
		return model.NewValidationError(fmt.Sprintf("タイトルは%d文字以内で入力してください", model.TodoTitleMaxLen))
	}
	return nil
}

// validateDescription は説明を検証する。
func validateDescription(description string) *model.APIError {
	if len([]rune(description)) > model.TodoDescriptionMaxLen {
		return model.NewValidationError(fmt.Sprintf("説明は%d文字以内で入力してください", model.TodoDescriptionMaxLen))
	}
	return nil
}
