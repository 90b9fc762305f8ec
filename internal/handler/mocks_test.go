package handler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/store"
)

// --- インメモリストア ---
//
// ハンドラーとルーティングのテストでは、外部依存なしで
// ストア層全体をメモリ上で再現する。

type memIdentityStore struct {
	mu         sync.Mutex
	identities map[string]*model.Identity // keyed by ID
}

func newMemIdentityStore() *memIdentityStore {
	return &memIdentityStore{identities: make(map[string]*model.Identity)}
}

func (s *memIdentityStore) FindByEmail(ctx context.Context, email string) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, identity := range s.identities {
		if identity.Email == email {
			copied := *identity
			return &copied, nil
		}
	}
	return nil, store.ErrNoRows
}

func (s *memIdentityStore) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return nil, store.ErrNoRows
	}
	copied := *identity
	return &copied, nil
}

func (s *memIdentityStore) Create(ctx context.Context, identity *model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.identities {
		if existing.Email == identity.Email {
			return store.ErrConflict
		}
	}
	copied := *identity
	copied.CreatedAt = time.Now()
	s.identities[identity.ID] = &copied
	return nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*model.Session)}
}

func (s *memSessionStore) Create(ctx context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *memSessionStore) FindByID(ctx context.Context, id string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.ExpiresAt.Before(time.Now()) {
		return nil, store.ErrNoRows
	}
	copied := *sess
	return &copied, nil
}

func (s *memSessionStore) DeleteByID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *memSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, sess := range s.sessions {
		if sess.ExpiresAt.Before(time.Now()) {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}

type memProfileStore struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
}

func newMemProfileStore() *memProfileStore {
	return &memProfileStore{profiles: make(map[string]*model.Profile)}
}

func (s *memProfileStore) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, store.ErrNoRows
	}
	copied := *p
	return &copied, nil
}

func (s *memProfileStore) Insert(ctx context.Context, profile *model.Profile) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profile.ID]; ok {
		return nil, store.ErrConflict
	}
	copied := *profile
	copied.CreatedAt = time.Now()
	copied.UpdatedAt = copied.CreatedAt
	s.profiles[profile.ID] = &copied
	result := copied
	return &result, nil
}

func (s *memProfileStore) Update(ctx context.Context, id string, fields store.ProfileFields) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, store.ErrNoRows
	}
	if fields.Email != nil {
		p.Email = *fields.Email
	}
	if fields.FirstName != nil {
		p.FirstName = *fields.FirstName
	}
	if fields.LastName != nil {
		p.LastName = *fields.LastName
	}
	if fields.Role != nil {
		p.Role = *fields.Role
	}
	if fields.AvatarURL != nil {
		p.AvatarURL = *fields.AvatarURL
	}
	if fields.Bio != nil {
		p.Bio = *fields.Bio
	}
	p.UpdatedAt = time.Now()
	copied := *p
	return &copied, nil
}

func (s *memProfileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; !ok {
		return store.ErrNoRows
	}
	delete(s.profiles, id)
	return nil
}

func (s *memProfileStore) ListAll(ctx context.Context) ([]model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]model.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		results = append(results, *p)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Email < results[j].Email })
	return results, nil
}

func (s *memProfileStore) ListByRole(ctx context.Context, role model.Role) ([]model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []model.Profile
	for _, p := range s.profiles {
		if p.Role == role {
			results = append(results, *p)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Email < results[j].Email })
	return results, nil
}

type memTodoStore struct {
	mu       sync.Mutex
	todos    map[string]*model.Todo
	profiles *memProfileStore
}

func newMemTodoStore(profiles *memProfileStore) *memTodoStore {
	return &memTodoStore{
		todos:    make(map[string]*model.Todo),
		profiles: profiles,
	}
}

func sortTodosDesc(todos []model.Todo) {
	sort.SliceStable(todos, func(i, j int) bool {
		return todos[i].CreatedAt.After(todos[j].CreatedAt)
	})
}

func (s *memTodoStore) ListByOwner(ctx context.Context, ownerID string) ([]model.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []model.Todo
	for _, t := range s.todos {
		if t.UserID == ownerID {
			results = append(results, *t)
		}
	}
	sortTodosDesc(results)
	return results, nil
}

func (s *memTodoStore) ListAll(ctx context.Context) ([]model.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]model.Todo, 0, len(s.todos))
	for _, t := range s.todos {
		results = append(results, *t)
	}
	sortTodosDesc(results)
	return results, nil
}

func (s *memTodoStore) ListVisibleToManager(ctx context.Context, managerID string) ([]model.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []model.Todo
	for _, t := range s.todos {
		if t.UserID == managerID {
			results = append(results, *t)
			continue
		}
		if owner, err := s.profiles.FindByID(ctx, t.UserID); err == nil && owner.Role == model.RoleUser {
			results = append(results, *t)
		}
	}
	sortTodosDesc(results)
	return results, nil
}

func (s *memTodoStore) Insert(ctx context.Context, todo *model.Todo) (*model.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *todo
	// 本物のストアと同じく呼び出し側の採番を要求する
	if copied.ID == "" {
		return nil, errors.New("todo id is required")
	}
	copied.CreatedAt = time.Now()
	copied.UpdatedAt = copied.CreatedAt
	s.todos[copied.ID] = &copied
	result := copied
	return &result, nil
}

func (s *memTodoStore) Update(ctx context.Context, id string, fields model.TodoFields) (*model.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.todos[id]
	if !ok {
		return nil, store.ErrNoRows
	}
	if fields.Title != nil {
		t.Title = *fields.Title
	}
	if fields.Description != nil {
		t.Description = *fields.Description
	}
	if fields.Completed != nil {
		t.Completed = *fields.Completed
	}
	t.UpdatedAt = time.Now()
	copied := *t
	return &copied, nil
}

func (s *memTodoStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.todos[id]; !ok {
		return store.ErrNoRows
	}
	delete(s.todos, id)
	return nil
}

// memChangeFeed はイベントを配信しない変更フィード。
type memChangeFeed struct{}

func (f *memChangeFeed) Subscribe(collection string) (<-chan store.ChangeEvent, func(), error) {
	ch := make(chan store.ChangeEvent)
	return ch, func() {}, nil
}

// --- compile-time interface checks ---

var _ store.IdentityStore = (*memIdentityStore)(nil)
var _ store.SessionStore = (*memSessionStore)(nil)
var _ store.ProfileStore = (*memProfileStore)(nil)
var _ store.TodoStore = (*memTodoStore)(nil)
var _ store.ChangeFeed = (*memChangeFeed)(nil)
