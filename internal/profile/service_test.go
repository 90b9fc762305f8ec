package profile

import (
	"context"
	"strings"
	"testing"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/security"
	"github.com/hitoshi/todoman/internal/store"
)

type mockBlobStore struct {
	putFn    func(ctx context.Context, name, contentType string, data []byte) (string, error)
	removeFn func(ctx context.Context, name string) error
}

func (m *mockBlobStore) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if m.putFn != nil {
		return m.putFn(ctx, name, contentType, data)
	}
	return "http://localhost:8080/avatars/" + name, nil
}

func (m *mockBlobStore) Remove(ctx context.Context, name string) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, name)
	}
	return nil
}

func newTestService(profiles *mockProfileStore, blobs *mockBlobStore) *Service {
	if blobs == nil {
		blobs = &mockBlobStore{}
	}
	return NewService(profiles, security.NewTextSanitizer(), security.NewAvatarURLGuard(), blobs, 0)
}

func actorWithRole(role model.Role) *model.Profile {
	return &model.Profile{ID: "actor-1", Email: "actor@example.com", Role: role}
}

func strPtr(s string) *string { return &s }

func rolePtr(r model.Role) *model.Role { return &r }

// --- Update ---

func TestUpdate_ValidFields_UpdatesProfile(t *testing.T) {
	var gotFields store.ProfileFields
	profiles := &mockProfileStore{
		updateFn: func(ctx context.Context, id string, fields store.ProfileFields) (*model.Profile, error) {
			gotFields = fields
			return &model.Profile{ID: id, FirstName: *fields.FirstName, LastName: *fields.LastName}, nil
		},
	}
	svc := newTestService(profiles, nil)

	updated, apiErr := svc.Update(context.Background(), actorWithRole(model.RoleUser), store.ProfileFields{
		FirstName: strPtr("  太郎  "),
		LastName:  strPtr("山田"),
	})
	if apiErr != nil {
		t.Fatalf("Update() error = %v", apiErr)
	}
	if updated == nil {
		t.Fatal("expected non-nil profile")
	}
	// 前後の空白が詰められて保存されること
	if *gotFields.FirstName != "太郎" {
		t.Errorf("first name = %q, want %q", *gotFields.FirstName, "太郎")
	}
}

func TestUpdate_NilActor_ReturnsAuthenticationRequired(t *testing.T) {
	svc := newTestService(&mockProfileStore{}, nil)

	_, apiErr := svc.Update(context.Background(), nil, store.ProfileFields{})
	if apiErr == nil || apiErr.Code != model.ErrCodeAuthenticationRequired {
		t.Errorf("error = %v, want AUTHENTICATION_REQUIRED", apiErr)
	}
}

func TestUpdate_InvalidEmail_ReturnsValidationError(t *testing.T) {
	svc := newTestService(&mockProfileStore{}, nil)

	_, apiErr := svc.Update(context.Background(), actorWithRole(model.RoleUser), store.ProfileFields{
		Email: strPtr("not-an-email"),
	})
	if apiErr == nil || apiErr.Code != model.ErrCodeValidation {
		t.Errorf("error = %v, want VALIDATION_ERROR", apiErr)
	}
}

func TestUpdate_ShortName_ReturnsValidationError(t *testing.T) {
	svc := newTestService(&mockProfileStore{}, nil)

	tests := []struct {
		name   string
		fields store.ProfileFields
	}{
		{"first_name_1_char", store.ProfileFields{FirstName: strPtr("A")}},
		{"first_name_whitespace", store.ProfileFields{FirstName: strPtr("  a  ")}},
		{"last_name_1_char", store.ProfileFields{LastName: strPtr("B")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, apiErr := svc.Update(context.Background(), actorWithRole(model.RoleUser), tt.fields)
			if apiErr == nil || apiErr.Code != model.ErrCodeValidation {
				t.Errorf("error = %v, want VALIDATION_ERROR", apiErr)
			}
		})
	}
}

// 非adminによるロール変更は拒否されること（自己更新パスの不変条件）
func TestUpdate_RoleChangeByNonAdmin_Denied(t *testing.T) {
	svc := newTestService(&mockProfileStore{}, nil)

	for _, role := range []model.Role{model.RoleUser, model.RoleManager} {
		_, apiErr := svc.Update(context.Background(), actorWithRole(role), store.ProfileFields{
			Role: rolePtr(model.RoleAdmin),
		})
		if apiErr == nil || apiErr.Code != model.ErrCodeAuthorizationDenied {
			t.Errorf("role %s: error = %v, want AUTHORIZATION_DENIED", role, apiErr)
		}
	}
}

func TestUpdate_BioIsSanitized(t *testing.T) {
	var gotFields store.ProfileFields
	profiles := &mockProfileStore{
		updateFn: func(ctx context.Context, id string, fields store.ProfileFields) (*model.Profile, error) {
			gotFields = fields
			return &model.Profile{ID: id}, nil
		},
	}
	svc := newTestService(profiles, nil)

	_, apiErr := svc.Update(context.Background(), actorWithRole(model.RoleUser), store.ProfileFields{
		Bio: strPtr(`<script>alert("xss")</script>エンジニアです`),
	})
	if apiErr != nil {
		t.Fatalf("Update() error = %v", apiErr)
	}
	if strings.Contains(*gotFields.Bio, "<script>") {
		t.Errorf("bio contains script tag: %q", *gotFields.Bio)
	}
	if !strings.Contains(*gotFields.Bio, "エンジニアです") {
		t.Errorf("bio lost plain text: %q", *gotFields.Bio)
	}
}

// --- アバター ---

func TestUploadAvatar_ValidImage_StoresAndUpdatesURL(t *testing.T) {
	var putName string
	var gotFields store.ProfileFields

	blobs := &mockBlobStore{
		putFn: func(ctx context.Context, name, contentType string, data []byte) (string, error) {
			putName = name
			return "http://localhost:8080/avatars/" + name, nil
		},
	}
	profiles := &mockProfileStore{
		updateFn: func(ctx context.Context, id string, fields store.ProfileFields) (*model.Profile, error) {
			gotFields = fields
			return &model.Profile{ID: id, AvatarURL: *fields.AvatarURL}, nil
		},
	}
	svc := newTestService(profiles, blobs)

	updated, apiErr := svc.UploadAvatar(context.Background(), actorWithRole(model.RoleUser), "image/png", []byte("fake png"))
	if apiErr != nil {
		t.Fatalf("UploadAvatar() error = %v", apiErr)
	}
	if putName != "actor-1.png" {
		t.Errorf("blob name = %q, want %q", putName, "actor-1.png")
	}
	if gotFields.AvatarURL == nil || *gotFields.AvatarURL == "" {
		t.Fatal("expected avatar URL to be updated")
	}
	if updated.AvatarURL != *gotFields.AvatarURL {
		t.Errorf("returned avatar URL = %q, want %q", updated.AvatarURL, *gotFields.AvatarURL)
	}
}

func TestUploadAvatar_RejectsNonImageAndOversize(t *testing.T) {
	svc := newTestService(&mockProfileStore{}, nil)
	actor := actorWithRole(model.RoleUser)

	// 画像ではないcontent type
	if _, apiErr := svc.UploadAvatar(context.Background(), actor, "application/pdf", []byte("x")); apiErr == nil || apiErr.Code != model.ErrCodeValidation {
		t.Errorf("non-image: error = %v, want VALIDATION_ERROR", apiErr)
	}

	// サイズ超過（5MiB + 1）
	oversize := make([]byte, 5*1024*1024+1)
	if _, apiErr := svc.UploadAvatar(context.Background(), actor, "image/png", oversize); apiErr == nil || apiErr.Code != model.ErrCodeValidation {
		t.Errorf("oversize: error = %v, want VALIDATION_ERROR", apiErr)
	}
}

func TestSetAvatarURL_DangerousURL_Rejected(t *testing.T) {
	svc := newTestService(&mockProfileStore{}, nil)

	_, apiErr := svc.SetAvatarURL(context.Background(), actorWithRole(model.RoleUser), "http://169.254.169.254/latest/meta-data/")
	if apiErr == nil || apiErr.Code != model.ErrCodeValidation {
		t.Errorf("error = %v, want VALIDATION_ERROR", apiErr)
	}
}

func TestSetAvatarURL_PublicURL_Accepted(t *testing.T) {
	profiles := &mockProfileStore{
		updateFn: func(ctx context.Context, id string, fields store.ProfileFields) (*model.Profile, error) {
			return &model.Profile{ID: id, AvatarURL: *fields.AvatarURL}, nil
		},
	}
	svc := newTestService(profiles, nil)

	updated, apiErr := svc.SetAvatarURL(context.Background(), actorWithRole(model.RoleUser), "https://cdn.example.com/me.png")
	if apiErr != nil {
		t.Fatalf("SetAvatarURL() error = %v", apiErr)
	}
	if updated.AvatarURL != "https://cdn.example.com/me.png" {
		t.Errorf("avatar URL = %q", updated.AvatarURL)
	}
}

func TestRemoveAvatar_ClearsURLAndRemovesOwnBlob(t *testing.T) {
	var removedName string
	var gotFields store.ProfileFields

	blobs := &mockBlobStore{
		removeFn: func(ctx context.Context, name string) error {
			removedName = name
			return nil
		},
	}
	profiles := &mockProfileStore{
		updateFn: func(ctx context.Context, id string, fields store.ProfileFields) (*model.Profile, error) {
			gotFields = fields
			return &model.Profile{ID: id}, nil
		},
	}
	svc := newTestService(profiles, blobs)

	actor := actorWithRole(model.RoleUser)
	actor.AvatarURL = "http://localhost:8080/avatars/actor-1.png"

	_, apiErr := svc.RemoveAvatar(context.Background(), actor)
	if apiErr != nil {
		t.Fatalf("RemoveAvatar() error = %v", apiErr)
	}
	if removedName != "actor-1.png" {
		t.Errorf("removed blob = %q, want %q", removedName, "actor-1.png")
	}
	if gotFields.AvatarURL == nil || *gotFields.AvatarURL != "" {
		t.Errorf("avatar URL fields = %v, want cleared", gotFields.AvatarURL)
	}
}

// 外部URLのアバターを解除してもblob削除は行われないこと
func TestRemoveAvatar_ExternalURL_OnlyClearsField(t *testing.T) {
	blobs := &mockBlobStore{
		removeFn: func(ctx context.Context, name string) error {
			t.Errorf("unexpected blob removal: %s", name)
			return nil
		},
	}
	profiles := &mockProfileStore{
		updateFn: func(ctx context.Context, id string, fields store.ProfileFields) (*model.Profile, error) {
			return &model.Profile{ID: id}, nil
		},
	}
	svc := newTestService(profiles, blobs)

	actor := actorWithRole(model.RoleUser)
	actor.AvatarURL = "https://cdn.example.com/me.png"

	if _, apiErr := svc.RemoveAvatar(context.Background(), actor); apiErr != nil {
		t.Fatalf("RemoveAvatar() error = %v", apiErr)
	}
}
