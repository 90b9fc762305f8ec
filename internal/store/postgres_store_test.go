package store

import (
	"errors"
	"testing"

	"github.com/lib/pq"
)

// 各Postgresストアがストアインターフェースを満たすことを検証
func TestPostgresStores_ImplementInterfaces(t *testing.T) {
	var _ TodoStore = (*PostgresTodoStore)(nil)
	var _ ProfileStore = (*PostgresProfileStore)(nil)
	var _ IdentityStore = (*PostgresIdentityStore)(nil)
	var _ SessionStore = (*PostgresSessionStore)(nil)
	var _ ChangeFeed = (*Listener)(nil)
}

func TestNewPostgresTodoStore_Initializes(t *testing.T) {
	if NewPostgresTodoStore(nil) == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestNewPostgresProfileStore_Initializes(t *testing.T) {
	if NewPostgresProfileStore(nil) == nil {
		t.Fatal("expected non-nil store")
	}
}

// 一意制約違反の判定を検証
func TestIsUniqueViolation(t *testing.T) {
	pqErr := &pq.Error{Code: pq.ErrorCode("23505")}
	if !isUniqueViolation(pqErr) {
		t.Error("expected unique violation to be detected")
	}

	wrapped := errors.Join(errors.New("insert failed"), pqErr)
	if !isUniqueViolation(wrapped) {
		t.Error("expected wrapped unique violation to be detected")
	}

	other := &pq.Error{Code: pq.ErrorCode("42601")}
	if isUniqueViolation(other) {
		t.Error("syntax error must not be treated as unique violation")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Error("plain error must not be treated as unique violation")
	}
}

// ErrNoRowsとErrConflictが区別可能なセンチネルであることを検証
func TestSentinelErrors_Distinct(t *testing.T) {
	if errors.Is(ErrNoRows, ErrConflict) {
		t.Error("ErrNoRows and ErrConflict must be distinct")
	}
}
