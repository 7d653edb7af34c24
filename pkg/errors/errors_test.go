package errors

import (
	"fmt"
	"testing"
)

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("send message: %w", ErrNotParticipant)

	if !IsForbidden(wrapped) {
		t.Fatal("IsForbidden should match a wrapped forbidden error")
	}
	if IsNotFound(wrapped) {
		t.Fatal("IsNotFound should not match a forbidden error")
	}
	if GetCode(wrapped) != CodeForbidden {
		t.Fatalf("GetCode = %d", GetCode(wrapped))
	}
	if GetMessage(wrapped) != "不是会话成员" {
		t.Fatalf("GetMessage = %q", GetMessage(wrapped))
	}
}

func TestIsMatchesPredefined(t *testing.T) {
	if !Is(fmt.Errorf("x: %w", ErrEmptyMessage), ErrEmptyMessage) {
		t.Fatal("errors.Is should match the predefined error")
	}
	if Is(Validation("other"), ErrEmptyMessage) {
		t.Fatal("a different validation message should not match")
	}
	if !Is(Validation("other"), &AppError{Code: CodeValidation}) {
		t.Fatal("a bare code target should match any message")
	}
}

func TestGetCodeForPlainError(t *testing.T) {
	if GetCode(fmt.Errorf("boom")) != CodeInternal {
		t.Fatal("plain errors map to internal")
	}
	if !IsConflict(Duplicate("角色名称")) {
		t.Fatal("Duplicate is a conflict")
	}
}
