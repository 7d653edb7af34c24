package auth

import (
	"testing"
	"time"

	"github.com/opshub/pkg/config"
)

func newTestManager() *JWTManager {
	return NewJWTManager(&config.JWTConfig{Secret: "test-secret", Issuer: "opshub", Expire: 60})
}

func TestGenerateAndParse(t *testing.T) {
	m := newTestManager()
	token, err := m.GenerateToken(42, "alice")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := m.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "alice" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseExpired(t *testing.T) {
	m := newTestManager()
	base := time.Now()
	m.now = func() time.Time { return base }
	token, err := m.GenerateToken(1, "bob")
	if err != nil {
		t.Fatal(err)
	}

	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := m.ParseToken(token); err != ErrTokenExpired {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestParseRejectsForeignSecret(t *testing.T) {
	token, _ := newTestManager().GenerateToken(1, "bob")
	other := NewJWTManager(&config.JWTConfig{Secret: "other", Expire: 60})
	if _, err := other.ParseToken(token); err != ErrTokenInvalid {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
	if _, err := other.ParseToken("not-a-token"); err != ErrTokenMalformed {
		t.Fatalf("err = %v, want ErrTokenMalformed", err)
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("pa55")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword("pa55", hash) {
		t.Fatal("matching password rejected")
	}
	if CheckPassword("wrong", hash) {
		t.Fatal("wrong password accepted")
	}
}
