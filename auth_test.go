package main

import (
	"testing"
)

func TestAdminLoginAndValidate(t *testing.T) {
	auth, err := NewAdminAuth("hunter2", nil)
	if err != nil {
		t.Fatal(err)
	}

	token, err := auth.Login("hunter2", "127.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := auth.ValidateToken(token); err != nil {
		t.Errorf("valid token rejected: %v", err)
	}
}

func TestAdminLoginWrongPassword(t *testing.T) {
	auth, err := NewAdminAuth("hunter2", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := auth.Login("wrong", "127.0.0.1"); err == nil {
		t.Error("expected error for wrong password")
	}
}

func TestValidateGarbageToken(t *testing.T) {
	auth, err := NewAdminAuth("hunter2", nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if err := auth.ValidateToken(tok); err == nil {
			t.Errorf("token %q accepted", tok)
		}
	}
}

func TestLoginRateLimit(t *testing.T) {
	auth, err := NewAdminAuth("hunter2", nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < maxLoginAttempts; i++ {
		auth.Login("wrong", "10.0.0.1")
	}
	if _, err := auth.Login("hunter2", "10.0.0.1"); err == nil {
		t.Error("expected rate limit after repeated attempts")
	}
	// A different IP is unaffected
	if _, err := auth.Login("hunter2", "10.0.0.2"); err != nil {
		t.Errorf("unrelated IP rate-limited: %v", err)
	}
}

func TestSecretPersistedInSettings(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	a1, err := NewAdminAuth("hunter2", db)
	if err != nil {
		t.Fatal(err)
	}
	token, err := a1.Login("hunter2", "127.0.0.1")
	if err != nil {
		t.Fatal(err)
	}

	// A second auth instance over the same database shares the secret,
	// so tokens survive a restart
	a2, err := NewAdminAuth("hunter2", db)
	if err != nil {
		t.Fatal(err)
	}
	if err := a2.ValidateToken(token); err != nil {
		t.Errorf("token rejected after restart: %v", err)
	}
}
