package user

import (
	"testing"
	"time"
)

func TestTokenGenerator_MakeVerifyToken(t *testing.T) {
	timeout := 3 * 24 * time.Hour
	gen := NewTokenGenerator("masomo.core.user.test", "secret", timeout)

	now := time.Now()
	acc := Account{
		ID:        "8a0c1bd2-1cb1-4b59-9a4e-0f1a5b1e2f10",
		Email:     "t@test.test",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: now,
	}
	_ = acc.SetPassword("pwd")

	validToken := gen.MakeToken(acc)

	// generate an expired token
	dayLate := timeout + (24 * time.Hour)
	gen.nowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken := gen.MakeToken(acc)
	gen.nowFunc = time.Now // reset

	confirmedAt := now.Add(time.Minute)
	confirmed := acc
	confirmed.ConfirmedAt = &confirmedAt

	tests := []struct {
		name    string
		acc     Account
		token   string
		wantErr error
	}{
		{name: "no token", acc: acc, wantErr: ErrInvalidToken},
		{name: "invalid parts len", acc: acc, token: "lmaooolol", wantErr: ErrInvalidToken},
		{name: "invalid base32", acc: acc, token: "hahaha-sigsig-sig", wantErr: ErrInvalidToken},
		{name: "invalid timestamp", acc: acc, token: "NRXWY-sigsig-sig", wantErr: ErrInvalidToken},
		{name: "invalid token", acc: acc, token: "HE4TS-sigsig-sig", wantErr: ErrInvalidToken},
		{name: "expired token", acc: acc, token: expiredToken, wantErr: ErrTokenExpired},
		{name: "used token (account confirmed since)", acc: confirmed, token: validToken, wantErr: ErrInvalidToken},
		{name: "valid token", acc: acc, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := gen.VerifyToken(tt.acc, tt.token); err != tt.wantErr {
				t.Errorf("VerifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeDecodeUID(t *testing.T) {
	acc := Account{ID: "8a0c1bd2-1cb1-4b59-9a4e-0f1a5b1e2f10"}
	id, err := DecodeUID(EncodeUID(acc))
	if err != nil {
		t.Fatalf("DecodeUID() error = %v", err)
	}
	if id != acc.ID {
		t.Errorf("DecodeUID() = %q; want %q", id, acc.ID)
	}
	for _, uid := range []string{"%%%", EncodeUID(Account{ID: "unknown"}), EncodeUID(Account{ID: "1; DROP TABLE accounts"})} {
		if _, err = DecodeUID(uid); err != ErrInvalidToken {
			t.Errorf("DecodeUID(%q) error = %v; want %v", uid, err, ErrInvalidToken)
		}
	}
}
