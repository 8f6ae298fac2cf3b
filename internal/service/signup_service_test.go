package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestSignupService(vr *fakeVerificationRepo, ur *fakeUserRepo, ac *fakeAuthClient, es *fakeEmailService) SignupService {
	return NewSignupService(vr, ur, ac, es, "", "service-role-key", zerolog.Nop())
}

func TestIssueStoresRedeemableCode(t *testing.T) {
	vr := &fakeVerificationRepo{}
	ur := newFakeUserRepo()
	ac := newFakeAuthClient()
	es := &fakeEmailService{}
	svc := newTestSignupService(vr, ur, ac, es)
	ctx := context.Background()

	if err := svc.Issue(ctx, "new@example.com", "hunter2-hunter2"); err != nil {
		t.Fatal(err)
	}
	if len(vr.codes) != 1 {
		t.Fatalf("stored codes = %d, want 1", len(vr.codes))
	}
	code := vr.codes[0]
	if n, err := strconv.Atoi(code.Code); err != nil || n < 100000 || n > 999999 {
		t.Fatalf("code %q is not a 6-digit number", code.Code)
	}
	if code.PasswordHash == "hunter2-hunter2" {
		t.Fatal("password stored in the clear")
	}
	if len(es.sent) != 1 || es.sent[0] != code.Code {
		t.Fatalf("emailed codes = %v, want the stored code", es.sent)
	}

	userID, err := svc.Redeem(ctx, "new@example.com", code.Code)
	if err != nil {
		t.Fatal(err)
	}
	if userID == "" {
		t.Fatal("empty user id after redeem")
	}
	if len(ur.createdProfiles) != 1 {
		t.Fatalf("created profiles = %d, want 1", len(ur.createdProfiles))
	}
}

func TestIssueRejectsExistingAccount(t *testing.T) {
	ac := newFakeAuthClient()
	ac.existing["taken@example.com"] = &AuthUser{ID: "u9", Email: "taken@example.com"}
	svc := newTestSignupService(&fakeVerificationRepo{}, newFakeUserRepo(), ac, &fakeEmailService{})

	err := svc.Issue(context.Background(), "taken@example.com", "password123")
	if !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Fatalf("err = %v, want ErrEmailAlreadyRegistered", err)
	}
}

func TestIssueSurvivesEmailFailure(t *testing.T) {
	vr := &fakeVerificationRepo{}
	svc := newTestSignupService(vr, newFakeUserRepo(), newFakeAuthClient(), &fakeEmailService{sendErr: errors.New("bounce")})

	if err := svc.Issue(context.Background(), "new@example.com", "password123"); err != nil {
		t.Fatalf("issue failed on email error: %v", err)
	}
	if len(vr.codes) != 1 {
		t.Fatal("code not stored when email delivery failed")
	}
}

func TestRedeemIsSingleUse(t *testing.T) {
	vr := &fakeVerificationRepo{}
	svc := newTestSignupService(vr, newFakeUserRepo(), newFakeAuthClient(), &fakeEmailService{})
	ctx := context.Background()

	if err := svc.Issue(ctx, "new@example.com", "password123"); err != nil {
		t.Fatal(err)
	}
	code := vr.codes[0].Code
	if _, err := svc.Redeem(ctx, "new@example.com", code); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Redeem(ctx, "new@example.com", code); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("second redeem err = %v, want ErrInvalidOrExpiredCode", err)
	}
}

func TestRedeemRejectsExpiredCode(t *testing.T) {
	vr := &fakeVerificationRepo{}
	svc := newTestSignupService(vr, newFakeUserRepo(), newFakeAuthClient(), &fakeEmailService{})
	ctx := context.Background()

	if err := svc.Issue(ctx, "new@example.com", "password123"); err != nil {
		t.Fatal(err)
	}
	vr.codes[0].ExpiresAt = time.Now().Add(-time.Minute)

	_, err := svc.Redeem(ctx, "new@example.com", vr.codes[0].Code)
	if !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("err = %v, want ErrInvalidOrExpiredCode", err)
	}
}

func TestRedeemCompensatesFailedProfileInsert(t *testing.T) {
	vr := &fakeVerificationRepo{}
	ur := newFakeUserRepo()
	ur.createProfileErr = errors.New("profile insert failed")
	ac := newFakeAuthClient()
	svc := newTestSignupService(vr, ur, ac, &fakeEmailService{})
	ctx := context.Background()

	if err := svc.Issue(ctx, "new@example.com", "password123"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Redeem(ctx, "new@example.com", vr.codes[0].Code); err == nil {
		t.Fatal("expected redeem to fail")
	}
	if len(ac.deleted) != 1 || ac.deleted[0] != ac.created[0].ID {
		t.Fatalf("deleted accounts = %v, want the orphaned account", ac.deleted)
	}
	if vr.codes[0].Used {
		t.Fatal("code marked used although signup failed")
	}
}

func TestPasswordCryptoRoundTrip(t *testing.T) {
	key := deriveKey("", "service-role-key")

	for _, pw := range []string{"a", "sixteen-bytes!!!", "pässwörd with ümlauts and length"} {
		stored, err := encryptPassword(key, pw)
		if err != nil {
			t.Fatal(err)
		}
		got, err := decryptPassword(key, stored)
		if err != nil {
			t.Fatal(err)
		}
		if got != pw {
			t.Fatalf("round trip = %q, want %q", got, pw)
		}
	}
}

func TestEncryptPasswordUsesFreshIV(t *testing.T) {
	key := deriveKey("", "service-role-key")
	a, err := encryptPassword(key, "same-password")
	if err != nil {
		t.Fatal(err)
	}
	b, err := encryptPassword(key, "same-password")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("identical ciphertexts for the same plaintext")
	}
}

func TestDeriveKey(t *testing.T) {
	hexKey := "000102030405060708090a0b0c0d0e0f000102030405060708090a0b0c0d0e0f"
	key := deriveKey(hexKey, "fallback")
	if len(key) != 32 {
		t.Fatalf("key length = %d, want 32", len(key))
	}
	if key[0] != 0x00 || key[1] != 0x01 {
		t.Fatal("hex key not decoded as raw bytes")
	}

	fallback := deriveKey("", "fallback")
	sum := sha256.Sum256([]byte("fallback"))
	if !bytes.Equal(fallback, sum[:]) {
		t.Fatal("fallback key is not SHA-256 of the secret")
	}
}

func TestDecryptPasswordRejectsMalformedInput(t *testing.T) {
	key := deriveKey("", "service-role-key")
	for _, stored := range []string{"", "no-separator", "abcd:zzzz", "abcd:"} {
		if _, err := decryptPassword(key, stored); err == nil {
			t.Fatalf("decrypt(%q) succeeded, want error", stored)
		}
	}
}
