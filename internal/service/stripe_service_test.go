package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HanabLabs/FocusDock/internal/config"
	"github.com/HanabLabs/FocusDock/internal/model"

	"github.com/rs/zerolog"
)

const testWebhookSecret = "whsec_test_secret"

func newStripeServiceForTest(userRepo *fakeUserRepo, webhookRepo *fakeWebhookEventRepo) *StripeService {
	cfg := &config.Config{
		StripeSecretKey:      "sk_test_xyz",
		StripeWebhookSecret:  testWebhookSecret,
		StripeMonthlyPriceID: "price_monthly",
	}
	entitlement := NewEntitlementService(userRepo, zerolog.Nop())
	return NewStripeService(cfg, userRepo, webhookRepo, entitlement, nopRecorder{}, zerolog.Nop())
}

// stripeSignature builds a Stripe-Signature header for the payload, the same
// t=...,v1=... scheme the verification library checks.
func stripeSignature(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(t *testing.T, svc *StripeService, payload, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	svc.HandleWebhook(rec, req)
	return rec
}

func lifetimeIntentEvent(eventID string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"type": "payment_intent.succeeded",
		"data": {
			"object": {
				"id": "pi_123",
				"object": "payment_intent",
				"metadata": {"supabase_user_id": "u1", "plan_type": "lifetime"}
			}
		}
	}`, eventID)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	userRepo := newFakeUserRepo(testUser(model.TierFree))
	webhookRepo := newFakeWebhookEventRepo()
	svc := newStripeServiceForTest(userRepo, webhookRepo)

	payload := lifetimeIntentEvent("evt_1")
	rec := postWebhook(t, svc, payload, stripeSignature([]byte(payload), "wrong-secret", time.Now()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if userRepo.tierWrites != 0 {
		t.Fatal("tier changed despite invalid signature")
	}
	if len(webhookRepo.seen) != 0 {
		t.Fatal("event recorded despite invalid signature")
	}
}

func TestHandleWebhookLifetimePurchase(t *testing.T) {
	userRepo := newFakeUserRepo(testUser(model.TierFree))
	svc := newStripeServiceForTest(userRepo, newFakeWebhookEventRepo())

	payload := lifetimeIntentEvent("evt_1")
	rec := postWebhook(t, svc, payload, stripeSignature([]byte(payload), testWebhookSecret, time.Now()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if got := userRepo.users["u1"].SubscriptionTier; got != model.TierLifetime {
		t.Fatalf("tier = %s, want lifetime", got)
	}
}

func TestHandleWebhookDuplicateDeliveryIsNoOp(t *testing.T) {
	userRepo := newFakeUserRepo(testUser(model.TierFree))
	svc := newStripeServiceForTest(userRepo, newFakeWebhookEventRepo())
	payload := lifetimeIntentEvent("evt_1")

	for i := 0; i < 2; i++ {
		rec := postWebhook(t, svc, payload, stripeSignature([]byte(payload), testWebhookSecret, time.Now()))
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d status = %d, want 200", i, rec.Code)
		}
	}
	if userRepo.tierWrites != 1 {
		t.Fatalf("tierWrites = %d, want 1 (duplicate must not reapply)", userRepo.tierWrites)
	}
}

func TestHandleWebhookIgnoresNonLifetimeIntents(t *testing.T) {
	userRepo := newFakeUserRepo(testUser(model.TierFree))
	svc := newStripeServiceForTest(userRepo, newFakeWebhookEventRepo())

	payload := `{
		"id": "evt_2",
		"type": "payment_intent.succeeded",
		"data": {
			"object": {
				"id": "pi_456",
				"object": "payment_intent",
				"metadata": {"supabase_user_id": "u1", "plan_type": "donate"}
			}
		}
	}`
	rec := postWebhook(t, svc, payload, stripeSignature([]byte(payload), testWebhookSecret, time.Now()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if userRepo.tierWrites != 0 {
		t.Fatal("donation changed the tier")
	}
}

func TestHandleWebhookSubscriptionDeleted(t *testing.T) {
	userRepo := newFakeUserRepo(testUser(model.TierMonthly))
	svc := newStripeServiceForTest(userRepo, newFakeWebhookEventRepo())

	payload := `{
		"id": "evt_3",
		"type": "customer.subscription.deleted",
		"data": {
			"object": {
				"id": "sub_123",
				"object": "subscription",
				"metadata": {"supabase_user_id": "u1"}
			}
		}
	}`
	rec := postWebhook(t, svc, payload, stripeSignature([]byte(payload), testWebhookSecret, time.Now()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := userRepo.users["u1"].SubscriptionTier; got != model.TierFree {
		t.Fatalf("tier = %s, want free after cancellation", got)
	}
}

func TestHandleWebhookAcceptsOtherAPIVersions(t *testing.T) {
	// The endpoint version is pinned in the Stripe dashboard, not in this
	// binary; a delivery from an older (or absent) API version must still be
	// dispatched as long as the signature holds.
	userRepo := newFakeUserRepo(testUser(model.TierFree))
	svc := newStripeServiceForTest(userRepo, newFakeWebhookEventRepo())

	payload := `{
		"id": "evt_ver",
		"api_version": "2023-10-16",
		"type": "payment_intent.succeeded",
		"data": {
			"object": {
				"id": "pi_789",
				"object": "payment_intent",
				"metadata": {"supabase_user_id": "u1", "plan_type": "lifetime"}
			}
		}
	}`
	rec := postWebhook(t, svc, payload, stripeSignature([]byte(payload), testWebhookSecret, time.Now()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if got := userRepo.users["u1"].SubscriptionTier; got != model.TierLifetime {
		t.Fatalf("tier = %s, want lifetime", got)
	}
}

func TestHandleWebhookAcknowledgesUnknownEvents(t *testing.T) {
	userRepo := newFakeUserRepo(testUser(model.TierFree))
	svc := newStripeServiceForTest(userRepo, newFakeWebhookEventRepo())

	payload := `{"id": "evt_4", "type": "charge.refunded", "data": {"object": {"id": "ch_1", "object": "charge"}}}`
	rec := postWebhook(t, svc, payload, stripeSignature([]byte(payload), testWebhookSecret, time.Now()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 so Stripe stops redelivering", rec.Code)
	}
}

func TestHandleWebhookFailureClearsDedupRecord(t *testing.T) {
	// No user matches the metadata, so the dispatch fails; the redelivery
	// must not be swallowed as a duplicate.
	userRepo := newFakeUserRepo()
	webhookRepo := newFakeWebhookEventRepo()
	svc := newStripeServiceForTest(userRepo, webhookRepo)

	payload := `{
		"id": "evt_5",
		"type": "customer.subscription.deleted",
		"data": {
			"object": {
				"id": "sub_999",
				"object": "subscription",
				"metadata": {"supabase_user_id": "ghost"}
			}
		}
	}`
	rec := postWebhook(t, svc, payload, stripeSignature([]byte(payload), testWebhookSecret, time.Now()))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if len(webhookRepo.seen) != 0 {
		t.Fatal("failed event left in the dedup table")
	}
}
