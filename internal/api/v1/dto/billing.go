package dto

// PaymentIntentRequest starts a purchase. Amount is in the smallest
// currency unit and only applies to one-time plans (lifetime, donate).
type PaymentIntentRequest struct {
	PlanType string `json:"plan_type" validate:"required,oneof=monthly lifetime donate"`
	Amount   int64  `json:"amount" validate:"omitempty,gt=0"`
}

// PaymentIntentResponse carries the client secret used to confirm the
// payment in the browser.
type PaymentIntentResponse struct {
	ClientSecret   string `json:"client_secret"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}
