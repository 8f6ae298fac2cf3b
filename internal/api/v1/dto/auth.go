package dto

// SignupRequest starts the verification-code signup flow.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// VerifyRequest redeems a verification code and creates the account.
type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// VerifyResponse is returned after a successful redemption.
type VerifyResponse struct {
	UserID string `json:"user_id"`
}
