package service

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/HanabLabs/FocusDock/internal/model"
	"github.com/HanabLabs/FocusDock/internal/repository"

	"github.com/rs/zerolog"
)

var (
	// ErrEmailAlreadyRegistered means an account for the email exists.
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	// ErrInvalidOrExpiredCode means no unused, unexpired code matched.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired verification code")
)

const codeTTL = 10 * time.Minute

// SignupService proves control of an email address before creating an auth
// account. Issue stores an encrypted copy of the password alongside a
// single-use code; Redeem decrypts it and creates the account and profile,
// compensating with an account delete if the profile insert fails.
type SignupService interface {
	Issue(ctx context.Context, email, password string) error
	Redeem(ctx context.Context, email, code string) (string, error)
}

type signupService struct {
	verificationRepo repository.VerificationRepository
	userRepo         repository.UserRepository
	authClient       AuthAdminClient
	emailSvc         EmailService
	key              []byte
	logger           zerolog.Logger
}

// NewSignupService creates a SignupService. encryptionKey is the dedicated
// hex-encoded secret; fallbackSecret is hashed into a key when the dedicated
// secret is unset. The same derivation must hold between Issue and Redeem or
// decryption yields garbage, so the key material has to be stable.
func NewSignupService(
	verificationRepo repository.VerificationRepository,
	userRepo repository.UserRepository,
	authClient AuthAdminClient,
	emailSvc EmailService,
	encryptionKey, fallbackSecret string,
	logger zerolog.Logger,
) SignupService {
	return &signupService{
		verificationRepo: verificationRepo,
		userRepo:         userRepo,
		authClient:       authClient,
		emailSvc:         emailSvc,
		key:              deriveKey(encryptionKey, fallbackSecret),
		logger:           logger.With().Str("service", "SignupService").Logger(),
	}
}

func (s *signupService) Issue(ctx context.Context, email, password string) error {
	existing, err := s.authClient.FindUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("check existing account: %w", err)
	}
	if existing != nil {
		return ErrEmailAlreadyRegistered
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate verification code: %w", err)
	}
	encrypted, err := encryptPassword(s.key, password)
	if err != nil {
		return fmt.Errorf("encrypt password: %w", err)
	}

	vc := &model.VerificationCode{
		Email:        email,
		PasswordHash: encrypted,
		Code:         code,
		ExpiresAt:    time.Now().Add(codeTTL),
	}
	if err := s.verificationRepo.Create(ctx, vc); err != nil {
		return err
	}

	// Delivery is best effort: the code stays redeemable even when the email
	// bounces, and the user can request a resend.
	if err := s.emailSvc.SendVerificationCode(ctx, email, code); err != nil {
		s.logger.Warn().Err(err).Str("email", email).Msg("Failed to send verification code email")
	}
	return nil
}

func (s *signupService) Redeem(ctx context.Context, email, code string) (string, error) {
	vc, err := s.verificationRepo.FindValid(ctx, email, code, time.Now())
	if err != nil {
		return "", err
	}
	if vc == nil {
		return "", ErrInvalidOrExpiredCode
	}

	password, err := decryptPassword(s.key, vc.PasswordHash)
	if err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("Failed to decrypt stored password; encryption key may have rotated")
		return "", fmt.Errorf("decrypt stored password: %w", err)
	}

	user, err := s.authClient.CreateUser(ctx, email, password)
	if err != nil {
		return "", fmt.Errorf("create auth account: %w", err)
	}

	if err := s.userRepo.CreateProfile(ctx, user.ID, email); err != nil {
		// No transaction spans the auth store and the profile store, so a
		// failed profile insert needs an explicit compensating delete.
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("Profile creation failed; rolling back auth account")
		if delErr := s.authClient.DeleteUser(ctx, user.ID); delErr != nil {
			s.logger.Error().Err(delErr).Str("user_id", user.ID).Msg("Failed to delete orphaned auth account")
		}
		return "", fmt.Errorf("create user profile: %w", err)
	}

	if err := s.verificationRepo.MarkUsed(ctx, vc.ID); err != nil {
		s.logger.Error().Err(err).Str("code_id", vc.ID).Msg("Failed to mark verification code used")
	}
	return user.ID, nil
}

// generateCode returns a 6-digit code uniform in [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// deriveKey produces the 32-byte AES key: the dedicated secret decoded as
// hex when configured, otherwise a SHA-256 of the fallback secret.
func deriveKey(encryptionKey, fallbackSecret string) []byte {
	if encryptionKey != "" {
		if raw, err := hex.DecodeString(encryptionKey); err == nil && len(raw) >= 32 {
			return raw[:32]
		}
		sum := sha256.Sum256([]byte(encryptionKey))
		return sum[:]
	}
	sum := sha256.Sum256([]byte(fallbackSecret))
	return sum[:]
}

// encryptPassword encrypts with AES-256-CBC under a fresh IV and returns
// hex(iv):hex(ciphertext).
func encryptPassword(key []byte, password string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	plaintext := pkcs7Pad([]byte(password), aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

func decryptPassword(key []byte, stored string) (string, error) {
	parts := strings.SplitN(stored, ":", 2)
	if len(parts) != 2 {
		return "", errors.New("malformed encrypted password")
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aes.BlockSize {
		return "", errors.New("malformed encryption IV")
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", errors.New("malformed ciphertext")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, errors.New("invalid padding")
	}
	for i := len(data) - padding; i < len(data); i++ {
		if int(data[i]) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
