package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/anonto42/lost-found/backend/internal/handoff"
	"github.com/anonto42/lost-found/backend/internal/models"
	"github.com/anonto42/lost-found/backend/internal/notify"
	"github.com/anonto42/lost-found/backend/internal/repositories"
)

const (
	tokenTTL = 72 * time.Hour
	otpTTL   = 10 * time.Minute
	otpCost  = 10
)

// IDTokenVerifier is satisfied by *auth.Client.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	userRepository repositories.UserRepository
	firebaseAuth   IDTokenVerifier
	mailer         notify.Mailer
	jwtSecret      string
	otpHasher      handoff.Hasher
	log            *slog.Logger
}

// NewAuthHandler creates a new AuthHandler. firebaseAuth may be nil, which
// disables /firebase-login.
func NewAuthHandler(userRepo repositories.UserRepository, firebaseAuth IDTokenVerifier, mailer notify.Mailer, jwtSecret string, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userRepository: userRepo,
		firebaseAuth:   firebaseAuth,
		mailer:         mailer,
		jwtSecret:      jwtSecret,
		otpHasher:      handoff.NewHasher(otpCost),
		log:            log,
	}
}

// RegisterAuthRoutes registers the unauthenticated login routes
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/signup", h.Signup)
	g.POST("/signin", h.SignIn)
	g.POST("/firebase-login", h.FirebaseLogin)
}

// RegisterEmailRoutes registers email verification, which needs a session
func (h *AuthHandler) RegisterEmailRoutes(g *echo.Group) {
	g.POST("/auth/email/otp", h.SendEmailOTP)
	g.POST("/auth/email/verify", h.VerifyEmail)
}

// Signup handles local user registration with email and password
func (h *AuthHandler) Signup(c echo.Context) error {
	var req models.CreateLocalUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	// Check if user with this email already exists
	if _, err := h.userRepository.GetUserByEmail(req.Email); err == nil {
		return apiError(http.StatusConflict, "conflict", "User with this email already registered")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return respondError(fmt.Errorf("hash password: %w", err))
	}

	user := &models.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hashedPassword),
	}
	if err := h.userRepository.CreateUser(user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return apiError(http.StatusConflict, "conflict", "User with this email already registered")
		}
		return respondError(err)
	}

	token, err := h.generateJWT(user)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"token": token, "user": user})
}

// SignIn handles local user authentication with email and password
func (h *AuthHandler) SignIn(c echo.Context) error {
	var req models.SignInRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.userRepository.GetUserByEmail(req.Email)
	if err != nil || user.Password == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}

	token, err := h.generateJWT(user)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"token": token})
}

// FirebaseLogin verifies a Firebase ID token and issues a local JWT,
// creating or linking the local user as needed.
func (h *AuthHandler) FirebaseLogin(c echo.Context) error {
	if h.firebaseAuth == nil {
		return apiError(http.StatusServiceUnavailable, "internal", "Firebase login is not configured")
	}
	var req models.FirebaseLoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := h.firebaseAuth.VerifyIDToken(c.Request().Context(), req.IDToken)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Firebase ID token")
	}

	firebaseUID := token.UID
	email, _ := token.Claims["email"].(string)
	name, _ := token.Claims["name"].(string)
	emailVerified, _ := token.Claims["email_verified"].(bool)

	user, err := h.userRepository.GetUserByFirebaseUID(firebaseUID)
	switch {
	case err == nil:
		// Known user, refresh details
		if email != "" {
			user.Email = email
		}
		if name != "" {
			user.Name = name
		}
		user.EmailVerified = user.EmailVerified || emailVerified
		if err := h.userRepository.UpdateUser(user); err != nil {
			return respondError(err)
		}
	case errors.Is(err, repositories.ErrNotFound):
		user, err = h.linkOrCreate(firebaseUID, email, name, emailVerified)
		if err != nil {
			return respondError(err)
		}
	default:
		return respondError(err)
	}

	localJWT, err := h.generateJWT(user)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"token": localJWT})
}

func (h *AuthHandler) linkOrCreate(firebaseUID, email, name string, emailVerified bool) (*models.User, error) {
	user, err := h.userRepository.GetUserByEmail(email)
	if err == nil {
		user.FirebaseUID = &firebaseUID
		user.EmailVerified = user.EmailVerified || emailVerified
		return user, h.userRepository.UpdateUser(user)
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}
	user = &models.User{
		Name:          name,
		Email:         email,
		FirebaseUID:   &firebaseUID,
		EmailVerified: emailVerified,
	}
	return user, h.userRepository.CreateUser(user)
}

// SendEmailOTP stores a fresh one-time code and mails it. When mailing
// fails the stored code stays valid and the caller may request another.
func (h *AuthHandler) SendEmailOTP(c echo.Context) error {
	user, err := h.userRepository.GetUserByID(getUserIDFromContext(c))
	if err != nil {
		return respondError(err)
	}
	if user.EmailVerified {
		return c.JSON(http.StatusOK, echo.Map{"email_verified": true})
	}

	code, err := handoff.GenerateCode()
	if err != nil {
		return respondError(err)
	}
	hash, err := h.otpHasher.Hash(code)
	if err != nil {
		return respondError(err)
	}
	expires := time.Now().UTC().Add(otpTTL)
	if err := h.userRepository.SetEmailOTP(user.ID, hash, expires); err != nil {
		return respondError(err)
	}

	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(otpTTL.Minutes()))
	if err := h.mailer.Send(c.Request().Context(), user.Email, "Verify your email", body); err != nil {
		h.log.Warn("verification email not sent", "user_id", user.ID, "error", err)
		return respondError(fmt.Errorf("%w: %v", errMailFailed, err))
	}
	return c.JSON(http.StatusAccepted, echo.Map{"sent": true, "expires_at": expires})
}

func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req models.VerifyEmailRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	user, err := h.userRepository.GetUserByID(getUserIDFromContext(c))
	if err != nil {
		return respondError(err)
	}
	if user.EmailVerified {
		return c.JSON(http.StatusOK, echo.Map{"email_verified": true})
	}
	if time.Now().After(user.EmailOTPUntil) || !h.otpHasher.Verify(req.Code, user.EmailOTPHash) {
		return apiError(http.StatusBadRequest, "validation_failed", "Invalid or expired code")
	}
	if err := h.userRepository.MarkEmailVerified(user.ID); err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"email_verified": true})
}

// generateJWT generates a JWT token for a given user
func (h *AuthHandler) generateJWT(user *models.User) (string, error) {
	claims := &models.JwtCustomClaims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return SignToken(h.jwtSecret, claims)
}

// SignToken signs claims with HS256.
func SignToken(secret string, claims *models.JwtCustomClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
