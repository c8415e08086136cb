package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/febriansr/authgate/internal/domain"
	"github.com/febriansr/authgate/internal/email"
	"github.com/febriansr/authgate/internal/metrics"
	"github.com/febriansr/authgate/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionTTL       = 7 * 24 * time.Hour
	sessionUpdateAge = 24 * time.Hour
	cookieCacheTTL   = 5 * time.Minute
	verificationTTL  = 24 * time.Hour
)

// dummyHash is compared against when the email is unknown, so that a
// sign-in with an unknown email costs the same as one with a wrong
// password and the two stay indistinguishable.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

type AuthUsecase struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	tokens   repository.VerificationTokenRepository
	email    email.Sender
	logger   *slog.Logger
	cacheKey []byte
	baseURL  string
}

func NewAuthUsecase(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens repository.VerificationTokenRepository,
	emailSender email.Sender,
	cacheKey []byte,
	baseURL string,
	logger *slog.Logger,
) *AuthUsecase {
	return &AuthUsecase{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		email:    emailSender,
		logger:   logger.With("component", "auth_usecase"),
		cacheKey: cacheKey,
		baseURL:  baseURL,
	}
}

// AuthSession pairs a stored session with the raw token that goes into
// the cookie. The raw token exists only here and in the client.
type AuthSession struct {
	Session *domain.Session
	User    *domain.User
	Token   string
}

// Register creates an unverified user and kicks off email verification.
// A failed send does not roll the account back; the client can resend.
func (u *AuthUsecase) Register(ctx context.Context, emailAddr, password, name string) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := u.users.Create(ctx, repository.CreateUserParams{
		Email:        emailAddr,
		Name:         name,
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	metrics.SignUpsTotal.Inc()

	if err := u.sendVerification(ctx, user); err != nil {
		u.logger.WarnContext(ctx, "verification email failed, account created anyway",
			"user_id", user.ID, "error", err)
		metrics.VerificationEmailsTotal.WithLabelValues("error").Inc()
	} else {
		metrics.VerificationEmailsTotal.WithLabelValues("sent").Inc()
	}

	return user, nil
}

// ResendVerification regenerates a token and resends the email.
func (u *AuthUsecase) ResendVerification(ctx context.Context, emailAddr string) error {
	user, err := u.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("find user: %w", err)
	}
	if user.EmailVerified {
		return domain.ErrAlreadyVerified
	}

	if err := u.sendVerification(ctx, user); err != nil {
		metrics.VerificationEmailsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("resend verification: %w", err)
	}
	metrics.VerificationEmailsTotal.WithLabelValues("sent").Inc()
	return nil
}

// VerifyEmail claims the token and flips the user's verified flag. The
// claim is atomic in the store: a replayed token fails here.
func (u *AuthUsecase) VerifyEmail(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return domain.ErrTokenInvalid
	}
	userID, err := u.tokens.Consume(ctx, hashToken(rawToken), time.Now())
	if err != nil {
		if errors.Is(err, domain.ErrTokenInvalid) {
			return domain.ErrTokenInvalid
		}
		return fmt.Errorf("consume verification token: %w", err)
	}
	metrics.EmailsVerifiedTotal.Inc()
	u.logger.InfoContext(ctx, "email verified", "user_id", userID)
	return nil
}

// Authenticate checks credentials and mints a session. Unknown email and
// wrong password are indistinguishable to the caller. The verified-email
// check runs before the session row is written, never after.
func (u *AuthUsecase) Authenticate(ctx context.Context, emailAddr, password string) (*AuthSession, error) {
	user, err := u.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			metrics.SignInsTotal.WithLabelValues("invalid_credentials").Inc()
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		metrics.SignInsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	if !user.EmailVerified {
		metrics.SignInsTotal.WithLabelValues("email_not_verified").Inc()
		return nil, domain.ErrEmailNotVerified
	}

	rawToken, err := newRawToken()
	if err != nil {
		return nil, err
	}

	session, err := u.sessions.Create(ctx, user.ID, hashToken(rawToken), time.Now().Add(sessionTTL))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	metrics.SignInsTotal.WithLabelValues("success").Inc()
	return &AuthSession{Session: session, User: user, Token: rawToken}, nil
}

// Invalidate deletes the session behind the raw cookie token. Callers
// treat domain.ErrSessionNotFound as success for idempotent logout.
func (u *AuthUsecase) Invalidate(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return domain.ErrSessionNotFound
	}
	if err := u.sessions.DeleteByTokenHash(ctx, hashToken(rawToken)); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ResolveSession turns cookie material into a Session, or nil when the
// request carries no valid session — a normal outcome, not an error.
// A fresh cache token short-circuits the store; otherwise the store is
// authoritative, with a sliding renewal once the last one is older than
// sessionUpdateAge. fromCache tells the caller whether to re-mint the
// cache cookie.
func (u *AuthUsecase) ResolveSession(ctx context.Context, rawToken, cacheToken string) (session *domain.Session, fromCache bool, err error) {
	if rawToken == "" {
		metrics.SessionsResolvedTotal.WithLabelValues("absent").Inc()
		return nil, false, nil
	}

	if cacheToken != "" {
		if s := u.sessionFromCache(cacheToken, rawToken); s != nil {
			metrics.SessionsResolvedTotal.WithLabelValues("cache").Inc()
			return s, true, nil
		}
	}

	s, err := u.sessions.FindByTokenHash(ctx, hashToken(rawToken))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			metrics.SessionsResolvedTotal.WithLabelValues("absent").Inc()
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find session: %w", err)
	}

	now := time.Now()
	if s.Expired(now) {
		metrics.SessionsResolvedTotal.WithLabelValues("absent").Inc()
		return nil, false, nil
	}

	if now.Sub(s.UpdatedAt) > sessionUpdateAge {
		newExpiry := now.Add(sessionTTL)
		if err := u.sessions.Renew(ctx, s.ID, newExpiry); err != nil {
			// Renewal is best-effort; the session is still valid as stored.
			u.logger.WarnContext(ctx, "session renewal failed", "session_id", s.ID, "error", err)
		} else {
			s.ExpiresAt = newExpiry
			s.UpdatedAt = now
		}
	}

	metrics.SessionsResolvedTotal.WithLabelValues("store").Inc()
	return s, false, nil
}

// CacheToken mints the short-lived signed token for the companion cookie.
// It is bound to the session cookie via the token-hash claim so the two
// cookies cannot be mixed and matched.
func (u *AuthUsecase) CacheToken(s *domain.Session) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sid":  s.ID,
		"sub":  s.UserID,
		"sth":  s.TokenHash,
		"sexp": s.ExpiresAt.Unix(),
		"iat":  now.Unix(),
		"exp":  now.Add(cookieCacheTTL).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(u.cacheKey)
	if err != nil {
		return "", fmt.Errorf("sign cache token: %w", err)
	}
	return signed, nil
}

// sessionFromCache validates the cache token and reconstructs the session
// it describes. Any defect falls back to the store; the cache is never
// authoritative.
func (u *AuthUsecase) sessionFromCache(cacheToken, rawToken string) *domain.Session {
	token, err := jwt.Parse(cacheToken, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return u.cacheKey, nil
	})
	if err != nil || !token.Valid {
		return nil
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}

	sid, _ := claims["sid"].(string)
	sub, _ := claims["sub"].(string)
	sth, _ := claims["sth"].(string)
	sexp, _ := claims["sexp"].(float64)
	if sid == "" || sub == "" || sth != hashToken(rawToken) {
		return nil
	}

	expiresAt := time.Unix(int64(sexp), 0)
	if !time.Now().Before(expiresAt) {
		return nil
	}

	return &domain.Session{
		ID:        sid,
		UserID:    sub,
		TokenHash: sth,
		ExpiresAt: expiresAt,
	}
}

func (u *AuthUsecase) sendVerification(ctx context.Context, user *domain.User) error {
	rawToken, err := newRawToken()
	if err != nil {
		return err
	}

	if err := u.tokens.Create(ctx, user.ID, hashToken(rawToken), time.Now().Add(verificationTTL)); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	callback := u.baseURL + "/sign-in?verified=true"
	link := u.baseURL + "/verify-email?token=" + rawToken +
		"&callbackURL=" + url.QueryEscape(callback)

	subject := "Verify your email address"
	body := fmt.Sprintf(
		`<p>Click the link below to verify your email address (expires in 24 hours):</p>`+
			`<p><a href="%s">Verify Email</a></p>`+
			`<p>If you didn't request this, please ignore this email.</p>`,
		link,
	)
	if err := u.email.Send(ctx, user.Email, subject, body); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

func newRawToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func hashToken(raw string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(raw)))
}
