package usecase_test

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/febriansr/authgate/internal/domain"
	"github.com/febriansr/authgate/internal/repository"
	"github.com/febriansr/authgate/internal/usecase"
	"golang.org/x/crypto/bcrypt"
)

// ---- fakes ----

type fakeUserRepo struct {
	create            func(ctx context.Context, params repository.CreateUserParams) (*domain.User, error)
	findByEmail       func(ctx context.Context, email string) (*domain.User, error)
	findByID          func(ctx context.Context, id string) (*domain.User, error)
	markEmailVerified func(ctx context.Context, userID string) error
	list              func(ctx context.Context) ([]*domain.User, error)
}

func (r *fakeUserRepo) Create(ctx context.Context, params repository.CreateUserParams) (*domain.User, error) {
	return r.create(ctx, params)
}

func (r *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findByEmail(ctx, email)
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findByID(ctx, id)
}

func (r *fakeUserRepo) MarkEmailVerified(ctx context.Context, userID string) error {
	return r.markEmailVerified(ctx, userID)
}

func (r *fakeUserRepo) List(ctx context.Context) ([]*domain.User, error) {
	return r.list(ctx)
}

type fakeSessionRepo struct {
	createCalls     int
	create          func(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*domain.Session, error)
	findCalls       int
	findByTokenHash func(ctx context.Context, tokenHash string) (*domain.Session, error)
	renew           func(ctx context.Context, id string, expiresAt time.Time) error
	deleteByHash    func(ctx context.Context, tokenHash string) error
	deleteExpired   func(ctx context.Context, now time.Time) (int64, error)
}

func (r *fakeSessionRepo) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*domain.Session, error) {
	r.createCalls++
	return r.create(ctx, userID, tokenHash, expiresAt)
}

func (r *fakeSessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	r.findCalls++
	return r.findByTokenHash(ctx, tokenHash)
}

func (r *fakeSessionRepo) Renew(ctx context.Context, id string, expiresAt time.Time) error {
	return r.renew(ctx, id, expiresAt)
}

func (r *fakeSessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	return r.deleteByHash(ctx, tokenHash)
}

func (r *fakeSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.deleteExpired(ctx, now)
}

type fakeTokenRepo struct {
	create        func(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	consume       func(ctx context.Context, tokenHash string, now time.Time) (string, error)
	deleteExpired func(ctx context.Context, now time.Time) (int64, error)
}

func (r *fakeTokenRepo) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	return r.create(ctx, userID, tokenHash, expiresAt)
}

func (r *fakeTokenRepo) Consume(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	return r.consume(ctx, tokenHash, now)
}

func (r *fakeTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.deleteExpired(ctx, now)
}

type fakeEmailSender struct {
	sendCalls int
	send      func(ctx context.Context, to, subject, html string) error
}

func (s *fakeEmailSender) Send(ctx context.Context, to, subject, html string) error {
	s.sendCalls++
	if s.send == nil {
		return nil
	}
	return s.send(ctx, to, subject, html)
}

// ---- helpers ----

const (
	testCacheKey = "test-session-secret-at-least-32!!"
	testBaseURL  = "http://localhost:8080"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuth(users *fakeUserRepo, sessions *fakeSessionRepo, tokens *fakeTokenRepo, sender *fakeEmailSender) *usecase.AuthUsecase {
	return usecase.NewAuthUsecase(users, sessions, tokens, sender,
		[]byte(testCacheKey), testBaseURL, discardLogger())
}

func verifiedUser(t *testing.T, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &domain.User{
		ID:            "user-1",
		Email:         "a@x.com",
		Name:          "Ann",
		PasswordHash:  string(hash),
		EmailVerified: true,
		CreatedAt:     time.Now(),
	}
}

// extractToken pulls the raw token out of the verification link embedded
// in the email body.
func extractToken(t *testing.T, body string) string {
	t.Helper()
	idx := strings.Index(body, "?token=")
	if idx == -1 {
		t.Fatal("email body does not contain ?token=")
	}
	rest := body[idx+len("?token="):]
	return strings.SplitN(rest, "&", 2)[0]
}

func sha256Hex(s string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(s)))
}

// ---- Register ----

func TestRegister_StoresHashOfEmailedToken(t *testing.T) {
	var capturedHash string
	var capturedBody string

	users := &fakeUserRepo{
		create: func(_ context.Context, params repository.CreateUserParams) (*domain.User, error) {
			return &domain.User{ID: "user-1", Email: params.Email, Name: params.Name}, nil
		},
	}
	tokens := &fakeTokenRepo{
		create: func(_ context.Context, _, tokenHash string, _ time.Time) error {
			capturedHash = tokenHash
			return nil
		},
	}
	sender := &fakeEmailSender{
		send: func(_ context.Context, _, _, html string) error {
			capturedBody = html
			return nil
		},
	}

	user, err := newAuth(users, &fakeSessionRepo{}, tokens, sender).
		Register(context.Background(), "a@x.com", "Abcd1234", "Ann")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.EmailVerified {
		t.Error("new user must start unverified")
	}
	if sender.sendCalls != 1 {
		t.Fatalf("send calls = %d, want 1", sender.sendCalls)
	}

	raw := extractToken(t, capturedBody)
	if capturedHash != sha256Hex(raw) {
		t.Errorf("stored hash %q != SHA-256 of emailed token", capturedHash)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	users := &fakeUserRepo{
		create: func(_ context.Context, _ repository.CreateUserParams) (*domain.User, error) {
			return nil, domain.ErrDuplicateEmail
		},
	}

	_, err := newAuth(users, &fakeSessionRepo{}, &fakeTokenRepo{}, &fakeEmailSender{}).
		Register(context.Background(), "a@x.com", "Abcd1234", "Ann")
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Errorf("want ErrDuplicateEmail, got %v", err)
	}
}

func TestRegister_EmailFailureDoesNotRollBack(t *testing.T) {
	users := &fakeUserRepo{
		create: func(_ context.Context, params repository.CreateUserParams) (*domain.User, error) {
			return &domain.User{ID: "user-1", Email: params.Email}, nil
		},
	}
	tokens := &fakeTokenRepo{
		create: func(_ context.Context, _, _ string, _ time.Time) error { return nil },
	}
	sender := &fakeEmailSender{
		send: func(_ context.Context, _, _, _ string) error {
			return errors.New("smtp unreachable")
		},
	}

	user, err := newAuth(users, &fakeSessionRepo{}, tokens, sender).
		Register(context.Background(), "a@x.com", "Abcd1234", "Ann")
	if err != nil {
		t.Fatalf("registration must survive a failed send, got %v", err)
	}
	if user == nil {
		t.Fatal("expected a user")
	}
}

// ---- ResendVerification ----

func TestResendVerification_UnknownEmail(t *testing.T) {
	users := &fakeUserRepo{
		findByEmail: func(_ context.Context, _ string) (*domain.User, error) {
			return nil, domain.ErrUserNotFound
		},
	}

	err := newAuth(users, &fakeSessionRepo{}, &fakeTokenRepo{}, &fakeEmailSender{}).
		ResendVerification(context.Background(), "nobody@x.com")
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("want ErrUserNotFound, got %v", err)
	}
}

func TestResendVerification_AlreadyVerified(t *testing.T) {
	users := &fakeUserRepo{
		findByEmail: func(_ context.Context, _ string) (*domain.User, error) {
			return &domain.User{ID: "user-1", EmailVerified: true}, nil
		},
	}

	err := newAuth(users, &fakeSessionRepo{}, &fakeTokenRepo{}, &fakeEmailSender{}).
		ResendVerification(context.Background(), "a@x.com")
	if !errors.Is(err, domain.ErrAlreadyVerified) {
		t.Errorf("want ErrAlreadyVerified, got %v", err)
	}
}

func TestResendVerification_SendsNewToken(t *testing.T) {
	users := &fakeUserRepo{
		findByEmail: func(_ context.Context, _ string) (*domain.User, error) {
			return &domain.User{ID: "user-1", Email: "a@x.com"}, nil
		},
	}
	tokens := &fakeTokenRepo{
		create: func(_ context.Context, _, _ string, _ time.Time) error { return nil },
	}
	sender := &fakeEmailSender{}

	err := newAuth(users, &fakeSessionRepo{}, tokens, sender).
		ResendVerification(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.sendCalls != 1 {
		t.Errorf("send calls = %d, want 1", sender.sendCalls)
	}
}

// ---- VerifyEmail ----

func TestVerifyEmail_SucceedsOnceThenFails(t *testing.T) {
	// Stateful fake: the token can be consumed exactly once, like the
	// conditional DELETE in the real store.
	consumed := false
	const rawToken = "raw-verification-token"

	tokens := &fakeTokenRepo{
		consume: func(_ context.Context, tokenHash string, _ time.Time) (string, error) {
			if consumed || tokenHash != sha256Hex(rawToken) {
				return "", domain.ErrTokenInvalid
			}
			consumed = true
			return "user-1", nil
		},
	}
	auth := newAuth(&fakeUserRepo{}, &fakeSessionRepo{}, tokens, &fakeEmailSender{})

	if err := auth.VerifyEmail(context.Background(), rawToken); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if err := auth.VerifyEmail(context.Background(), rawToken); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("replay must fail with ErrTokenInvalid, got %v", err)
	}
}

func TestVerifyEmail_EmptyToken(t *testing.T) {
	auth := newAuth(&fakeUserRepo{}, &fakeSessionRepo{}, &fakeTokenRepo{}, &fakeEmailSender{})
	if err := auth.VerifyEmail(context.Background(), ""); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("want ErrTokenInvalid, got %v", err)
	}
}

// ---- Authenticate ----

func TestAuthenticate_UnknownEmailAndWrongPassword_Indistinguishable(t *testing.T) {
	user := verifiedUser(t, "Abcd1234")

	unknown := &fakeUserRepo{
		findByEmail: func(_ context.Context, _ string) (*domain.User, error) {
			return nil, domain.ErrUserNotFound
		},
	}
	known := &fakeUserRepo{
		findByEmail: func(_ context.Context, _ string) (*domain.User, error) {
			return user, nil
		},
	}

	_, errUnknown := newAuth(unknown, &fakeSessionRepo{}, &fakeTokenRepo{}, &fakeEmailSender{}).
		Authenticate(context.Background(), "nobody@x.com", "Abcd1234")
	_, errWrongPw := newAuth(known, &fakeSessionRepo{}, &fakeTokenRepo{}, &fakeEmailSender{}).
		Authenticate(context.Background(), user.Email, "wrong-password")

	if !errors.Is(errUnknown, domain.ErrInvalidCredentials) {
		t.Errorf("unknown email: want ErrInvalidCredentials, got %v", errUnknown)
	}
	if !errors.Is(errWrongPw, domain.ErrInvalidCredentials) {
		t.Errorf("wrong password: want ErrInvalidCredentials, got %v", errWrongPw)
	}
	if errUnknown.Error() != errWrongPw.Error() {
		t.Errorf("error messages differ: %q vs %q", errUnknown, errWrongPw)
	}
}

func TestAuthenticate_UnverifiedEmail_NoSessionCreated(t *testing.T) {
	user := verifiedUser(t, "Abcd1234")
	user.EmailVerified = false

	users := &fakeUserRepo{
		findByEmail: func(_ context.Context, _ string) (*domain.User, error) {
			return user, nil
		},
	}
	sessions := &fakeSessionRepo{
		create: func(_ context.Context, _, _ string, _ time.Time) (*domain.Session, error) {
			t.Fatal("session must not be created for an unverified user")
			return nil, nil
		},
	}

	_, err := newAuth(users, sessions, &fakeTokenRepo{}, &fakeEmailSender{}).
		Authenticate(context.Background(), user.Email, "Abcd1234")
	if !errors.Is(err, domain.ErrEmailNotVerified) {
		t.Errorf("want ErrEmailNotVerified, got %v", err)
	}
	if sessions.createCalls != 0 {
		t.Errorf("create calls = %d, want 0", sessions.createCalls)
	}
}

func TestAuthenticate_Success_SessionExpiresInSevenDays(t *testing.T) {
	user := verifiedUser(t, "Abcd1234")

	users := &fakeUserRepo{
		findByEmail: func(_ context.Context, _ string) (*domain.User, error) {
			return user, nil
		},
	}
	var capturedHash string
	sessions := &fakeSessionRepo{
		create: func(_ context.Context, userID, tokenHash string, expiresAt time.Time) (*domain.Session, error) {
			capturedHash = tokenHash
			return &domain.Session{
				ID: "sess-1", UserID: userID, TokenHash: tokenHash,
				CreatedAt: time.Now(), UpdatedAt: time.Now(), ExpiresAt: expiresAt,
			}, nil
		},
	}

	before := time.Now()
	as, err := newAuth(users, sessions, &fakeTokenRepo{}, &fakeEmailSender{}).
		Authenticate(context.Background(), user.Email, "Abcd1234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantExpiry := before.Add(7 * 24 * time.Hour)
	if diff := as.Session.ExpiresAt.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
		t.Errorf("expiry %v not within a minute of now+7d", as.Session.ExpiresAt)
	}
	if as.Token == "" {
		t.Fatal("expected a raw session token")
	}
	if capturedHash != sha256Hex(as.Token) {
		t.Errorf("stored hash %q != SHA-256 of returned token", capturedHash)
	}
	if as.User.ID != user.ID {
		t.Errorf("user = %q, want %q", as.User.ID, user.ID)
	}
}

// ---- Invalidate ----

func TestInvalidate_UnknownSession_ReturnsNotFound(t *testing.T) {
	sessions := &fakeSessionRepo{
		deleteByHash: func(_ context.Context, _ string) error {
			return domain.ErrSessionNotFound
		},
	}

	err := newAuth(&fakeUserRepo{}, sessions, &fakeTokenRepo{}, &fakeEmailSender{}).
		Invalidate(context.Background(), "some-raw-token")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("want ErrSessionNotFound, got %v", err)
	}
}

// ---- ResolveSession ----

func TestResolveSession_NoCookie_Absent(t *testing.T) {
	auth := newAuth(&fakeUserRepo{}, &fakeSessionRepo{}, &fakeTokenRepo{}, &fakeEmailSender{})

	s, _, err := auth.ResolveSession(context.Background(), "", "")
	if err != nil {
		t.Fatalf("absent session must not be an error, got %v", err)
	}
	if s != nil {
		t.Errorf("want nil session, got %+v", s)
	}
}

func TestResolveSession_ExpiredRow_Absent(t *testing.T) {
	sessions := &fakeSessionRepo{
		findByTokenHash: func(_ context.Context, _ string) (*domain.Session, error) {
			return &domain.Session{
				ID: "sess-1", UserID: "user-1",
				UpdatedAt: time.Now().Add(-8 * 24 * time.Hour),
				ExpiresAt: time.Now().Add(-time.Hour),
			}, nil
		},
	}
	auth := newAuth(&fakeUserRepo{}, sessions, &fakeTokenRepo{}, &fakeEmailSender{})

	s, _, err := auth.ResolveSession(context.Background(), "raw-token", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != nil {
		t.Error("expired row must resolve as absent even before purge")
	}
}

func TestResolveSession_FreshCacheToken_SkipsStore(t *testing.T) {
	sessions := &fakeSessionRepo{
		findByTokenHash: func(_ context.Context, _ string) (*domain.Session, error) {
			return nil, domain.ErrSessionNotFound
		},
	}
	auth := newAuth(&fakeUserRepo{}, sessions, &fakeTokenRepo{}, &fakeEmailSender{})

	const rawToken = "raw-session-token"
	stored := &domain.Session{
		ID: "sess-1", UserID: "user-1", TokenHash: sha256Hex(rawToken),
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
	cacheToken, err := auth.CacheToken(stored)
	if err != nil {
		t.Fatalf("mint cache token: %v", err)
	}

	s, fromCache, err := auth.ResolveSession(context.Background(), rawToken, cacheToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil || s.ID != stored.ID || s.UserID != stored.UserID {
		t.Fatalf("cache resolution returned %+v", s)
	}
	if !fromCache {
		t.Error("expected fromCache=true")
	}
	if sessions.findCalls != 0 {
		t.Errorf("store lookups = %d, want 0", sessions.findCalls)
	}
}

func TestResolveSession_CacheBoundToSessionCookie(t *testing.T) {
	sessions := &fakeSessionRepo{
		findByTokenHash: func(_ context.Context, _ string) (*domain.Session, error) {
			return nil, domain.ErrSessionNotFound
		},
	}
	auth := newAuth(&fakeUserRepo{}, sessions, &fakeTokenRepo{}, &fakeEmailSender{})

	stored := &domain.Session{
		ID: "sess-1", UserID: "user-1", TokenHash: sha256Hex("token-A"),
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
	cacheToken, err := auth.CacheToken(stored)
	if err != nil {
		t.Fatalf("mint cache token: %v", err)
	}

	// Cache minted for token-A presented alongside token-B: must fall
	// back to the store, which says absent.
	s, _, err := auth.ResolveSession(context.Background(), "token-B", cacheToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != nil {
		t.Error("mismatched cache token must not resolve a session")
	}
	if sessions.findCalls != 1 {
		t.Errorf("store lookups = %d, want 1", sessions.findCalls)
	}
}

func TestResolveSession_RenewsAfterUpdateAge(t *testing.T) {
	var renewedTo time.Time
	sessions := &fakeSessionRepo{
		findByTokenHash: func(_ context.Context, tokenHash string) (*domain.Session, error) {
			return &domain.Session{
				ID: "sess-1", UserID: "user-1", TokenHash: tokenHash,
				UpdatedAt: time.Now().Add(-25 * time.Hour),
				ExpiresAt: time.Now().Add(6 * 24 * time.Hour),
			}, nil
		},
		renew: func(_ context.Context, _ string, expiresAt time.Time) error {
			renewedTo = expiresAt
			return nil
		},
	}
	auth := newAuth(&fakeUserRepo{}, sessions, &fakeTokenRepo{}, &fakeEmailSender{})

	before := time.Now()
	s, _, err := auth.ResolveSession(context.Background(), "raw-token", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil {
		t.Fatal("expected a session")
	}

	wantExpiry := before.Add(7 * 24 * time.Hour)
	if diff := renewedTo.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
		t.Errorf("renewed expiry %v not within a minute of now+7d", renewedTo)
	}
	if !s.ExpiresAt.Equal(renewedTo) {
		t.Errorf("returned session expiry %v != renewed expiry %v", s.ExpiresAt, renewedTo)
	}
}

func TestResolveSession_FreshSession_NotRenewed(t *testing.T) {
	sessions := &fakeSessionRepo{
		findByTokenHash: func(_ context.Context, tokenHash string) (*domain.Session, error) {
			return &domain.Session{
				ID: "sess-1", UserID: "user-1", TokenHash: tokenHash,
				UpdatedAt: time.Now().Add(-time.Hour),
				ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
			}, nil
		},
		renew: func(_ context.Context, _ string, _ time.Time) error {
			t.Fatal("renew must not be called within the update age")
			return nil
		},
	}
	auth := newAuth(&fakeUserRepo{}, sessions, &fakeTokenRepo{}, &fakeEmailSender{})

	if _, _, err := auth.ResolveSession(context.Background(), "raw-token", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
