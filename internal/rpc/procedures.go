package rpc

import (
	"context"
	"errors"
	"time"

	"github.com/febriansr/authgate/internal/domain"
	"github.com/febriansr/authgate/internal/usecase"
)

type signUpInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,password"`
	Name     string `json:"name" validate:"required,min=2"`
}

type signInInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type emailInput struct {
	Email string `json:"email" validate:"required,email"`
}

type tokenInput struct {
	Token string `json:"token" validate:"required"`
}

type userPayload struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type userResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	User    userPayload `json:"user"`
}

func toUserPayload(u *domain.User) userPayload {
	return userPayload{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

// RegisterAuthProcedures wires the auth.* namespace.
func RegisterAuthProcedures(d *Dispatcher, auth *usecase.AuthUsecase) {
	d.Register(Procedure{
		Name:     "auth.signUp",
		NewInput: func() any { return &signUpInput{} },
		Handle: func(ctx context.Context, _ *RequestContext, input any) (any, error) {
			in := input.(*signUpInput)
			user, err := auth.Register(ctx, in.Email, in.Password, in.Name)
			if err != nil {
				return nil, err
			}
			return userResponse{
				Success: true,
				Message: "account created, check your email for the verification link",
				User:    toUserPayload(user),
			}, nil
		},
	})

	d.Register(Procedure{
		Name:     "auth.signIn",
		NewInput: func() any { return &signInInput{} },
		Handle: func(ctx context.Context, rc *RequestContext, input any) (any, error) {
			in := input.(*signInInput)
			as, err := auth.Authenticate(ctx, in.Email, in.Password)
			if err != nil {
				return nil, err
			}

			rc.Cookies.SetSession(as.Token, as.Session.ExpiresAt)
			if cacheToken, err := auth.CacheToken(as.Session); err == nil {
				rc.Cookies.SetSessionCache(cacheToken)
			}

			return userResponse{
				Success: true,
				Message: "signed in",
				User:    toUserPayload(as.User),
			}, nil
		},
	})

	d.Register(Procedure{
		Name:      "auth.signOut",
		Protected: true,
		Handle: func(ctx context.Context, rc *RequestContext, _ any) (any, error) {
			err := auth.Invalidate(ctx, rc.SessionToken)
			// A missing row means the session is already gone; logout
			// is idempotent.
			if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
				return nil, err
			}
			rc.Cookies.ClearSession()
			return statusResponse{Success: true, Message: "signed out"}, nil
		},
	})

	d.Register(Procedure{
		Name:     "auth.verifyEmail",
		NewInput: func() any { return &tokenInput{} },
		Handle: func(ctx context.Context, _ *RequestContext, input any) (any, error) {
			in := input.(*tokenInput)
			if err := auth.VerifyEmail(ctx, in.Token); err != nil {
				return nil, err
			}
			return statusResponse{Success: true, Message: "email verified"}, nil
		},
	})

	d.Register(Procedure{
		Name:     "auth.resendVerificationEmail",
		NewInput: func() any { return &emailInput{} },
		Handle: func(ctx context.Context, _ *RequestContext, input any) (any, error) {
			in := input.(*emailInput)
			if err := auth.ResendVerification(ctx, in.Email); err != nil {
				return nil, err
			}
			return statusResponse{Success: true, Message: "verification email sent"}, nil
		},
	})
}

// RegisterUserProcedures wires the users.* namespace.
func RegisterUserProcedures(d *Dispatcher, users *usecase.UserUsecase) {
	d.Register(Procedure{
		Name:      "users.getUsers",
		Protected: true,
		Handle: func(ctx context.Context, _ *RequestContext, _ any) (any, error) {
			list, err := users.List(ctx)
			if err != nil {
				return nil, err
			}
			payload := make([]userPayload, 0, len(list))
			for _, u := range list {
				payload = append(payload, toUserPayload(u))
			}
			return payload, nil
		},
	})
}
