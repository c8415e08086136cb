// Package rpc implements the typed procedure layer: a flat namespace of
// named operations dispatched over JSON, with input validation, an
// authentication gate for protected procedures, and a closed error-code
// contract.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

type HandlerFunc func(ctx context.Context, rc *RequestContext, input any) (any, error)

type Procedure struct {
	Name string

	// Protected procedures are rejected with CodeUnauthenticated before
	// the handler runs when the request has no session.
	Protected bool

	// NewInput returns a pointer to a fresh input struct to decode and
	// validate the payload into. Nil means the procedure takes no input.
	NewInput func() any

	Handle HandlerFunc
}

type Dispatcher struct {
	procs    map[string]Procedure
	validate *validator.Validate
	logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report field errors under their json names, not Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Mirrors the sign-up form's policy: at least one upper, one lower,
	// one digit. Length is a separate min= tag so it reports on its own.
	if err := v.RegisterValidation("password", validPassword); err != nil {
		panic(fmt.Sprintf("register password validation: %v", err))
	}

	return &Dispatcher{
		procs:    make(map[string]Procedure),
		validate: v,
		logger:   logger.With("component", "rpc_dispatcher"),
	}
}

func (d *Dispatcher) Register(p Procedure) {
	if _, exists := d.procs[p.Name]; exists {
		panic(fmt.Sprintf("procedure %q registered twice", p.Name))
	}
	d.procs[p.Name] = p
}

// Call runs one procedure end to end: lookup, authentication gate,
// decode, validation, handler, error mapping. The returned *Error is nil
// exactly when result is valid.
func (d *Dispatcher) Call(ctx context.Context, name string, payload []byte, rc *RequestContext) (result any, rpcErr *Error) {
	proc, ok := d.procs[name]
	if !ok {
		return nil, newError(CodeNotFound, fmt.Sprintf("unknown procedure %q", name))
	}

	// The gate runs before the payload is even decoded, so a protected
	// handler can never observe a half-authenticated request.
	if proc.Protected && rc.Session == nil {
		return nil, newError(CodeUnauthenticated, "not authenticated")
	}

	var input any
	if proc.NewInput != nil {
		input = proc.NewInput()
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, input); err != nil {
				return nil, newError(CodeValidation, "malformed JSON payload")
			}
		}
		if fieldErrs := d.validateInput(input); len(fieldErrs) > 0 {
			return nil, &Error{
				Code:        CodeValidation,
				Message:     "invalid input",
				FieldErrors: fieldErrs,
			}
		}
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "procedure panicked", "procedure", name, "panic", r)
			result, rpcErr = nil, newError(CodeInternal, "internal server error")
		}
	}()

	out, err := proc.Handle(ctx, rc, input)
	if err != nil {
		return nil, mapError(ctx, d.logger, name, err)
	}
	return out, nil
}

// validateInput collects every failing field, not just the first.
func (d *Dispatcher) validateInput(input any) map[string]string {
	err := d.validate.Struct(input)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": "invalid input"}
	}

	fieldErrs := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fieldErrs[fieldName(fe)] = fieldMessage(fe)
	}
	return fieldErrs
}

// fieldName is the json name thanks to the tag-name func; fall back to
// the Go field name for untagged fields.
func fieldName(fe validator.FieldError) string {
	if name := fe.Field(); name != "" {
		return name
	}
	return fe.StructField()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "password":
		return "must contain an uppercase letter, a lowercase letter, and a digit"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func validPassword(fl validator.FieldLevel) bool {
	var hasUpper, hasLower, hasDigit bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasUpper && hasLower && hasDigit
}
