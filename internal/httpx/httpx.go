// Package httpx holds the request decoding, validation and error rendering
// shared by the HTTP handlers.
package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet-ledger/internal/ledger"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// Bind decodes the JSON body into dst and runs its `validate` tags.
func Bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return fiber.NewError(http.StatusBadRequest, describe(err))
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", field, fe.Param()))
		case "gte", "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "lte", "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// StatusFor maps ledger errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case ledger.IsValidation(err), errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusBadRequest
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// FromLedger converts a ledger error into a *fiber.Error. Server-side
// failures get a generic message; the cause stays in the logs.
func FromLedger(err error) error {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		return fiber.NewError(status, failureMessage(err))
	}
	return fiber.NewError(status, err.Error())
}

func failureMessage(err error) string {
	for _, kind := range []error{
		ledger.ErrWalletUpdateFailed,
		ledger.ErrTransactionCreationFailed,
		ledger.ErrUserCreationFailed,
		ledger.ErrWalletCreationFailed,
		ledger.ErrBalanceOverflow,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return http.StatusText(http.StatusInternalServerError)
}

// ErrorHandler renders errors as {"error": message}.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := http.StatusInternalServerError
		msg := http.StatusText(status)

		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			msg = fe.Message
		} else if logger != nil {
			logger.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
		}
		return c.Status(status).JSON(ErrorBody{Error: msg})
	}
}
