package apperrors

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

type ErrorCode string

const (
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists       ErrorCode = "ALREADY_EXISTS"
	ErrCodeInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrCodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrCodeProfileUnresolvable ErrorCode = "PROFILE_UNRESOLVABLE"
	ErrCodeTimeout             ErrorCode = "TIMEOUT"
	ErrCodeDatabase            ErrorCode = "DATABASE_ERROR"
	ErrCodeInternal            ErrorCode = "INTERNAL"
)

// AppError carries a human readable message meant for operators, plus the cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeNotFound:
		return fiber.StatusNotFound
	case ErrCodeAlreadyExists:
		return fiber.StatusConflict
	case ErrCodeInvalidInput:
		return fiber.StatusBadRequest
	case ErrCodeUnauthorized:
		return fiber.StatusUnauthorized
	case ErrCodeProfileUnresolvable:
		return fiber.StatusUnprocessableEntity
	case ErrCodeTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func New(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func NotFound(message string) *AppError {
	return New(ErrCodeNotFound, message, nil)
}

func InvalidInput(message string, err error) *AppError {
	return New(ErrCodeInvalidInput, message, err)
}

func Database(message string, err error) *AppError {
	return New(ErrCodeDatabase, message, err)
}

// CodeOf returns the code of the first AppError in the chain, or INTERNAL.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Respond writes err as the JSON error body used across the API. Anything that
// is not an AppError is reported as a generic 500 without leaking internals.
func Respond(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.HTTPStatus()).JSON(fiber.Map{
			"error": appErr.Message,
			"code":  appErr.Code,
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal Server Error",
		"code":  ErrCodeInternal,
	})
}
