package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden        ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest       ErrorCode = "BAD_REQUEST"
	ErrCodeConflict         ErrorCode = "CONFLICT"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation       ErrorCode = "VALIDATION_ERROR"
	ErrCodeDatabaseError    ErrorCode = "DATABASE_ERROR"
	ErrCodeInvalidState     ErrorCode = "INVALID_STATE"
	ErrCodeExpired          ErrorCode = "EXPIRED"
	ErrCodeAlreadySettled   ErrorCode = "ALREADY_SETTLED"
	ErrCodeAlreadyCompleted ErrorCode = "ALREADY_COMPLETED"
	ErrCodeInvalidDecision  ErrorCode = "INVALID_DECISION"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду, чтобы errors.Is работал с заготовленными значениями.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && (t.Message == "" || e.Message == t.Message)
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation, ErrCodeInvalidDecision:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeInvalidState:
		return http.StatusConflict
	case ErrCodeExpired:
		return http.StatusGone
	case ErrCodeAlreadySettled, ErrCodeAlreadyCompleted:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf возвращает код ошибки или пустую строку для ошибок без кода.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

func IsForbidden(err error) bool {
	return CodeOf(err) == ErrCodeForbidden
}

func IsValidation(err error) bool {
	return CodeOf(err) == ErrCodeValidation
}

func IsConflict(err error) bool {
	return CodeOf(err) == ErrCodeConflict
}

func IsInvalidState(err error) bool {
	return CodeOf(err) == ErrCodeInvalidState
}

func IsExpired(err error) bool {
	return CodeOf(err) == ErrCodeExpired
}

// IsAlreadyProcessed сообщает, что операция уже была выполнена ранее (вручную или автоматически).
// Такие ошибки клиент показывает как «уже обработано», а не как сбой.
func IsAlreadyProcessed(err error) bool {
	switch CodeOf(err) {
	case ErrCodeAlreadySettled, ErrCodeAlreadyCompleted, ErrCodeExpired:
		return true
	}
	return false
}

// IsBusiness отличает ожидаемые нарушения бизнес-правил от инфраструктурных сбоев.
func IsBusiness(err error) bool {
	switch CodeOf(err) {
	case "", ErrCodeInternal, ErrCodeDatabaseError:
		return false
	}
	return true
}

var (
	ErrOrderNotFound       = New(ErrCodeNotFound, "заказ не найден")
	ErrSubmissionNotFound  = New(ErrCodeNotFound, "работа не найдена")
	ErrDisputeNotFound     = New(ErrCodeNotFound, "спор не найден")
	ErrReservationNotFound = New(ErrCodeNotFound, "резерв средств не найден")
	ErrUnauthorized        = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden           = New(ErrCodeForbidden, "недостаточно прав")
	ErrAlreadySettled      = New(ErrCodeAlreadySettled, "средства по сделке уже распределены")
	ErrAlreadyCompleted    = New(ErrCodeAlreadyCompleted, "заказ уже завершён")
	ErrVersionConflict     = New(ErrCodeConflict, "запись была изменена параллельно, повторите попытку")
	ErrDisputeExists       = New(ErrCodeConflict, "по этой сделке уже открыт спор")
	ErrInvalidDecision     = New(ErrCodeInvalidDecision, "некорректное решение по спору")
)
