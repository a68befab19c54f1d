// Пакет errors — ответы API с ошибками в едином конверте
// {"error": {"code": "...", "message": "..."}}.
// HTTP-статус выводится из машиночитаемого кода.
package errors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок контракта.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeConflict        = "CONFLICT"
	CodeAlreadyTerminal = "ALREADY_TERMINAL"
	CodeInternalError   = "INTERNAL_ERROR"
)

var statusByCode = map[string]int{
	CodeValidationError: http.StatusBadRequest,
	CodeUnauthorized:    http.StatusUnauthorized,
	CodeForbidden:       http.StatusForbidden,
	CodeNotFound:        http.StatusNotFound,
	CodeConflict:        http.StatusConflict,
	CodeAlreadyTerminal: http.StatusConflict,
	CodeInternalError:   http.StatusInternalServerError,
}

// Envelope — тело ответа с ошибкой.
type Envelope struct {
	Error Detail `json:"error"`
}

// Detail — код и описание ошибки.
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusFor возвращает HTTP-статус для кода. Неизвестный код — 500.
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Write отправляет конверт ошибки со статусом, соответствующим коду.
func Write(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusFor(code))
	_ = json.NewEncoder(w).Encode(Envelope{Error: Detail{Code: code, Message: message}})
}

func ValidationError(w http.ResponseWriter, message string) { Write(w, CodeValidationError, message) }
func NotFound(w http.ResponseWriter, message string)        { Write(w, CodeNotFound, message) }
func Unauthorized(w http.ResponseWriter, message string)    { Write(w, CodeUnauthorized, message) }
func Forbidden(w http.ResponseWriter, message string)       { Write(w, CodeForbidden, message) }
func Conflict(w http.ResponseWriter, message string)        { Write(w, CodeConflict, message) }
func AlreadyTerminal(w http.ResponseWriter, message string) { Write(w, CodeAlreadyTerminal, message) }
func InternalError(w http.ResponseWriter, message string)   { Write(w, CodeInternalError, message) }
