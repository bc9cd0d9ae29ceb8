// Пакет errors — ответы API с ошибками: {"error": {"code": "...", "message": "..."}}.
// Отображение ошибок сервисного слоя в HTTP-статусы собрано здесь же.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/service"
)

// Коды ошибок API.
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeConflict         = "CONFLICT"
	CodeInternalError    = "INTERNAL_ERROR"
)

type envelope struct {
	Error detail `json:"error"`
}

type detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(envelope{Error: detail{Code: code, Message: message}})
}

// ValidationError — 400: тело, параметры пути или формы не прошли проверку.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404: заявка, подключение, сервис или webhook отсутствует.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 с заголовком WWW-Authenticate для Bearer-токенов.
func Unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403: адрес источника заблокирован.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409: сервис или webhook для события уже существует.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// InternalError — 500.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// RouteNotFound — JSON-ответ для неизвестных маршрутов.
func RouteNotFound(w http.ResponseWriter, r *http.Request) {
	NotFound(w, "Маршрут не найден: "+r.URL.Path)
}

// MethodNotAllowed — JSON-ответ для неподдерживаемого метода.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed,
		"Метод "+r.Method+" не поддерживается для "+r.URL.Path)
}

// serviceErrors — соответствие sentinel-ошибок сервисного слоя HTTP-ответам.
var serviceErrors = []struct {
	target error
	status int
	code   string
}{
	{service.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{service.ErrConflict, http.StatusConflict, CodeConflict},
	{service.ErrValidation, http.StatusBadRequest, CodeValidationError},
	{service.ErrBlocked, http.StatusForbidden, CodeForbidden},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, CodeUnauthorized},
}

// FromService записывает ответ для известной ошибки сервисного слоя.
// Возвращает false, если ошибка не распознана и ответ не записан.
func FromService(w http.ResponseWriter, err error) bool {
	for _, e := range serviceErrors {
		if !stderrors.Is(err, e.target) {
			continue
		}
		if e.status == http.StatusUnauthorized {
			w.Header().Set("WWW-Authenticate", "Bearer")
		}
		WriteError(w, e.status, e.code, err.Error())
		return true
	}
	return false
}
