// auth.go — вход администратора.
// POST /api/v1/auth/token — выпуск токена по форме username/password.
// GET /api/v1/auth/me — данные текущего администратора из JWT claims.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/api/errors"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/api/middleware"
)

// loginForm — поля формы входа.
type loginForm struct {
	Username   string `json:"username" validate:"required,min=3,max=20"`
	Password   string `json:"password" validate:"required,max=199"`
	RememberMe bool   `json:"remember_me"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
}

type tokenPayload struct {
	Subject  string `json:"sub"`
	Username string `json:"username"`
	Exp      int64  `json:"exp"`
}

type meResponse struct {
	Payload tokenPayload `json:"payload"`
	Message string       `json:"message"`
}

// IssueToken — POST /api/v1/auth/token.
// Принимает application/x-www-form-urlencoded или multipart/form-data.
func (h *APIHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		apierrors.ValidationError(w, "Некорректная форма: "+err.Error())
		return
	}
	// FormValue дочитывает multipart/form-data
	form := loginForm{
		Username: r.FormValue("username"),
		Password: r.FormValue("password"),
	}
	if raw := r.FormValue("remember_me"); raw != "" {
		remember, err := strconv.ParseBool(raw)
		if err != nil {
			apierrors.ValidationError(w, "remember_me: ожидается булево значение")
			return
		}
		form.RememberMe = remember
	}
	if err := h.validateStruct(&form); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	tok, err := h.auth.Login(form.Username, form.Password, form.RememberMe)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка выпуска токена")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   "bearer",
		ExpiresAt:   tok.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// GetCurrentAdmin — GET /api/v1/auth/me.
func (h *APIHandler) GetCurrentAdmin(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	payload := tokenPayload{
		Subject:  claims.Subject,
		Username: claims.Username,
	}
	if !claims.ExpiresAt.IsZero() {
		payload.Exp = claims.ExpiresAt.Unix()
	}

	writeJSON(w, http.StatusOK, meResponse{
		Payload: payload,
		Message: "You are authorized!",
	})
}
