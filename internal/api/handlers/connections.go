// connections.go — обработчики подключений и блокировок.
// GET/DELETE /api/v1/admin/connections, GET /api/v1/admin/denied,
// GET/DELETE /api/v1/admin/ignored.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/api/errors"
)

// ListConnections — GET /api/v1/admin/connections.
func (h *APIHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	items, err := h.connections.ListAllowed(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка подключений")
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items, limit, offset))
}

// RevokeConnection — DELETE /api/v1/admin/connections/{id}.
// Возвращает отозванное подключение.
func (h *APIHandler) RevokeConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.validID(w, id) {
		return
	}

	revoked, err := h.connections.Revoke(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка отзыва доступа")
		return
	}
	writeJSON(w, http.StatusOK, revoked)
}

// ListDenied — GET /api/v1/admin/denied.
func (h *APIHandler) ListDenied(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	items, err := h.connections.ListDenied(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка отклонённых заявок")
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items, limit, offset))
}

// ListIgnored — GET /api/v1/admin/ignored.
func (h *APIHandler) ListIgnored(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	items, err := h.connections.ListIgnored(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка блокировок")
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items, limit, offset))
}

// UnignoreConnection — DELETE /api/v1/admin/ignored/{id}.
// Снимает блокировку и возвращает удалённую запись.
func (h *APIHandler) UnignoreConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.validID(w, id) {
		return
	}

	removed, err := h.connections.Unignore(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка снятия блокировки")
		return
	}
	writeJSON(w, http.StatusOK, removed)
}
