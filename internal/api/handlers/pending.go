// pending.go — обработчики /api/v1/admin/pending endpoints.
// Список и просмотр заявок, одобрение и отклонение (с опциональной блокировкой адреса).
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/api/errors"
)

// denyBody — тело отклонения заявки. Пустое тело — без блокировки.
type denyBody struct {
	IgnoreConnection bool `json:"ignore_connection"`
}

type denyResponse struct {
	Message     string `json:"message"`
	IPAddress   string `json:"ip_address"`
	ServiceName string `json:"service_name"`
	Ignore      bool   `json:"ignore"`
}

// ListPending — GET /api/v1/admin/pending.
func (h *APIHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	items, err := h.connections.ListPending(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка заявок")
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items, limit, offset))
}

// GetPending — GET /api/v1/admin/pending/{id}.
func (h *APIHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.validID(w, id) {
		return
	}

	p, err := h.connections.GetPending(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения заявки")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// AcceptPending — POST /api/v1/admin/pending/{id}/accept.
// Возвращает созданное подключение.
func (h *APIHandler) AcceptPending(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.validID(w, id) {
		return
	}

	allowed, err := h.connections.Accept(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка одобрения заявки")
		return
	}
	writeJSON(w, http.StatusOK, allowed)
}

// DenyPending — POST /api/v1/admin/pending/{id}/deny.
func (h *APIHandler) DenyPending(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.validID(w, id) {
		return
	}

	var body denyBody
	if err := h.decodeJSON(r, &body, true); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.connections.Deny(r.Context(), id, body.IgnoreConnection)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка отклонения заявки")
		return
	}

	writeJSON(w, http.StatusOK, denyResponse{
		Message:     "You denied this connection",
		IPAddress:   res.Denied.IPAddress,
		ServiceName: res.Denied.ServiceName,
		Ignore:      res.Ignored,
	})
}
