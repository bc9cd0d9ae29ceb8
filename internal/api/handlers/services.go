// services.go — обработчики /api/v1/admin/services endpoints.
// Каталог внутренних сервисов: список, создание, частичное изменение, удаление.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/api/errors"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
)

// serviceCreateBody — тело создания сервиса.
type serviceCreateBody struct {
	Name            string  `json:"name" validate:"required,max=200"`
	Description     *string `json:"description" validate:"omitempty,max=200"`
	InternalAddress string  `json:"internal_address" validate:"omitempty,ip"`
	Port            int     `json:"port" validate:"omitempty,min=1,max=65535"`
	Protocol        string  `json:"protocol" validate:"omitempty,oneof=http https"`
}

// serviceEditBody — тело частичного изменения (отсутствующие поля не меняются).
type serviceEditBody struct {
	Name            *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description     *string `json:"description" validate:"omitempty,max=200"`
	InternalAddress *string `json:"internal_address" validate:"omitempty,ip"`
	Port            *int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Protocol        *string `json:"protocol" validate:"omitempty,oneof=http https"`
}

type serviceDeleteResponse struct {
	Service string `json:"service"`
	Message string `json:"message"`
}

// ListServices — GET /api/v1/admin/services.
func (h *APIHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	h.ListPublicServices(w, r)
}

// CreateService — POST /api/v1/admin/services.
// 409, если сервис с таким именем уже есть.
func (h *APIHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	var body serviceCreateBody
	if err := h.decodeJSON(r, &body, false); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	created, err := h.catalog.Create(r.Context(), &model.Service{
		Name:            body.Name,
		Description:     body.Description,
		InternalAddress: body.InternalAddress,
		Port:            body.Port,
		Protocol:        body.Protocol,
	})
	if err != nil {
		h.writeServiceError(w, err, "Ошибка создания сервиса")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// UpdateService — PATCH /api/v1/admin/services/{name}.
func (h *APIHandler) UpdateService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if len(name) > 200 {
		apierrors.ValidationError(w, "name: максимум 200")
		return
	}

	var body serviceEditBody
	if err := h.decodeJSON(r, &body, false); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	updated, err := h.catalog.Update(r.Context(), name, model.ServicePatch{
		Name:            body.Name,
		Description:     body.Description,
		InternalAddress: body.InternalAddress,
		Port:            body.Port,
		Protocol:        body.Protocol,
	})
	if err != nil {
		h.writeServiceError(w, err, "Ошибка изменения сервиса")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// DeleteService — DELETE /api/v1/admin/services/{name}.
func (h *APIHandler) DeleteService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.catalog.Delete(r.Context(), name); err != nil {
		h.writeServiceError(w, err, "Ошибка удаления сервиса")
		return
	}

	writeJSON(w, http.StatusOK, serviceDeleteResponse{
		Service: name,
		Message: "The service has been deleted!",
	})
}
