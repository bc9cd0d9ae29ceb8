// access.go — публичные endpoints для гостей.
// POST /api/v1/request-access — запрос доступа к сервисам.
// GET /api/v1/services — список доступных сервисов.
package handlers

import (
	"net"
	"net/http"

	apierrors "github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/api/errors"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/service"
)

const requestAccessMessage = "Your request has been received and is pending approval."

// contactMethodsBody — контактные данные в запросе доступа.
type contactMethodsBody struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Email       string  `json:"email" validate:"omitempty,email,max=254"`
	PhoneNumber string  `json:"phone_number" validate:"omitempty,max=32"`
}

// requestAccessBody — тело POST /api/v1/request-access.
type requestAccessBody struct {
	Services       []model.ServiceItem `json:"services" validate:"dive"`
	ContactMethods contactMethodsBody  `json:"contact_methods"`
	Note           *string             `json:"note" validate:"omitempty,max=200"`
	Lat            *float64            `json:"lat" validate:"omitempty,latitude"`
	Lon            *float64            `json:"lon" validate:"omitempty,longitude"`
}

// requestAccessResponse — ответ на принятый запрос доступа.
type requestAccessResponse struct {
	IPAddress         string              `json:"ip_address"`
	ServicesRequested []model.ServiceItem `json:"services_requested"`
	Message           string              `json:"message"`
}

// RequestAccess — POST /api/v1/request-access.
// Создаёт заявку на каждый известный сервис из запроса.
// Адрес клиента берётся из RemoteAddr (после RealIP).
func (h *APIHandler) RequestAccess(w http.ResponseWriter, r *http.Request) {
	var body requestAccessBody
	if err := h.decodeJSON(r, &body, false); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	ip := clientIP(r)
	requested, err := h.connections.RequestAccess(r.Context(), service.AccessRequest{
		IPAddress: ip,
		Services:  body.Services,
		Contact: model.NewContactMethods(
			body.ContactMethods.Name,
			body.ContactMethods.Email,
			body.ContactMethods.PhoneNumber,
		),
		Note: body.Note,
		Lat:  body.Lat,
		Lon:  body.Lon,
	})
	if err != nil {
		h.writeServiceError(w, err, "Ошибка создания заявки")
		return
	}

	writeJSON(w, http.StatusCreated, requestAccessResponse{
		IPAddress:         ip,
		ServicesRequested: requested,
		Message:           requestAccessMessage,
	})
}

// ListPublicServices — GET /api/v1/services.
func (h *APIHandler) ListPublicServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.catalog.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка сервисов")
		return
	}
	if services == nil {
		services = []*model.Service{}
	}
	writeJSON(w, http.StatusOK, services)
}

// clientIP возвращает адрес клиента без порта.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
