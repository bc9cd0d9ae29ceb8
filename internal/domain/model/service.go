package model

import "time"

// Протоколы внутренних сервисов.
const (
	ProtocolHTTP  = "http"
	ProtocolHTTPS = "https"
)

// Значения по умолчанию при регистрации сервиса.
const (
	DefaultServiceAddress  = "127.0.0.1"
	DefaultServicePort     = 80
	DefaultServiceProtocol = ProtocolHTTP
)

// Service — внутренний сервис каталога, к которому запрашивается доступ.
type Service struct {
	Name            string    `json:"name"`
	Description     *string   `json:"description,omitempty"`
	InternalAddress string    `json:"internal_address"`
	Port            int       `json:"port"`
	Protocol        string    `json:"protocol"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ServicePatch — частичное обновление сервиса (nil — поле не меняется).
type ServicePatch struct {
	Name            *string
	Description     *string
	InternalAddress *string
	Port            *int
	Protocol        *string
}

// Apply применяет непустые поля patch к сервису.
func (p ServicePatch) Apply(s *Service) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Description != nil {
		s.Description = p.Description
	}
	if p.InternalAddress != nil {
		s.InternalAddress = *p.InternalAddress
	}
	if p.Port != nil {
		s.Port = *p.Port
	}
	if p.Protocol != nil {
		s.Protocol = *p.Protocol
	}
}

// IsEmpty возвращает true, если patch ничего не меняет.
func (p ServicePatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.InternalAddress == nil &&
		p.Port == nil && p.Protocol == nil
}
