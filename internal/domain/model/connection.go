// Пакет model — доменные модели Access Manager.
package model

import (
	"sort"
	"time"
)

// ContactMethods — контактные данные заявителя.
// Email и PhoneNumber хранятся как map значение → флаг "уведомлён".
// Флаг сохраняется, но не влияет на логику.
type ContactMethods struct {
	Name        *string         `json:"name,omitempty"`
	Email       map[string]bool `json:"email"`
	PhoneNumber map[string]bool `json:"phone_number"`
}

// NewContactMethods строит ContactMethods из скалярных значений запроса.
// Пустые значения дают пустую map.
func NewContactMethods(name *string, email, phone string) ContactMethods {
	c := ContactMethods{
		Name:        name,
		Email:       map[string]bool{},
		PhoneNumber: map[string]bool{},
	}
	if email != "" {
		c.Email[email] = false
	}
	if phone != "" {
		c.PhoneNumber[phone] = false
	}
	return c
}

// PrimaryEmail возвращает первый email (в лексикографическом порядке) или "".
func (c ContactMethods) PrimaryEmail() string {
	return firstKey(c.Email)
}

// PrimaryPhone возвращает первый телефон (в лексикографическом порядке) или "".
func (c ContactMethods) PrimaryPhone() string {
	return firstKey(c.PhoneNumber)
}

// DisplayName возвращает имя заявителя или "".
func (c ContactMethods) DisplayName() string {
	if c.Name == nil {
		return ""
	}
	return *c.Name
}

func firstKey(m map[string]bool) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}

// ServiceItem — запрошенный сервис и длительность доступа.
// Expiry — количество единиц срока (nil — бессрочно).
type ServiceItem struct {
	Name   string `json:"name" validate:"required,max=200"`
	Expiry *int   `json:"expiry,omitempty" validate:"omitempty,min=1"`
}

// PendingConnection — заявка, ожидающая решения администратора.
type PendingConnection struct {
	ID             string         `json:"id"`
	IPAddress      string         `json:"ip_address"`
	Service        ServiceItem    `json:"service"`
	ContactMethods ContactMethods `json:"contact_methods"`
	Note           *string        `json:"note,omitempty"`
	Lat            *float64       `json:"lat,omitempty"`
	Lon            *float64       `json:"lon,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// AllowedConnection — одобренный доступ.
// ExpireAt == nil означает бессрочный доступ.
type AllowedConnection struct {
	ID             string         `json:"id"`
	IPAddress      string         `json:"ip_address"`
	ServiceName    string         `json:"service_name"`
	ExpireAt       *time.Time     `json:"ExpireAt"`
	ContactMethods ContactMethods `json:"contact_methods"`
	CreatedAt      time.Time      `json:"created_at"`
}

// IsExpired проверяет, истёк ли доступ на момент now.
func (a *AllowedConnection) IsExpired(now time.Time) bool {
	return a.ExpireAt != nil && !a.ExpireAt.After(now)
}

// DeniedConnection — отклонённая заявка.
type DeniedConnection struct {
	ID             string         `json:"id"`
	IPAddress      string         `json:"ip_address"`
	ServiceName    string         `json:"service_name"`
	ContactMethods ContactMethods `json:"contact_methods"`
	CreatedAt      time.Time      `json:"created_at"`
}

// IgnoredConnection — постоянная блокировка источника.
type IgnoredConnection struct {
	ID             string         `json:"id"`
	IPAddress      string         `json:"ip_address"`
	ServiceName    string         `json:"service_name"`
	ContactMethods ContactMethods `json:"contact_methods"`
	Blocked        bool           `json:"blocked"`
	CreatedAt      time.Time      `json:"created_at"`
}

// DenyResult — результат отклонения заявки.
type DenyResult struct {
	Denied  *DeniedConnection `json:"denied"`
	Ignored bool              `json:"ignored"`
}
