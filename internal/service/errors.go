// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrBlocked — источник запроса заблокирован администратором.
	ErrBlocked = errors.New("источник запроса заблокирован")
	// ErrInvalidCredentials — неверные учётные данные администратора.
	ErrInvalidCredentials = errors.New("неверное имя пользователя или пароль")
)
