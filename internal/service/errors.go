// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrUnauthenticated — вызывающий не аутентифицирован.
	ErrUnauthenticated = errors.New("не аутентифицирован")
	// ErrForbidden — роль или организация не позволяют выполнить операцию.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrNoTenant — к учётной записи не привязана организация.
	ErrNoTenant = errors.New("к учётной записи не привязана организация")
	// ErrNotFound — ресурс не найден в области видимости вызывающего.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrAlreadyTerminal — якорь уже отозван.
	ErrAlreadyTerminal = errors.New("якорь уже отозван")
	// ErrConflict — конфликт (дублирующийся ресурс или конкурентное изменение).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrAuditEmission — не удалось записать событие аудита.
	// Изменение данных при этом сохранено.
	ErrAuditEmission = errors.New("ошибка записи аудита")
)
