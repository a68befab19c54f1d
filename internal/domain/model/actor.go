package model

// Actor — вызывающий субъект, установленный коллаборатором аутентификации.
// Передаётся явно в каждую операцию сервисного слоя.
type Actor struct {
	// ID — идентификатор субъекта (sub из JWT)
	ID string
	// Role — эффективная роль (INDIVIDUAL, ORG_ADMIN)
	Role string
	// TenantID — организация субъекта (nil, если не привязан)
	TenantID *string
	// ServiceAccount — true для client_credentials токенов
	ServiceAccount bool
	// Scopes — scopes сервисного аккаунта
	Scopes []string
}

// HasTenant возвращает true, если актор привязан к организации.
func (a *Actor) HasTenant() bool {
	return a != nil && a.TenantID != nil && *a.TenantID != ""
}

// Tenant возвращает идентификатор организации или пустую строку.
func (a *Actor) Tenant() string {
	if !a.HasTenant() {
		return ""
	}
	return *a.TenantID
}

// HasScope проверяет наличие scope у актора.
func (a *Actor) HasScope(scope string) bool {
	if a == nil {
		return false
	}
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
