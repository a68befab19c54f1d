// Пакет rbac — определение эффективной роли и привилегий актора.
// Роль вычисляется из групп IdP и (опционально) явного claim роли.
// Итоговая роль = max(роль по группам, роль из claim).
package rbac

// Роли в порядке возрастания привилегий.
const (
	RoleIndividual = "INDIVIDUAL"
	RoleOrgAdmin   = "ORG_ADMIN"
)

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	RoleIndividual: 1,
	RoleOrgAdmin:   2,
}

// EffectiveRole вычисляет итоговую роль = max(groupRole, claimRole).
// Неизвестная роль из claim игнорируется. Аутентифицированный
// субъект без совпадений получает INDIVIDUAL.
func EffectiveRole(groupRole, claimRole string) string {
	role := RoleIndividual
	if IsValidRole(groupRole) {
		role = maxRole(role, groupRole)
	}
	if IsValidRole(claimRole) {
		role = maxRole(role, claimRole)
	}
	return role
}

// maxRole возвращает роль с максимальными привилегиями из двух.
func maxRole(a, b string) string {
	if roleWeight[a] >= roleWeight[b] {
		return a
	}
	return b
}

// HighestRole возвращает максимальную роль из набора.
// Если набор пуст — возвращает пустую строку.
func HighestRole(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	highest := roles[0]
	for _, r := range roles[1:] {
		highest = maxRole(highest, r)
	}
	return highest
}

// MapGroupsToRole определяет роль по группам IdP.
// Если ни одна группа не совпала с orgAdminGroups — возвращает пустую строку.
func MapGroupsToRole(groups []string, orgAdminGroups []string) string {
	adminSet := toSet(orgAdminGroups)

	var roles []string
	for _, g := range groups {
		if adminSet[g] {
			roles = append(roles, RoleOrgAdmin)
		}
	}
	return HighestRole(roles)
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// CanSubmitBatch — привилегия пакетной регистрации.
func CanSubmitBatch(role string) bool {
	return role == RoleOrgAdmin
}

// CanRevoke — привилегия отзыва якорей организации.
func CanRevoke(role string) bool {
	return role == RoleOrgAdmin
}

// CanReadRegistry — привилегия просмотра и экспорта реестра организации.
func CanReadRegistry(role string) bool {
	return role == RoleOrgAdmin
}

// toSet конвертирует срез строк в map для быстрого поиска.
func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
