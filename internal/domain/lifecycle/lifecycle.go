// Пакет lifecycle — конечный автомат статусов якоря.
//
// Жизненный цикл:
//   - PENDING → SECURED (внешняя аттестация)
//   - PENDING → REVOKED, SECURED → REVOKED (отзыв администратором организации)
//   - REVOKED — терминальный статус, переходы запрещены
//
// Якоря пакетной регистрации создаются сразу в SECURED.
package lifecycle

import (
	"fmt"

	"github.com/bigkaa/anchorvault/internal/domain/model"
)

// Коды ошибок перехода.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeAlreadyTerminal   = "ALREADY_TERMINAL"
)

// Origin — путь создания якоря.
type Origin int

const (
	// OriginSingle — создание одного якоря пользователем
	OriginSingle Origin = iota
	// OriginBatch — пакетная регистрация (идентичности уже проверены)
	OriginBatch
)

// validTransitions — матрица допустимых переходов.
// Ключ — текущий статус, значение — набор допустимых целевых статусов.
var validTransitions = map[model.AnchorStatus]map[model.AnchorStatus]bool{
	model.StatusPending: {model.StatusSecured: true, model.StatusRevoked: true},
	model.StatusSecured: {model.StatusRevoked: true},
	model.StatusRevoked: {}, // Терминальный статус
}

// InitialStatus возвращает начальный статус для пути создания.
func InitialStatus(origin Origin) model.AnchorStatus {
	if origin == OriginBatch {
		return model.StatusSecured
	}
	return model.StatusPending
}

// IsTerminal проверяет, является ли статус терминальным.
func IsTerminal(s model.AnchorStatus) bool {
	transitions, ok := validTransitions[s]
	return ok && len(transitions) == 0
}

// CanTransition проверяет допустимость перехода from → to.
func CanTransition(from, to model.AnchorStatus) bool {
	return validTransitions[from][to]
}

// Check проверяет переход from → to и возвращает *TransitionError,
// если он недопустим. Переход из терминального статуса всегда
// возвращает код ALREADY_TERMINAL.
func Check(from, to model.AnchorStatus) error {
	if !isValidStatus(to) {
		return &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("недопустимый целевой статус: %q", to),
		}
	}
	if IsTerminal(from) {
		return &TransitionError{
			Code:    CodeAlreadyTerminal,
			Message: fmt.Sprintf("якорь уже в терминальном статусе %s", from),
		}
	}
	if !CanTransition(from, to) {
		return &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("переход %s → %s недопустим", from, to),
		}
	}
	return nil
}

// Headline возвращает человекочитаемый заголовок статуса для публичной верификации.
func Headline(s model.AnchorStatus) string {
	switch s {
	case model.StatusSecured:
		return model.HeadlineVerified
	case model.StatusRevoked:
		return model.HeadlineRevoked
	default:
		return model.HeadlinePending
	}
}

// TransitionError — ошибка перехода между статусами.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION, ALREADY_TERMINAL)
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// isValidStatus проверяет, является ли строка допустимым статусом.
func isValidStatus(s model.AnchorStatus) bool {
	_, ok := validTransitions[s]
	return ok
}

// ParseStatus преобразует строку в AnchorStatus.
func ParseStatus(s string) (model.AnchorStatus, error) {
	st := model.AnchorStatus(s)
	if !isValidStatus(st) {
		return "", fmt.Errorf("недопустимый статус: %q, допустимые: PENDING, SECURED, REVOKED", s)
	}
	return st, nil
}
