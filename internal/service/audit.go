// audit.go — контракт журнала аудита для сервисного слоя.
package service

import (
	"context"
	"time"

	"github.com/bigkaa/anchorvault/internal/domain/model"
)

// auditTimeout — время на запись события аудита после завершения операции.
const auditTimeout = 5 * time.Second

// AuditSink — приёмник событий аудита, только добавление.
// Реализуется repository.AuditRepository.
type AuditSink interface {
	Append(ctx context.Context, e *model.AuditEvent) error
}

// emitAudit записывает событие с контекстом, не отменяемым вместе с запросом:
// событие должно быть записано даже если клиент отключился.
func emitAudit(ctx context.Context, sink AuditSink, e *model.AuditEvent) error {
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	return sink.Append(auditCtx, e)
}
