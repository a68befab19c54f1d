// registry.go — реестр якорей организации и выгрузка в CSV.
package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bigkaa/anchorvault/internal/domain/lifecycle"
	"github.com/bigkaa/anchorvault/internal/domain/model"
	"github.com/bigkaa/anchorvault/internal/domain/rbac"
	"github.com/bigkaa/anchorvault/internal/repository"
)

// Пагинация реестра.
const (
	DefaultRegistryLimit = 50
	MaxRegistryLimit     = 500
	exportPageSize       = 500
)

// csvTimeLayout — формат created_at_utc в выгрузке (миллисекунды, UTC).
const csvTimeLayout = "2006-01-02T15:04:05.000Z"

// csvHeader — столбцы выгрузки реестра.
var csvHeader = []string{"anchor_id", "display_name", "fingerprint", "status", "created_at_utc"}

// RegistryQuery — параметры запроса реестра.
type RegistryQuery struct {
	Status    string
	Search    string
	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

// RegistryPage — страница реестра.
type RegistryPage struct {
	Items  []*model.Anchor
	Total  int
	Limit  int
	Offset int
}

// RegistryService — реестр якорей организации (только ORG_ADMIN).
type RegistryService struct {
	anchors repository.AnchorRepository
	logger  *slog.Logger
}

// NewRegistryService создаёт сервис реестра.
func NewRegistryService(anchors repository.AnchorRepository, logger *slog.Logger) *RegistryService {
	return &RegistryService{
		anchors: anchors,
		logger:  logger.With(slog.String("component", "registry_service")),
	}
}

// List возвращает страницу реестра организации актора.
func (s *RegistryService) List(ctx context.Context, actor *model.Actor, q RegistryQuery) (*RegistryPage, error) {
	filter, err := s.filterFor(actor, q)
	if err != nil {
		return nil, err
	}

	items, err := s.anchors.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("получение реестра: %w", err)
	}
	total, err := s.anchors.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("подсчёт реестра: %w", err)
	}

	if items == nil {
		items = []*model.Anchor{}
	}
	return &RegistryPage{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// ExportCSV выгружает весь реестр организации (с учётом фильтров) в w.
// Пагинация запроса игнорируется: выгрузка читает хранилище страницами.
// Возвращает количество выгруженных строк.
func (s *RegistryService) ExportCSV(ctx context.Context, actor *model.Actor, q RegistryQuery, w io.Writer) (int, error) {
	q.Limit, q.Offset = exportPageSize, 0
	filter, err := s.filterFor(actor, q)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("запись заголовка CSV: %w", err)
	}

	written := 0
	for {
		page, err := s.anchors.List(ctx, filter)
		if err != nil {
			return written, fmt.Errorf("получение страницы реестра: %w", err)
		}
		for _, a := range page {
			if err := cw.Write(csvRecord(a)); err != nil {
				return written, fmt.Errorf("запись строки CSV: %w", err)
			}
			written++
		}
		if len(page) < filter.Limit {
			break
		}
		filter.Offset += filter.Limit
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, fmt.Errorf("запись CSV: %w", err)
	}

	s.logger.Info("Реестр выгружен",
		slog.String("tenant_id", actor.Tenant()),
		slog.String("actor_id", actor.ID),
		slog.Int("rows", written),
	)
	return written, nil
}

// filterFor проверяет права актора и строит фильтр, ограниченный его организацией.
func (s *RegistryService) filterFor(actor *model.Actor, q RegistryQuery) (repository.RegistryFilter, error) {
	var filter repository.RegistryFilter
	if actor == nil || actor.ID == "" {
		return filter, ErrUnauthenticated
	}
	if !rbac.CanReadRegistry(actor.Role) {
		return filter, fmt.Errorf("%w: требуется роль %s", ErrForbidden, rbac.RoleOrgAdmin)
	}
	if !actor.HasTenant() {
		return filter, ErrNoTenant
	}

	tenant := actor.Tenant()
	filter.TenantID = &tenant
	filter.Search = q.Search
	filter.SortBy = q.SortBy
	filter.SortOrder = q.SortOrder

	if st := strings.ToUpper(strings.TrimSpace(q.Status)); st != "" {
		status, err := lifecycle.ParseStatus(st)
		if err != nil {
			return filter, fmt.Errorf("%w: %s", ErrValidation, err.Error())
		}
		filter.Status = &status
	}

	filter.Limit = q.Limit
	if filter.Limit <= 0 {
		filter.Limit = DefaultRegistryLimit
	}
	if filter.Limit > MaxRegistryLimit {
		filter.Limit = MaxRegistryLimit
	}
	filter.Offset = q.Offset
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return filter, nil
}

func csvRecord(a *model.Anchor) []string {
	return []string{
		a.ID,
		a.DisplayName,
		a.Fingerprint,
		string(a.Status),
		a.CreatedAt.UTC().Format(csvTimeLayout),
	}
}
