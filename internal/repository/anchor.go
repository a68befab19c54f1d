package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/anchorvault/internal/domain/model"
)

// anchorColumns — список столбцов таблицы anchors для SELECT-запросов.
const anchorColumns = `id, public_id, owner_id, tenant_id, fingerprint, display_name,
	size_bytes, media_type, status, jurisdiction, retention_policy, retain_until,
	legal_hold, deleted_at, attestation_receipt_id, attestation_observed_at,
	attestation_ordinal, attestation_network, created_at, updated_at`

// RegistryFilter — фильтры реестра якорей.
// nil/пустое значение = фильтр не применяется.
type RegistryFilter struct {
	// TenantID — организация (точное совпадение)
	TenantID *string
	// OwnerID — владелец (точное совпадение)
	OwnerID *string
	// Status — статус якоря
	Status *model.AnchorStatus
	// Search — подстрока имени или префикс id
	Search string
	// SortBy — поле сортировки: created_at, display_name, status
	SortBy string
	// SortOrder — направление: asc, desc
	SortOrder string
	Limit     int
	Offset    int
}

// AnchorRepository — типизированный контракт хранилища якорей.
type AnchorRepository interface {
	// Insert создаёт якорь и событие CREATED (и SECURED для якорей,
	// созданных сразу подтверждёнными). Нарушение уникальности → ErrConflict.
	Insert(ctx context.Context, a *model.Anchor) error
	// FindByFingerprint ищет якорь организации по отпечатку.
	// Учитывает и мягко удалённые записи: ключ идемпотентности занят.
	FindByFingerprint(ctx context.Context, tenantID, fingerprint string) (*model.Anchor, error)
	// GetByID возвращает не удалённый якорь по UUID.
	GetByID(ctx context.Context, id string) (*model.Anchor, error)
	// GetByPublicID возвращает не удалённый якорь по публичному идентификатору.
	GetByPublicID(ctx context.Context, publicID string) (*model.Anchor, error)
	// UpdateStatus меняет статус якоря в пределах организации.
	// Якорь в статусе REVOKED не изменяется (ErrTerminal).
	UpdateStatus(ctx context.Context, id, tenantID string, status model.AnchorStatus, actorID string) (*model.Anchor, error)
	// ApplyAttestation записывает внешнюю аттестацию и переводит PENDING → SECURED.
	ApplyAttestation(ctx context.Context, id string, att model.Attestation, actorID string) (*model.Anchor, error)
	// ListEvents возвращает хронологию якоря в порядке возникновения.
	ListEvents(ctx context.Context, anchorID string) ([]model.AnchorEvent, error)
	// List возвращает якоря по фильтрам.
	List(ctx context.Context, filter RegistryFilter) ([]*model.Anchor, error)
	// Count возвращает количество якорей по фильтрам (без LIMIT/OFFSET).
	Count(ctx context.Context, filter RegistryFilter) (int, error)
}

// anchorRepo — реализация AnchorRepository через pgx.
type anchorRepo struct {
	db DBTX
}

// NewAnchorRepository создаёт репозиторий якорей.
func NewAnchorRepository(db DBTX) AnchorRepository {
	return &anchorRepo{db: db}
}

func (r *anchorRepo) Insert(ctx context.Context, a *model.Anchor) error {
	query := `
		WITH ins AS (
			INSERT INTO anchors (id, public_id, owner_id, tenant_id, fingerprint, display_name,
				size_bytes, media_type, status, jurisdiction, retention_policy)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id, status, created_at, updated_at
		), ev AS (
			INSERT INTO anchor_events (anchor_id, event_type, actor_id, occurred_at)
			SELECT id, 'CREATED', $3, created_at FROM ins
			UNION ALL
			SELECT id, 'SECURED', $3, created_at FROM ins WHERE status = 'SECURED'
		)
		SELECT created_at, updated_at FROM ins`

	err := r.db.QueryRow(ctx, query,
		a.ID, a.PublicID, a.OwnerID, a.TenantID, a.Fingerprint, a.DisplayName,
		a.SizeBytes, a.MediaType, string(a.Status), a.Jurisdiction, a.RetentionPolicy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: отпечаток уже зарегистрирован", ErrConflict)
		}
		return fmt.Errorf("ошибка создания якоря: %w", err)
	}
	return nil
}

func (r *anchorRepo) FindByFingerprint(ctx context.Context, tenantID, fingerprint string) (*model.Anchor, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM anchors WHERE tenant_id = $1 AND fingerprint = $2`, anchorColumns)

	a, err := scanAnchor(r.db.QueryRow(ctx, query, tenantID, fingerprint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска якоря по отпечатку: %w", err)
	}
	return a, nil
}

func (r *anchorRepo) GetByID(ctx context.Context, id string) (*model.Anchor, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM anchors WHERE id = $1 AND deleted_at IS NULL`, anchorColumns)

	a, err := scanAnchor(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения якоря: %w", err)
	}
	return a, nil
}

func (r *anchorRepo) GetByPublicID(ctx context.Context, publicID string) (*model.Anchor, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM anchors WHERE public_id = $1 AND deleted_at IS NULL`, anchorColumns)

	a, err := scanAnchor(r.db.QueryRow(ctx, query, publicID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения якоря по public_id: %w", err)
	}
	return a, nil
}

func (r *anchorRepo) UpdateStatus(ctx context.Context, id, tenantID string, status model.AnchorStatus, actorID string) (*model.Anchor, error) {
	query := fmt.Sprintf(`
		WITH upd AS (
			UPDATE anchors
			SET status = $3, updated_at = NOW()
			WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL AND status <> 'REVOKED'
			RETURNING %s
		), ev AS (
			INSERT INTO anchor_events (anchor_id, event_type, actor_id, occurred_at)
			SELECT id, $4, $5, updated_at FROM upd
		)
		SELECT %s FROM upd`, anchorColumns, anchorColumns)

	a, err := scanAnchor(r.db.QueryRow(ctx, query, id, tenantID, string(status), eventForStatus(status), actorID))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ошибка обновления статуса якоря: %w", err)
	}

	// Ничего не обновлено: различаем отсутствие якоря и терминальный статус
	var current string
	err = r.db.QueryRow(ctx,
		`SELECT status FROM anchors WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`,
		id, tenantID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка проверки статуса якоря: %w", err)
	}
	if model.AnchorStatus(current) == model.StatusRevoked {
		return nil, ErrTerminal
	}
	return nil, fmt.Errorf("%w: статус якоря изменён конкурентно", ErrConflict)
}

func (r *anchorRepo) ApplyAttestation(ctx context.Context, id string, att model.Attestation, actorID string) (*model.Anchor, error) {
	query := fmt.Sprintf(`
		WITH prev AS (
			SELECT id AS prev_id, status AS prev_status
			FROM anchors
			WHERE id = $1 AND deleted_at IS NULL AND status <> 'REVOKED'
				AND attestation_receipt_id IS NULL
			FOR UPDATE
		), upd AS (
			UPDATE anchors
			SET attestation_receipt_id = $2, attestation_observed_at = $3,
				attestation_ordinal = $4, attestation_network = $5,
				status = 'SECURED', updated_at = NOW()
			FROM prev
			WHERE anchors.id = prev.prev_id
			RETURNING %s, prev_status
		), ev AS (
			INSERT INTO anchor_events (anchor_id, event_type, actor_id, occurred_at)
			SELECT id, 'ATTESTED', $6, updated_at FROM upd
			UNION ALL
			SELECT id, 'SECURED', $6, updated_at FROM upd WHERE prev_status = 'PENDING'
		)
		SELECT %s FROM upd`, anchorColumns, anchorColumns)

	a, err := scanAnchor(r.db.QueryRow(ctx, query,
		id, att.ReceiptID, att.ObservedAt, att.Ordinal, att.Network, actorID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: якорь недоступен для аттестации", ErrConflict)
		}
		return nil, fmt.Errorf("ошибка записи аттестации: %w", err)
	}
	return a, nil
}

func (r *anchorRepo) ListEvents(ctx context.Context, anchorID string) ([]model.AnchorEvent, error) {
	query := `
		SELECT id, anchor_id, event_type, actor_id, occurred_at
		FROM anchor_events
		WHERE anchor_id = $1
		ORDER BY occurred_at, id`

	rows, err := r.db.Query(ctx, query, anchorID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения хронологии якоря: %w", err)
	}
	defer rows.Close()

	var result []model.AnchorEvent
	for rows.Next() {
		var (
			e         model.AnchorEvent
			eventType string
		)
		if err := rows.Scan(&e.ID, &e.AnchorID, &eventType, &e.ActorID, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования события: %w", err)
		}
		e.EventType = model.AnchorEventType(eventType)
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *anchorRepo) List(ctx context.Context, filter RegistryFilter) ([]*model.Anchor, error) {
	where, args := buildRegistryWhere(filter, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(
		`SELECT %s FROM anchors %s %s LIMIT $%d OFFSET $%d`,
		anchorColumns, where, buildOrderBy(filter.SortBy, filter.SortOrder), argNum, argNum+1,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка якорей: %w", err)
	}
	defer rows.Close()

	var result []*model.Anchor
	for rows.Next() {
		a, err := scanAnchor(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования якоря: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

func (r *anchorRepo) Count(ctx context.Context, filter RegistryFilter) (int, error) {
	where, args := buildRegistryWhere(filter, 1)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM anchors %s`, where)

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта якорей: %w", err)
	}
	return count, nil
}

// scanAnchor сканирует строку с колонками anchorColumns.
func scanAnchor(row pgx.Row) (*model.Anchor, error) {
	var (
		a          model.Anchor
		status     string
		receiptID  *string
		observedAt *time.Time
		ordinal    *int64
		network    *string
	)
	err := row.Scan(
		&a.ID, &a.PublicID, &a.OwnerID, &a.TenantID, &a.Fingerprint, &a.DisplayName,
		&a.SizeBytes, &a.MediaType, &status, &a.Jurisdiction, &a.RetentionPolicy, &a.RetainUntil,
		&a.LegalHold, &a.DeletedAt, &receiptID, &observedAt,
		&ordinal, &network, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = model.AnchorStatus(status)
	if receiptID != nil {
		a.Attestation = &model.Attestation{ReceiptID: *receiptID}
		if observedAt != nil {
			a.Attestation.ObservedAt = *observedAt
		}
		if ordinal != nil {
			a.Attestation.Ordinal = *ordinal
		}
		if network != nil {
			a.Attestation.Network = *network
		}
	}
	return &a, nil
}

// eventForStatus возвращает тип события хронологии для целевого статуса.
func eventForStatus(status model.AnchorStatus) string {
	switch status {
	case model.StatusRevoked:
		return string(model.EventRevoked)
	case model.StatusSecured:
		return string(model.EventSecured)
	default:
		return string(status)
	}
}

// searchReplacer удаляет из поисковой строки символы шаблонов LIKE и кавычки.
var searchReplacer = strings.NewReplacer("%", "", "_", "", "'", "", `"`, "", `\`, "")

// SanitizeSearch очищает поисковую строку реестра.
func SanitizeSearch(s string) string {
	return strings.TrimSpace(searchReplacer.Replace(s))
}

// buildRegistryWhere строит WHERE-условие и аргументы для реестра якорей.
// Мягко удалённые якоря в реестр не попадают.
func buildRegistryWhere(filter RegistryFilter, startArg int) (string, []any) {
	conditions := []string{"deleted_at IS NULL"}
	var args []any
	argNum := startArg

	if filter.TenantID != nil {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argNum))
		args = append(args, *filter.TenantID)
		argNum++
	}
	if filter.OwnerID != nil {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", argNum))
		args = append(args, *filter.OwnerID)
		argNum++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, string(*filter.Status))
		argNum++
	}
	if search := SanitizeSearch(filter.Search); search != "" {
		// Имя — подстрока без учёта регистра, id — префикс
		conditions = append(conditions,
			fmt.Sprintf("(display_name ILIKE $%d OR id::text LIKE $%d)", argNum, argNum+1))
		args = append(args, "%"+search+"%", strings.ToLower(search)+"%")
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

const defaultSortColumn = "created_at"

// buildOrderBy строит ORDER BY с безопасным whitelist полей.
// id добавляется вторым ключом для стабильной пагинации.
func buildOrderBy(sortBy, sortOrder string) string {
	column := defaultSortColumn
	switch sortBy {
	case "display_name":
		column = "display_name"
	case "status":
		column = "status"
	case defaultSortColumn:
		column = defaultSortColumn
	}

	direction := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		direction = "ASC"
	}

	return fmt.Sprintf("ORDER BY %s %s, id %s", column, direction, direction)
}
