// verification.go — публичный резолвер верификации.
// Кэширует публичные проекции в LRU с TTL и объединяет
// конкурентные промахи по одному идентификатору.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/anchorvault/internal/domain/model"
	"github.com/bigkaa/anchorvault/internal/fingerprint"
)

// Prometheus-метрики верификации.
var (
	verifyCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "an_verify_cache_hits_total",
		Help: "Общее количество попаданий в кэш публичной верификации.",
	})
	verifyCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "an_verify_cache_misses_total",
		Help: "Общее количество промахов кэша публичной верификации.",
	})
	verifyLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "an_verify_lookups_total",
		Help: "Количество публичных проверок по результату.",
	}, []string{"result"})
)

// lookupTimeout ограничивает общее чтение проекции, не зависящее от отмены
// запроса, который начал его первым.
const lookupTimeout = 5 * time.Second

// VerificationCache — LRU-кэш публичных проекций с автоматическим TTL.
// nil-кэш допустим: все операции становятся no-op.
//
// Поколение растёт при каждой инвалидации. Проекция, прочитанная до
// инвалидации, в кэш уже не попадает (см. SetIfCurrent).
type VerificationCache struct {
	cache *expirable.LRU[string, *model.VerificationView]

	mu         sync.Mutex
	generation uint64
}

// NewVerificationCache создаёт LRU-кэш с указанным размером и TTL.
func NewVerificationCache(maxSize int, ttl time.Duration) *VerificationCache {
	return &VerificationCache{
		cache: expirable.NewLRU[string, *model.VerificationView](maxSize, nil, ttl),
	}
}

// Get возвращает проекцию из кэша.
func (c *VerificationCache) Get(publicID string) (*model.VerificationView, bool) {
	if c == nil {
		return nil, false
	}
	val, ok := c.cache.Get(publicID)
	if ok {
		verifyCacheHitsTotal.Inc()
		return val, true
	}
	verifyCacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет проекцию в кэше.
func (c *VerificationCache) Set(publicID string, view *model.VerificationView) {
	if c == nil {
		return
	}
	c.cache.Add(publicID, view)
}

// Generation возвращает текущее поколение кэша.
func (c *VerificationCache) Generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// SetIfCurrent кэширует проекцию, только если с момента gen не было
// инвалидаций. Возвращает false, если запись отброшена.
func (c *VerificationCache) SetIfCurrent(publicID string, view *model.VerificationView, gen uint64) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false
	}
	c.cache.Add(publicID, view)
	return true
}

// Invalidate удаляет проекцию (после отзыва или аттестации)
// и отбраковывает чтения, начатые до этого момента.
func (c *VerificationCache) Invalidate(publicID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.cache.Remove(publicID)
}

// Len возвращает количество записей в кэше.
func (c *VerificationCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

// VerificationReader — источник публичных проекций (AnchorService).
type VerificationReader interface {
	ReadForVerification(ctx context.Context, publicID string) (*model.VerificationView, error)
}

// VerificationService — публичный резолвер верификации.
// Никогда не принимает содержимое файлов: сравнение отпечатков
// выполняется клиентом локально.
type VerificationService struct {
	reader VerificationReader
	cache  *VerificationCache
	group  singleflight.Group
	logger *slog.Logger
}

// NewVerificationService создаёт резолвер верификации.
func NewVerificationService(reader VerificationReader, cache *VerificationCache, logger *slog.Logger) *VerificationService {
	return &VerificationService{
		reader: reader,
		cache:  cache,
		logger: logger.With(slog.String("component", "verification_service")),
	}
}

// Resolve возвращает публичную проекцию по публичному идентификатору.
// Ненайденные идентификаторы не кэшируются.
func (s *VerificationService) Resolve(ctx context.Context, publicID string) (*model.VerificationView, error) {
	key := NormalizePublicID(publicID)

	if view, ok := s.cache.Get(key); ok {
		verifyLookupsTotal.WithLabelValues(resultLabel(view)).Inc()
		return view, nil
	}

	// Поколение входит в ключ: после инвалидации запросы не присоединяются
	// к чтению, начатому до неё.
	gen := s.cache.Generation()
	flight := key + "@" + strconv.FormatUint(gen, 10)

	v, err, _ := s.group.Do(flight, func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		view, err := s.reader.ReadForVerification(readCtx, key)
		if err != nil {
			return nil, err
		}
		if view.Found && !s.cache.SetIfCurrent(key, view, gen) {
			s.logger.Debug("Проекция устарела до записи в кэш, кэширование пропущено")
		}
		return view, nil
	})
	if err != nil {
		verifyLookupsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("публичная верификация: %w", err)
	}

	view := v.(*model.VerificationView)
	verifyLookupsTotal.WithLabelValues(resultLabel(view)).Inc()
	return view, nil
}

// Matches сравнивает отпечаток, вычисленный клиентом, с опубликованным.
func Matches(view *model.VerificationView, digest string) bool {
	if view == nil || !view.Found {
		return false
	}
	return fingerprint.Equal(view.Fingerprint, digest)
}

func resultLabel(view *model.VerificationView) string {
	if !view.Found {
		return "not_found"
	}
	return view.Headline
}
