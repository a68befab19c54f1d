// Пакет openapi — встроенный OpenAPI контракт и валидация запросов по нему.
// Проверяются параметры пути и запроса, а также тела JSON-запросов.
// Аутентификация выполняется JWT middleware, здесь не проверяется.
package openapi

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	apierrors "github.com/bigkaa/anchorvault/internal/api/errors"
)

//go:embed openapi.yaml
var specYAML []byte

// Spec возвращает исходный текст контракта.
func Spec() []byte {
	return specYAML
}

// Load разбирает и проверяет встроенный контракт.
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("разбор OpenAPI контракта: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("невалидный OpenAPI контракт: %w", err)
	}
	return doc, nil
}

// Validator — middleware валидации запросов по контракту.
type Validator struct {
	router routers.Router
	logger *slog.Logger
}

// NewValidator создаёт валидатор запросов.
func NewValidator(doc *openapi3.T, logger *slog.Logger) (*Validator, error) {
	// Серверы контракта относительные: маршруты сопоставляются только по пути
	doc.Servers = nil

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("создание маршрутизатора OpenAPI: %w", err)
	}
	return &Validator{
		router: router,
		logger: logger.With(slog.String("component", "openapi_validator")),
	}, nil
}

// Middleware возвращает HTTP middleware валидации.
// Запросы к путям вне контракта пропускаются без проверки.
func (v *Validator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := v.router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				v.logger.Debug("Запрос не соответствует контракту",
					slog.String("method", r.Method),
					slog.String("route", route.Path),
					slog.String("error", err.Error()),
				)
				apierrors.ValidationError(w, describe(err))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// describe формирует короткое сообщение об ошибке валидации без дампа схемы.
func describe(err error) string {
	var b strings.Builder
	switch e := err.(type) {
	case *openapi3filter.RequestError:
		if e.Parameter != nil {
			fmt.Fprintf(&b, "некорректный параметр %q", e.Parameter.Name)
		} else if e.RequestBody != nil {
			b.WriteString("некорректное тело запроса")
		} else {
			b.WriteString("некорректный запрос")
		}
		if se, ok := e.Err.(*openapi3.SchemaError); ok && se.Reason != "" {
			b.WriteString(": " + se.Reason)
		} else if e.Reason != "" {
			b.WriteString(": " + e.Reason)
		}
	default:
		b.WriteString("запрос не соответствует контракту API")
	}
	return b.String()
}
