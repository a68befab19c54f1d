// auth.go — JWT middleware аутентификации сервиса якорей.
// Проверяет подпись через JWKS IdP, определяет тип субъекта (пользователь /
// сервисный аккаунт), организацию из настраиваемого claim и роль по группам.
// Результат — model.Actor в контексте запроса для сервисного слоя.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/anchorvault/internal/api/errors"
	"github.com/bigkaa/anchorvault/internal/domain/model"
	"github.com/bigkaa/anchorvault/internal/domain/rbac"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyClaims — извлечённые claims в контексте запроса.
	ContextKeyClaims contextKey = "jwt_claims"
)

// DefaultTenantClaim — имя claim с идентификатором организации по умолчанию.
const DefaultTenantClaim = "org_id"

// SubjectType — тип субъекта JWT.
type SubjectType string

const (
	// SubjectTypeUser — пользователь (OIDC).
	SubjectTypeUser SubjectType = "user"
	// SubjectTypeSA — сервисный аккаунт (Client Credentials).
	SubjectTypeSA SubjectType = "service_account"
)

// AuthClaims — извлечённые и обработанные claims токена.
type AuthClaims struct {
	// Subject — sub из JWT.
	Subject string
	// SubjectType — тип субъекта (user или service_account).
	SubjectType SubjectType
	// TenantID — организация из tenant claim (пусто, если не привязан).
	TenantID string

	// --- Для пользователя ---

	// Roles — роли из realm_access.roles.
	Roles []string
	// Groups — группы из JWT.
	Groups []string
	// GroupRole — роль, вычисленная из групп IdP.
	GroupRole string
	// ClaimRole — явная роль из realm_access.roles (если допустима).
	ClaimRole string
	// EffectiveRole — итоговая роль = max(GroupRole, ClaimRole), минимум INDIVIDUAL.
	EffectiveRole string

	// --- Для сервисного аккаунта ---

	// Scopes — scopes из claim "scope" (через пробел).
	Scopes []string
	// ClientID — client_id из JWT.
	ClientID string
}

// HasAnyRole проверяет, совпадает ли effective роль с одной из указанных.
func (c *AuthClaims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if c.EffectiveRole == r {
			return true
		}
	}
	return false
}

// HasScope проверяет наличие указанного scope.
func (c *AuthClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Actor преобразует claims в актора сервисного слоя.
func (c *AuthClaims) Actor() *model.Actor {
	actor := &model.Actor{
		ID:             c.Subject,
		Role:           c.EffectiveRole,
		ServiceAccount: c.SubjectType == SubjectTypeSA,
		Scopes:         c.Scopes,
	}
	if c.TenantID != "" {
		tenant := c.TenantID
		actor.TenantID = &tenant
	}
	return actor
}

// idpClaims — raw claims токена IdP.
type idpClaims struct {
	jwt.RegisteredClaims
	// RealmAccess — вложенная структура для realm_access.roles.
	RealmAccess *realmAccess `json:"realm_access,omitempty"`
	// Groups — группы пользователя.
	Groups []string `json:"groups,omitempty"`
	// Scope — scopes через пробел (для сервисного аккаунта).
	Scope string `json:"scope,omitempty"`
	// ClientID — client_id (для сервисного аккаунта).
	ClientID string `json:"client_id,omitempty"`

	// extra — все claims, для чтения tenant claim с настраиваемым именем.
	extra map[string]any
}

// realmAccess — вложенная структура realm_access.
type realmAccess struct {
	Roles []string `json:"roles"`
}

// UnmarshalJSON разбирает известные claims и сохраняет остальные в extra.
func (c *idpClaims) UnmarshalJSON(data []byte) error {
	type plain idpClaims
	if err := json.Unmarshal(data, (*plain)(c)); err != nil {
		return err
	}
	return json.Unmarshal(data, &c.extra)
}

// tenant возвращает значение tenant claim в строковом виде.
// Массив (как у Keycloak Organizations) даёт первый элемент.
func (c *idpClaims) tenant(name string) string {
	v, ok := c.extra[name]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// JWTAuth — middleware JWT-аутентификации через JWKS IdP.
type JWTAuth struct {
	jwks           keyfunc.Keyfunc
	logger         *slog.Logger
	orgAdminGroups []string
	tenantClaim    string
	issuer         string
	jwtLeeway      time.Duration
}

// JWTAuthConfig — параметры JWT middleware.
type JWTAuthConfig struct {
	// JWKSURL — URL JWKS endpoint IdP.
	JWKSURL string
	// CACertPath — опциональный путь к CA-сертификату для TLS.
	CACertPath string
	// Issuer — ожидаемый issuer (пусто — не проверяется).
	Issuer string
	// TenantClaim — имя claim с организацией (AN_JWT_TENANT_CLAIM).
	TenantClaim string
	// OrgAdminGroups — группы, дающие роль ORG_ADMIN.
	OrgAdminGroups []string
	// ClientTimeout — таймаут HTTP-клиента JWKS (AN_JWKS_CLIENT_TIMEOUT).
	ClientTimeout time.Duration
	// RefreshInterval — интервал обновления JWKS (AN_JWKS_REFRESH_INTERVAL).
	RefreshInterval time.Duration
	// Leeway — допустимое отклонение времени (AN_JWT_LEEWAY).
	Leeway time.Duration
}

// NewJWTAuth создаёт JWT middleware с JWKS из IdP.
func NewJWTAuth(cfg JWTAuthConfig, logger *slog.Logger) (*JWTAuth, error) {
	// HTTP-клиент для JWKS (с кастомным CA или стандартный)
	httpClient := &http.Client{Timeout: cfg.ClientTimeout}
	if cfg.CACertPath != "" {
		var err error
		httpClient, err = httpClientWithCA(cfg.CACertPath, cfg.ClientTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", cfg.CACertPath, err)
		}
		logger.Info("CA-сертификат для JWKS добавлен в пул доверия",
			slog.String("ca_cert", cfg.CACertPath),
		)
	}

	// NoErrorReturnFirstHTTPReq — стартуем даже если IdP ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", cfg.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	auth := NewJWTAuthWithKeyfunc(k, cfg.Issuer, cfg.TenantClaim, cfg.OrgAdminGroups, logger)
	auth.jwtLeeway = cfg.Leeway
	return auth, nil
}

// httpClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
func httpClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    caCertPool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewJWTAuthWithKeyfunc(
	kf keyfunc.Keyfunc,
	issuer string,
	tenantClaim string,
	orgAdminGroups []string,
	logger *slog.Logger,
) *JWTAuth {
	if tenantClaim == "" {
		tenantClaim = DefaultTenantClaim
	}
	return &JWTAuth{
		jwks:           kf,
		logger:         logger.With(slog.String("component", "jwt_auth")),
		orgAdminGroups: orgAdminGroups,
		tenantClaim:    tenantClaim,
		issuer:         issuer,
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, валидирует подпись (RS256), формирует
// AuthClaims и помещает их в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			rawClaims := &idpClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.jwtLeeway),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, rawClaims, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}
			if !token.Valid {
				apierrors.Unauthorized(w, "Невалидный токен")
				return
			}

			subject, err := rawClaims.GetSubject()
			if err != nil || subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			claims := j.buildAuthClaims(rawClaims)
			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// buildAuthClaims формирует AuthClaims из raw claims.
func (j *JWTAuth) buildAuthClaims(raw *idpClaims) *AuthClaims {
	claims := &AuthClaims{
		Subject:  raw.Subject,
		TenantID: raw.tenant(j.tenantClaim),
	}

	// Сервисный аккаунт имеет client_id и scope
	if raw.ClientID != "" && raw.Scope != "" {
		claims.SubjectType = SubjectTypeSA
		claims.ClientID = raw.ClientID
		claims.Scopes = strings.Fields(raw.Scope)
		claims.EffectiveRole = rbac.RoleIndividual
		return claims
	}

	claims.SubjectType = SubjectTypeUser
	claims.Groups = raw.Groups
	if raw.RealmAccess != nil {
		claims.Roles = raw.RealmAccess.Roles
	}

	claims.GroupRole = rbac.MapGroupsToRole(claims.Groups, j.orgAdminGroups)

	var mapped []string
	for _, r := range claims.Roles {
		if rbac.IsValidRole(r) {
			mapped = append(mapped, r)
		}
	}
	claims.ClaimRole = rbac.HighestRole(mapped)

	claims.EffectiveRole = rbac.EffectiveRole(claims.GroupRole, claims.ClaimRole)
	return claims
}

// --- RBAC middleware helpers ---

// RequireRole возвращает middleware, требующий одну из указанных ролей.
// Сервисные аккаунты не пропускаются. Используется ПОСЛЕ JWTAuth.Middleware().
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}
			if claims.SubjectType != SubjectTypeUser {
				apierrors.Forbidden(w, "Доступ разрешён только для пользователей")
				return
			}
			if !claims.HasAnyRole(roles...) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", strings.Join(roles, " или ")))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireScope возвращает middleware, требующий scope сервисного аккаунта.
// Пользователи не пропускаются. Используется ПОСЛЕ JWTAuth.Middleware().
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}
			if claims.SubjectType != SubjectTypeSA {
				apierrors.Forbidden(w, "Доступ разрешён только для сервисных аккаунтов")
				return
			}
			if !claims.HasScope(scope) {
				apierrors.Forbidden(w, "Недостаточно прав: требуется scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// ClaimsFromContext извлекает AuthClaims из контекста запроса.
// Возвращает nil, если claims не найдены.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// ActorFromContext возвращает актора запроса или nil для анонимного запроса.
func ActorFromContext(ctx context.Context) *model.Actor {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return nil
	}
	return claims.Actor()
}

// WithClaims помещает claims в контекст (для тестов обработчиков).
func WithClaims(ctx context.Context, claims *AuthClaims) context.Context {
	return context.WithValue(ctx, ContextKeyClaims, claims)
}

// --- ReadinessChecker для IdP ---

// JWKSReadinessChecker — проверка доступности IdP через JWKS.
type JWKSReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewJWKSReadinessChecker создаёт checker доступности IdP.
func NewJWKSReadinessChecker(jwksURL, caCertPath string, timeout time.Duration) (*JWKSReadinessChecker, error) {
	client := &http.Client{Timeout: timeout}
	if caCertPath != "" {
		var err error
		client, err = httpClientWithCA(caCertPath, timeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA для readiness checker: %w", err)
		}
	}
	return &JWKSReadinessChecker{jwksURL: jwksURL, client: client}, nil
}

const statusFail = "fail"

// CheckReady проверяет доступность JWKS endpoint.
func (k *JWKSReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req) //nolint:gosec // URL из конфигурации
	if err != nil {
		return statusFail, fmt.Sprintf("JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("JWKS вернул статус %d", resp.StatusCode)
	}

	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("JWKS: невалидный JSON: %v", err)
	}
	if len(jwksResp.Keys) == 0 {
		return "degraded", "JWKS: нет ключей"
	}
	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}
