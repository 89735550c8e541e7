package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/currency"
)

const (
	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultStoreDriver        = StoreDriverFirestore
	defaultPostgresMaxOpen    = 20
	defaultPostgresMaxIdle    = 10
	defaultPostgresLifetime   = time.Hour
	defaultPaymentsProvider   = "razorpay"
	defaultPaymentsCurrency   = "INR"
	defaultPaymentsTimeout    = 10 * time.Second
	defaultGatewayBaseURL     = "https://api.razorpay.com"
	defaultOrderNumberPrefix  = "HF"
	defaultAuditBufferSize    = 256
	defaultAuditPublishTimout = 5 * time.Second
	defaultRateLimitPerMinute = 20
	defaultRateLimitBurst     = 5
	defaultIdempotencyHeader  = "Idempotency-Key"
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultSecretsEnvironment = "local"
	defaultSecretsFallback    = ".secrets.local"
)

// Supported persistence drivers.
const (
	StoreDriverFirestore = "firestore"
	StoreDriverPostgres  = "postgres"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Store       StoreConfig
	Payments    PaymentsConfig
	Orders      OrdersConfig
	Audit       AuditConfig
	Redis       RedisConfig
	RateLimits  RateLimitConfig
	Idempotency IdempotencyConfig
	Secrets     SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	// CheckRevoked makes token verification consult Firebase for revoked sessions.
	CheckRevoked bool
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver          string
	PostgresDSN     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PaymentsConfig configures the payment gateway adapter.
type PaymentsConfig struct {
	Provider string
	Currency string
	// MinimumAmount is the smallest chargeable total in minor units. Zero means one major unit.
	MinimumAmount  int64
	Timeout        time.Duration
	GatewayBaseURL string
	KeyID          string
	KeySecret      string
	StripeAPIKey   string
}

// OrdersConfig controls order numbering.
type OrdersConfig struct {
	NumberPrefix string
}

// AuditConfig controls the audit outbox.
type AuditConfig struct {
	ProjectID      string
	Topic          string
	BufferSize     int
	PublishTimeout time.Duration
}

// RedisConfig points at the Redis instance used for rate limits and idempotency keys.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig controls per-user throttling of payment creation.
type RateLimitConfig struct {
	CreatePerMinute int
	Burst           int
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// SecretsConfig configures Secret Manager lookups.
type SecretsConfig struct {
	Environment  string
	ProjectID    string
	FallbackFile string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to empty values.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns hashed identifiers safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying config field names.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map take precedence over the OS environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the OS environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// EnvironmentValues returns the effective key/value map after applying Load's precedence rules
// (.env < OS env < explicit map), so callers can bootstrap the secret fetcher before Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := defaultLoaderOptions()
	for _, opt := range opts {
		opt(&options)
	}

	values, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and Secret Manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := defaultLoaderOptions()
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
			CheckRevoked:    boolWithDefault(lookup, "API_FIREBASE_CHECK_REVOKED", false),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Store: StoreConfig{
			Driver:          strings.ToLower(stringWithDefault(lookup, "API_STORE_DRIVER", defaultStoreDriver)),
			PostgresDSN:     stringWithDefault(lookup, "API_STORE_POSTGRES_DSN", ""),
			MaxOpenConns:    intWithDefault(lookup, "API_STORE_POSTGRES_MAX_OPEN", defaultPostgresMaxOpen),
			MaxIdleConns:    intWithDefault(lookup, "API_STORE_POSTGRES_MAX_IDLE", defaultPostgresMaxIdle),
			ConnMaxLifetime: durationWithDefault(lookup, "API_STORE_POSTGRES_CONN_LIFETIME", defaultPostgresLifetime),
		},
		Payments: PaymentsConfig{
			Provider:       strings.ToLower(stringWithDefault(lookup, "API_PAYMENTS_PROVIDER", defaultPaymentsProvider)),
			Currency:       strings.ToUpper(stringWithDefault(lookup, "API_PAYMENTS_CURRENCY", defaultPaymentsCurrency)),
			MinimumAmount:  int64WithDefault(lookup, "API_PAYMENTS_MINIMUM_AMOUNT", 0),
			Timeout:        durationWithDefault(lookup, "API_PAYMENTS_TIMEOUT", defaultPaymentsTimeout),
			GatewayBaseURL: stringWithDefault(lookup, "API_PAYMENTS_GATEWAY_BASE_URL", defaultGatewayBaseURL),
			KeyID:          stringWithDefault(lookup, "API_PAYMENTS_KEY_ID", ""),
			KeySecret:      stringWithDefault(lookup, "API_PAYMENTS_KEY_SECRET", ""),
			StripeAPIKey:   stringWithDefault(lookup, "API_PAYMENTS_STRIPE_API_KEY", ""),
		},
		Orders: OrdersConfig{
			NumberPrefix: stringWithDefault(lookup, "API_ORDERS_NUMBER_PREFIX", defaultOrderNumberPrefix),
		},
		Audit: AuditConfig{
			ProjectID:      stringWithDefault(lookup, "API_AUDIT_PUBSUB_PROJECT_ID", ""),
			Topic:          stringWithDefault(lookup, "API_AUDIT_PUBSUB_TOPIC", ""),
			BufferSize:     intWithDefault(lookup, "API_AUDIT_BUFFER_SIZE", defaultAuditBufferSize),
			PublishTimeout: durationWithDefault(lookup, "API_AUDIT_PUBLISH_TIMEOUT", defaultAuditPublishTimout),
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password: stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "API_REDIS_DB", 0),
		},
		RateLimits: RateLimitConfig{
			CreatePerMinute: intWithDefault(lookup, "API_RATELIMIT_CREATE_PER_MIN", defaultRateLimitPerMinute),
			Burst:           intWithDefault(lookup, "API_RATELIMIT_BURST", defaultRateLimitBurst),
		},
		Idempotency: IdempotencyConfig{
			Header: stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
		Secrets: SecretsConfig{
			Environment:  strings.ToLower(stringWithDefault(lookup, "API_SECRETS_ENVIRONMENT", defaultSecretsEnvironment)),
			ProjectID:    stringWithDefault(lookup, "API_SECRETS_PROJECT_ID", ""),
			FallbackFile: stringWithDefault(lookup, "API_SECRETS_FALLBACK_FILE", defaultSecretsFallback),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Audit.ProjectID == "" {
		cfg.Audit.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firebase.ProjectID
	}

	secretFields := []struct {
		name  string
		field *string
	}{
		{"Payments.KeySecret", &cfg.Payments.KeySecret},
		{"Payments.StripeAPIKey", &cfg.Payments.StripeAPIKey},
		{"Store.PostgresDSN", &cfg.Store.PostgresDSN},
		{"Redis.Password", &cfg.Redis.Password},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = strings.TrimSpace(resolved)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(cfg); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

// MinimumChargeAmount returns the configured minimum or one major unit of the currency in minor units.
func (p PaymentsConfig) MinimumChargeAmount() int64 {
	if p.MinimumAmount > 0 {
		return p.MinimumAmount
	}
	return OneMajorUnit(p.Currency)
}

// OneMajorUnit returns 10^digits for the ISO 4217 currency, defaulting to 100 when unknown.
func OneMajorUnit(code string) int64 {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return 100
	}
	scale, _ := currency.Standard.Rounding(unit)
	amount := int64(1)
	for i := 0; i < scale; i++ {
		amount *= 10
	}
	return amount
}

func defaultLoaderOptions() loaderOptions {
	return loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", errSecretResolverNotConfigured
		}),
	}
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}

	switch cfg.Store.Driver {
	case StoreDriverFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case StoreDriverPostgres:
		if cfg.Store.PostgresDSN == "" {
			missing = append(missing, "Store.PostgresDSN")
		}
	default:
		missing = append(missing, "Store.Driver")
	}

	switch cfg.Payments.Provider {
	case "razorpay":
		if strings.TrimSpace(cfg.Payments.KeyID) == "" {
			missing = append(missing, "Payments.KeyID")
		}
		if strings.TrimSpace(cfg.Payments.GatewayBaseURL) == "" {
			missing = append(missing, "Payments.GatewayBaseURL")
		}
	case "stripe":
	default:
		missing = append(missing, "Payments.Provider")
	}
	if _, err := currency.ParseISO(cfg.Payments.Currency); err != nil {
		missing = append(missing, "Payments.Currency")
	}
	if cfg.Payments.Timeout <= 0 {
		missing = append(missing, "Payments.Timeout")
	}
	if cfg.Payments.MinimumAmount < 0 {
		missing = append(missing, "Payments.MinimumAmount")
	}
	if strings.TrimSpace(cfg.Orders.NumberPrefix) == "" {
		missing = append(missing, "Orders.NumberPrefix")
	}
	if cfg.Audit.BufferSize <= 0 {
		missing = append(missing, "Audit.BufferSize")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(cfg Config) *MissingSecretsError {
	var names []string
	switch cfg.Payments.Provider {
	case "razorpay":
		if cfg.Payments.KeySecret == "" {
			names = append(names, "Payments.KeySecret")
		}
	case "stripe":
		if cfg.Payments.StripeAPIKey == "" {
			names = append(names, "Payments.StripeAPIKey")
		}
	}
	if len(names) == 0 {
		return nil
	}
	return &MissingSecretsError{names: names}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
