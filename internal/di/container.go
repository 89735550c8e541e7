package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-redis/redis/v8"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/payments"
	"github.com/hanko-field/commerce/internal/platform/auth"
	"github.com/hanko-field/commerce/internal/platform/config"
	pfirestore "github.com/hanko-field/commerce/internal/platform/firestore"
	"github.com/hanko-field/commerce/internal/platform/idempotency"
	"github.com/hanko-field/commerce/internal/platform/jobs"
	"github.com/hanko-field/commerce/internal/platform/observability"
	"github.com/hanko-field/commerce/internal/platform/ratelimit"
	"github.com/hanko-field/commerce/internal/platform/redisclient"
	"github.com/hanko-field/commerce/internal/repositories"
	firestoreRepo "github.com/hanko-field/commerce/internal/repositories/firestore"
	postgresRepo "github.com/hanko-field/commerce/internal/repositories/postgres"
	"github.com/hanko-field/commerce/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Prices      services.PriceAuthority
	Payments    services.PaymentService
	Verifier    services.PaymentVerifier
	Materialize services.OrderMaterializer
	Inventory   services.InventoryLedger
	OrderStatus services.OrderStatusProjector
	Counters    services.CounterService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services

	Authenticator *auth.Authenticator
	Limiter       ratelimit.Limiter
	Idempotency   idempotency.Store
	Audit         *services.AuditOutbox
	Redis         *redis.Client

	pubsub *pubsub.Client
	logger *zap.Logger
}

// Option customises container construction, mainly for tests.
type Option func(*options)

type options struct {
	registry      repositories.Registry
	gateway       *payments.Manager
	authenticator *auth.Authenticator
	publisher     services.AuditPublisher
	clock         func() time.Time
}

// WithRegistry skips store selection and uses the provided registry.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithGateway overrides the payment provider manager.
func WithGateway(manager *payments.Manager) Option {
	return func(o *options) { o.gateway = manager }
}

// WithAuthenticator overrides the Firebase authenticator.
func WithAuthenticator(authn *auth.Authenticator) Option {
	return func(o *options) { o.authenticator = authn }
}

// WithAuditPublisher overrides the audit sink behind the outbox.
func WithAuditPublisher(publisher services.AuditPublisher) Option {
	return func(o *options) { o.publisher = publisher }
}

// WithClock overrides the clock shared by every service.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// NewContainer constructs the runtime dependencies.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	c := &Container{Config: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = c.Close(context.Background())
		}
	}()

	reg := o.registry
	if reg == nil {
		var err error
		reg, err = openRegistry(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	c.Repositories = reg

	if err := c.buildEdge(ctx, cfg, o); err != nil {
		return nil, err
	}

	publisher := o.publisher
	if publisher == nil {
		var err error
		publisher, err = c.openAuditPublisher(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	outbox, err := services.NewAuditOutbox(services.AuditOutboxDeps{
		Publisher:      publisher,
		BufferSize:     cfg.Audit.BufferSize,
		PublishTimeout: cfg.Audit.PublishTimeout,
		Clock:          o.clock,
		Logger:         observability.ServiceLogger(logger.Named("audit")),
	})
	if err != nil {
		return nil, fmt.Errorf("build audit outbox: %w", err)
	}
	outbox.Start()
	c.Audit = outbox

	gateway := o.gateway
	if gateway == nil {
		gateway, err = newGatewayManager(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	svc, err := buildServices(reg, cfg, gateway, outbox, o.clock, logger)
	if err != nil {
		return nil, err
	}
	c.Services = svc

	if o.authenticator != nil {
		c.Authenticator = o.authenticator
	} else {
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			return nil, fmt.Errorf("build firebase verifier: %w", err)
		}
		c.Authenticator = auth.NewAuthenticator(verifier)
	}

	ok = true
	return c, nil
}

// Close drains the audit outbox and releases store, Redis and Pub/Sub clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []string
	if c.Audit != nil {
		if err := c.Audit.Close(ctx); err != nil {
			errs = append(errs, "audit: "+err.Error())
		}
	}
	if c.pubsub != nil {
		if err := c.pubsub.Close(); err != nil {
			errs = append(errs, "pubsub: "+err.Error())
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, "redis: "+err.Error())
		}
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, "store: "+err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("di: close: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ReadinessChecks exposes dependency probes for /readyz keyed by dependency name.
func (c *Container) ReadinessChecks() map[string]func(context.Context) error {
	checks := make(map[string]func(context.Context) error)
	if c.Repositories != nil {
		checks[c.Config.Store.Driver] = c.Repositories.Ping
	}
	if c.Redis != nil {
		client := c.Redis
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}

func openRegistry(ctx context.Context, cfg config.Config) (repositories.Registry, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		db, err := postgresRepo.Open(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := postgresRepo.ApplySchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		reg, err := postgresRepo.NewRegistry(db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("build postgres registry: %w", err)
		}
		return reg, nil
	case config.StoreDriverFirestore, "":
		provider := pfirestore.NewProvider(cfg.Firestore)
		reg, err := firestoreRepo.NewRegistry(provider)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, fmt.Errorf("build firestore registry: %w", err)
		}
		return reg, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// buildEdge prepares the rate limiter and idempotency store, backed by Redis when configured.
func (c *Container) buildEdge(ctx context.Context, cfg config.Config, o options) error {
	client, err := redisclient.Open(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if client == nil {
		c.logger.Warn("redis not configured; rate limits and idempotency keys are process local")
		c.Limiter = ratelimit.NewMemoryLimiter(cfg.RateLimits.CreatePerMinute, cfg.RateLimits.Burst, o.clock)
		c.Idempotency = idempotency.NewMemoryStore()
		return nil
	}
	c.Redis = client

	limiter, err := ratelimit.NewRedisLimiter(client, cfg.RateLimits.CreatePerMinute, time.Minute)
	if err != nil {
		return fmt.Errorf("build rate limiter: %w", err)
	}
	store, err := idempotency.NewRedisStore(client)
	if err != nil {
		return fmt.Errorf("build idempotency store: %w", err)
	}
	c.Limiter = limiter
	c.Idempotency = store
	return nil
}

func (c *Container) openAuditPublisher(ctx context.Context, cfg config.Config) (services.AuditPublisher, error) {
	topicID := strings.TrimSpace(cfg.Audit.Topic)
	if topicID == "" {
		c.logger.Warn("audit topic not configured; audit events are logged only")
		return logAuditPublisher{logger: c.logger.Named("audit")}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.Audit.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("build pubsub client: %w", err)
	}
	c.pubsub = client
	publisher, err := jobs.NewPubSubAuditPublisher(client.Topic(topicID))
	if err != nil {
		return nil, err
	}
	return publisher, nil
}

func newGatewayManager(cfg config.Config, logger *zap.Logger) (*payments.Manager, error) {
	gatewayLogger := payments.Logger(observability.ServiceLogger(logger.Named("payments")))
	providers := make(map[string]payments.Provider)

	if cfg.Payments.KeyID != "" && cfg.Payments.KeySecret != "" {
		razorpay, err := payments.NewRazorpayProvider(payments.RazorpayProviderConfig{
			BaseURL:   cfg.Payments.GatewayBaseURL,
			KeyID:     cfg.Payments.KeyID,
			KeySecret: cfg.Payments.KeySecret,
			Timeout:   cfg.Payments.Timeout,
			Logger:    gatewayLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("build razorpay provider: %w", err)
		}
		providers["razorpay"] = razorpay
	}
	if cfg.Payments.StripeAPIKey != "" {
		stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.Payments.StripeAPIKey,
			Logger: gatewayLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe provider: %w", err)
		}
		providers["stripe"] = stripe
	}
	if len(providers) == 0 {
		return nil, errors.New("no payment provider credentials configured")
	}
	return payments.NewManager(providers, payments.WithDefaultProvider(cfg.Payments.Provider))
}

func buildServices(reg repositories.Registry, cfg config.Config, gateway *payments.Manager, audit services.AuditSink, clock func() time.Time, logger *zap.Logger) (Services, error) {
	svcLogger := services.Logger(observability.ServiceLogger(logger.Named("services")))
	newID := func() string { return ulid.Make().String() }
	minimum := cfg.Payments.MinimumChargeAmount()

	var svc Services
	var err error

	svc.Prices, err = services.NewPriceAuthority(services.PriceAuthorityDeps{
		Products:      reg.Products(),
		PromoCodes:    reg.PromoCodes(),
		Carts:         reg.Carts(),
		Currency:      cfg.Payments.Currency,
		MinimumAmount: minimum,
		Clock:         clock,
		Logger:        svcLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build price authority: %w", err)
	}

	svc.Payments, err = services.NewPaymentService(services.PaymentServiceDeps{
		Prices:         svc.Prices,
		Gateway:        gateway,
		Records:        reg.PaymentRecords(),
		DesignRequests: reg.DesignRequests(),
		Provider:       cfg.Payments.Provider,
		Currency:       cfg.Payments.Currency,
		MinimumAmount:  minimum,
		Timeout:        cfg.Payments.Timeout,
		Clock:          clock,
		Logger:         svcLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}

	svc.Counters, err = services.NewCounterService(services.CounterServiceDeps{
		Repository:  reg.Counters(),
		Clock:       clock,
		OrderPrefix: cfg.Orders.NumberPrefix,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}

	svc.Materialize, err = services.NewOrderMaterializer(services.OrderMaterializerDeps{
		Store:       reg.Materializer(),
		Addresses:   reg.Addresses(),
		Counters:    svc.Counters,
		Audit:       audit,
		IDGenerator: newID,
		Clock:       clock,
		Logger:      svcLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order materializer: %w", err)
	}

	svc.Verifier, err = services.NewPaymentVerifier(services.PaymentVerifierDeps{
		Records:        reg.PaymentRecords(),
		Orders:         reg.Orders(),
		DesignRequests: reg.DesignRequests(),
		Products:       reg.Products(),
		Gateway:        gateway,
		Materializer:   svc.Materialize,
		Clock:          clock,
		Logger:         svcLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment verifier: %w", err)
	}

	svc.Inventory, err = services.NewInventoryLedger(services.InventoryLedgerDeps{
		RawMaterials: reg.RawMaterials(),
		Audit:        audit,
		IDGenerator:  newID,
		Clock:        clock,
		Logger:       svcLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory ledger: %w", err)
	}

	svc.OrderStatus, err = services.NewOrderStatusProjector(services.OrderStatusProjectorDeps{Orders: reg.Orders()})
	if err != nil {
		return Services{}, fmt.Errorf("build order status projector: %w", err)
	}
	return svc, nil
}

// logAuditPublisher stands in for Pub/Sub in environments without an audit topic.
type logAuditPublisher struct {
	logger *zap.Logger
}

func (p logAuditPublisher) PublishAudit(_ context.Context, event domain.AuditEvent) error {
	p.logger.Info("audit event",
		zap.String("id", event.ID),
		zap.String("action", event.Action),
		zap.String("actor", event.ActorID),
		zap.String("target", event.TargetRef),
		zap.Time("occurredAt", event.OccurredAt),
	)
	return nil
}
