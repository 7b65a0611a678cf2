package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"backoffice/portal/internal/audit"
	auditrepo "backoffice/portal/internal/audit/repository"
	"backoffice/portal/internal/config"
	"backoffice/portal/internal/db"
	"backoffice/portal/internal/devotp"
	identityrepo "backoffice/portal/internal/identity/repository"
	identityservice "backoffice/portal/internal/identity/service"
	"backoffice/portal/internal/localstate"
	"backoffice/portal/internal/mfa"
	"backoffice/portal/internal/mfa/channel"
	"backoffice/portal/internal/mfa/codestore"
	"backoffice/portal/internal/mfa/sms"
	"backoffice/portal/internal/profile"
	profilerepo "backoffice/portal/internal/profile/repository"
	"backoffice/portal/internal/routing"
	"backoffice/portal/internal/security"
	sessionrepo "backoffice/portal/internal/session/repository"
	"backoffice/portal/internal/session/service"
	"backoffice/portal/internal/telemetry"
	otelsetup "backoffice/portal/internal/telemetry/otel"
	"backoffice/portal/internal/telemetry/producer"
	userrepo "backoffice/portal/internal/user/repository"
)

// App holds the wired services of one portal process.
type App struct {
	Realm       routing.Realm
	Controller  *service.Controller
	Credentials *identityservice.CredentialService
	Flags       *localstate.Flags
	Audit       auditrepo.Repository
	// DevCodes is set when codes are recorded locally instead of texted.
	DevCodes *devotp.Sender
	// ShowCodes reports whether DevCodes may be printed.
	ShowCodes bool

	closers []func(context.Context) error
}

// Build wires the session controller of realm from cfg.
func Build(ctx context.Context, cfg *config.Config, realm routing.Realm, logger *slog.Logger) (app *App, err error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	app = &App{Realm: realm}
	defer func() {
		if err != nil {
			app.Close(context.WithoutCancel(ctx))
			app = nil
		}
	}()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return app, fmt.Errorf("db: %w", err)
	}
	app.onClose(func(context.Context) error { return conn.Close() })

	priv, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return app, fmt.Errorf("jwt keys: %w", err)
	}
	tokens := security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionTTL())
	app.Credentials = identityservice.NewCredentialService(
		userrepo.NewPostgresRepository(conn),
		identityrepo.NewPostgresRepository(conn),
		sessionrepo.NewPostgresRepository(conn),
		security.NewHasher(cfg.BcryptCost),
		tokens,
		string(realm),
	)
	resolver := profile.NewResolver(profilerepo.NewPostgresRepository(conn), logger)

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, perr := redis.ParseURL(cfg.RedisURL)
		if perr != nil {
			return app, fmt.Errorf("redis: %w", perr)
		}
		rdb = redis.NewClient(opts)
		app.onClose(func(context.Context) error { return rdb.Close() })
	}

	var state localstate.Store
	if cfg.StateStore == "redis" {
		state = localstate.NewRedisStore(rdb, localstate.OperatorHash(cfg.OperatorID()))
	} else {
		path := ""
		if cfg.StateDir != "" {
			path = filepath.Join(cfg.StateDir, "state.json")
		}
		fs, ferr := localstate.NewFileStore(path, "portal")
		if ferr != nil {
			return app, ferr
		}
		state = fs
	}
	app.Flags = localstate.NewFlags(state, string(realm))

	challenges, err := app.buildChallenges(cfg, rdb, state)
	if err != nil {
		return app, err
	}

	app.Audit = auditrepo.NewPostgresRepository(conn)
	auditLogger := audit.NewLogger(app.Audit, string(realm), audit.HostnameSource, logger)

	providers, err := otelsetup.NewProviders(ctx, cfg.OTelEndpoint, cfg.OTelServiceName, cfg.OTelInsecure)
	if err != nil {
		return app, fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	app.onClose(providers.Shutdown)

	sinks := telemetry.Multi{otelsetup.NewEventEmitter(providers.LoggerProvider)}
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AuthEventsKafkaTopic); kp != nil {
		sinks = append(sinks, kp)
		app.onClose(func(context.Context) error { return kp.Close() })
	}
	events := telemetry.NewAsync(sinks, logger)
	// Registered last so it runs first: pending events drain before their sinks close.
	app.onClose(func(ctx context.Context) error {
		dctx, cancel := context.WithTimeout(ctx, telemetry.ShutdownDrainDuration)
		defer cancel()
		return events.Drain(dctx)
	})

	app.Controller = service.New(realm, app.Credentials, resolver, challenges, app.Flags,
		service.WithLogger(logger),
		service.WithCallTimeout(cfg.CallTimeout()),
		service.WithAudit(auditLogger),
		service.WithEvents(events),
		service.WithSource(audit.HostnameSource(ctx)),
		service.WithTracer(providers.Tracer()),
		service.WithMeter(providers.Meter()),
	)
	return app, nil
}

// buildChallenges picks the code store and the SMS sender. Without an SMS API key codes are
// recorded locally, which production refuses. Challenge records live in state so the resend
// gate and attempt budget outlast the process.
func (a *App) buildChallenges(cfg *config.Config, rdb *redis.Client, state localstate.Store) (*mfa.ChallengeManager, error) {
	var codes codestore.Store = codestore.NewMemoryStore()
	if cfg.OTPCodeStore == "redis" {
		codes = codestore.NewRedisStore(rdb, "portal-otp")
	}

	var sender channel.Sender
	if cfg.SMSLocalAPIKey != "" {
		sender = sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)
	} else {
		if cfg.IsProduction() {
			return nil, errors.New("SMS_LOCAL_API_KEY is required when APP_ENV=production")
		}
		a.DevCodes = devotp.NewSender(devotp.NewMemoryStore(), cfg.OTPTTL())
		a.ShowCodes = cfg.OTPReturnToClient
		sender = a.DevCodes
	}

	return mfa.NewChallengeManager(
		channel.NewSMSChannel(sender, codes, cfg.OTPTTL()),
		mfa.Policy{TTL: cfg.OTPTTL(), ResendCooldown: cfg.ResendCooldown(), MaxAttempts: cfg.OTPMaxAttempts},
		mfa.WithRecords(mfa.NewKVRecords(state)),
	), nil
}

// PeekCode returns the code recorded for phone when local codes may be shown.
func (a *App) PeekCode(ctx context.Context, phone string) (string, bool) {
	if a.DevCodes == nil || !a.ShowCodes {
		return "", false
	}
	return a.DevCodes.LastCode(ctx, phone)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases everything Build opened, newest first.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i](ctx)
	}
	a.closers = nil
}
