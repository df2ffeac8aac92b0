package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/health"

	"github.com/yonathanth/Workline-backend/internal/audit"
	audithandler "github.com/yonathanth/Workline-backend/internal/audit/handler"
	auditrepo "github.com/yonathanth/Workline-backend/internal/audit/repository"
	"github.com/yonathanth/Workline-backend/internal/config"
	"github.com/yonathanth/Workline-backend/internal/db"
	healthhandler "github.com/yonathanth/Workline-backend/internal/health/handler"
	invitationhandler "github.com/yonathanth/Workline-backend/internal/invitation/handler"
	invitationrepo "github.com/yonathanth/Workline-backend/internal/invitation/repository"
	invitationservice "github.com/yonathanth/Workline-backend/internal/invitation/service"
	membershiphandler "github.com/yonathanth/Workline-backend/internal/membership/handler"
	membershiprepo "github.com/yonathanth/Workline-backend/internal/membership/repository"
	membershipservice "github.com/yonathanth/Workline-backend/internal/membership/service"
	organizationhandler "github.com/yonathanth/Workline-backend/internal/organization/handler"
	organizationrepo "github.com/yonathanth/Workline-backend/internal/organization/repository"
	organizationservice "github.com/yonathanth/Workline-backend/internal/organization/service"
	"github.com/yonathanth/Workline-backend/internal/platform/rbac"
	"github.com/yonathanth/Workline-backend/internal/policy/engine"
	"github.com/yonathanth/Workline-backend/internal/security"
	"github.com/yonathanth/Workline-backend/internal/server"
	"github.com/yonathanth/Workline-backend/internal/server/middleware"
	sessionhandler "github.com/yonathanth/Workline-backend/internal/session/handler"
	sessionrepo "github.com/yonathanth/Workline-backend/internal/session/repository"
	"github.com/yonathanth/Workline-backend/internal/session/resolver"
	sessionservice "github.com/yonathanth/Workline-backend/internal/session/service"
	telemetryotel "github.com/yonathanth/Workline-backend/internal/telemetry/otel"
	userrepo "github.com/yonathanth/Workline-backend/internal/user/repository"
)

const (
	shutdownTimeout     = 15 * time.Second
	healthSyncInterval  = 10 * time.Second
	rateLimiterIdleTTL  = 10 * time.Minute
	readHeaderTimeout   = 5 * time.Second
	httpIdleConnTimeout = 2 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.OTELServiceName,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(sctx); err != nil {
			logger.Error("telemetry shutdown", slog.Any("error", err))
		}
	}()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	tokens, err := accessTokenValidator(cfg)
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}
	sessions, closeSessions, err := openSessionStore(cfg, pool)
	if err != nil {
		log.Fatalf("session store: %v", err)
	}
	defer closeSessions()

	var tierPolicy rbac.TierPolicy = rbac.HierarchyPolicy{}
	var policyChecker healthhandler.PolicyChecker
	if cfg.RolePolicyEngine == config.PolicyEngineOPA {
		opa, err := engine.LoadOPAPolicy(ctx, cfg.RolePolicyFile)
		if err != nil {
			log.Fatalf("role policy: %v", err)
		}
		tierPolicy, policyChecker = opa, opa
	}

	users := userrepo.NewPostgresRepository(pool)
	members := membershiprepo.NewPostgresRepository(pool)
	auditRepo := auditrepo.NewPostgresRepository(pool)
	auditLogger := audit.NewLogger(auditRepo, middleware.ClientIPFromContext,
		audit.WithMirror(telemetryotel.NewAuditMirror(providers.LoggerProvider)),
		audit.WithSlog(logger),
	)

	membershipOpts := []membershipservice.Option{membershipservice.WithSessionCache(sessions)}
	if cfg.SessionStore == config.SessionStorePostgres {
		membershipOpts = append(membershipOpts, membershipservice.WithSessionsInStore())
	}
	membershipSvc := membershipservice.NewMembershipService(members, auditLogger, logger, membershipOpts...)
	organizationSvc := organizationservice.NewOrganizationService(organizationrepo.NewPostgresRepository(pool), auditLogger, logger)
	invitationSvc := invitationservice.NewInvitationService(invitationrepo.NewPostgresRepository(pool), users, members, auditLogger, logger, cfg.InvitationLifetime())
	sessionSvc := sessionservice.NewSessionService(sessions, members, auditLogger)

	healthSrv := healthhandler.NewServer(pool, policyChecker, logger)
	deps := server.Deps{
		Sessions:       resolver.New(resolver.NewStoreProvider(sessions, users, tokens, cfg.SessionCookieName), logger),
		Chain:          rbac.NewChain(rbac.NewResolver(members), tierPolicy, logger),
		Logger:         logger,
		Organizations:  organizationhandler.NewHandler(organizationSvc, logger),
		Members:        membershiphandler.NewHandler(membershipSvc, logger),
		Invitations:    invitationhandler.NewHandler(invitationSvc, logger),
		Session:        sessionhandler.NewHandler(sessionSvc, cfg.SessionCookieName, logger),
		Audit:          audithandler.NewHandler(auditRepo, logger),
		Health:         healthSrv,
		TrustedOrigins: cfg.TrustedOriginList(),
	}
	clientIP, err := middleware.NewClientIPResolver(cfg.TrustedProxyList())
	if err != nil {
		log.Fatalf("trusted proxies: %v", err)
	}
	deps.ClientIP = clientIP
	if cfg.RateLimitRPS > 0 {
		deps.RateLimiter = middleware.NewRateLimiter(logger, clientIP.ClientIP, rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst,
			middleware.WithSkipper(func(r *http.Request) bool { return r.URL.Path == "/healthz" }))
		go pruneLimiter(ctx, deps.RateLimiter)
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewHTTPHandler(deps),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       httpIdleConnTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	hs := health.NewServer()
	grpcSrv := server.NewGRPCServer(hs)
	go healthSrv.Sync(ctx, hs, healthSyncInterval)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	go func() {
		logger.Info("gRPC health server listening", slog.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("gRPC serve", slog.Any("error", err))
			stop()
		}
	}()
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP serve", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	hs.Shutdown()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		logger.Error("HTTP shutdown", slog.Any("error", err))
	}
	grpcSrv.GracefulStop()
	logger.Info("stopped")
}

// accessTokenValidator returns nil (bearer JWTs disabled) when no public key is configured.
func accessTokenValidator(cfg *config.Config) (resolver.AccessTokenValidator, error) {
	if cfg.JWTPublicKey == "" {
		return nil, nil
	}
	signer, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	return security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
}

func openSessionStore(cfg *config.Config, pool *pgxpool.Pool) (sessionrepo.Repository, func(), error) {
	if cfg.SessionStore == config.SessionStoreBolt {
		r, err := sessionrepo.OpenBolt(cfg.SessionBoltPath)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	}
	return sessionrepo.NewPostgresRepository(pool), func() {}, nil
}

func pruneLimiter(ctx context.Context, rl *middleware.RateLimiter) {
	t := time.NewTicker(rateLimiterIdleTTL)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rl.Prune(rateLimiterIdleTTL)
		}
	}
}
