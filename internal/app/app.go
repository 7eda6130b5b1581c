package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/thushan-yassen/egressgw/internal/adapter/breaker"
	"github.com/thushan-yassen/egressgw/internal/adapter/keypool"
	"github.com/thushan-yassen/egressgw/internal/adapter/keystate"
	"github.com/thushan-yassen/egressgw/internal/adapter/pool"
	"github.com/thushan-yassen/egressgw/internal/adapter/provider"
	"github.com/thushan-yassen/egressgw/internal/adapter/ratelimit"
	"github.com/thushan-yassen/egressgw/internal/adapter/transport"
	"github.com/thushan-yassen/egressgw/internal/app/middleware"
	"github.com/thushan-yassen/egressgw/internal/config"
	"github.com/thushan-yassen/egressgw/internal/core/domain"
	"github.com/thushan-yassen/egressgw/internal/core/ports"
	"github.com/thushan-yassen/egressgw/internal/logger"
	"github.com/thushan-yassen/egressgw/internal/metrics"
	"github.com/thushan-yassen/egressgw/internal/router"
	"github.com/thushan-yassen/egressgw/internal/vpn/bootstrap"
	"github.com/thushan-yassen/egressgw/internal/vpn/cmdrunner"
	"github.com/thushan-yassen/egressgw/internal/vpn/health"
	"github.com/thushan-yassen/egressgw/internal/vpn/route"
)

// Application wires the LLM provider pool (C1-C6) and, when enabled, the
// egress VPN controller (C7-C9) behind one HTTP surface.
type Application struct {
	config   *config.Config
	configMu sync.RWMutex

	logger   logger.StyledLogger
	registry *router.RouteRegistry
	server   *http.Server
	errCh    chan error

	metrics *metrics.Registry

	pool *pool.Client

	tunnel  ports.Tunnel
	routes  ports.RouteProgrammer
	checker ports.HealthChecker
}

// New builds an Application from cfg. The pool client is always built; the
// VPN components are built only when cfg.VPN.Enabled.
func New(cfg *config.Config, styledLogger logger.StyledLogger) (*Application, error) {
	reg := metrics.New()

	poolClient, err := buildPool(cfg, reg.Pool)
	if err != nil {
		return nil, fmt.Errorf("app: building provider pool: %w", err)
	}

	app := &Application{
		config:   cfg,
		logger:   styledLogger,
		registry: router.NewRouteRegistry(styledLogger),
		metrics:  reg,
		pool:     poolClient,
		errCh:    make(chan error, 1),
	}

	if cfg.VPN.Enabled {
		runner := cmdrunner.New()
		descriptor, err := vpnDescriptor(cfg.VPN)
		if err != nil {
			return nil, fmt.Errorf("app: building vpn descriptor: %w", err)
		}

		tunnel := bootstrap.New(runner, descriptor).WithMetrics(reg.VPN)
		app.tunnel = tunnel

		app.routes = route.New(runner, route.Config{
			Domains:     cfg.VPN.Route.Domains,
			CIDRs:       cfg.VPN.Route.CIDRs,
			BypassCIDRs: cfg.VPN.Route.BypassCIDRs,
		})

		probeClient, err := transport.New("", cfg.VPN.HealthProbeTimeout)
		if err != nil {
			return nil, fmt.Errorf("app: building vpn probe client: %w", err)
		}
		if cfg.VPN.ProbeURL != "" {
			probeClient = transport.NewProbeLimited(probeClient, 1, 2)
		}
		app.checker = health.New(runner, health.Config{
			Descriptor: descriptor,
			ProbeURL:   cfg.VPN.ProbeURL,
			Enabled:    true,
		}, probeClient).WithMetrics(reg.VPN)
	}

	app.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return app, nil
}

func buildPool(cfg *config.Config, poolMetrics *metrics.Pool) (*pool.Client, error) {
	httpClient, err := transport.New("", time.Duration(cfg.AI.TimeoutSeconds)*time.Second)
	if err != nil {
		return nil, err
	}

	providerKind, err := parseProvider(cfg.AI.Provider)
	if err != nil {
		return nil, err
	}

	keys := make([]domain.Key, 0, len(cfg.AI.APIKeys))
	for i, secret := range cfg.AI.APIKeys {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			continue
		}
		keys = append(keys, domain.Key{Secret: secret, Provider: providerKind, Order: i})
	}

	strategy, err := parseStrategy(cfg.AI.Strategy)
	if err != nil {
		return nil, err
	}

	store := keystate.NewStore()
	keyPool := keypool.New(keys, strategy, store)
	limiter := ratelimit.New(store, cfg.AI.QPSPerKey, cfg.AI.BurstMultiplier)
	circuitBreaker := breaker.New(store, cfg.AI.FailureThreshold, cfg.AI.RecoveryTimeout)

	factory := provider.NewFactory(httpClient,
		provider.GeminiConfig{
			ModelText:   cfg.AI.ModelText,
			ModelVision: cfg.AI.ModelVision,
			MaxRetries:  cfg.AI.MaxRetries,
		},
		provider.OpenRouterConfig{
			BaseURL:     cfg.AI.OpenRouter.BaseURL,
			ModelText:   cfg.AI.ModelText,
			ModelVision: cfg.AI.ModelVision,
			MaxRetries:  cfg.AI.MaxRetries,
			Referer:     cfg.AI.OpenRouter.AppURL,
			Title:       cfg.AI.OpenRouter.AppName,
		},
	)

	return pool.New(pool.Config{
		Selector:         keyPool,
		Pool:             keyPool,
		Limiter:          limiter,
		Breaker:          circuitBreaker,
		Factory:          factory,
		PerKeyMaxRetries: cfg.AI.PerKeyMaxRetries,
		Metrics:          poolMetrics,
	}), nil
}

func parseProvider(name string) (domain.Provider, error) {
	switch strings.ToLower(name) {
	case "gemini":
		return domain.ProviderGeminiV1Beta, nil
	case "openrouter":
		return domain.ProviderOpenRouterV1, nil
	default:
		return domain.ProviderUnknown, fmt.Errorf("app: unsupported ai.provider %q", name)
	}
}

func parseStrategy(name string) (ports.SelectionStrategy, error) {
	switch strings.ToLower(name) {
	case "", "round_robin":
		return ports.StrategyRoundRobin, nil
	case "least_busy":
		return ports.StrategyLeastBusy, nil
	default:
		return "", fmt.Errorf("app: unsupported ai.strategy %q", name)
	}
}

func vpnDescriptor(cfg config.VPNConfig) (domain.TunnelDescriptor, error) {
	switch strings.ToLower(cfg.Type) {
	case "wireguard":
		return domain.TunnelDescriptor{Kind: domain.TunnelWireGuard, ConfigPath: cfg.WireGuard.ConfigPath, InterfaceName: cfg.WireGuard.Interface}, nil
	case "awg":
		return domain.TunnelDescriptor{Kind: domain.TunnelAWG, ConfigPath: cfg.WireGuard.ConfigPath, InterfaceName: cfg.WireGuard.Interface}, nil
	case "openvpn":
		return domain.TunnelDescriptor{Kind: domain.TunnelOpenVPN, ConfigPath: cfg.OpenVPN.ConfigPath, InterfaceName: cfg.OpenVPN.Interface}, nil
	case "hysteria2":
		return domain.TunnelDescriptor{
			Kind:       domain.TunnelHysteria2,
			ConfigPath: cfg.Hysteria2.ConfigPath,
			URI:        cfg.Hysteria2.URI,
			SOCKS5Port: cfg.Hysteria2.SOCKS5Port,
			HTTPPort:   cfg.Hysteria2.HTTPPort,
		}, nil
	default:
		return domain.TunnelDescriptor{}, fmt.Errorf("app: unsupported vpn.type %q", cfg.Type)
	}
}

// Start wires the HTTP routes and, if configured, brings the VPN tunnel up
// before serving.
func (a *Application) Start(ctx context.Context) error {
	go func() {
		select {
		case err := <-a.errCh:
			a.logger.Error("server startup error", "error", err)
		case <-ctx.Done():
			return
		}
	}()

	cfg := a.getConfig()
	if cfg.VPN.Enabled && a.tunnel != nil {
		if err := a.tunnel.Start(ctx, cfg.VPN.BootstrapTimeout); err != nil {
			a.logger.ErrorWithComponent("vpn bootstrap failed", "vpn", "error", err)
			a.errCh <- err
		} else {
			mode := domain.RouteMode(strings.ToLower(cfg.VPN.Route.Mode))
			if a.tunnel.ProxyURL() == "" && a.routes != nil {
				if err := a.routes.Apply(ctx, mode, a.tunnel.Descriptor().InterfaceName); err != nil {
					a.logger.ErrorWithComponent("vpn route programming failed", "vpn", "error", err)
					a.errCh <- err
				}
			}
			a.logger.InfoWithComponent("vpn tunnel up", "vpn", "kind", cfg.VPN.Type)
		}
	}

	a.startWebServer()
	a.logger.Info("egressgw started", "bind", a.server.Addr)
	return nil
}

// Stop shuts the HTTP server down and restores the routing table if the
// route programmer moved it.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.getConfig().Server.ShutdownTimeout)
	defer cancel()

	if a.routes != nil {
		if err := a.routes.Restore(shutdownCtx); err != nil {
			a.logger.WarnWithComponent("failed to restore default route", "vpn", "error", err)
		}
	}

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	return nil
}

func (a *Application) registerRoutes() {
	a.registry.RegisterWithMethod("/api/pool/call", a.poolCallHandler, "Dispatch a pool request", http.MethodPost)
	a.registry.Register("/api/pool/stats", a.poolStatsHandler, "Per-key pool statistics")
	a.registry.Register("/api/vpn/health", a.vpnHealthHandler, "VPN health snapshot")
	a.registry.Register("/metrics", a.metricsHandler, "Prometheus metrics")
	a.registry.Register("/internal/health", a.healthHandler, "Liveness check")
	a.registry.Register("/internal/version", a.versionHandler, "Build/version metadata")
}

func (a *Application) startWebServer() {
	cfg := a.getConfig()
	a.logger.Info("starting web server", "host", cfg.Server.Host, "port", cfg.Server.Port)

	a.registerRoutes()
	handler := middleware.AccessLoggingMiddleware(a.logger)(a.registry.WireUp())
	a.server.Handler = handler

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", "error", err)
			a.errCh <- err
		}
	}()
}

func (a *Application) metricsHandler(w http.ResponseWriter, r *http.Request) {
	a.metrics.Handler().ServeHTTP(w, r)
}

// PoolStats exposes the C3 key-pool snapshot for the pool-stats diagnostic
// command, without requiring the HTTP server to be running.
func (a *Application) PoolStats() map[string]domain.KeyStateSnapshot {
	return a.pool.Stats()
}

// ProbeVPN exposes the C9 health checker for the probe-vpn diagnostic
// command. It returns nil if the VPN controller is disabled.
func (a *Application) ProbeVPN(ctx context.Context) *domain.HealthReport {
	if a.checker == nil {
		return nil
	}
	report := a.checker.Probe(ctx)
	return &report
}
