package idpauth

import (
	"go.uber.org/zap"

	"github.com/BlackMission/idpauth/internal/auth"
	"github.com/BlackMission/idpauth/internal/config"
	"github.com/BlackMission/idpauth/internal/event"
	"github.com/BlackMission/idpauth/internal/exchange"
	"github.com/BlackMission/idpauth/internal/metrics"
	"github.com/BlackMission/idpauth/internal/popup"
	"github.com/BlackMission/idpauth/internal/resolver"
	"github.com/BlackMission/idpauth/internal/server"
)

// NewFromConfig wires a Client from loaded configuration: the backend
// exchange client, the auth instance, the provider registry and a resolver
// with a loopback channel. opener may be nil to use the system browser.
func NewFromConfig(cfg *config.Config, opener popup.Opener, log *zap.Logger, m *metrics.Metrics) (*Client, error) {
	ex := exchange.New(exchange.Config{
		BaseURL:    cfg.App.APIBaseURL,
		APIKey:     cfg.App.APIKey,
		SDKVersion: cfg.App.SDKVersion,
		Timeout:    cfg.Timeouts.HTTP,
		Logger:     log,
		Metrics:    m,
	})

	a := auth.New(cfg.App.Name, cfg.AuthConfig(), ex)
	a.LanguageCode = cfg.App.Language
	a.TenantID = cfg.App.TenantID

	providers, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	opts := []resolver.Option{
		resolver.WithLogger(log),
		resolver.WithMetrics(m),
		resolver.WithChannelOpener(resolver.ServerChannel(
			server.Config{Host: cfg.Channel.Host, Port: cfg.Channel.Port},
			server.Deps{Logger: log, Metrics: m},
		)),
		resolver.WithManagerOptions(event.WithSettledTTL(cfg.Timeouts.Settled)),
	}
	if opener != nil {
		opts = append(opts, resolver.WithOpener(opener))
	}

	return New(Config{
		Auth:         a,
		Providers:    providers,
		Resolver:     resolver.New(opts...),
		PopupTimeout: cfg.Timeouts.Popup,
		Logger:       log,
		Metrics:      m,
	})
}
