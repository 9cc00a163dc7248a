package di

import (
	"fmt"

	"github.com/cryptogate/gateway_service/internal/adapters/changelly"
	"github.com/cryptogate/gateway_service/internal/adapters/exolix"
	"github.com/cryptogate/gateway_service/internal/adapters/finchpay"
	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/internal/adapters/letsexchange"
	"github.com/cryptogate/gateway_service/internal/adapters/meld"
	"github.com/cryptogate/gateway_service/internal/adapters/moonpay"
	"github.com/cryptogate/gateway_service/internal/adapters/onramp"
	"github.com/cryptogate/gateway_service/internal/adapters/simpleswap"
	"github.com/cryptogate/gateway_service/internal/domain/services/provider"
	"github.com/cryptogate/gateway_service/internal/infrastructure/config"
	"github.com/cryptogate/gateway_service/pkg/logger"
	"github.com/cryptogate/gateway_service/pkg/security"
)

// ProviderBuilder turns the providers.* configuration into adapters
type ProviderBuilder struct {
	cfg    *config.Config
	logger *logger.Logger
}

// NewProviderBuilder creates a new provider builder
func NewProviderBuilder(cfg *config.Config, logger *logger.Logger) *ProviderBuilder {
	return &ProviderBuilder{cfg: cfg, logger: logger}
}

func transport(name string, pc config.ProviderConfig) httpclient.Config {
	return httpclient.Config{
		Provider:        name,
		BaseURL:         pc.BaseURL,
		Timeout:         pc.Timeout,
		MaxRetries:      pc.MaxRetries,
		RateLimitPerSec: pc.RateLimitPerSec,
	}
}

// Build returns a registry holding every enabled provider
func (b *ProviderBuilder) Build() (*provider.Registry, error) {
	registry := provider.NewRegistry()
	for _, name := range config.ProviderNames {
		pc := b.cfg.Provider(name)
		if !pc.Enabled {
			b.logger.Info("Provider disabled", "provider", name)
			continue
		}
		p, err := b.build(name, pc)
		if err != nil {
			return nil, err
		}
		if pc.APIKey == "" {
			b.logger.Warn("Provider enabled without API key", "provider", name)
		} else {
			b.logger.Info("Provider enabled", "provider", name, "api_key", security.MaskAPIKey(pc.APIKey))
		}
		registry.Register(p)
	}
	if len(registry.All()) == 0 {
		b.logger.Warn("No providers enabled")
	}
	return registry, nil
}

func (b *ProviderBuilder) build(name string, pc config.ProviderConfig) (provider.Provider, error) {
	log := b.logger.With("provider", name)
	switch name {
	case "meld":
		return meld.NewAdapter(meld.Config{
			Config:                  transport(name, pc),
			APIKey:                  pc.APIKey,
			APISecret:               pc.APISecret,
			DefaultCountry:          pc.DefaultCountry,
			DefaultServiceProvider:  pc.DefaultServiceProvider,
			WebhookSecret:           pc.WebhookSecret,
			AllowUnverifiedWebhooks: pc.AllowUnverifiedWebhooks,
		}, log), nil
	case "onramp":
		return onramp.NewAdapter(onramp.Config{
			Config:                  transport(name, pc),
			APIKey:                  pc.APIKey,
			APISecret:               pc.APISecret,
			WebhookSecret:           pc.WebhookSecret,
			AllowUnverifiedWebhooks: pc.AllowUnverifiedWebhooks,
			ConfigTTL:               pc.CatalogTTL,
		}, log), nil
	case "moonpay":
		return moonpay.NewAdapter(moonpay.Config{
			Config:                  transport(name, pc),
			APIKey:                  pc.APIKey,
			SecretKey:               pc.APISecret,
			BuyWidgetURL:            pc.WidgetURL,
			SellWidgetURL:           pc.SellWidgetURL,
			WebhookSecret:           pc.WebhookSecret,
			AllowUnverifiedWebhooks: pc.AllowUnverifiedWebhooks,
			CurrencyTTL:             pc.CatalogTTL,
		}, log), nil
	case "finchpay":
		return finchpay.NewAdapter(finchpay.Config{
			Config:                  transport(name, pc),
			APIKey:                  pc.APIKey,
			SecretKey:               pc.APISecret,
			WidgetBaseURL:           pc.WidgetURL,
			WebhookSecret:           pc.WebhookSecret,
			AllowUnverifiedWebhooks: pc.AllowUnverifiedWebhooks,
		}, log), nil
	case "changelly":
		return changelly.NewAdapter(changelly.Config{
			Config:     transport(name, pc),
			APIKey:     pc.APIKey,
			PrivateKey: pc.APISecret,
		}, log), nil
	case "exolix":
		return exolix.NewAdapter(exolix.Config{
			Config: transport(name, pc),
			APIKey: pc.APIKey,
		}, log), nil
	case "letsexchange":
		return letsexchange.NewAdapter(letsexchange.Config{
			Config:      transport(name, pc),
			APIKey:      pc.APIKey,
			AffiliateID: pc.AffiliateID,
		}, log), nil
	case "simpleswap":
		return simpleswap.NewAdapter(simpleswap.Config{
			Config: transport(name, pc),
			APIKey: pc.APIKey,
		}, log), nil
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}
