package gateway

import (
	"sort"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/config"
	"github.com/streamvault/billing-gateway/internal/domain"
)

// Registry holds the adapters whose config block is active. Lookups for
// unknown or inactive providers fail with a config error.
type Registry struct {
	clients map[string]application.GatewayClient
}

func NewRegistry(cfg config.GatewaysConfig) *Registry {
	clients := make(map[string]application.GatewayClient)

	if cfg.NOWPayments.Active {
		c := NewNOWPayments(cfg.NOWPayments)
		clients[c.Name()] = c
	}
	if cfg.ChangeNOW.Active {
		c := NewChangeNOW(cfg.ChangeNOW)
		clients[c.Name()] = c
	}
	if cfg.PayGate.Active {
		c := NewPayGate(cfg.PayGate)
		clients[c.Name()] = c
	}
	if cfg.Stripe.Active {
		c := NewStripe(cfg.Stripe)
		clients[c.Name()] = c
	}
	if cfg.HoodPay.Active {
		c := NewHoodPay(cfg.HoodPay)
		clients[c.Name()] = c
	}

	return &Registry{clients: clients}
}

func (r *Registry) Get(name string) (application.GatewayClient, error) {
	client, ok := r.clients[name]
	if !ok {
		return nil, domain.NewConfigError(name)
	}
	return client, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
