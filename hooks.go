package hooks

import (
	"fmt"

	"github.com/goliatone/go-hooks/core"
	"github.com/goliatone/go-hooks/publisher"
	"github.com/goliatone/go-hooks/streams"
	"github.com/goliatone/go-hooks/subscriber"
)

type Config = core.Config

type Store = streams.Store

type WebHook = publisher.WebHook
type WebHookInput = publisher.WebHookInput
type Filter = publisher.Filter
type DeliveryStats = publisher.DeliveryStats
type Subscription = subscriber.Subscription

var (
	Everything     = publisher.Everything
	SelectedEvents = publisher.SelectedEvents
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewMemoryStore() *streams.MemoryStore {
	return streams.NewMemoryStore()
}

// Setup builds a publisher and a subscriber over one store from cfg and
// returns them behind a Facade.
func Setup(store Store, cfg Config, logger core.Logger) (*Facade, error) {
	if store == nil {
		return nil, fmt.Errorf("hooks: store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pub, err := publisher.New(store,
		publisher.WithConfig(cfg.Publisher),
		publisher.WithVendor(cfg.Vendor),
		publisher.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	sub, err := subscriber.New(store,
		subscriber.WithConfig(cfg.Subscriber),
		subscriber.WithVendor(cfg.Vendor),
		subscriber.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return NewFacade(pub, sub)
}
