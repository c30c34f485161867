package consumer

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/CRISalid-esr/crisalid-ikg/config"
	"github.com/CRISalid-esr/crisalid-ikg/errors"
)

// Manager runs one listener per registered topic
type Manager struct {
	listeners []*Listener
	logger    *slog.Logger
}

// NewManager builds a listener for every topic registered in registry.
// Each registered topic must be declared in cfg.Topics.
func NewManager(cfg *config.Config, registry *Registry, deps Dependencies, opts Options) (*Manager, error) {
	if opts.Subscriber == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Manager", "NewManager", "subscriber validation")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if deps.Logger == nil {
		deps.Logger = opts.Logger
	}

	m := &Manager{logger: opts.Logger.With("component", "consumer")}

	for _, name := range registry.Topics() {
		topic, ok := cfg.Topic(name)
		if !ok {
			return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Manager", "NewManager", "topic "+name+" lookup")
		}

		p, err := registry.Create(name, deps)
		if err != nil {
			return nil, err
		}

		m.listeners = append(m.listeners, NewListener(topic, cfg.Consumption, p, opts))
	}

	return m, nil
}

// Listeners returns the managed listeners
func (m *Manager) Listeners() []*Listener {
	return m.listeners
}

// Run runs every listener until ctx is done. A fatal listener error cancels
// the others, which then drain.
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, l := range m.listeners {
		l := l
		g.Go(func() error {
			return l.Run(gctx)
		})
	}

	m.logger.Info("Listeners started", "count", len(m.listeners))
	err := g.Wait()
	m.logger.Info("Listeners stopped")
	return err
}
