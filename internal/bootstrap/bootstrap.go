// Package bootstrap assembles a client runtime from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"pellicule/internal/api"
	"pellicule/internal/config"
	"pellicule/internal/models"
	"pellicule/internal/observability"
	"pellicule/internal/profile"
	"pellicule/internal/realtime"
	"pellicule/internal/session"
	"pellicule/internal/storage"
	"pellicule/internal/views"
)

// Runtime holds every long-lived collaborator of one client process.
type Runtime struct {
	Config    *config.Config
	Logger    *observability.Logger
	Store     storage.Store
	API       *api.Client
	Sessions  *session.Store
	Profiles  *profile.Resolver
	Channel   *realtime.Channel
	FeedCache *views.FeedCache

	closers []func(context.Context) error
}

type options struct {
	httpClient *http.Client
	dialer     realtime.Dialer
	store      storage.Store
	logOutput  io.Writer
}

// Option overrides a collaborator New would otherwise build from config.
type Option func(*options)

// WithHTTPClient sets the HTTP client used by the REST client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithDialer replaces the realtime dialer.
func WithDialer(d realtime.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithStore replaces the slot store selected by STORAGE_DRIVER.
func WithStore(s storage.Store) Option {
	return func(o *options) { o.store = s }
}

// WithLogOutput redirects log records, stderr by default.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// New builds a Runtime. An empty REALTIME_URL runs the channel over an
// in-process bus, so events only reach views of the same process.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	o := options{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	logger := observability.NewLogger(o.logOutput, cfg.LogLevel, cfg.LogFormat)
	observability.SetGlobalLogger(logger)
	r := &Runtime{Config: cfg, Logger: logger}

	tracing, err := observability.StartTracing(ctx, cfg, observability.ServiceClient)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	r.closers = append(r.closers, tracing.Shutdown)

	if o.store != nil {
		r.Store = o.store
	} else {
		store, closeStore, err := storage.Open(ctx, cfg, logger)
		if err != nil {
			_ = r.Close(ctx)
			return nil, err
		}
		r.Store = store
		r.closers = append(r.closers, func(context.Context) error { return closeStore() })
	}

	apiOpts := []api.Option{api.WithLogger(logger), api.WithTimeout(cfg.HTTPTimeout)}
	if o.httpClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(o.httpClient))
	}
	r.API = api.NewClient(cfg.APIURL, apiOpts...)

	r.Sessions, err = session.NewStore(ctx, r.Store, r.API, session.WithLogger(logger))
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("open session: %w", err)
	}
	r.API.SetTokenSource(r.Sessions.Token)

	r.Profiles = profile.NewResolver(r.Sessions, r.API, logger)
	r.closers = append(r.closers, func(context.Context) error {
		r.Profiles.Close()
		return nil
	})

	dialer := o.dialer
	if dialer == nil {
		if cfg.RealtimeURL != "" {
			dialer = &realtime.WebSocketDialer{URL: cfg.RealtimeURL, Token: r.Sessions.Token}
		} else {
			dialer = realtime.NewMemoryBus()
		}
	}
	r.Channel = realtime.NewChannel(dialer, realtime.WithLogger(logger))
	// The handshake token is read once per dial; an identity change reconnects.
	stopRedial := r.Sessions.Subscribe(func(*models.Identity) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
		defer cancel()
		if err := r.Channel.Redial(ctx); err != nil {
			logger.Warn("realtime redial after identity change failed", "error", err)
		}
	})
	r.closers = append(r.closers, func(context.Context) error {
		stopRedial()
		return nil
	})

	r.FeedCache = views.NewFeedCache(r.Store, logger,
		views.WithTTL(cfg.FeedCacheTTL),
		views.WithSampleSize(cfg.FeedSampleSize),
	)
	return r, nil
}

// Deps returns the view collaborators backed by this runtime.
func (r *Runtime) Deps() views.Deps {
	return views.Deps{
		API:               r.API,
		Sessions:          r.Sessions,
		Profiles:          r.Profiles,
		Channel:           r.Channel,
		Logger:            r.Logger,
		RollbackOnFailure: r.Config.RollbackOnFailure,
	}
}

// Close releases resources in reverse order of acquisition.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
