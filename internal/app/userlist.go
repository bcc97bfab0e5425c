package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/samvad-hq/userloader/internal/config"
	"github.com/samvad-hq/userloader/internal/logger"
	"github.com/samvad-hq/userloader/internal/metrics"
	"github.com/samvad-hq/userloader/internal/storage"
	"github.com/samvad-hq/userloader/internal/users"
	"github.com/samvad-hq/userloader/internal/view"
	"github.com/samvad-hq/userloader/pkg/httpclient"
	"github.com/samvad-hq/userloader/pkg/lifecycle"
	"github.com/samvad-hq/userloader/pkg/loader"
	"github.com/samvad-hq/userloader/pkg/publishers"
)

// UserList is the users loader runtime. It owns the HTTP client, the lifecycle store, the
// loader bound to the configured request, and the sinks observing every call: logs, metrics,
// outcome history and publishers.
type UserList struct {
	cfg      *config.Config
	log      logger.Logger
	loader   *loader.Loader
	renderer *view.Renderer
	store    storage.Store
	fanout   *publishers.Fanout
	registry *prometheus.Registry
	metrics  *metrics.Collector

	closeOnce sync.Once
	closeErr  error
}

// Option customizes NewUserList.
type Option func(*options)

type options struct {
	client httpclient.Client
}

// WithClient replaces the resty client built from config.
func WithClient(c httpclient.Client) Option {
	return func(o *options) { o.client = c }
}

// NewUserList builds the runtime from cfg.
func NewUserList(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*UserList, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.client == nil {
		o.client = httpclient.NewRestyClient(cfg.RequestTimeout)
	}

	req, err := requestFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	policy, ok := loader.ParsePolicy(cfg.LoaderPolicy)
	if !ok {
		return nil, fmt.Errorf("unsupported loader policy %q", cfg.LoaderPolicy)
	}

	renderer, err := view.NewRenderer(view.Options{UsersPath: cfg.UsersPath})
	if err != nil {
		return nil, fmt.Errorf("init renderer: %w", err)
	}

	fanout, err := buildFanout(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storage.Options{
		OutcomeTTL:      cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	})
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"outcome_ttl_seconds":      int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	collector := metrics.NewCollector(registry)

	tracker := newCallTracker(cfg.UsersPath,
		&logHook{log: log},
		&historyHook{store: store, log: log},
		&publishHook{fanout: fanout, log: log},
	)

	l, err := loader.New(lifecycle.NewStore(), o.client, req,
		loader.WithPolicy(policy),
		loader.WithResponseCheck(users.Check(cfg.UsersPath)),
		loader.WithObserver(tracker, collector),
	)
	if err != nil {
		_ = fanout.Close()
		_ = store.Close()
		return nil, fmt.Errorf("init loader: %w", err)
	}

	log.InfoObj("users loader ready", "loader_config", map[string]any{
		"url":        req.URL,
		"method":     req.Method.String(),
		"policy":     policy.String(),
		"users_path": cfg.UsersPath,
		"publishers": fanout.Size(),
	})

	return &UserList{
		cfg:      cfg,
		log:      log,
		loader:   l,
		renderer: renderer,
		store:    store,
		fanout:   fanout,
		registry: registry,
		metrics:  collector,
	}, nil
}

func requestFromConfig(cfg *config.Config) (loader.Request, error) {
	method, err := loader.ParseMethod(cfg.RequestMethod)
	if err != nil {
		return loader.Request{}, fmt.Errorf("request method: %w", err)
	}
	req := loader.Request{URL: cfg.UsersURL, Method: method}
	if method == loader.MethodPost && cfg.RequestPayload != "" {
		req.Payload = []byte(cfg.RequestPayload)
		req.Headers = map[string]string{"Content-Type": "application/json"}
	}
	return req, nil
}

func buildFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*publishers.Fanout, error) {
	if cfg.PublishersFile == "" {
		return publishers.NewFanout(nil), nil
	}
	reg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := reg.Enabled()
	pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(pubs), nil
}

// Loader returns the loader bound to the configured request.
func (u *UserList) Loader() *loader.Loader { return u.loader }

// Renderer returns the page renderer.
func (u *UserList) Renderer() *view.Renderer { return u.renderer }

// History returns the outcome store.
func (u *UserList) History() storage.Store { return u.store }

// Registry returns the metrics registry the loader reports to.
func (u *UserList) Registry() *prometheus.Registry { return u.registry }

// Run triggers one load and writes every rendered transition to w. It returns the load error
// when the call settles as failed.
func (u *UserList) Run(ctx context.Context, w io.Writer) error {
	if u == nil || u.loader == nil {
		return fmt.Errorf("user list is not initialized")
	}

	var (
		mu        sync.Mutex
		renderErr error
	)
	unwatch := u.loader.Watch(func(st lifecycle.State) {
		if err := u.renderer.Text(w, st); err != nil {
			mu.Lock()
			if renderErr == nil {
				renderErr = err
			}
			mu.Unlock()
		}
	})
	defer unwatch()

	st, err := u.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if renderErr != nil {
		return fmt.Errorf("render users: %w", renderErr)
	}
	if st.Err != nil {
		return fmt.Errorf("load users: %w", st.Err)
	}
	return nil
}

// Close releases loader subscriptions, storage and publishers. It is safe to call twice.
func (u *UserList) Close() error {
	if u == nil {
		return nil
	}
	u.closeOnce.Do(func() {
		u.loader.Close()
		var errs []error
		if err := u.fanout.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publishers: %w", err))
		}
		if err := u.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
		u.closeErr = errors.Join(errs...)
	})
	return u.closeErr
}
