package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/redis/go-redis/v9"

	"github.com/go-authgate/slowfall-cli/apiclient"
	"github.com/go-authgate/slowfall-cli/idp"
	"github.com/go-authgate/slowfall-cli/slowfall"
	"github.com/go-authgate/slowfall-cli/tokenstore"
	"github.com/go-authgate/slowfall-cli/tui"
)

// Timeout configuration for different operations
const (
	redisPingTimeout = 5 * time.Second
	requestTimeout   = 30 * time.Second
)

// app wires the token store, HTTP client and API for one command run.
type app struct {
	cfg     *Config
	store   *tokenstore.Store
	client  *apiclient.Client
	api     *slowfall.API
	d       tui.Displayer
	logger  *slog.Logger
	now     func() time.Time
	closers []func() error
}

// newApp builds the app from cfg. The HTTP doer may be nil to use the
// default retrying client.
func newApp(ctx context.Context, cfg *Config, d tui.Displayer, logger *slog.Logger, doer apiclient.Doer) (*app, error) {
	a := &app{cfg: cfg, d: d, logger: logger, now: time.Now}

	storage, channel, err := a.openStorage(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	opts := []tokenstore.Option{tokenstore.WithLogger(logger)}
	if channel != nil {
		opts = append(opts, tokenstore.WithChannel(channel))
	}
	a.store = tokenstore.New(storage, opts...)

	baseHTTPClient := newBaseHTTPClient()
	if doer == nil {
		// Wrap with retry logic using go-httpretry
		rc, err := retry.NewBackgroundClient(
			retry.WithHTTPClient(baseHTTPClient),
		)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to create retry client: %w", err)
		}
		doer = rc
	}

	idpCfg := cfg.IdP.idp()
	clientOpts := []apiclient.Option{
		apiclient.WithDoer(doer),
		apiclient.WithObserver(d),
		apiclient.WithLogger(logger),
	}
	if idpCfg.Configured() {
		clientOpts = append(clientOpts,
			apiclient.WithSilentTokenSource(idp.NewClientCredentials(idpCfg, baseHTTPClient)))
	}

	a.client, err = apiclient.New(apiclient.Config{
		Origin:     cfg.Origin,
		APIBaseURL: cfg.APIBaseURL,
		Scopes:     idpCfg.DefaultScopes(),
	}, a.store, clientOpts...)
	if err != nil {
		a.close()
		return nil, err
	}
	a.api = slowfall.New(a.client)
	return a, nil
}

func newBaseHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			DisableKeepAlives:   false,
		},
		Timeout: requestTimeout,
	}
}

// openStorage returns the configured storage and, where the backend offers
// one, the broadcast channel shared with other processes.
func (a *app) openStorage(ctx context.Context) (tokenstore.Storage, tokenstore.Channel, error) {
	switch a.cfg.TokenStorage {
	case storageRedis:
		opts, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		a.closers = append(a.closers, rdb.Close)

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return tokenstore.NewRedisStorage(rdb, a.cfg.RedisPrefix, a.cfg.Origin),
			tokenstore.NewRedisChannel(rdb, a.cfg.Channel), nil

	case storageMemory:
		ch := tokenstore.NewHub().Open(a.cfg.Channel)
		a.closers = append(a.closers, ch.Close)
		return tokenstore.NewMemoryStorage(), ch, nil

	default:
		return tokenstore.NewFileStorage(a.cfg.TokenFile, a.cfg.Origin, a.cfg.PollInterval), nil, nil
	}
}

// storageDescription names where tokens live, for status output.
func (a *app) storageDescription() string {
	switch a.cfg.TokenStorage {
	case storageRedis:
		return "redis (" + a.cfg.RedisPrefix + ")"
	case storageMemory:
		return "memory"
	default:
		return "file (" + a.cfg.TokenFile + ")"
	}
}

// watchSource names what the watch command listens to.
func (a *app) watchSource() string {
	switch a.cfg.TokenStorage {
	case storageRedis:
		return "redis channel " + a.cfg.Channel
	case storageMemory:
		return "in-process channel " + a.cfg.Channel
	default:
		return a.cfg.TokenFile
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Debug("close", "error", err)
		}
	}
	a.closers = nil
}
