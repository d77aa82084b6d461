package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rubiojr/datacatalog/pkg/api"
	"github.com/rubiojr/datacatalog/pkg/auth"
	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/config"
	"github.com/rubiojr/datacatalog/pkg/log"
	"github.com/rubiojr/datacatalog/pkg/metrics"
	"github.com/rubiojr/datacatalog/pkg/notify"
	"github.com/rubiojr/datacatalog/pkg/realtime"
	"github.com/rubiojr/datacatalog/pkg/remover"
	"github.com/urfave/cli/v3"
)

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the catalog REST service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Address to listen on, overrides the configuration",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c.String("config"), c.String("listen"), c.Bool("debug"))
		},
	}
}

// serve runs the HTTP service until SIGINT or SIGTERM.
func serve(ctx context.Context, configPath, listen string, debug bool) error {
	cfg, err := loadConfig(configPath, debug)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}
	l := log.ForService("serve")

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	if cfg.Backend == config.BackendElastic && cfg.Elastic.CreateIndex {
		if err := st.CreateIndex(ctx); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}

	m := metrics.New()

	authn, err := newAuthenticator(cfg)
	if err != nil {
		return err
	}

	hub := realtime.NewHub(cfg.EventBuffer)
	hub.OnDrop(func() { m.StreamDropped.Inc() })
	notifiers := notify.Fanout{notify.NewHub(hub)}

	if cfg.NATS.URL != "" {
		nc, err := notify.Connect(cfg.NATS.URL, "datacatalog")
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer func() {
			if err := nc.Drain(); err != nil {
				l.Warnf("failed to drain NATS connection: %v", err)
			}
		}()
		n := notify.NewNATS(nc, cfg.NATS.Subject)
		n.OnFailure(func() { m.Notifications.WithLabelValues("failed").Inc() })
		notifiers = append(notifiers, n)
		l.Infof("publishing notifications to NATS subject %s", cfg.NATS.Subject)
	}

	rm := remover.New(st, httpClient(cfg.Services.Timeout.Duration), cfg.Services.DownloaderURL, cfg.Services.PublisherURL)

	server := api.NewServer(api.Options{
		BasePath: cfg.BasePath,
		Store:    st,
		Auth:     authn,
		Exempt:   cfg.Auth.Exempt,
		Remover:  rm,
		Notifier: notifiers,
		Hub:      hub,
		Metrics:  m,
	})

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Infof("listening on %s, backend %s, base path %s", cfg.Listen, cfg.Backend, cfg.BasePath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.Warnf("failed to create config file watcher: %v", err)
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				l.Warnf("failed to close config file watcher: %v", err)
			}
		}()
		if err := watcher.Add(configPath); err != nil {
			l.Debugf("not watching config file %s: %v", configPath, err)
		} else {
			l.Infof("watching config file for changes: %s", configPath)
			events, watchErrs = watcher.Events, watcher.Errors
		}
	}

	for {
		select {
		case err, ok := <-errCh:
			if ok {
				return fmt.Errorf("serving HTTP: %w", err)
			}
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				l.Infof("received SIGHUP, reloading log settings")
				reloadLogging(configPath, debug, l)
				continue
			}
			l.Infof("shutting down")
			return shutdown(httpServer)
		case <-ctx.Done():
			return shutdown(httpServer)
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				// Editors replace the file on save.
				time.Sleep(200 * time.Millisecond)
				if _, err := os.Stat(configPath); os.IsNotExist(err) {
					l.Warnf("config file was removed and not replaced, skipping reload")
					continue
				}
				if err := watcher.Add(configPath); err != nil {
					l.Warnf("failed to re-add config file to watcher: %v", err)
				}
			} else {
				time.Sleep(100 * time.Millisecond)
			}
			l.Infof("config file changed (%s), reloading log settings", event.Op)
			reloadLogging(configPath, debug, l)
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			l.Warnf("config file watcher error: %v", err)
		}
	}
}

// newAuthenticator verifies tokens against the configured issuer, or lets
// everyone in as an administrator when authentication is disabled.
func newAuthenticator(cfg *config.Config) (auth.Authenticator, error) {
	if cfg.Auth.Disabled {
		log.ForService("serve").Warnf("authentication disabled, every request runs as admin")
		return auth.Static(catalog.AuthContext{IsAdmin: true}), nil
	}
	if cfg.Services.TokenKeyURL == "" {
		return nil, errors.New("services.token_key_url is required unless auth.disabled is set")
	}

	client := httpClient(cfg.Services.Timeout.Duration)
	verifier := auth.NewVerifier(auth.NewKeySource(cfg.Services.TokenKeyURL, client), cfg.Auth.Audience)
	orgs := auth.NewOrgClient(cfg.Services.UserManagementURL, client)
	return auth.NewProvider(verifier, orgs, cfg.Auth.AdminScope), nil
}

// reloadLogging applies the log level and format of the configuration
// file. Other settings need a restart.
func reloadLogging(configPath string, debug bool, l *log.Logger) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		l.Errorf("failed to reload configuration: %v", err)
		return
	}
	if err := applyLogging(cfg, debug); err != nil {
		l.Errorf("failed to apply log settings: %v", err)
		return
	}
	l.Infof("log level is now %s", cfg.LogLevel)
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}
