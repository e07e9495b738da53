// Package app wires the survey bot together: roster store, command
// dispatcher, chat transports and the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/money626/epidemic-servey-chatbot/common/version"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/chart"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/commands"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/config"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/footprint"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/line"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/matrix"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/metrics"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/store"
)

// CallbackPath receives LINE webhook deliveries.
const CallbackPath = "/callback"

// App is the running bot.
type App struct {
	config     *config.Config
	store      *store.Store
	metrics    *metrics.Metrics
	dispatcher *commands.Dispatcher
	server     *Server
	matrix     *matrix.Client
}

// New opens the store and builds every component enabled by cfg.
func New(cfg *config.Config) (*App, error) {
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	m := metrics.New()
	handlers := commands.NewHandlers(commands.HandlersConfig{
		Store: st,
		Footprint: footprint.New(footprint.Config{
			ListURL: cfg.Footprint.ListURL,
			Origin:  cfg.Footprint.Origin,
			Keyword: cfg.Footprint.Keyword,
		}),
		Chart:           chart.NewRenderer(cfg.StaticDir, cfg.BaseURL),
		AdminSecret:     cfg.AdminSecret,
		FootprintOrigin: cfg.Footprint.Origin,
	})
	dispatcher := commands.NewDispatcher(cfg.CommandMarker, handlers, m)

	server := NewServer(cfg.HTTPAddr, st)
	server.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))
	server.Handle("/metrics", m.Handler())

	a := &App{
		config:     cfg,
		store:      st,
		metrics:    m,
		dispatcher: dispatcher,
		server:     server,
	}

	if cfg.Line.Enabled() {
		lc, err := line.NewClient(line.ClientConfig{
			ChannelAccessToken: cfg.Line.ChannelAccessToken,
			APIBase:            cfg.Line.APIBase,
		})
		if err != nil {
			st.Close()
			return nil, err
		}
		server.Handle("POST "+CallbackPath, line.NewWebhook(line.WebhookConfig{
			ChannelSecret: cfg.Line.ChannelSecret,
			Dispatcher:    dispatcher,
			Messenger:     lc,
			Observer:      m,
		}))
		slog.Info("LINE webhook enabled", "path", CallbackPath)
	}

	if cfg.Matrix.Enabled() {
		mc, err := matrix.New(&matrix.Config{
			Homeserver:    cfg.Matrix.Homeserver,
			UserID:        cfg.Matrix.UserID,
			AccessToken:   cfg.Matrix.AccessToken,
			Rooms:         cfg.Matrix.Rooms,
			StartupNotice: "surveybot " + version.Version + " started. Send " + cfg.CommandMarker + "help for commands.",
			DB:            st.DB(),
			Dispatcher:    dispatcher,
			Observer:      m,
		})
		if err != nil {
			st.Close()
			return nil, err
		}
		a.matrix = mc
	}

	return a, nil
}

// Store returns the roster store.
func (a *App) Store() *store.Store {
	return a.store
}

// Handler exposes the HTTP routes, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server
}

// Run serves HTTP and syncs Matrix until ctx is done or a component fails.
func (a *App) Run(ctx context.Context) error {
	slog.Info("surveybot starting", "version", version.Current().String(),
		"line", a.config.Line.Enabled(), "matrix", a.config.Matrix.Enabled())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(ctx)
	})
	if a.matrix != nil {
		g.Go(func() error {
			if err := a.matrix.Start(ctx); err != nil {
				return fmt.Errorf("failed to start Matrix client: %w", err)
			}
			<-ctx.Done()
			a.matrix.Stop()
			return nil
		})
	}

	err := g.Wait()
	slog.Info("shutting down")
	return err
}

// Stop releases the store. Call it after Run returns.
func (a *App) Stop() {
	if a.matrix != nil {
		a.matrix.Stop()
	}
	slog.Info("closing database")
	a.store.Close()
}
