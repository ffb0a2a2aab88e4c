// Package app wires configuration, storage, the order flow, and the Telegram
// runtime into a runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/storebot/internal/bot"
	"github.com/m3rciful/storebot/internal/config"
	"github.com/m3rciful/storebot/internal/database"
	"github.com/m3rciful/storebot/internal/logger"
	"github.com/m3rciful/storebot/internal/order"
	"github.com/m3rciful/storebot/internal/store"
	"github.com/m3rciful/storebot/internal/telegram"
)

// App holds everything initialized during bootstrap.
type App struct {
	cfg      *config.Config
	db       *sqlx.DB
	handlers *bot.Handlers
	flow     *order.Flow
	sweeper  *order.Sweeper

	sweepCancel context.CancelFunc
}

// Bootstrap initializes the logger, database, stores, and order flow.
// Any failure here is fatal: the process must not start half-wired.
func Bootstrap(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config provided")
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("app: logger init failed: %w", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("app: database initialization failed: %w", err)
	}
	if err := database.RunMigrations(cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("app: migrations failed: %w", err)
	}

	catalog := store.NewCatalog(db)
	users := store.NewUsers(db)

	handlers := bot.NewHandlers(cfg, catalog, users)

	// The online path stays switched off unless a provider token is set:
	// a nil invoice gateway removes the button and rejects the method.
	var invoices order.InvoiceGateway
	if cfg.OnlinePaymentsEnabled() {
		invoices = handlers
	}

	flow := order.NewFlow(order.NewPendingStore(), catalog, catalog, handlers, invoices, handlers)
	handlers.SetFlow(flow)

	ttl := time.Duration(cfg.Orders.PendingTTLMinutes) * time.Minute
	interval := time.Duration(cfg.Orders.SweepIntervalSeconds) * time.Second
	sweeper := order.NewSweeper(flow, ttl, interval)

	logger.APP.Info("bootstrap complete",
		slog.String("event", "bootstrap"),
		slog.Bool("online_payments", cfg.OnlinePaymentsEnabled()),
		slog.Int("admins", len(cfg.Telegram.AdminIDs)),
		slog.Bool("sweeper", sweeper != nil),
	)

	return &App{
		cfg:      cfg,
		db:       db,
		handlers: handlers,
		flow:     flow,
		sweeper:  sweeper,
	}, nil
}

// TelegramRunOptions assembles the runtime options for telegram.Run.
func (a *App) TelegramRunOptions() telegram.RunOptions {
	reg := telegram.NewRegistry()
	a.handlers.Register(reg)

	routes := telegram.CommandRoutes(reg, a.cfg.IsAdmin, nil)
	routes = append(routes, telegram.CallbackRoute(reg))
	routes = append(routes, telegram.TextRoute(reg))
	routes = append(routes, a.handlers.Routes()...)

	return telegram.RunOptions{
		Config:   a.cfg,
		Registry: reg,
		Routes:   routes,
		OnStart:  a.onStart,
		OnStop:   a.onStop,
	}
}

func (a *App) onStart(ctx context.Context, rt telegram.Runtime) error {
	a.handlers.AttachBot(rt.Bot)
	telegram.SetDispatcher(rt.Dispatcher)

	if a.sweeper != nil {
		sweepCtx, cancel := context.WithCancel(context.Background())
		a.sweepCancel = cancel
		go a.sweeper.Run(sweepCtx)
	}
	return nil
}

func (a *App) onStop(ctx context.Context, rt telegram.Runtime) error {
	if a.sweepCancel != nil {
		a.sweepCancel()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.APP.Warn("database close failed",
				slog.String("event", "shutdown"),
				slog.String("err", err.Error()),
			)
		}
	}
	return nil
}
