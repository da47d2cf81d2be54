package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/internal/dispatch"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/internal/router"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/internal/server/middleware"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/authz"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/call"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/config"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/persist"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/state"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/state/statemanager"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/transport"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// retryBudget is how many times a failed adapter write is retried before it
// is dead-lettered.
const retryBudget = 5

type App struct {
	logger       *slog.Logger
	stateManager state.Manager
	dispatcher   *dispatch.Dispatcher
	callCtrl     *call.Controller
	eventRouter  *router.Router
	retrier      *persist.Retrier
	wg           sync.WaitGroup
	http         *http.Server
	config       *config.Config

	ctx context.Context
}

// NewApp wires the hub: registry, dispatcher, call controller, authorizer,
// and router, in front of the websocket upgrade endpoint. The adapter is
// injected so the hub never knows which datastore backs it.
func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, store persist.Adapter) *App {
	stateManager := statemanager.NewInMemoryManager(logger)
	dispatcher := dispatch.New(stateManager, logger)
	retrier := persist.NewRetrier(logger, retryBudget)
	authorizer := authz.New(store, logger)
	callCtrl := call.NewController(rootCtx, dispatcher, stateManager, store, authorizer, retrier, cfg.Realtime.RingingDeadline, logger)
	eventRouter := router.New(rootCtx, logger, stateManager, dispatcher, callCtrl, authorizer, store, retrier, cfg.Realtime.LastActiveWindow)

	app := &App{
		logger:       logger,
		stateManager: stateManager,
		dispatcher:   dispatcher,
		callCtrl:     callCtrl,
		eventRouter:  eventRouter,
		retrier:      retrier,
		config:       cfg,
		ctx:          rootCtx,
	}

	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	connCounter := middleware.UserConnectionCounter(stateManager.GetUserConnectionCount)
	// Create a cycler function that closes over the stateManager and logger.
	connCycler := func(userID string) {
		oldest, found := stateManager.FindOldestUserConnection(userID)
		if found {
			logger.Info("Cycling connection: closing oldest", "userID", userID, "connID", oldest.ID)
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	// Auth must precede the limiter: per-user counting needs the verified
	// subject.
	mux.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewAuthMiddleware(logger, app.config.Server.Auth.JWTSecret),
			middleware.NewConnectionLimiter(
				logger,
				connCounter,
				connCycler,
				app.config.Server.ConnectionLimit,
			),
		),
	)

	app.http = &http.Server{Addr: app.config.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: a.config.Server.AllowedOrigins,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{
			ReadTimeout:       a.config.Transport.ReadTimeout,
			HeartbeatInterval: a.config.Transport.HeartbeatInterval,
		},
		a.eventRouter.HandleMessage,
		func(id uuid.UUID, err error) {
			connLogger.Info("Connection closed, unwinding state", slog.String("connID", id.String()))
			a.eventRouter.HandleClose(id)
		},
		a.logger,
	)
	// register new connection, remembering the JWT subject for the
	// socket-level authenticate handshake.
	if _, err := a.stateManager.RegisterConnection(conn, reqMeta.IP, reqMeta.UserID); err != nil {
		connLogger.Error("Failed to register connection state", slog.Any("error", err))
		conn.Close(err)
		return
	}

	connLogger.Info("Connection upgraded", slog.String("connID", conn.ID().String()))
	conn.Run()
	<-conn.Done()
}

// graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, conn := range a.stateManager.AllConnections() {
		conn.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup, then let
	// in-flight persistence writes settle.
	a.wg.Wait()
	a.retrier.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
