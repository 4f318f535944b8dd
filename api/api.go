// Package api offers a read-only HTTP view of the connection store.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

var logger *slog.Logger

type API struct {
	Config

	server *echo.Echo
}

func New(c *Config, conns Connections, info StrategyInfo) *API {
	if c.Log {
		logger = slog.Default().With("t", "api")
	} else {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initialising the api")

	a := &API{Config: *c, server: echo.New()}

	// Configure the middleware for extending the context of the
	// different handlers.
	a.server.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ec echo.Context) error {
			return next(&extendedContext{ec, a.server.Routes(), conns, info})
		}
	})

	// Configure the methods for each path
	a.server.GET("/", handleRoot)
	a.server.GET("/connections", handleConnections)
	a.server.GET("/connections/:id", handleConnection)
	a.server.GET("/strategy", handleStrategy)

	// Prevent the banner from showing up in the log
	a.server.HideBanner = true
	a.server.HidePort = true

	return a
}

func (a *API) String() string {
	return "api"
}

func (a *API) Handler() http.Handler {
	return a.server
}

func (a *API) Run() {
	addr := fmt.Sprintf("%s:%d", a.BindAddress, a.BindPort)
	logger.Debug("running the api", "addr", addr)

	go func() {
		if err := a.server.Start(addr); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("couldn't start the API server", "err", err)
		}
	}()
}

func (a *API) Cleanup() error {
	logger.Debug("cleaning up the api")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down the API server: %w", err)
	}
	return nil
}
