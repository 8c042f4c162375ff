// Package httpapi exposes the two HTTP surfaces: the public webhook
// endpoint the provider pushes to, and the authenticated management API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/telegate/telegate/internal/lifecycle"
	"github.com/telegate/telegate/internal/provider"
	"github.com/telegate/telegate/internal/telegram"
)

// Server hosts the webhook and management routes.
type Server struct {
	echo   *echo.Echo
	ctl    *lifecycle.Controller
	apiKey string
}

// New builds the server and registers routes.
func New(ctl *lifecycle.Controller, apiKey string) *Server {
	s := &Server{ctl: ctl, apiKey: apiKey}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.POST("/webhook/:kind/:id/:secret", s.handleWebhook)

	api := e.Group("/api", s.requireAPIKey)
	api.GET("/status", s.handleStatus)
	api.POST("/entities/:kind/:id/start", s.handleStart)
	api.POST("/entities/:kind/:id/stop", s.handleStop)
	api.POST("/entities/:kind/:id/test", s.handleTest)
	api.POST("/entities/:kind/:id/send", s.handleSend)

	s.echo = e
	return s
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr and blocks until shutdown.
func (s *Server) Start(addr string) error {
	log.Printf("[API] listening on %s", addr)
	return s.echo.Start(addr)
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requireAPIKey guards the management routes with a bearer token. An
// empty configured key disables the check, for local setups.
func (s *Server) requireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.apiKey == "" {
			return next(c)
		}
		if c.Request().Header.Get("Authorization") != "Bearer "+s.apiKey {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
		}
		return next(c)
	}
}

func entityFromPath(c echo.Context) (telegram.EntityRef, error) {
	kind, err := telegram.ParseEntityKind(c.Param("kind"))
	if err != nil {
		return telegram.EntityRef{}, err
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return telegram.EntityRef{}, fmt.Errorf("invalid entity id %q", c.Param("id"))
	}
	return telegram.EntityRef{Kind: kind, ID: id}, nil
}

// handleWebhook ingests one provider delivery. The response is always
// fast: the update is queued, not processed inline.
func (s *Server) handleWebhook(c echo.Context) error {
	ref, err := entityFromPath(c)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown entity"})
	}

	var upd telegram.Update
	if err := c.Bind(&upd); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed update"})
	}

	switch err := s.ctl.DeliverWebhook(ref, c.Param("secret"), &upd); {
	case errors.Is(err, lifecycle.ErrBadSecret):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, lifecycle.ErrNotFound), errors.Is(err, lifecycle.ErrNotRunning):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown entity"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStart(c echo.Context) error {
	ref, err := entityFromPath(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	switch err := s.ctl.Start(c.Request().Context(), ref); {
	case errors.Is(err, lifecycle.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "entity not found"})
	case errors.Is(err, provider.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case err != nil:
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStop(c echo.Context) error {
	ref, err := entityFromPath(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := s.ctl.Stop(c.Request().Context(), ref); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTest(c echo.Context) error {
	ref, err := entityFromPath(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	res, err := s.ctl.Test(c.Request().Context(), ref)
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "entity not found"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, res)
}

type sendRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func (s *Server) handleSend(c echo.Context) error {
	ref, err := entityFromPath(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	var req sendRequest
	if err := c.Bind(&req); err != nil || req.ChatID == 0 || req.Text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "chat_id and text are required"})
	}

	msg, err := s.ctl.Send(c.Request().Context(), ref, req.ChatID, req.Text)
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "entity not found"})
	case errors.Is(err, lifecycle.ErrUnsupported):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "send is only supported for bots"})
	case errors.Is(err, lifecycle.ErrNotRunning):
		return c.JSON(http.StatusConflict, map[string]string{"error": "session is not active"})
	case err != nil:
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":     "ok",
		"message_id": msg.MessageID,
		"chat_row":   msg.ChatRowID,
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	rows, err := s.ctl.Status(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"entities": rows})
}
