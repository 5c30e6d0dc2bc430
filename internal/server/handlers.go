package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/landlord/internal/agent/core"
	"github.com/mohammad-safakhou/landlord/internal/store"
	"github.com/mohammad-safakhou/landlord/internal/worker"
	"go.uber.org/zap"
)

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "healthy"})
}

func (s *Server) enqueue(c echo.Context) error {
	if s.deps.Inbox == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "inbox not configured")
	}
	var req EnqueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	msg, err := s.deps.Inbox.Enqueue(c.Request().Context(), store.NewMessage{
		Content:  req.Content,
		Source:   req.Source,
		Location: req.Location,
	})
	if errors.Is(err, store.ErrEmptyMessage) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) refresh(c echo.Context) error {
	if s.deps.Refresher == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "refresh not configured")
	}
	results, err := s.deps.Refresher.Refresh(c.Request().Context())
	switch {
	case errors.Is(err, worker.ErrRefreshInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		s.logger.Error("refresh failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, RefreshResponse{Status: "error", Message: err.Error(), Results: []worker.Result{}})
	}
	return c.JSON(http.StatusOK, RefreshResponse{
		Status:  "success",
		Message: "Messages refreshed successfully",
		Results: results,
	})
}

func (s *Server) draftEmail(c echo.Context) error {
	if s.deps.Drafter == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "drafter not configured")
	}
	var req DraftEmailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	state, err := s.deps.Drafter.DraftEmail(c.Request().Context(), req.WorkerInfo, req.IssueDetails)
	if err != nil {
		var perr *core.ProcessingError
		if errors.As(err, &perr) {
			s.logger.Error("email draft failed", zap.String("stage", perr.Stage), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, HTTPError{Error: core.UserMessage})
		}
		return err
	}
	resp := DraftEmailResponse{}
	switch d := state.Metadata[core.MetaEmailDraft].(type) {
	case core.EmailDraft:
		resp.EmailDraft, resp.Degraded = d.Draft, d.Degraded
	case *core.EmailDraft:
		resp.EmailDraft, resp.Degraded = d.Draft, d.Degraded
	}
	return c.JSON(http.StatusOK, resp)
}
