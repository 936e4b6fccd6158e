package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/segmentio/ksuid"

	"github.com/datallboy/nntpgate/internal/app"
	"github.com/datallboy/nntpgate/internal/domain"
	"github.com/datallboy/nntpgate/internal/metric"
	"github.com/datallboy/nntpgate/internal/nntp"
)

const (
	HeaderRequestID = "X-Request-ID"

	msgPostFailed  = "Failed to post to NNTP server"
	msgPostTimeout = "Timed out posting to NNTP server"
)

type PostController struct {
	App *app.Context
}

// Handle is the gateway entry point for every path not routed elsewhere.
func (ctrl *PostController) Handle(c *echo.Context) error {
	setCORS(c)

	switch c.Request().Method {
	case http.MethodOptions:
		// Preflight: headers only, the poster is never touched
		return c.NoContent(http.StatusOK)
	case http.MethodPost:
		return ctrl.handlePost(c)
	default:
		c.Response().Header().Set(echo.HeaderAllow, "POST, OPTIONS")
		return c.JSON(http.StatusMethodNotAllowed, errorResponse("Method not allowed"))
	}
}

func (ctrl *PostController) handlePost(c *echo.Context) error {
	reqID := ksuid.New().String()
	c.Response().Header().Set(HeaderRequestID, reqID)
	log := ctrl.App.Logger.Named("post")

	maxBytes := ctrl.App.Config.HTTP.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}

	req, err := DecodePostRequest(c.Request().Body, maxBytes)
	if err != nil {
		log.Debug("[%s] rejected request: %v", reqID, err)
		if errors.Is(err, ErrBodyTooLarge) {
			return c.JSON(http.StatusRequestEntityTooLarge, errorResponse("Request body too large"))
		}
		return c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	}

	ctx := c.Request().Context()
	start := time.Now()
	res, err := ctrl.App.Poster.Post(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		kind := nntp.KindOf(err)
		log.Error("[%s] post to %s failed: %v", reqID, req.Newsgroups, err)
		ctrl.observe(metric.OutcomeFailed, kind.String(), elapsed)
		ctrl.record(ctx, &domain.JournalEntry{
			ID:         reqID,
			Newsgroups: req.Newsgroups,
			Subject:    req.Subject,
			ReplyTo:    req.ReplyTo,
			Status:     domain.JournalFailed,
			ErrorKind:  kind.String(),
			StatusCode: nntp.StatusOf(err),
			DurationMS: elapsed.Milliseconds(),
		})

		if errors.Is(err, nntp.ErrTimeout) {
			return c.JSON(http.StatusGatewayTimeout, errorResponse(msgPostTimeout))
		}
		return c.JSON(http.StatusBadGateway, errorResponse(msgPostFailed))
	}

	log.Info("[%s] posted %s to %s (%s)", reqID, res.MessageID, req.Newsgroups, res.Action)
	ctrl.observe(metric.OutcomePosted, "", elapsed)
	ctrl.record(ctx, &domain.JournalEntry{
		ID:         reqID,
		MessageID:  res.MessageID,
		Newsgroups: req.Newsgroups,
		Subject:    req.Subject,
		ReplyTo:    req.ReplyTo,
		Status:     domain.JournalPosted,
		StatusCode: res.StatusCode,
		DurationMS: elapsed.Milliseconds(),
	})

	return c.JSON(http.StatusOK, successResponse(res))
}

// HandleRecent lists the newest journal rows.
func (ctrl *PostController) HandleRecent(c *echo.Context) error {
	if ctrl.App.Journal == nil {
		return c.JSON(http.StatusNotFound, errorResponse(domain.ErrJournalDisabled.Error()))
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse("limit must be an integer"))
		}
		limit = n
	}

	entries, err := ctrl.App.Journal.Recent(c.Request().Context(), limit)
	if err != nil {
		ctrl.App.Logger.Error("journal read failed: %v", err)
		return c.JSON(http.StatusInternalServerError, errorResponse("Failed to read post journal"))
	}
	if entries == nil {
		entries = []*domain.JournalEntry{}
	}

	return c.JSON(http.StatusOK, RecentResponse{Status: "success", Posts: entries})
}

// HandleHealth reports liveness only; it never contacts the NNTP server.
func (ctrl *PostController) HandleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (ctrl *PostController) observe(outcome, kind string, d time.Duration) {
	if ctrl.App.Metrics != nil {
		ctrl.App.Metrics.ObservePost(outcome, kind, d)
	}
}

// record journals the attempt. Failures are logged and never change the response.
func (ctrl *PostController) record(ctx context.Context, e *domain.JournalEntry) {
	if ctrl.App.Journal == nil {
		return
	}

	// The request context may already be cancelled when the client went away
	ctx = context.WithoutCancel(ctx)
	if err := ctrl.App.Journal.Record(ctx, e); err != nil {
		ctrl.App.Logger.Error("journal write for %s failed: %v", e.ID, err)
		if ctrl.App.Metrics != nil {
			ctrl.App.Metrics.JournalErrors.Inc()
		}
	}
}

func setCORS(c *echo.Context) {
	h := c.Response().Header()
	h.Set(echo.HeaderAccessControlAllowOrigin, "*")
	h.Set(echo.HeaderAccessControlAllowMethods, "POST, OPTIONS")
	h.Set(echo.HeaderAccessControlAllowHeaders, "Content-Type, Authorization")
}
