package controllers

import (
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/nntpgate/internal/app"
	"github.com/datallboy/nntpgate/internal/message"
	"github.com/datallboy/nntpgate/internal/metric"
	"github.com/datallboy/nntpgate/internal/nntp"
)

const (
	msgReadFailed  = "Failed to read from NNTP server"
	msgReadTimeout = "Timed out reading from NNTP server"
	msgBadArticle  = "Failed to decode article"
)

// ReadController serves the group index, single articles and their
// attachments.
type ReadController struct {
	App *app.Context
}

// HandleIndex serves one page of the group index, newest article first.
func (ctrl *ReadController) HandleIndex(c *echo.Context) error {
	if !ctrl.enabled(c) {
		return c.JSON(http.StatusNotFound, errorResponse("Reading is not enabled"))
	}

	group := ctrl.group(c)
	if group == "" {
		return c.JSON(http.StatusBadRequest, errorResponse("group is required"))
	}

	page := 1
	if raw := c.QueryParam("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, errorResponse("page must be a positive integer"))
		}
		page = n
	}

	out, err := ctrl.App.Reader.Overview(c.Request().Context(), group, page, ctrl.App.Config.Reader.PageSize)
	if err != nil {
		return ctrl.readFailure(c, "index", err)
	}

	for i := range out.Articles {
		a := &out.Articles[i]
		a.Subject = message.DecodeHeader(a.Subject)
		a.From = message.DecodeHeader(a.From)
		a.Date = message.FormatDate(a.Date)
	}

	ctrl.observe("index", metric.OutcomeRead)
	return c.JSON(http.StatusOK, IndexResponse{Status: "success", OverviewPage: out})
}

// HandleArticle serves one article with decoded headers, its text body,
// the attachment list and the values a reply needs.
func (ctrl *ReadController) HandleArticle(c *echo.Context) error {
	if !ctrl.enabled(c) {
		return c.JSON(http.StatusNotFound, errorResponse("Reading is not enabled"))
	}

	id := articleID(c)
	raw, err := ctrl.App.Reader.Article(c.Request().Context(), ctrl.group(c), id)
	if err != nil {
		return ctrl.readFailure(c, "article", err)
	}

	view, err := message.Parse(id, raw)
	if err != nil {
		ctrl.App.Logger.Named("read").Warn("article %s: %v", id, err)
		ctrl.observe("article", metric.OutcomeFailed)
		return c.JSON(http.StatusBadGateway, errorResponse(msgBadArticle))
	}

	ctrl.observe("article", metric.OutcomeRead)
	return c.JSON(http.StatusOK, ArticleResponse{Status: "success", Article: view})
}

// HandleAttachment streams one decoded attachment as a download.
func (ctrl *ReadController) HandleAttachment(c *echo.Context) error {
	if !ctrl.enabled(c) {
		return c.JSON(http.StatusNotFound, errorResponse("Reading is not enabled"))
	}

	part, err := strconv.Atoi(c.Param("part"))
	if err != nil || part < 0 {
		return c.JSON(http.StatusBadRequest, errorResponse("part must be a non-negative integer"))
	}

	id := articleID(c)
	raw, err := ctrl.App.Reader.Article(c.Request().Context(), ctrl.group(c), id)
	if err != nil {
		return ctrl.readFailure(c, "attachment", err)
	}

	a, err := message.Attachment(raw, part)
	if errors.Is(err, message.ErrNoSuchAttachment) {
		ctrl.observe("attachment", metric.OutcomeNotFound)
		return c.JSON(http.StatusNotFound, errorResponse("No such attachment"))
	}
	if err != nil {
		ctrl.App.Logger.Named("read").Warn("attachment %s/%d: %v", id, part, err)
		ctrl.observe("attachment", metric.OutcomeFailed)
		return c.JSON(http.StatusBadGateway, errorResponse(msgBadArticle))
	}

	ctrl.observe("attachment", metric.OutcomeRead)
	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
	return c.Blob(http.StatusOK, "application/octet-stream", a.Data)
}

func (ctrl *ReadController) enabled(c *echo.Context) bool {
	c.Response().Header().Set(echo.HeaderAccessControlAllowOrigin, "*")
	return ctrl.App.Reader != nil
}

// group is the ?group= parameter or the configured default.
func (ctrl *ReadController) group(c *echo.Context) string {
	if g := c.QueryParam("group"); g != "" {
		return g
	}
	return ctrl.App.Config.Reader.Group
}

// articleID returns the :id path parameter. Message-IDs arrive escaped.
func articleID(c *echo.Context) string {
	raw := c.Param("id")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

func (ctrl *ReadController) readFailure(c *echo.Context, op string, err error) error {
	log := ctrl.App.Logger.Named("read")

	switch {
	case errors.Is(err, nntp.ErrInvalidArgument):
		ctrl.observe(op, metric.OutcomeFailed)
		return c.JSON(http.StatusBadRequest, errorResponse("Invalid group or article id"))
	case errors.Is(err, nntp.ErrNoSuchGroup):
		ctrl.observe(op, metric.OutcomeNotFound)
		return c.JSON(http.StatusNotFound, errorResponse("No such newsgroup"))
	case errors.Is(err, nntp.ErrNoSuchArticle):
		ctrl.observe(op, metric.OutcomeNotFound)
		return c.JSON(http.StatusNotFound, errorResponse("No such article"))
	}

	log.Error("%s failed: %v", op, err)
	ctrl.observe(op, metric.OutcomeFailed)
	if errors.Is(err, nntp.ErrTimeout) {
		return c.JSON(http.StatusGatewayTimeout, errorResponse(msgReadTimeout))
	}
	return c.JSON(http.StatusBadGateway, errorResponse(msgReadFailed))
}

func (ctrl *ReadController) observe(op, outcome string) {
	if ctrl.App.Metrics != nil {
		ctrl.App.Metrics.ObserveRead(op, outcome)
	}
}
