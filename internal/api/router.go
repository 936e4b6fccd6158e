package api

import (
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/datallboy/nntpgate/internal/api/controllers"
	"github.com/datallboy/nntpgate/internal/app"
)

func RegisterRoutes(e *echo.Echo, app *app.Context) {
	log := app.Logger.Named("http")

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			app.Metrics.ObserveRequest(v.Method, v.Status)
			return nil
		},
	}))

	// Middleware: panics become a JSON envelope instead of a dropped connection
	e.Use(recoverJSON(app))

	postCtrl := &controllers.PostController{App: app}
	readCtrl := &controllers.ReadController{App: app}

	// Operational endpoints, matched before the catch-all
	e.GET("/healthz", postCtrl.HandleHealth)
	e.GET("/metrics", echo.WrapHandler(app.Metrics.Handler()))
	e.GET("/posts/recent", postCtrl.HandleRecent)

	// Read side: group index, article view, attachment download
	e.GET("/articles", readCtrl.HandleIndex)
	e.GET("/article/:id", readCtrl.HandleArticle)
	e.GET("/attachment/:id/:part", readCtrl.HandleAttachment)

	// Posting endpoint: any path, method dispatch happens in the controller
	e.Any("/", postCtrl.Handle)
	e.Any("/*", postCtrl.Handle)
}

func recoverJSON(app *app.Context) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				app.Logger.Error("panic serving %s %s: %v\n%s", c.Request().Method, c.Request().URL.Path, r, debug.Stack())
				err = c.JSON(http.StatusInternalServerError, controllers.ErrorResponse{
					Status:  "error",
					Message: "Internal server error",
				})
			}()
			return next(c)
		}
	}
}
