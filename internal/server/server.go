// Package server exposes one Store over HTTP: an HTML view that polls for
// changes, a JSON snapshot endpoint and a small plain-text mutation API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/motti-landau/kvstore"
)

// VersionHeader carries the snapshot version on /data responses.
const VersionHeader = "X-KV-Version"

const defaultBodyLimit = "128K"

type Options struct {
	Logger     kvstore.Logger // if nil, NopLogger is used
	BodyLimit  string         // echo size string; "" => 128K
	DataSource string         // shown in the page header
}

type Server struct {
	store *kvstore.Store
	log   kvstore.Logger
	e     *echo.Echo
	view  *View
	src   string
}

func New(store *kvstore.Store, opts Options) *Server {
	s := &Server{
		store: store,
		log:   opts.Logger,
		e:     echo.New(),
		view:  NewView(),
		src:   opts.DataSource,
	}
	if s.log == nil {
		s.log = kvstore.NopLogger{}
	}
	limit := opts.BodyLimit
	if limit == "" {
		limit = defaultBodyLimit
	}

	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.HTTPErrorHandler = s.handleError

	s.e.Use(middleware.Recover())
	s.e.Use(middleware.BodyLimit(limit))
	s.e.Use(noStore)
	s.e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug("http request", kvstore.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			})
			return nil
		},
	}))

	s.e.GET("/", s.index)
	s.e.GET("/data", s.data)
	s.e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok\n") })
	s.e.GET("/favicon.ico", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	api := s.e.Group("/api")
	api.POST("/records/upsert", s.upsert)
	api.POST("/records/delete", s.deleteRecord)
	api.POST("/records/tags/add", s.addTag)
	api.POST("/records/tags/remove", s.removeTag)
	api.POST("/records/ttl/extend", s.extendTTL)
	api.POST("/tags/rename", s.renameTag)
	api.POST("/tags/delete", s.deleteTag)

	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

// Start serves on addr until Shutdown. A clean shutdown returns nil.
func (s *Server) Start(addr string) error {
	s.log.Info("serving", kvstore.Fields{"addr": addr, "namespace": s.store.Namespace()})
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func noStore(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
		return next(c)
	}
}

func (s *Server) index(c echo.Context) error {
	page, err := s.view.Render(s.store.Snapshot(), PageOptions{
		Namespace:    s.store.Namespace(),
		DataSource:   s.src,
		PollEndpoint: "/data",
		APIEndpoint:  "/api",
	})
	if err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, page)
}

type dataResponse struct {
	Version uint64           `json:"version"`
	Records []kvstore.Record `json:"records"`
}

// data answers 204 when ?version= still matches the store.
func (s *Server) data(c echo.Context) error {
	var snap kvstore.Snapshot
	if raw := c.QueryParam("version"); raw != "" {
		since, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return &kvstore.ValidationError{Field: "version", Reason: "must be a non-negative integer"}
		}
		var changed bool
		snap, changed = s.store.Poll(since)
		if !changed {
			c.Response().Header().Set(VersionHeader, strconv.FormatUint(since, 10))
			return c.NoContent(http.StatusNoContent)
		}
	} else {
		snap = s.store.Snapshot()
	}
	c.Response().Header().Set(VersionHeader, strconv.FormatUint(snap.Version, 10))
	return c.JSON(http.StatusOK, dataResponse{Version: snap.Version, Records: snap.Sorted()})
}

func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, kvstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, kvstore.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, kvstore.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes every failure as one line of plain text.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := statusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = strings.ToLower(http.StatusText(he.Code))
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", kvstore.Fields{"uri": c.Request().RequestURI, "err": err})
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.String(code, msg+"\n")
}
