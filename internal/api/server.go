// Package api serves run history and exchange entries over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/aristath/etlrun/internal/exchange"
	"github.com/aristath/etlrun/internal/persistence"
)

// History is the read side of the run history.
type History interface {
	GetRun(ctx context.Context, runID string) (persistence.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]persistence.RunRecord, error)
	ListTaskInstances(ctx context.Context, runID string) ([]persistence.TaskRecord, error)
}

// ProducerLister is implemented by stores that can enumerate the tasks that
// published in a run.
type ProducerLister interface {
	Producers(ctx context.Context, runID string) ([]string, error)
}

// Response is the envelope of every JSON reply except raw entry values.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Server exposes the inspection endpoints.
type Server struct {
	app     *fiber.App
	history History
	entries exchange.Store
	logger  *zap.Logger
}

// New builds the HTTP app. entries is usually a retaining SQLite or Redis
// store; history may be nil when only entries are served.
func New(history History, entries exchange.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "etlrun",
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		ErrorHandler:          errorHandler,
	})

	s := &Server{app: app, history: history, entries: entries, logger: logger}
	s.routes()
	return s
}

// App returns the underlying fiber app (tests use app.Test).
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until ctx is cancelled.
func (s *Server) Listen(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("inspection API listening", zap.String("addr", addr))
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down inspection API")
		return s.app.ShutdownWithTimeout(5 * time.Second)
	}
}

func (s *Server) routes() {
	s.app.Use(requestid.New(), s.accessLog, recover.New())

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	api := s.app.Group("/api")

	runs := api.Group("/runs")
	runs.Get("", s.listRuns)
	runs.Get("/:run", s.getRun)
	runs.Get("/:run/tasks", s.listTasks)
	runs.Get("/:run/entries", s.listProducers)
	runs.Get("/:run/entries/:task", s.listLabels)
	runs.Get("/:run/entries/:task/:label", s.getEntry)
}

func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	s.logger.Debug("request",
		zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.Duration("latency", time.Since(start)),
	)
	return err
}

func (s *Server) listRuns(c *fiber.Ctx) error {
	if s.history == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "run history not configured")
	}
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be an integer")
	}

	runs, err := s.history.ListRuns(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return success(c, runs)
}

func (s *Server) getRun(c *fiber.Ctx) error {
	if s.history == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "run history not configured")
	}
	run, err := s.history.GetRun(c.UserContext(), c.Params("run"))
	if errors.Is(err, persistence.ErrRunNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return success(c, run)
}

func (s *Server) listTasks(c *fiber.Ctx) error {
	if s.history == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "run history not configured")
	}
	tasks, err := s.history.ListTaskInstances(c.UserContext(), c.Params("run"))
	if err != nil {
		return err
	}
	return success(c, tasks)
}

func (s *Server) listProducers(c *fiber.Ctx) error {
	lister, ok := s.entries.(ProducerLister)
	if !ok {
		return fiber.NewError(fiber.StatusNotImplemented, "store cannot list producers")
	}
	producers, err := lister.Producers(c.UserContext(), c.Params("run"))
	if err != nil {
		return err
	}
	return success(c, producers)
}

func (s *Server) listLabels(c *fiber.Ctx) error {
	labels, err := s.entries.Labels(c.UserContext(), c.Params("run"), c.Params("task"))
	if err != nil {
		return err
	}
	return success(c, labels)
}

// getEntry writes the stored JSON value as is.
func (s *Server) getEntry(c *fiber.Ctx) error {
	key := exchange.Key{RunID: c.Params("run"), TaskID: c.Params("task"), Label: c.Params("label")}
	entry, err := s.entries.Get(c.UserContext(), key)
	if errors.Is(err, exchange.ErrAbsent) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}

	if !entry.UpdatedAt.IsZero() {
		c.Set(fiber.HeaderLastModified, entry.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(entry.Value)
}

func success(c *fiber.Ctx, data any) error {
	return c.JSON(Response{Code: 0, Message: "success", Data: data})
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(Response{Code: code, Message: err.Error()})
}
