// Package rest provides the REST API server for the workflow engine.
package rest

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/NSvoltage/secureflow/pkg/engine"
	"github.com/NSvoltage/secureflow/pkg/types"
)

// Server represents the REST API server.
type Server struct {
	app    *fiber.App
	engine *engine.Engine
	config *Config
}

// Config holds the configuration for the REST API server.
type Config struct {
	// Address is the address to listen on (e.g., ":8080").
	Address string `yaml:"address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// BodyLimit caps the request body size in bytes.
	BodyLimit int `yaml:"body_limit"`

	// EnableCORS enables Cross-Origin Resource Sharing.
	EnableCORS bool `yaml:"enable_cors"`

	// DefaultProfile is the security profile applied when a request does
	// not name one.
	DefaultProfile string `yaml:"default_profile"`

	// Principal identifies API callers in audit events until an external
	// authentication layer is wired in.
	Principal string `yaml:"principal"`

	// Permissions granted to API callers.
	Permissions []string `yaml:"permissions"`
}

// DefaultConfig returns a default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:        ":8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		BodyLimit:      4 * 1024 * 1024,
		EnableCORS:     false,
		DefaultProfile: types.ProfileRestricted,
		Principal:      "api",
		Permissions: []string{
			types.PermissionExecute,
			types.PermissionCommand,
			types.PermissionFileWrite,
			types.PermissionDelegate,
		},
	}
}

// NewServer creates a new REST API server around an engine.
func NewServer(e *engine.Engine, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		BodyLimit:    config.BodyLimit,
		ErrorHandler: customErrorHandler,
		AppName:      "SecureFlow API",
	})

	server := &Server{app: app, engine: e, config: config}
	server.setupMiddleware()
	server.setupRoutes()
	return server
}

func (s *Server) setupMiddleware() {
	s.app.Use(fiberrecover.New(fiberrecover.Config{
		EnableStackTrace: true,
	}))
	s.app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	if s.config.EnableCORS {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: "*",
			AllowMethods: "GET,POST,OPTIONS",
			AllowHeaders: "Origin,Content-Type,Accept,Authorization",
			MaxAge:       86400,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.healthCheck)

	api := s.app.Group("/api")
	api.Get("/executions", s.listExecutions)
	api.Post("/executions", s.submitExecution)
	api.Get("/executions/:id", s.getExecution)
	api.Post("/executions/:id/cancel", s.cancelExecution)
	api.Post("/executions/:id/resume", s.resumeExecution)
	api.Post("/workflows/validate", s.validateWorkflow)
	api.Get("/stats", s.getStats)
}

// Start starts the REST API server.
func (s *Server) Start() error {
	return s.app.Listen(s.config.Address)
}

// StartWithContext starts the server and shuts it down when the context
// ends.
func (s *Server) StartWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.config.Address)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// customErrorHandler handles errors returned by handlers.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}
	return c.Status(code).JSON(ErrorResponse{
		Error:   fmt.Sprintf("error_%d", code),
		Message: message,
	})
}
