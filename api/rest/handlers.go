package rest

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/NSvoltage/secureflow/internal/parser"
	"github.com/NSvoltage/secureflow/internal/state"
	"github.com/NSvoltage/secureflow/pkg/types"
)

// healthCheck handles GET /health.
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// securityContext builds the caller's security context; profile may be
// overridden per request.
func (s *Server) securityContext(profile string) (types.SecurityContext, error) {
	name := profile
	if name == "" {
		name = s.config.DefaultProfile
	}
	p := types.ProfileByName(name)
	if p == nil {
		return types.SecurityContext{}, fiber.NewError(fiber.StatusBadRequest, "unknown security profile: "+name)
	}
	return types.SecurityContext{
		PrincipalID: s.config.Principal,
		Permissions: s.config.Permissions,
		Profile:     p,
	}, nil
}

// parseDocument resolves an inline workflow or raw YAML into a parsed
// workflow.
func parseDocument(workflow *types.Workflow, yamlDoc string) (*types.Workflow, error) {
	switch {
	case yamlDoc != "":
		return parser.NewYAMLParser().Parse([]byte(yamlDoc))
	case workflow != nil:
		if errs := parser.Validate(workflow); errs.HasErrors() {
			return nil, errs
		}
		return workflow, nil
	default:
		return nil, fiber.NewError(fiber.StatusBadRequest, "either 'workflow' or 'yaml' must be provided")
	}
}

// submitExecution handles POST /api/executions.
func (s *Server) submitExecution(c *fiber.Ctx) error {
	var req ExecutionSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_request", "failed to parse request body: "+err.Error())
	}

	workflow, err := parseDocument(req.Workflow, req.YAML)
	if err != nil {
		return badRequest(c, "invalid_workflow", err.Error())
	}
	secCtx, err := s.securityContext(req.Profile)
	if err != nil {
		return err
	}

	if req.Wait {
		st, err := s.engine.Run(context.Background(), workflow, req.Inputs, secCtx)
		if err != nil {
			return executionError(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(st)
	}

	id, err := s.engine.Submit(context.Background(), workflow, req.Inputs, secCtx)
	if err != nil {
		return executionError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(ExecutionSubmitResponse{
		ExecutionID: id,
		Status:      string(types.ExecutionStatusPending),
	})
}

// getExecution handles GET /api/executions/:id.
func (s *Server) getExecution(c *fiber.Ctx) error {
	st, err := s.engine.Status(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Error:   "not_found",
				Message: "no execution with id " + c.Params("id"),
			})
		}
		return err
	}
	return c.JSON(st)
}

// listExecutions handles GET /api/executions.
func (s *Server) listExecutions(c *fiber.Ctx) error {
	states, err := s.engine.List(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(states)
}

// cancelExecution handles POST /api/executions/:id/cancel.
func (s *Server) cancelExecution(c *fiber.Ctx) error {
	if err := s.engine.Cancel(c.Context(), c.Params("id")); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Error:   "not_found",
				Message: "no execution with id " + c.Params("id"),
			})
		}
		return conflict(c, err.Error())
	}
	st, err := s.engine.Status(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(st)
}

// resumeExecution handles POST /api/executions/:id/resume.
func (s *Server) resumeExecution(c *fiber.Ctx) error {
	var req ResumeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_request", "failed to parse request body: "+err.Error())
	}

	workflow, err := parseDocument(req.Workflow, req.YAML)
	if err != nil {
		return badRequest(c, "invalid_workflow", err.Error())
	}
	secCtx, err := s.securityContext(req.Profile)
	if err != nil {
		return err
	}

	st, err := s.engine.Resume(context.Background(), workflow, c.Params("id"), secCtx)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Error:   "not_found",
				Message: "no execution with id " + c.Params("id"),
			})
		}
		if state.IsConflict(err) {
			return conflict(c, err.Error())
		}
		return executionError(c, err)
	}
	return c.JSON(st)
}

// validateWorkflow handles POST /api/workflows/validate.
func (s *Server) validateWorkflow(c *fiber.Ctx) error {
	var req ValidateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_request", "failed to parse request body: "+err.Error())
	}

	workflow, err := parseDocument(req.Workflow, req.YAML)
	if err != nil {
		return c.Status(fiber.StatusOK).JSON(ValidateResponse{
			Valid:  false,
			Issues: []string{err.Error()},
		})
	}
	secCtx, err := s.securityContext(req.Profile)
	if err != nil {
		return err
	}

	report, err := s.engine.DryRun(workflow, req.Inputs, secCtx)
	if err != nil {
		return c.Status(fiber.StatusOK).JSON(ValidateResponse{
			Valid:  false,
			Issues: []string{err.Error()},
		})
	}
	return c.JSON(ValidateResponse{Valid: report.Valid, Report: report})
}

// getStats handles GET /api/stats.
func (s *Server) getStats(c *fiber.Ctx) error {
	return c.JSON(StatsResponse{Stats: s.engine.Stats()})
}

func badRequest(c *fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: code, Message: message})
}

func conflict(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: "conflict", Message: message})
}

func executionError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{
		Error:   "execution_rejected",
		Message: err.Error(),
	})
}
