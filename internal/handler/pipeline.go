package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/trailerforge/api/internal/model"
	"github.com/trailerforge/api/internal/service"
	"github.com/trailerforge/api/internal/websocket"
	"github.com/trailerforge/api/pkg/response"
)

// PipelineHandler serves the worker callback surface: claims, progress
// reports, artifact upserts and terminal transitions. Claim and release
// always answer 200 with a structured result so polling workers can loop
// without special-casing refusals.
type PipelineHandler struct {
	claims    *service.ClaimService
	pipeline  *service.PipelineService
	validator *validator.Validate
	hub       *websocket.Hub
}

func NewPipelineHandler(claims *service.ClaimService, pipeline *service.PipelineService, v *validator.Validate, hub *websocket.Hub) *PipelineHandler {
	return &PipelineHandler{
		claims:    claims,
		pipeline:  pipeline,
		validator: v,
		hub:       hub,
	}
}

// Claimable handles GET /worker/jobs/claimable
func (h *PipelineHandler) Claimable(c *fiber.Ctx) error {
	jobs, err := h.claims.ClaimableJobs(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"jobs": jobs})
}

// Claim handles POST /worker/jobs/:jobId/claim
func (h *PipelineHandler) Claim(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.ClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.claims.Claim(c.Context(), jobID, req.WorkerID)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	if result.Claimed && result.Job != nil {
		h.hub.BroadcastStatus(jobID, result.Job.Status)
	}
	return response.OK(c, result)
}

// Release handles POST /worker/jobs/:jobId/release
func (h *PipelineHandler) Release(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.ReleaseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.claims.Release(c.Context(), jobID, req.WorkerID)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// UpdateStatus handles POST /worker/jobs/:jobId/status
func (h *PipelineHandler) UpdateStatus(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.pipeline.UpdateStatus(c.Context(), jobID, &req)
	if err != nil {
		return serviceError(c, err)
	}

	h.hub.BroadcastProgress(jobID, job.Progress, job.Status, job.CurrentStep)
	return response.OK(c, job)
}

// UpsertPlan handles POST /worker/jobs/:jobId/plans/:kind
func (h *PipelineHandler) UpsertPlan(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	kind, ok := model.ParsePlanKind(c.Params("kind"))
	if !ok {
		return response.ValidationError(c, "Unknown plan kind", nil)
	}

	var req model.UpsertPlanRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	rec, err := h.pipeline.UpsertPlan(c.Context(), jobID, kind, &req)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, rec)
}

// CreateClip handles POST /worker/jobs/:jobId/clips
func (h *PipelineHandler) CreateClip(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.CreateClipRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	clip, err := h.pipeline.CreateClip(c.Context(), jobID, &req)
	if err != nil {
		return serviceError(c, err)
	}

	return response.Created(c, clip)
}

// Complete handles POST /worker/jobs/:jobId/complete
func (h *PipelineHandler) Complete(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.pipeline.Complete(c.Context(), jobID)
	if err != nil {
		return serviceError(c, err)
	}

	h.hub.BroadcastComplete(jobID, job)
	return response.OK(c, job)
}

// Fail handles POST /worker/jobs/:jobId/fail
func (h *PipelineHandler) Fail(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.FailRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.pipeline.Fail(c.Context(), jobID, req.Error, req.ErrorStage)
	if err != nil {
		return serviceError(c, err)
	}

	h.hub.BroadcastError(jobID, "JOB_FAILED", req.Error, req.ErrorStage)
	return response.OK(c, job)
}

// Details handles GET /worker/jobs/:jobId
func (h *PipelineHandler) Details(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	details, err := h.pipeline.JobDetails(c.Context(), jobID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, details)
}

// Capacity handles GET /worker/capacity
func (h *PipelineHandler) Capacity(c *fiber.Ctx) error {
	capacity, err := h.claims.Capacity(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, capacity)
}
