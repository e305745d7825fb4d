package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/trailerforge/api/internal/middleware"
	"github.com/trailerforge/api/internal/model"
	"github.com/trailerforge/api/internal/service"
	"github.com/trailerforge/api/pkg/response"
)

// JobHandler serves the user-facing job API.
type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewJobHandler(svc *service.JobService, v *validator.Validate) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/jobs
func (h *JobHandler) Create(c *fiber.Ctx) error {
	var req model.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.service.CreateJob(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		return serviceError(c, err)
	}

	return response.Created(c, job)
}

// UploadURL handles POST /api/jobs/upload-url
func (h *JobHandler) UploadURL(c *fiber.Ctx) error {
	var req model.UploadURLRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.IssueUploadURL(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, result)
}

// MarkUploaded handles POST /api/jobs/:jobId/uploaded
func (h *JobHandler) MarkUploaded(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.MarkUploaded(c.Context(), middleware.GetUserID(c), jobID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, job)
}

// SelectProfile handles PUT /api/jobs/:jobId/profile
func (h *JobHandler) SelectProfile(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.SelectProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.service.SelectProfile(c.Context(), middleware.GetUserID(c), jobID, req.ProfileID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, job)
}

// Regenerate handles POST /api/jobs/:jobId/regenerate
func (h *JobHandler) Regenerate(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.RegeneratePlan(c.Context(), middleware.GetUserID(c), jobID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, job)
}

// List handles GET /api/jobs
func (h *JobHandler) List(c *fiber.Ctx) error {
	jobs, err := h.service.ListJobs(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, jobs)
}

// Get handles GET /api/jobs/:jobId
func (h *JobHandler) Get(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.GetJob(c.Context(), middleware.GetUserID(c), jobID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, job)
}
