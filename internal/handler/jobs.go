// Package handler exposes the HTTP surface: job submission, status polling,
// and artifact download. Handlers translate transport details into service
// calls and service errors into the response envelope.
package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/lofitape/api/internal/model"
	"github.com/lofitape/api/internal/service"
	"github.com/lofitape/api/pkg/response"
)

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

// Create handles POST /api/jobs. A multipart body carries a direct upload;
// a JSON body carries a remote source URL.
func (h *JobHandler) Create(c *fiber.Ctx) error {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return h.createFromUpload(c)
	}
	return h.createFromURL(c)
}

func (h *JobHandler) createFromURL(c *fiber.Ctx) error {
	var req model.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.SubmitYouTube(c.Context(), req.SourceURL, req.Preset)
	if err != nil {
		return admissionError(c, err)
	}
	return response.Accepted(c, result)
}

func (h *JobHandler) createFromUpload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	result, err := h.service.SubmitUpload(c.Context(), file, c.FormValue("preset"))
	if err != nil {
		return admissionError(c, err)
	}
	return response.Accepted(c, result)
}

// Status handles GET /api/jobs/:jobId.
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	snap, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, "Failed to load job")
	}
	return response.OK(c, snap)
}

func admissionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrUnknownPreset):
		return response.ValidationError(c, "Unknown preset", nil)
	case errors.Is(err, service.ErrInvalidURL):
		return response.ValidationError(c, "Source URL is not a recognized video link", nil)
	case errors.Is(err, service.ErrUploadTooLarge):
		return response.ValidationError(c, "File too large", nil)
	case errors.Is(err, service.ErrUploadNotAudio):
		return response.ValidationError(c, "File is not a supported audio format", nil)
	default:
		return response.ServiceError(c, "Failed to create job")
	}
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
