package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/lofitape/api/internal/client"
	"github.com/lofitape/api/internal/model"
	"github.com/lofitape/api/internal/service"
	"github.com/lofitape/api/pkg/response"
)

var formatContentTypes = map[model.Format]string{
	model.FormatMP3: "audio/mpeg",
	model.FormatWAV: "audio/wav",
}

type DownloadHandler struct {
	service *service.JobService
	storage client.StorageClient
}

func NewDownloadHandler(svc *service.JobService, storage client.StorageClient) *DownloadHandler {
	return &DownloadHandler{
		service: svc,
		storage: storage,
	}
}

// Download handles GET /api/download/:jobId/:format. Remote-stored
// artifacts redirect to their public URL; local artifacts stream through
// the process so storage paths never leak.
func (h *DownloadHandler) Download(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if !model.IsValidFormat(c.Params("format")) {
		return response.ValidationError(c, "Format must be mp3 or wav", nil)
	}
	format := model.Format(c.Params("format"))

	if _, err := h.service.GetResult(c.Context(), jobID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return response.NotFound(c, "No completed job with that ID")
		}
		return response.ServiceError(c, "Failed to load job")
	}

	key := client.ArtifactKey(jobID, string(format))
	if url := h.storage.GetPublicURL(key); strings.HasPrefix(url, "http") {
		return c.Redirect(url, fiber.StatusFound)
	}

	body, err := h.storage.Open(c.Context(), key)
	if err != nil {
		return response.ServiceError(c, "Artifact unavailable")
	}

	c.Set(fiber.HeaderContentType, formatContentTypes[format])
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="lofi_%s.%s"`, jobID, format))
	return c.SendStream(body)
}
