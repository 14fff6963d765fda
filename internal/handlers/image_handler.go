// Package handlers exposes the TransformCoordinator over HTTP: ingest,
// prepare-and-serve, and original lookup, per spec.md §6.
package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/samidalouche/imgserver/internal/cache"
	"github.com/samidalouche/imgserver/internal/coordinator"
	"github.com/samidalouche/imgserver/internal/imgerrors"
	"github.com/samidalouche/imgserver/internal/utils"
)

// ImageHandler adapts coordinator.Coordinator to gin handlers.
type ImageHandler struct {
	coordinator coordinator.Coordinator
	layout      cache.Layout
}

// NewImageHandler constructs an ImageHandler.
func NewImageHandler(c coordinator.Coordinator, layout cache.Layout) *ImageHandler {
	return &ImageHandler{coordinator: c, layout: layout}
}

// SaveOriginal handles POST /api/v1/images/:id, ingesting the uploaded file
// under the caller-supplied id.
func (h *ImageHandler) SaveOriginal(c *gin.Context) {
	imageID := c.Param("id")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.SendValidationError(c, err)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.SendInternalError(c, err)
		return
	}
	defer file.Close()

	if err := h.coordinator.SaveOriginal(c.Request.Context(), file, imageID); err != nil {
		writeCoordinatorError(c, err)
		return
	}

	utils.SendCreated(c, "original image saved", gin.H{"id": imageID})
}

// PrepareTransformation handles POST /api/v1/images/:id/renditions,
// rendering (or reusing a cached rendition of) the original at the
// requested size and format, then streaming the resulting file.
func (h *ImageHandler) PrepareTransformation(c *gin.Context) {
	imageID := c.Param("id")

	width, err := strconv.Atoi(c.Query("width"))
	if err != nil || width < 1 {
		utils.SendValidationError(c, errors.New("width must be a positive integer"))
		return
	}
	height, err := strconv.Atoi(c.Query("height"))
	if err != nil || height < 1 {
		utils.SendValidationError(c, errors.New("height must be a positive integer"))
		return
	}
	format := c.Query("format")
	if format == "" {
		utils.SendValidationError(c, errors.New("format is required"))
		return
	}

	rel, err := h.coordinator.PrepareTransformation(c.Request.Context(), coordinator.TransformationRequest{
		ImageID:      imageID,
		Size:         cache.Size{Width: width, Height: height},
		TargetFormat: format,
	})
	if err != nil {
		writeCoordinatorError(c, err)
		return
	}

	c.File(filepath.Join(h.layout.DataDirectory, rel))
}

// GetOriginal handles GET /api/v1/images/:id, streaming the ingested
// original file once it has finished being written.
func (h *ImageHandler) GetOriginal(c *gin.Context) {
	imageID := c.Param("id")

	rel, err := h.coordinator.GetOriginalPath(c.Request.Context(), imageID)
	if err != nil {
		writeCoordinatorError(c, err)
		return
	}

	c.File(filepath.Join(h.layout.DataDirectory, rel))
}

func writeCoordinatorError(c *gin.Context, err error) {
	var invalidID *imgerrors.InvalidIdentifier
	var unrecognized *imgerrors.ImageFileNotRecognized
	var alreadyExists *imgerrors.ImageIdAlreadyExists
	var notExist *imgerrors.ItemDoesNotExist
	var forbidden *imgerrors.ForbiddenSize
	var processing *imgerrors.ImageProcessing

	switch {
	case errors.As(err, &invalidID):
		utils.SendError(c, http.StatusBadRequest, "invalid image id", err)
	case errors.As(err, &unrecognized):
		utils.SendError(c, http.StatusUnprocessableEntity, "unrecognized image file", err)
	case errors.As(err, &alreadyExists):
		utils.SendError(c, http.StatusConflict, "image id already exists", err)
	case errors.As(err, &notExist):
		utils.SendError(c, http.StatusNotFound, "image not found", err)
	case errors.As(err, &forbidden):
		utils.SendError(c, http.StatusForbidden, "size not allowed", err)
	case errors.As(err, &processing):
		utils.SendError(c, http.StatusServiceUnavailable, "image still processing", err)
	default:
		utils.SendInternalError(c, err)
	}
}
