package backend

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/memereport/internal/core"
)

const mimePDF = "application/pdf"

// APIService exposes the meme table and the image directory read-only
type APIService struct {
	coreService *core.CoreService
}

type memesRequest struct {
	Order string `query:"order" validate:"oneof=top bottom"`
	Limit int    `query:"limit" validate:"gte=0,lte=1000"`
}

type MemesResponse struct {
	Order string            `json:"order"`
	Memes []core.RankedMeme `json:"memes"`
}

func NewAPIService(coreService *core.CoreService) *APIService {
	return &APIService{
		coreService: coreService,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET("/probe", s.probeHandler)
	e.GET("/api/memes", s.memesHandler)
	e.GET("/memes/:file", s.imageHandler)
	e.GET("/report.pdf", s.reportHandler)
}

func (s *APIService) probeHandler(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "ok")
}

func (s *APIService) memesHandler(ctx echo.Context) error {
	request := memesRequest{Order: core.OrderTop}
	if err := ctx.Bind(&request); err != nil {
		return err
	}
	if err := ctx.Validate(&request); err != nil {
		return err
	}

	memes, err := s.coreService.RankedMemes(ctx.Request().Context(), request.Order, request.Limit)
	if err != nil {
		slog.Error("memesHandler: failed to query memes",
			"status", http.StatusInternalServerError, "order", request.Order, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to query memes")
	}
	return ctx.JSON(http.StatusOK, MemesResponse{Order: request.Order, Memes: memes})
}

func (s *APIService) imageHandler(ctx echo.Context) error {
	file := ctx.Param("file")
	path, err := s.coreService.ImagePath(file)
	if err != nil {
		slog.Warn("imageHandler: rejected file name", "status", http.StatusBadRequest, "file", file)
		return ctx.String(http.StatusBadRequest, "Invalid file name")
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return ctx.String(http.StatusNotFound, "Image not found")
	}
	ctx.Response().Header().Set("Cache-Control", "public, max-age=3600")
	return ctx.File(path)
}

func (s *APIService) reportHandler(ctx echo.Context) error {
	var buf bytes.Buffer
	summary, err := s.coreService.RenderReport(ctx.Request().Context(), &buf)
	if err != nil {
		slog.Error("reportHandler: failed to render report", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to render report")
	}
	slog.Debug("reportHandler: report rendered", "pages", summary.Pages, "size_bytes", buf.Len())
	ctx.Response().Header().Set("Content-Disposition", `inline; filename="meme_report.pdf"`)
	return ctx.Blob(http.StatusOK, mimePDF, buf.Bytes())
}
