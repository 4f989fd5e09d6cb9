package frontend

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/memereport/internal/core"
	"github.com/jo-hoe/memereport/internal/report"
)

const MainPageName = "index.html"

type FrontendService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

type section struct {
	Title string
	Memes []core.RankedMeme
}

type indexPage struct {
	Title      string
	Count      int
	Sections   []section
	Background template.CSS
	Text       template.CSS
	Accent     template.CSS
}

func NewFrontendService(config *core.ServiceConfig, coreService *core.CoreService) *FrontendService {
	return &FrontendService{
		coreService: coreService,
		config:      config,
	}
}

// rootRedirectHandler redirects root path to index.html
func (service *FrontendService) rootRedirectHandler(ctx echo.Context) error {
	return ctx.Redirect(http.StatusMovedPermanently, "/"+MainPageName)
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.Renderer = &Template{
		templates: template.Must(template.New("").ParseFS(templateFS, viewsPattern)),
	}

	e.GET("/", service.rootRedirectHandler)
	e.GET("/"+MainPageName, service.indexHandler)
	e.GET("/icon.svg", service.iconHandler)
}

func (service *FrontendService) indexHandler(ctx echo.Context) error {
	requestCtx := ctx.Request().Context()
	reportConfig := service.config.Report

	count, err := service.coreService.CountMemes(requestCtx)
	if err != nil {
		slog.Error("indexHandler: failed to count memes", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load memes")
	}

	page := indexPage{
		Title:      reportConfig.Title,
		Count:      count,
		Background: template.CSS(reportConfig.BackgroundColor),
		Text:       template.CSS(reportConfig.TextColor),
		Accent:     template.CSS(reportConfig.AccentColor),
	}
	for _, order := range []struct {
		name  string
		title string
		size  int
	}{
		{core.OrderTop, report.DefaultTopTitle, reportConfig.TopCount},
		{core.OrderBottom, report.DefaultBottomTitle, reportConfig.BottomCount},
	} {
		memes, err := service.coreService.RankedMemes(requestCtx, order.name, 0)
		if err != nil {
			slog.Error("indexHandler: failed to query memes",
				"status", http.StatusInternalServerError, "order", order.name, "error", err)
			return ctx.String(http.StatusInternalServerError, "Failed to load memes")
		}
		page.Sections = append(page.Sections, section{Title: fmt.Sprintf(order.title, order.size), Memes: memes})
	}

	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, MainPageName, page)
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}

func (service *FrontendService) iconHandler(ctx echo.Context) error {
	data, err := assetsFS.ReadFile("views/icon.svg")
	if err != nil {
		slog.Error("iconHandler: failed to read icon.svg", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load icon")
	}
	// Cache for 7 days
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, "image/svg+xml", data)
}
