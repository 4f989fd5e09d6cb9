package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jo-hoe/memereport/internal/archive"
	"github.com/jo-hoe/memereport/internal/backend/commandstructure"
	"github.com/jo-hoe/memereport/internal/backend/database"
	"github.com/jo-hoe/memereport/internal/extract"
	"github.com/jo-hoe/memereport/internal/fetch"
	"github.com/jo-hoe/memereport/internal/metrics"
	"github.com/jo-hoe/memereport/internal/report"
	"github.com/jo-hoe/memereport/internal/tweet"
)

const (
	reportJobName = "memereport_report"
	pushTimeout   = 10 * time.Second
)

const (
	OrderTop    = "top"
	OrderBottom = "bottom"
)

var ErrInvalidFileName = errors.New("invalid file name")

// RankedMeme is a meme with its position in a ranked list
type RankedMeme struct {
	Rank int `json:"rank"`
	database.Meme
	ImageURL string `json:"imageUrl"`
}

type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	formatter       *tweet.Formatter
	metrics         *metrics.Collectors
}

// NewCoreService opens the database and prepares the renderer. collectors may be nil.
func NewCoreService(config *ServiceConfig, collectors *metrics.Collectors) (*CoreService, error) {
	formatter, err := tweet.NewFormatter(config.Timezone)
	if err != nil {
		return nil, err
	}

	databaseService, err := getDatabaseService(config)
	if err != nil {
		return nil, err
	}

	service := &CoreService{
		config:          config,
		databaseService: databaseService,
		formatter:       formatter,
		metrics:         collectors,
	}
	if _, err := report.NewRenderer(service.rendererConfig(time.Now())); err != nil {
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to initialize report renderer: %w", err)
	}
	return service, nil
}

// RunExtraction rebuilds the memes table and image directory from the configured archive
func (service *CoreService) RunExtraction(ctx context.Context) (extract.Stats, error) {
	pipeline, err := commandstructure.NewCommandInvokerFromConfig(commandstructure.DefaultRegistry, service.config.CommandConfigs())
	if err != nil {
		return extract.Stats{}, fmt.Errorf("failed to build media pipeline: %w", err)
	}

	cache := service.mediaCache(ctx)
	defer func() {
		if err := cache.Close(); err != nil {
			slog.Warn("CoreService: failed to close media cache", "error", err)
		}
	}()

	fetchConfig := service.config.Fetch
	fetcher := fetch.NewFetcher(fetch.Config{
		Timeout:           fetchConfig.Timeout,
		RequestsPerSecond: fetchConfig.RequestsPerSecond,
		Burst:             fetchConfig.Burst,
		BreakerThreshold:  fetchConfig.BreakerThreshold,
		BreakerCooldown:   fetchConfig.BreakerCooldown,
		UserAgent:         fetchConfig.UserAgent,
	}, cache, service.metrics)

	extractor, err := extract.NewExtractor(extract.Config{
		ArchivePath: service.config.Archive.Path,
		Archive: archive.Options{
			EntryName: service.config.Archive.Entry,
			Prefix:    service.config.Archive.Prefix,
			ExtractTo: service.config.WorkDir,
		},
		ImageDir:       service.config.ImageDir,
		BackupDir:      service.config.BackupDir,
		Timezone:       service.config.Timezone,
		MaxTweets:      service.config.MaxTweets,
		PushgatewayURL: service.config.Metrics.PushgatewayURL,
		PushTimeout:    pushTimeout,
	}, service.databaseService, fetcher, pipeline, service.metrics)
	if err != nil {
		return extract.Stats{}, err
	}
	return extractor.Run(ctx)
}

// mediaCache connects to Redis when configured. The cache is an optimisation, so
// connection problems fall back to fetching everything.
func (service *CoreService) mediaCache(ctx context.Context) fetch.MediaCache {
	if service.config.Cache.RedisURL == "" {
		return fetch.NoopCache{}
	}
	cache, err := fetch.NewRedisCacheFromURL(ctx, service.config.Cache.RedisURL, service.config.Cache.TTL)
	if err != nil {
		slog.Warn("CoreService: media cache unavailable, fetching without cache", "error", err)
		return fetch.NoopCache{}
	}
	return cache
}

// TopMemes returns the most liked memes. A non-positive limit uses the configured section size.
func (service *CoreService) TopMemes(ctx context.Context, limit int) ([]database.Meme, error) {
	if limit <= 0 {
		limit = service.config.Report.TopCount
	}
	return service.databaseService.GetTopMemes(ctx, limit, service.config.Report.MinLikes)
}

// BottomMemes returns the least liked eligible memes. A non-positive limit uses the configured section size.
func (service *CoreService) BottomMemes(ctx context.Context, limit int) ([]database.Meme, error) {
	if limit <= 0 {
		limit = service.config.Report.BottomCount
	}
	return service.databaseService.GetBottomMemes(ctx, limit, service.config.Report.MinLikes)
}

// RankedMemes numbers the top or bottom list from 1
func (service *CoreService) RankedMemes(ctx context.Context, order string, limit int) ([]RankedMeme, error) {
	var (
		memes []database.Meme
		err   error
	)
	switch order {
	case OrderTop:
		memes, err = service.TopMemes(ctx, limit)
	case OrderBottom:
		memes, err = service.BottomMemes(ctx, limit)
	default:
		return nil, fmt.Errorf("unknown order %q", order)
	}
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedMeme, 0, len(memes))
	for i, meme := range memes {
		ranked = append(ranked, RankedMeme{Rank: i + 1, Meme: meme, ImageURL: "/memes/" + url.PathEscape(meme.LocalFile)})
	}
	return ranked, nil
}

func (service *CoreService) CountMemes(ctx context.Context) (int, error) {
	return service.databaseService.CountMemes(ctx)
}

// ImagePath resolves a meme file inside the image directory
func (service *CoreService) ImagePath(file string) (string, error) {
	if file == "" || file == "." || file == ".." || strings.ContainsAny(file, `/\`) || filepath.Base(file) != file {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, file)
	}
	return filepath.Join(service.config.ImageDir, file), nil
}

// RenderReport writes the PDF report for the current table contents to w
func (service *CoreService) RenderReport(ctx context.Context, w io.Writer) (report.Summary, error) {
	top, err := service.TopMemes(ctx, 0)
	if err != nil {
		return report.Summary{}, fmt.Errorf("failed to query top memes: %w", err)
	}
	bottom, err := service.BottomMemes(ctx, 0)
	if err != nil {
		return report.Summary{}, fmt.Errorf("failed to query bottom memes: %w", err)
	}

	// Built per call so the title page carries the render date
	renderer, err := report.NewRenderer(service.rendererConfig(time.Now()))
	if err != nil {
		return report.Summary{}, err
	}
	summary, err := renderer.Render(w, top, bottom)
	if err != nil {
		return summary, err
	}

	if service.metrics != nil {
		service.metrics.ReportPages.WithLabelValues("top").Set(float64(summary.TopPages))
		service.metrics.ReportPages.WithLabelValues("bottom").Set(float64(summary.BottomPages))
		service.metrics.ReportPages.WithLabelValues("total").Set(float64(summary.Pages))
		service.metrics.ReportEntries.WithLabelValues("top").Set(float64(len(top)))
		service.metrics.ReportEntries.WithLabelValues("bottom").Set(float64(len(bottom)))
	}
	return summary, nil
}

// WriteReport renders the report into path. The file is replaced only once rendering succeeded.
func (service *CoreService) WriteReport(ctx context.Context, path string) (summary report.Summary, err error) {
	start := time.Now()
	defer func() {
		service.pushReportMetrics(start, err == nil)
	}()

	if path == "" {
		path = service.config.Report.Output
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return summary, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".memereport-*.pdf")
	if err != nil {
		return summary, fmt.Errorf("failed to create temporary report file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	summary, err = service.RenderReport(ctx, tmp)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close report file: %w", closeErr)
	}
	if err != nil {
		return summary, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return summary, fmt.Errorf("failed to move report to %s: %w", path, err)
	}

	slog.Info("CoreService: report written", "path", path, "pages", summary.Pages)
	return summary, nil
}

func (service *CoreService) pushReportMetrics(start time.Time, succeeded bool) {
	if service.metrics == nil {
		return
	}
	service.metrics.ObserveJob(reportJobName, start, succeeded)

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := service.metrics.Push(ctx, service.config.Metrics.PushgatewayURL, reportJobName, uuid.NewString()); err != nil {
		slog.Warn("CoreService: failed to push metrics", "error", err)
	}
}

func (service *CoreService) Close() error {
	return service.databaseService.Close()
}

func (service *CoreService) rendererConfig(now time.Time) report.Config {
	reportConfig := service.config.Report
	date := reportConfig.Date
	if date == "" {
		date = service.formatter.DisplayDate(now)
	}
	return report.Config{
		Title:           reportConfig.Title,
		Date:            date,
		TopSize:         reportConfig.TopCount,
		BottomSize:      reportConfig.BottomCount,
		ImageDir:        service.config.ImageDir,
		LogoPath:        reportConfig.Logo,
		LogoWidth:       reportConfig.LogoWidth,
		RegularFontPath: reportConfig.RegularFont,
		BoldFontPath:    reportConfig.BoldFont,
		BackgroundColor: reportConfig.BackgroundColor,
		TextColor:       reportConfig.TextColor,
		AccentColor:     reportConfig.AccentColor,
		EntriesPerPage:  reportConfig.EntriesPerPage,
		Columns:         reportConfig.Columns,
		ImageSize:       reportConfig.ImageSize,
		ThumbnailPixels: reportConfig.ThumbnailPixels,
	}
}

func getDatabaseService(config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}
