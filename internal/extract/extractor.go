// Package extract turns the media attachments of an X/Twitter export into meme records.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jo-hoe/memereport/internal/archive"
	"github.com/jo-hoe/memereport/internal/backend/commands"
	"github.com/jo-hoe/memereport/internal/backend/commandstructure"
	"github.com/jo-hoe/memereport/internal/backend/database"
	"github.com/jo-hoe/memereport/internal/fetch"
	"github.com/jo-hoe/memereport/internal/metrics"
	"github.com/jo-hoe/memereport/internal/tweet"
)

const (
	OutcomeReshare = "reshare"
	OutcomeNoMedia = "no_media"
	OutcomeSaved   = "saved"
	OutcomeFailed  = "failed"
	// OutcomeRejected is a fetch refused by the open circuit breaker; no request was made
	OutcomeRejected = "rejected"

	jobName       = "memereport_extract"
	fileExtension = ".png"
)

var ErrBackupExists = errors.New("backup directory already exists")

// MediaFetcher downloads one media attachment
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Config struct {
	ArchivePath string
	Archive     archive.Options
	ImageDir    string
	// BackupDir, when set, receives the previous image directory instead of deleting it
	BackupDir string
	Timezone  string
	// MaxTweets caps the number of records processed; zero processes all
	MaxTweets      int
	PushgatewayURL string
	PushTimeout    time.Duration
}

// Stats counts the outcome of every record of one run
type Stats struct {
	RunID    string
	Total    int
	Reshares int
	NoMedia  int
	Saved    int
	Failed   int
	Rejected int
	Duration time.Duration
}

type Extractor struct {
	config    Config
	database  database.DatabaseService
	fetcher   MediaFetcher
	pipeline  *commandstructure.CommandInvoker
	formatter *tweet.Formatter
	metrics   *metrics.Collectors
}

// NewExtractor wires the job. A nil pipeline converts every attachment to PNG; nil collectors disable metrics.
func NewExtractor(config Config, databaseService database.DatabaseService, fetcher MediaFetcher,
	pipeline *commandstructure.CommandInvoker, collectors *metrics.Collectors) (*Extractor, error) {
	if config.ArchivePath == "" {
		return nil, errors.New("archive path is required")
	}
	if config.ImageDir == "" {
		return nil, errors.New("image directory is required")
	}
	if config.BackupDir != "" && filepath.Clean(config.BackupDir) == filepath.Clean(config.ImageDir) {
		return nil, errors.New("backup directory must differ from the image directory")
	}
	if config.PushTimeout <= 0 {
		config.PushTimeout = 10 * time.Second
	}

	formatter, err := tweet.NewFormatter(config.Timezone)
	if err != nil {
		return nil, err
	}
	if pipeline == nil {
		pipeline = commandstructure.NewCommandInvoker([]commandstructure.Command{
			commands.NewPngConverterCommandDirect(0, 0),
		})
	}

	return &Extractor{
		config:    config,
		database:  databaseService,
		fetcher:   fetcher,
		pipeline:  pipeline,
		formatter: formatter,
		metrics:   collectors,
	}, nil
}

// Run rebuilds the image directory and the memes table from the archive.
// Per-record failures are logged and counted; only whole-run failures are returned.
func (e *Extractor) Run(ctx context.Context) (stats Stats, err error) {
	start := time.Now()
	stats.RunID = uuid.NewString()
	logger := slog.With("run_id", stats.RunID)

	defer func() {
		stats.Duration = time.Since(start)
		e.finish(logger, stats, start, err)
	}()

	if err := prepareImageDir(e.config.ImageDir, e.config.BackupDir); err != nil {
		return stats, err
	}
	if err := e.database.ResetDatabase(); err != nil {
		return stats, fmt.Errorf("failed to reset database: %w", err)
	}

	envelopes, err := archive.ReadTweets(e.config.ArchivePath, e.config.Archive)
	if err != nil {
		return stats, err
	}
	if e.config.MaxTweets > 0 && len(envelopes) > e.config.MaxTweets {
		envelopes = envelopes[:e.config.MaxTweets]
	}
	logger.Info("Extractor: processing records",
		"archive", e.config.ArchivePath,
		"records", len(envelopes),
		"pipeline", e.pipeline.Names())

	stems := make(map[string]int)
	for _, envelope := range envelopes {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("extraction cancelled: %w", err)
		}

		record := envelope.Tweet
		outcome, recordErr := OutcomeFailed, envelope.Err
		if recordErr == nil {
			outcome, recordErr = e.processRecord(ctx, record, stems)
		}
		stats.count(outcome)
		if e.metrics != nil {
			e.metrics.Records.WithLabelValues(outcome).Inc()
		}

		switch {
		case recordErr == nil:
		case outcome == OutcomeRejected:
			logger.Warn("Extractor: media fetch skipped, circuit breaker open",
				"tweet_id", record.ID,
				"error", recordErr)
		default:
			logger.Warn("Extractor: failed to process record",
				"tweet_id", record.ID,
				"created_at", record.CreatedAtRaw,
				"error", recordErr)
		}
	}

	return stats, nil
}

func (e *Extractor) processRecord(ctx context.Context, record tweet.Tweet, stems map[string]int) (string, error) {
	if record.IsReshare() {
		return OutcomeReshare, nil
	}
	mediaURL := record.FirstMediaURL()
	if mediaURL == "" {
		return OutcomeNoMedia, nil
	}

	createdAt, err := record.CreatedAt()
	if err != nil {
		return OutcomeFailed, err
	}
	data, err := e.fetcher.Fetch(ctx, mediaURL)
	if errors.Is(err, fetch.ErrBreakerOpen) {
		return OutcomeRejected, err
	}
	if err != nil {
		return OutcomeFailed, err
	}
	data, err = e.pipeline.Execute(data)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to process media %s: %w", mediaURL, err)
	}

	fileName := uniqueFileName(e.formatter.FileStem(createdAt), stems)
	path := filepath.Join(e.config.ImageDir, fileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to write %s: %w", path, err)
	}

	meme := database.Meme{
		Date:       e.formatter.DisplayDate(createdAt),
		LocalFile:  fileName,
		LikesCount: record.Likes(),
	}
	if err := e.database.InsertMeme(ctx, meme); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.Debug("Extractor: failed to remove orphaned file", "path", path, "error", rmErr)
		}
		return OutcomeFailed, fmt.Errorf("failed to insert meme %s: %w", fileName, err)
	}

	slog.Debug("Extractor: meme saved",
		"tweet_id", record.ID,
		"date", meme.Date,
		"local_file", meme.LocalFile,
		"likes", meme.LikesCount,
		"size_bytes", len(data))
	return OutcomeSaved, nil
}

func (e *Extractor) finish(logger *slog.Logger, stats Stats, start time.Time, runErr error) {
	if runErr != nil {
		logger.Error("Extractor: run failed", "error", runErr, "duration", stats.Duration)
	} else {
		logger.Info("Extractor: run completed",
			"records", stats.Total,
			"saved", stats.Saved,
			"reshares", stats.Reshares,
			"no_media", stats.NoMedia,
			"failed", stats.Failed,
			"rejected", stats.Rejected,
			"duration", stats.Duration)
	}

	if e.metrics == nil {
		return
	}
	e.metrics.ObserveJob(jobName, start, runErr == nil)

	ctx, cancel := context.WithTimeout(context.Background(), e.config.PushTimeout)
	defer cancel()
	if err := e.metrics.Push(ctx, e.config.PushgatewayURL, jobName, stats.RunID); err != nil {
		logger.Warn("Extractor: failed to push metrics", "error", err)
	}
}

func (s *Stats) count(outcome string) {
	s.Total++
	switch outcome {
	case OutcomeReshare:
		s.Reshares++
	case OutcomeNoMedia:
		s.NoMedia++
	case OutcomeSaved:
		s.Saved++
	case OutcomeRejected:
		s.Rejected++
	default:
		s.Failed++
	}
}

// uniqueFileName appends _2, _3, ... to stems already used in this run
func uniqueFileName(stem string, used map[string]int) string {
	used[stem]++
	name := stem
	if n := used[stem]; n > 1 {
		name = fmt.Sprintf("%s_%d", stem, n)
		for used[name] > 0 {
			used[stem]++
			name = fmt.Sprintf("%s_%d", stem, used[stem])
		}
		used[name]++
	}
	return name + fileExtension
}

// prepareImageDir moves the previous image directory to backupDir, or removes it, and recreates it empty
func prepareImageDir(imageDir, backupDir string) error {
	_, err := os.Stat(imageDir)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to inspect image directory %s: %w", imageDir, err)
	}

	switch {
	case exists && backupDir != "":
		if _, err := os.Stat(backupDir); err == nil {
			return fmt.Errorf("%w: %s", ErrBackupExists, backupDir)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to inspect backup directory %s: %w", backupDir, err)
		}
		if err := os.MkdirAll(filepath.Dir(backupDir), 0o755); err != nil {
			return fmt.Errorf("failed to create parent of backup directory %s: %w", backupDir, err)
		}
		if err := os.Rename(imageDir, backupDir); err != nil {
			return fmt.Errorf("failed to move %s to %s: %w", imageDir, backupDir, err)
		}
		slog.Info("Extractor: previous images moved to backup", "from", imageDir, "to", backupDir)
	case exists:
		if err := os.RemoveAll(imageDir); err != nil {
			return fmt.Errorf("failed to remove image directory %s: %w", imageDir, err)
		}
	}

	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return fmt.Errorf("failed to create image directory %s: %w", imageDir, err)
	}
	return nil
}
