package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jo-hoe/memereport/internal/archive"
	"github.com/jo-hoe/memereport/internal/backend/database"
	"github.com/jo-hoe/memereport/internal/fetch"
	"github.com/jo-hoe/memereport/internal/metrics"
)

// fixture records: one reshare, one without media, two saved memes posted in the same second,
// one with a broken timestamp, one whose media is gone and one with an unreadable like count
const fixtureTweets = `window.YTD.tweets.part0 = [
  {"tweet": {"id_str": "1", "created_at": "Wed Oct 11 14:02:33 +0000 2023", "full_text": "RT @someone: look",
    "favorite_count": "50", "retweeted_status": {"id_str": "0"},
    "entities": {"media": [{"media_url_https": "{{BASE}}/media/reshare.png"}]}}},
  {"tweet": {"id_str": "2", "created_at": "Wed Oct 11 14:02:33 +0000 2023", "full_text": "just text",
    "favorite_count": "7", "entities": {"hashtags": []}}},
  {"tweet": {"id_str": "3", "created_at": "Wed Oct 11 14:02:33 +0000 2023", "full_text": "meme",
    "favorite_count": "4", "entities": {"media": [{"media_url_https": "{{BASE}}/media/a.png"}]}}},
  {"tweet": {"id_str": "4", "created_at": "Wed Oct 11 14:02:33 +0000 2023", "full_text": "meme",
    "entities": {"media": [{"media_url_https": "{{BASE}}/media/b.jpg"}]}}},
  {"tweet": {"id_str": "5", "created_at": "yesterday", "full_text": "meme",
    "favorite_count": "1", "entities": {"media": [{"media_url_https": "{{BASE}}/media/a.png"}]}}},
  {"tweet": {"id_str": "6", "created_at": "Thu Oct 12 14:02:33 +0000 2023", "full_text": "meme",
    "favorite_count": "9", "entities": {"media": [{"media_url_https": "{{BASE}}/missing.png"}]}}},
  {"tweet": {"id_str": "7", "created_at": "Fri Oct 13 14:02:33 +0000 2023", "full_text": "meme",
    "favorite_count": "n/a", "entities": {"media": [{"media_url_https": "{{BASE}}/media/c.png"}]}}}
]`

func encodeImage(t *testing.T, format string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x * 20), B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	var err error
	if format == "jpeg" {
		err = jpeg.Encode(&buf, img, nil)
	} else {
		err = png.Encode(&buf, img)
	}
	if err != nil {
		t.Fatalf("failed to encode %s: %v", format, err)
	}
	return buf.Bytes()
}

func newMediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	pngData := encodeImage(t, "png")
	jpegData := encodeImage(t, "jpeg")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ".png") && strings.HasPrefix(r.URL.Path, "/media/"):
			_, _ = w.Write(pngData)
		case strings.HasSuffix(r.URL.Path, ".jpg") && strings.HasPrefix(r.URL.Path, "/media/"):
			_, _ = w.Write(jpegData)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func writeFixtureArchive(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "twitter-export.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("data/tweets.js")
	if err != nil {
		t.Fatalf("failed to add entry: %v", err)
	}
	if _, err := w.Write([]byte(strings.ReplaceAll(fixtureTweets, "{{BASE}}", baseURL))); err != nil {
		t.Fatalf("failed to write entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close archive: %v", err)
	}
	return path
}

type testEnv struct {
	config     Config
	database   database.DatabaseService
	collectors *metrics.Collectors
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	server := newMediaServer(t)
	workDir := t.TempDir()

	databaseService, err := database.NewDatabase("sqlite", filepath.Join(workDir, "memes.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = databaseService.Close()
	})

	return &testEnv{
		config: Config{
			ArchivePath: writeFixtureArchive(t, server.URL),
			Archive:     archive.Options{ExtractTo: workDir},
			ImageDir:    filepath.Join(workDir, "memes"),
			Timezone:    "America/Denver",
		},
		database:   databaseService,
		collectors: metrics.New(),
	}
}

func (env *testEnv) run(t *testing.T) (Stats, error) {
	t.Helper()
	extractor, err := NewExtractor(env.config, env.database, fetch.NewFetcher(fetch.Config{}, nil, env.collectors), nil, env.collectors)
	if err != nil {
		t.Fatalf("NewExtractor error: %v", err)
	}
	return extractor.Run(context.Background())
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

func TestExtractor_Run(t *testing.T) {
	env := newTestEnv(t)

	stats, err := env.run(t)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	want := Stats{Total: 7, Reshares: 1, NoMedia: 1, Saved: 2, Failed: 3}
	if stats.Total != want.Total || stats.Reshares != want.Reshares || stats.NoMedia != want.NoMedia ||
		stats.Saved != want.Saved || stats.Failed != want.Failed || stats.Rejected != 0 {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	if stats.RunID == "" {
		t.Error("expected a run id")
	}

	memes, err := env.database.GetAllMemes(context.Background())
	if err != nil {
		t.Fatalf("GetAllMemes error: %v", err)
	}
	wantMemes := []database.Meme{
		{Date: "October 11, 2023", LocalFile: "October_11_2023_08_02_33.png", LikesCount: 4},
		{Date: "October 11, 2023", LocalFile: "October_11_2023_08_02_33_2.png", LikesCount: 0},
	}
	if len(memes) != len(wantMemes) {
		t.Fatalf("expected %d rows, got %d: %+v", len(wantMemes), len(memes), memes)
	}
	for i := range wantMemes {
		if memes[i] != wantMemes[i] {
			t.Errorf("row %d = %+v, want %+v", i, memes[i], wantMemes[i])
		}
	}

	files := listFiles(t, env.config.ImageDir)
	if len(files) != 2 || files[0] != wantMemes[0].LocalFile || files[1] != wantMemes[1].LocalFile {
		t.Errorf("unexpected image files %v", files)
	}
	for _, file := range files {
		data, err := os.ReadFile(filepath.Join(env.config.ImageDir, file))
		if err != nil {
			t.Fatalf("failed to read %s: %v", file, err)
		}
		if _, err := png.Decode(bytes.NewReader(data)); err != nil {
			t.Errorf("%s is not a PNG: %v", file, err)
		}
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(env.config.ImageDir), "data", "tweets.js")); err != nil {
		t.Errorf("expected extracted data file: %v", err)
	}
	if got := testutil.ToFloat64(env.collectors.Records.WithLabelValues(OutcomeSaved)); got != 2 {
		t.Errorf("expected 2 saved records in metrics, got %v", got)
	}
	if got := testutil.ToFloat64(env.collectors.Records.WithLabelValues(OutcomeFailed)); got != 3 {
		t.Errorf("expected 3 failed records in metrics, got %v", got)
	}
}

type openBreakerFetcher struct {
	calls int
}

func (f *openBreakerFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls++
	return nil, fmt.Errorf("fetch %s rejected: %w", url, fetch.ErrBreakerOpen)
}

func TestExtractor_BreakerRejectionsAreCountedSeparately(t *testing.T) {
	env := newTestEnv(t)
	fetcher := &openBreakerFetcher{}
	extractor, err := NewExtractor(env.config, env.database, fetcher, nil, env.collectors)
	if err != nil {
		t.Fatalf("NewExtractor error: %v", err)
	}

	stats, err := extractor.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	// Broken timestamp and unreadable like count fail before any fetch
	if stats.Total != 7 || stats.Rejected != 3 || stats.Failed != 2 || stats.Saved != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if fetcher.calls != 3 {
		t.Errorf("expected 3 fetch attempts, got %d", fetcher.calls)
	}
	if got := testutil.ToFloat64(env.collectors.Records.WithLabelValues(OutcomeRejected)); got != 3 {
		t.Errorf("expected 3 rejected records in metrics, got %v", got)
	}
	if files := listFiles(t, env.config.ImageDir); len(files) != 0 {
		t.Errorf("expected no image files, got %v", files)
	}
}

func TestExtractor_RerunStartsFromEmptyTable(t *testing.T) {
	env := newTestEnv(t)
	stray := filepath.Join(env.config.ImageDir, "stray.png")
	if err := os.MkdirAll(env.config.ImageDir, 0o755); err != nil {
		t.Fatalf("failed to create image dir: %v", err)
	}
	if err := os.WriteFile(stray, []byte("old"), 0o644); err != nil {
		t.Fatalf("failed to write stray file: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := env.run(t); err != nil {
			t.Fatalf("run %d error: %v", i, err)
		}
		count, err := env.database.CountMemes(context.Background())
		if err != nil {
			t.Fatalf("CountMemes error: %v", err)
		}
		if count != 2 {
			t.Errorf("run %d: expected 2 rows, got %d", i, count)
		}
	}
	if _, err := os.Stat(stray); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected previous image directory to be cleared, stat err = %v", err)
	}
}

func TestExtractor_Backup(t *testing.T) {
	env := newTestEnv(t)
	env.config.BackupDir = filepath.Join(t.TempDir(), "backup", "memes")

	// Nothing to back up yet
	if _, err := env.run(t); err != nil {
		t.Fatalf("first run error: %v", err)
	}
	if _, err := env.run(t); err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if files := listFiles(t, env.config.BackupDir); len(files) != 2 {
		t.Errorf("expected previous images in backup, got %v", files)
	}

	_, err := env.run(t)
	if !errors.Is(err, ErrBackupExists) {
		t.Fatalf("expected ErrBackupExists, got %v", err)
	}
	if files := listFiles(t, env.config.ImageDir); len(files) != 2 {
		t.Errorf("image directory must be left alone on backup collision, got %v", files)
	}
}

func TestExtractor_MaxTweets(t *testing.T) {
	env := newTestEnv(t)
	env.config.MaxTweets = 3

	stats, err := env.run(t)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if stats.Total != 3 || stats.Saved != 1 {
		t.Errorf("expected 3 records with 1 saved, got %+v", stats)
	}
}

func TestExtractor_WholeRunFailures(t *testing.T) {
	t.Run("missing archive", func(t *testing.T) {
		env := newTestEnv(t)
		env.config.ArchivePath = filepath.Join(t.TempDir(), "missing.zip")
		if _, err := env.run(t); err == nil {
			t.Fatal("expected error for missing archive")
		}
	})

	t.Run("missing entry", func(t *testing.T) {
		env := newTestEnv(t)
		env.config.Archive.EntryName = "data/like.js"
		if _, err := env.run(t); !errors.Is(err, archive.ErrEntryNotFound) {
			t.Fatalf("expected ErrEntryNotFound, got %v", err)
		}
	})
}

func TestNewExtractor_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"no archive", Config{ImageDir: "memes"}},
		{"no image dir", Config{ArchivePath: "a.zip"}},
		{"backup equals image dir", Config{ArchivePath: "a.zip", ImageDir: "memes", BackupDir: "./memes"}},
		{"bad timezone", Config{ArchivePath: "a.zip", ImageDir: "memes", Timezone: "Mars/Olympus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewExtractor(tt.config, nil, nil, nil, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestUniqueFileName(t *testing.T) {
	used := make(map[string]int)
	got := []string{
		uniqueFileName("a", used),
		uniqueFileName("a", used),
		uniqueFileName("a_2", used),
		uniqueFileName("a", used),
		uniqueFileName("b", used),
	}
	want := []string{"a.png", "a_2.png", "a_2_2.png", "a_3.png", "b.png"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, got[i], want[i])
		}
	}
}
