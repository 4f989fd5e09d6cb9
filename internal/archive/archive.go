// Package archive reads the tweets data file out of an X/Twitter export zip.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/jo-hoe/memereport/internal/tweet"
)

const (
	DefaultEntryName = "data/tweets.js"
	DefaultPrefix    = "window.YTD.tweets.part0 = "
)

var (
	ErrEntryNotFound = errors.New("entry not found in archive")
	ErrMissingPrefix = errors.New("data file does not start with the expected prefix")
	// ErrMalformedRecord marks a single record that could not be decoded
	ErrMalformedRecord = errors.New("malformed record")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options selects the data file inside the archive
type Options struct {
	EntryName string
	Prefix    string
	// ExtractTo, when set, receives a copy of the raw entry at ExtractTo/EntryName
	ExtractTo string
}

func (o Options) withDefaults() Options {
	if o.EntryName == "" {
		o.EntryName = DefaultEntryName
	}
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	return o
}

// ReadTweets opens the archive, reads the data entry, strips the assignment prefix and parses the records
func ReadTweets(archivePath string, opts Options) ([]tweet.Envelope, error) {
	opts = opts.withDefaults()

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer func() {
		_ = reader.Close()
	}()

	content, err := readEntry(&reader.Reader, opts.EntryName)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from %s: %w", opts.EntryName, archivePath, err)
	}
	slog.Debug("read data file from archive", "archive", archivePath, "entry", opts.EntryName, "size_bytes", len(content))

	if opts.ExtractTo != "" {
		if err := writeEntry(opts.ExtractTo, opts.EntryName, content); err != nil {
			return nil, err
		}
	}

	return ParseTweets(content, opts.Prefix)
}

// ParseTweets strips the prefix from a tweets.js payload and decodes the JSON array.
// Records that fail to decode are returned with Envelope.Err set; only a broken array is an error.
func ParseTweets(content []byte, prefix string) ([]tweet.Envelope, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	content = bytes.TrimLeft(content, " \t\r\n")

	if prefix != "" {
		trimmed, ok := bytes.CutPrefix(content, []byte(prefix))
		if !ok {
			// Exports differ in the whitespace around '='
			trimmed, ok = bytes.CutPrefix(content, bytes.TrimSpace([]byte(prefix)))
		}
		if !ok {
			return nil, ErrMissingPrefix
		}
		content = trimmed
	}

	var records []json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(content), &records); err != nil {
		return nil, fmt.Errorf("failed to parse tweets JSON: %w", err)
	}

	envelopes := make([]tweet.Envelope, len(records))
	for i, record := range records {
		envelopes[i] = decodeEnvelope(record)
	}
	return envelopes, nil
}

// decodeEnvelope keeps a record that does not decode, with Err set and the id when it can be recovered
func decodeEnvelope(record json.RawMessage) tweet.Envelope {
	var envelope tweet.Envelope
	err := json.Unmarshal(record, &envelope)
	if err == nil {
		return envelope
	}

	var id struct {
		Tweet struct {
			ID string `json:"id_str"`
		} `json:"tweet"`
	}
	_ = json.Unmarshal(record, &id)
	return tweet.Envelope{
		Tweet: tweet.Tweet{ID: id.Tweet.ID},
		Err:   fmt.Errorf("%w: %w", ErrMalformedRecord, err),
	}
}

func readEntry(reader *zip.Reader, name string) ([]byte, error) {
	for _, f := range reader.File {
		if f.FileInfo().IsDir() || path.Clean(f.Name) != path.Clean(name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		data, readErr := io.ReadAll(rc)
		closeErr := rc.Close()
		if readErr != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, readErr)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("close %s: %w", f.Name, closeErr)
		}
		return data, nil
	}
	return nil, ErrEntryNotFound
}

func writeEntry(dir, name string, content []byte) error {
	target := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+name)))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	slog.Debug("extracted data file", "path", target)
	return nil
}
