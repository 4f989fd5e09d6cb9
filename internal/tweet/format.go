package tweet

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	// DefaultTimezone is US/Mountain
	DefaultTimezone = "America/Denver"
	// DisplayLayout renders dates like "October 11, 2023"
	DisplayLayout = "January 02, 2006"
	// FileLayout adds the time of day so several memes from one day get distinct files
	FileLayout = "January 02, 2006 15:04:05"
)

// Formatter renders timestamps in one timezone
type Formatter struct {
	location *time.Location
}

// NewFormatter loads the named IANA timezone; an empty name means UTC
func NewFormatter(timezone string) (*Formatter, error) {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}
	return &Formatter{location: location}, nil
}

func (f *Formatter) Location() *time.Location {
	return f.location
}

// DisplayDate returns the human readable date stored with each meme
func (f *Formatter) DisplayDate(t time.Time) string {
	return t.In(f.location).Format(DisplayLayout)
}

// FileStem returns a file-system safe name derived from the timestamp, without extension
func (f *Formatter) FileStem(t time.Time) string {
	return SanitizeFileStem(t.In(f.location).Format(FileLayout))
}

// SanitizeFileStem turns spaces and colons into underscores and drops everything
// outside [A-Za-z0-9_-]. Runs of underscores are collapsed.
func SanitizeFileStem(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r == ' ' || r == ':' || r == '_':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteRune('_')
				lastUnderscore = true
			}
		case r == '-' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
			lastUnderscore = false
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
