// Package tweet models one record of the tweets.js file in an X/Twitter data export
// and the rules that decide whether a record becomes a meme.
package tweet

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// CreatedAtLayout is the timestamp layout used by the export, e.g. "Wed Oct 11 14:02:33 +0000 2023"
const CreatedAtLayout = "Mon Jan 02 15:04:05 -0700 2006"

// Envelope mirrors the {"tweet": {...}} wrapper around every record
type Envelope struct {
	Tweet Tweet `json:"tweet"`
	// Err is set when the record could not be decoded
	Err error `json:"-"`
}

type Tweet struct {
	ID               string          `json:"id_str"`
	CreatedAtRaw     string          `json:"created_at"`
	FullText         string          `json:"full_text"`
	FavoriteCount    Count           `json:"favorite_count"`
	Entities         Entities        `json:"entities"`
	ExtendedEntities Entities        `json:"extended_entities"`
	RetweetedStatus  json.RawMessage `json:"retweeted_status,omitempty"`
}

type Entities struct {
	Media []Media `json:"media"`
}

type Media struct {
	MediaURLHTTPS string `json:"media_url_https"`
	Type          string `json:"type"`
}

// Count is an engagement counter. Exports encode it as a string ("12"), older ones as a number.
// A missing or null value is zero.
type Count int

func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = 0
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("invalid count %s: %w", raw, err)
		}
		raw = strings.TrimSpace(unquoted)
		if raw == "" {
			*c = 0
			return nil
		}
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid count %s: %w", raw, err)
	}
	if n < 0 {
		return fmt.Errorf("invalid count %d: must not be negative", n)
	}
	*c = Count(n)
	return nil
}

// IsReshare reports whether the record only reflects someone else's content
func (t Tweet) IsReshare() bool {
	if len(t.RetweetedStatus) > 0 && !bytes.Equal(bytes.TrimSpace(t.RetweetedStatus), []byte("null")) {
		return true
	}
	return strings.HasPrefix(t.FullText, "RT @")
}

// FirstMediaURL returns the URL of the first attached media entry, or "" when there is none
func (t Tweet) FirstMediaURL() string {
	for _, media := range [][]Media{t.Entities.Media, t.ExtendedEntities.Media} {
		for _, m := range media {
			if m.MediaURLHTTPS != "" {
				return m.MediaURLHTTPS
			}
		}
	}
	return ""
}

// CreatedAt parses the creation timestamp
func (t Tweet) CreatedAt() (time.Time, error) {
	created, err := time.Parse(CreatedAtLayout, t.CreatedAtRaw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid created_at %q: %w", t.CreatedAtRaw, err)
	}
	return created, nil
}

// Likes returns the popularity count
func (t Tweet) Likes() int {
	return int(t.FavoriteCount)
}
