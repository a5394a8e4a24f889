package ytvideodata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
)

const idLength = 11

var (
	idPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	idInURLRegex = regexp.MustCompile(`^.*(youtu\.be/|v/|u/\w/|embed/|watch\?v=|&v=)([^#&?]*).*`)
)

type VideoData struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailUrl string `json:"thumbnail_url"`
}

// ValidID reports whether id looks like a YouTube video id.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// ParseID extracts the video id from a YouTube link.
func ParseID(videoURL string) (string, bool) {
	match := idInURLRegex.FindStringSubmatch(videoURL)
	if match == nil || len(match[2]) != idLength || !ValidID(match[2]) {
		return "", false
	}

	return match[2], true
}

type Fetcher struct {
	client    *http.Client
	embedBase string
	pageBase  string
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}

	return &Fetcher{
		client:    client,
		embedBase: "https://www.youtube.com/oembed?url=https://www.youtube.com/watch?v=",
		pageBase:  "https://youtu.be/",
	}
}

func (f *Fetcher) Get(ctx context.Context, videoId string) (*VideoData, error) {
	videoData, err := f.getVideoWithEmbed(ctx, videoId)
	if err != nil {
		if !errors.Is(err, ErrVideoNotEmbeddable) {
			return nil, fmt.Errorf("failed to get video data with embed: %w", err)
		}

		videoData, err = f.getFromPage(ctx, videoId)
		if err != nil {
			return nil, fmt.Errorf("failed to get video data from page: %w", err)
		}
	}

	return videoData, nil
}
