package ytvideodata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

var (
	ErrVideoNotFound      = fmt.Errorf("video not found")
	ErrVideoNotEmbeddable = fmt.Errorf("video is not embeddable")
)

func (f *Fetcher) getVideoWithEmbed(ctx context.Context, videoId string) (*VideoData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.embedBase+videoId, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusNotFound:
			return nil, ErrVideoNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, ErrVideoNotEmbeddable
		default:
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
	}

	var result VideoData
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode oembed response: %w", err)
	}

	return &result, nil
}
