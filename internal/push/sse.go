package push

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
)

const maxEventSize = 1 << 20

type SSE struct {
	url    string
	token  string
	client *http.Client
}

// NewSSE streams from url. The client must not set a global timeout.
func NewSSE(url, token string, client *http.Client) *SSE {
	if client == nil {
		client = &http.Client{}
	}
	return &SSE{url: url, token: token, client: client}
}

func (s *SSE) Stream(ctx context.Context, emit func(Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var (
		name string
		data bytes.Buffer
		seen bool
	)
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if seen {
				if name == "" {
					name = "message"
				}
				emit(Event{Name: name, Data: bytes.Clone(data.Bytes())})
			}
			name, seen = "", false
			data.Reset()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
			seen = true
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			seen = true
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}

	return ErrStreamClosed
}
