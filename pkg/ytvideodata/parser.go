package ytvideodata

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

func (f *Fetcher) getFromPage(ctx context.Context, videoId string) (*VideoData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.pageBase+videoId, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	videoData := VideoData{
		ThumbnailUrl: fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", videoId),
	}
	if title := findNode(doc, isElement("title")); title != nil && title.FirstChild != nil {
		videoData.Title = strings.TrimSuffix(title.FirstChild.Data, " - YouTube")
	}
	author := findNode(doc, func(n *html.Node) bool {
		return isElement("link")(n) && attr(n, "itemprop") == "name"
	})
	if author != nil {
		videoData.AuthorName = attr(author, "content")
	}

	return &videoData, nil
}

// findNode returns the first node in document order that satisfies match.
func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func isElement(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
