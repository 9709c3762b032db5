// Package book fetches table-of-contents data for library texts linked to
// projects.
package book

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TOC is a library text's table of contents: chapters containing pages.
type TOC struct {
	Chapters []Chapter `json:"chapters"`
}

type Chapter struct {
	Title string `json:"title"`
	Pages []Page `json:"pages"`
}

type Page struct {
	Title string `json:"title"`
}

// Client talks to the library API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchTOC retrieves the table of contents for a book identified by its
// library subdomain and cover page id.
func (c *Client) FetchTOC(ctx context.Context, library, coverID string) (TOC, error) {
	url := fmt.Sprintf("%s/books/%s-%s/toc", c.baseURL, library, coverID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return TOC{}, fmt.Errorf("build toc request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return TOC{}, fmt.Errorf("fetch toc: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TOC{}, fmt.Errorf("fetch toc: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		TOC TOC `json:"toc"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return TOC{}, fmt.Errorf("decode toc: %w", err)
	}
	return payload.TOC, nil
}

// FlattenTitles walks the table of contents depth-first and returns each
// chapter title followed by its page titles. Blank titles are dropped.
func FlattenTitles(toc TOC) []string {
	titles := make([]string, 0)
	for _, chapter := range toc.Chapters {
		if strings.TrimSpace(chapter.Title) != "" {
			titles = append(titles, chapter.Title)
		}
		for _, page := range chapter.Pages {
			if strings.TrimSpace(page.Title) != "" {
				titles = append(titles, page.Title)
			}
		}
	}
	return titles
}
