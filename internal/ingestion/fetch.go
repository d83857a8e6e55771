package ingestion

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// FetchURL retrieves a page and returns it as a Document ready for Ingest.
// HTML bodies are reduced to their visible text; other bodies are used as-is.
func (p *Pipeline) FetchURL(ctx context.Context, rawURL string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Document{}, fmt.Errorf("ingestion: creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/plain, text/markdown, text/html")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("ingestion: http get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("ingestion: unexpected status %d for %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxFileSize+1))
	if err != nil {
		return Document{}, fmt.Errorf("ingestion: reading body: %w", err)
	}

	content := string(body)
	if isHTML(resp.Header.Get("Content-Type")) {
		content, err = htmlText(strings.NewReader(content))
		if err != nil {
			return Document{}, fmt.Errorf("ingestion: parsing html from %s: %w", rawURL, err)
		}
	}

	return Document{FileName: FileNameFromURL(rawURL), Content: content}, nil
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && (mt == "text/html" || mt == "application/xhtml+xml")
}

// skippedElements never contribute visible text.
var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "head": true, "template": true, "svg": true,
}

// htmlText returns the visible text of an HTML document with one space
// between text nodes.
func htmlText(r io.Reader) (string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return sb.String(), nil
}
