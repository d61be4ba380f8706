package extract

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"mediarelay/internal/httpclient"
	"mediarelay/internal/pkg/errors"
)

// OpenGraphClassifier maps page fetch failures to the taxonomy.
var OpenGraphClassifier = errors.Classifier{
	Op: "extract.opengraph",
	Rules: []errors.Rule{
		{Contains: "status 404", Code: errors.CodeNotFound},
		{Contains: "status 410", Code: errors.CodeNotFound},
		{Contains: "status 401", Code: errors.CodeAuthRequired},
		{Contains: "status 429", Code: errors.CodeTransient},
		{Contains: "status 5", Code: errors.CodeTransient},
		{Contains: "status 4", Code: errors.CodeUnsupported},
		{Contains: "timeout", Code: errors.CodeTransient},
		{Contains: "connection refused", Code: errors.CodeTransient},
		{Contains: "no such host", Code: errors.CodeTransient},
	},
	Default: errors.CodeTransient,
}

// OpenGraph reads og:video / og:image meta tags from the page itself.
type OpenGraph struct {
	Client *http.Client
}

// NewOpenGraph returns an extractor using client.
func NewOpenGraph(client *http.Client) *OpenGraph {
	return &OpenGraph{Client: client}
}

func (o *OpenGraph) Name() string { return "opengraph" }

func (o *OpenGraph) Extract(ctx context.Context, req Request) (*Info, error) {
	doc, err := o.fetchDocument(ctx, req)
	if err != nil {
		return nil, err
	}

	meta := map[string]string{}
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key, ok := s.Attr("property")
		if !ok {
			key, ok = s.Attr("name")
		}
		if !ok {
			return
		}
		content, ok := s.Attr("content")
		if !ok || content == "" {
			return
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if _, seen := meta[key]; !seen {
			meta[key] = strings.TrimSpace(content)
		}
	})

	info := &Info{
		Title:       first(meta, "og:title", "twitter:title"),
		Description: first(meta, "og:description", "description"),
		Uploader:    first(meta, "og:site_name", "author"),
		Extractor:   o.Name(),
	}
	if info.Title == "" {
		info.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	if video := first(meta, "og:video:secure_url", "og:video:url", "og:video"); video != "" {
		info.URL = video
		info.VCodec = "unknown"
		info.Width = atoi(meta["og:video:width"])
		info.Height = atoi(meta["og:video:height"])
		return info, nil
	}
	if image := first(meta, "og:image:secure_url", "og:image:url", "og:image"); image != "" {
		info.VCodec = "none"
		info.Thumbnails = []Thumbnail{{
			URL:    image,
			Width:  atoi(meta["og:image:width"]),
			Height: atoi(meta["og:image:height"]),
		}}
		return info, nil
	}
	return nil, errors.Unsupported(req.URL).WithField("reason", "no opengraph media")
}

func (o *OpenGraph) fetchDocument(ctx context.Context, req Request) (*goquery.Document, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, errors.Unsupported(req.URL)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := httpclient.DoWithRetry(ctx, o.Client, httpReq, httpclient.DefaultRetryPolicy)
	if err != nil {
		return nil, OpenGraphClassifier.Classify(err)
	}
	defer resp.Body.Close()

	if err := httpclient.CheckStatus(resp); err != nil {
		return nil, OpenGraphClassifier.Classify(err)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, OpenGraphClassifier.Classify(fmt.Errorf("parsing HTML: %w", err))
	}
	return doc, nil
}

func first(meta map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := meta[k]; v != "" {
			return v
		}
	}
	return ""
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
