// Package extract turns a page URL into a structured description of its media.
package extract

import (
	"context"
	"net/url"
	"path"
	"strings"

	"mediarelay/internal/pkg/errors"
)

// Info is the extractor output model. Field names follow the yt-dlp JSON
// schema so its -J output decodes without translation.
type Info struct {
	Type           string      `json:"_type,omitempty"`
	ID             string      `json:"id,omitempty"`
	Title          string      `json:"title,omitempty"`
	Uploader       string      `json:"uploader,omitempty"`
	Channel        string      `json:"channel,omitempty"`
	Description    string      `json:"description,omitempty"`
	URL            string      `json:"url,omitempty"`
	WebpageURL     string      `json:"webpage_url,omitempty"`
	Ext            string      `json:"ext,omitempty"`
	VCodec         string      `json:"vcodec,omitempty"`
	ACodec         string      `json:"acodec,omitempty"`
	Width          int         `json:"width,omitempty"`
	Height         int         `json:"height,omitempty"`
	TBR            float64     `json:"tbr,omitempty"`
	Duration       float64     `json:"duration,omitempty"`
	Filesize       float64     `json:"filesize,omitempty"`
	FilesizeApprox float64     `json:"filesize_approx,omitempty"`
	Formats        []Format    `json:"formats,omitempty"`
	Thumbnails     []Thumbnail `json:"thumbnails,omitempty"`
	Entries        []*Info     `json:"entries,omitempty"`
	// Extractor names the adapter that produced the info.
	Extractor string `json:"extractor,omitempty"`
}

// Format is one downloadable stream of an item.
type Format struct {
	FormatID       string  `json:"format_id,omitempty"`
	URL            string  `json:"url,omitempty"`
	Ext            string  `json:"ext,omitempty"`
	Protocol       string  `json:"protocol,omitempty"`
	VCodec         string  `json:"vcodec,omitempty"`
	ACodec         string  `json:"acodec,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	TBR            float64 `json:"tbr,omitempty"`
	ABR            float64 `json:"abr,omitempty"`
	Filesize       float64 `json:"filesize,omitempty"`
	FilesizeApprox float64 `json:"filesize_approx,omitempty"`
}

// Thumbnail is a still image of an item.
type Thumbnail struct {
	URL    string `json:"url,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// HasVideo reports whether the format may carry a video stream. Many
// progressive formats omit vcodec entirely; only an explicit "none" or a
// still-image extension rules video out.
func (f Format) HasVideo() bool {
	return f.URL != "" && f.VCodec != "none" && !IsImageExt(f.Ext, f.URL)
}

// AudioOnly reports whether the format is audio without video.
func (f Format) AudioOnly() bool { return f.VCodec == "none" && f.ACodec != "" && f.ACodec != "none" }

var imageExts = map[string]bool{"jpg": true, "jpeg": true, "png": true, "webp": true, "gif": true, "heic": true}

// IsImageExt reports whether ext, or failing that the path of rawURL, names a
// still image.
func IsImageExt(ext, rawURL string) bool {
	if ext != "" {
		return imageExts[strings.ToLower(ext)]
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	e := strings.TrimPrefix(path.Ext(u.Path), ".")
	return imageExts[strings.ToLower(e)]
}

// Size returns the exact size when known, else the approximation.
func (f Format) Size() int64 {
	if f.Filesize > 0 {
		return int64(f.Filesize)
	}
	return int64(f.FilesizeApprox)
}

// Items returns the entries of a playlist/carousel, or the info itself for a
// single item. Null entries are dropped.
func (i *Info) Items() []*Info {
	if i == nil {
		return nil
	}
	if len(i.Entries) == 0 {
		if i.Type == "playlist" {
			return nil
		}
		return []*Info{i}
	}
	out := make([]*Info, 0, len(i.Entries))
	for _, e := range i.Entries {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Request is one extraction call.
type Request struct {
	URL string
	// CookiePath points at a Netscape cookie file, empty when none.
	CookiePath string
	UserAgent  string
	AudioOnly  bool
}

// Extractor resolves a page URL into Info. Errors are classified with the
// pipeline taxonomy.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, req Request) (*Info, error)
}

// Chain tries extractors in order. It moves on only when an extractor reports
// Unsupported or Transient; success or any other error ends the chain. When
// every extractor fails, the first error is returned.
type Chain []Extractor

func (c Chain) Name() string { return "chain" }

func (c Chain) Extract(ctx context.Context, req Request) (*Info, error) {
	var first error
	for _, ex := range c {
		info, err := ex.Extract(ctx, req)
		if err == nil {
			if info.Extractor == "" {
				info.Extractor = ex.Name()
			}
			return info, nil
		}
		if first == nil {
			first = err
		}
		if ctx.Err() != nil {
			break
		}
		switch errors.GetCode(err) {
		case errors.CodeUnsupported, errors.CodeTransient:
			continue
		}
		return nil, err
	}
	if first == nil {
		return nil, errors.Unsupported(req.URL)
	}
	return nil, first
}
