// Package resolver turns a source URL into the ordered list of renditions the
// delivery stage works on.
package resolver

import (
	"context"
	"sort"
	"strings"
	"time"

	"mediarelay/internal/credentials"
	"mediarelay/internal/media"
	"mediarelay/internal/pkg/errors"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/resolver/extract"
)

// Config tunes the resolver. Zero values take the defaults below.
type Config struct {
	// Timeout bounds one extraction call. Default 30s.
	Timeout time.Duration
	// MaxItems caps carousel/playlist entries. Default 10.
	MaxItems  int
	UserAgent string
}

const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxItems = 10
)

// Resolver runs the extractor with the request's credential scope.
type Resolver struct {
	ex    extract.Extractor
	vault *credentials.Vault
	cfg   Config
	log   *logger.Logger
}

// New builds a resolver. vault may be nil when no credentials are configured.
func New(ex extract.Extractor, vault *credentials.Vault, cfg Config, log *logger.Logger) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	return &Resolver{ex: ex, vault: vault, cfg: cfg, log: log.WithComponent("resolver")}
}

type extraction struct {
	info *extract.Info
	err  error
}

// Resolve extracts rawURL and normalizes the result. Items that have no
// fetchable locator are kept with an empty Locator so the caller can record
// them as skipped.
func (r *Resolver) Resolve(ctx context.Context, rawURL string, opts media.Options) (media.RenditionList, error) {
	const op = "resolver.resolve"

	provider := media.DetectProvider(rawURL)
	if provider == media.ProviderUnknown {
		return nil, errors.Unsupported(rawURL)
	}

	var scope *credentials.Scope
	if r.vault != nil {
		var err error
		scope, err = r.vault.Open(provider)
		if err != nil {
			return nil, errors.Wrap(err, op, "open credential scope")
		}
	}
	defer scope.Release()

	req := extract.Request{
		URL:        rawURL,
		CookiePath: scope.CookiePath(),
		UserAgent:  r.cfg.UserAgent,
		AudioOnly:  opts.AudioOnly,
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan extraction, 1)
	go func() {
		info, err := r.ex.Extract(ctx, req)
		done <- extraction{info: info, err: err}
	}()

	var res extraction
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, errors.WrapWithCode(ctx.Err(), errors.CodeTransient, op, "extraction timed out").
			WithField("provider", provider.DisplayName())
	}

	log := r.log.FromContext(ctx)
	if res.err != nil {
		log.Info("extraction failed",
			"provider", provider,
			"code", errors.GetCode(res.err),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, errors.Wrap(res.err, op, "extract media info").WithField("provider", provider.DisplayName())
	}

	limit := r.cfg.MaxItems
	if opts.MaxItems > 0 && opts.MaxItems < limit {
		limit = opts.MaxItems
	}
	list := Normalize(res.info, provider, rawURL, opts, limit)
	log.Info("extraction finished",
		"provider", provider,
		"extractor", res.info.Extractor,
		"items", len(list),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return list, nil
}

// Normalize flattens info into at most limit renditions in index order.
func Normalize(info *extract.Info, provider media.Provider, page string, opts media.Options, limit int) media.RenditionList {
	items := info.Items()
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	multi := len(items) > 1

	list := make(media.RenditionList, 0, len(items))
	for i, item := range items {
		r := pick(item, opts)
		r.Index = i
		r.MultiItem = multi
		r.Provider = provider
		r.Title = firstNonEmpty(item.Title, info.Title)
		r.Uploader = firstNonEmpty(item.Uploader, item.Channel, info.Uploader, info.Channel)
		r.Description = firstNonEmpty(item.Description, info.Description)
		r.Page = firstNonEmpty(item.WebpageURL, page)
		if item.Duration > 0 {
			r.Duration = time.Duration(item.Duration * float64(time.Second))
		}
		list = append(list, r)
	}
	return list
}

// pick chooses the rendition of one item.
func pick(item *extract.Info, opts media.Options) media.Rendition {
	formats := item.Formats
	if len(formats) == 0 && item.URL != "" {
		formats = []extract.Format{{
			URL:            item.URL,
			Ext:            item.Ext,
			VCodec:         item.VCodec,
			ACodec:         item.ACodec,
			Width:          item.Width,
			Height:         item.Height,
			TBR:            item.TBR,
			Filesize:       item.Filesize,
			FilesizeApprox: item.FilesizeApprox,
		}}
	}

	if opts.AudioOnly {
		if f, ok := bestAudio(formats); ok {
			return media.Rendition{
				Kind:        media.KindAudio,
				Locator:     f.URL,
				QualityHint: media.QualityHint{Bitrate: bitrate(f)},
				Size:        f.Size(),
			}
		}
	}

	anyVideo := false
	for _, f := range formats {
		if f.HasVideo() {
			anyVideo = true
			break
		}
	}
	if f, ok := bestVideo(formats); ok {
		return media.Rendition{
			Kind:        media.KindVideo,
			Locator:     f.URL,
			QualityHint: media.QualityHint{Height: f.Height, Bitrate: f.TBR},
			Width:       f.Width,
			Height:      f.Height,
			Size:        f.Size(),
		}
	}
	if anyVideo {
		// Only segmented streams; nothing a chat client can fetch directly.
		return media.Rendition{Kind: media.KindVideo}
	}

	// An item URL with no usable video is the picture itself, whether vcodec
	// says "none" or is missing.
	if item.URL != "" && (item.VCodec == "none" || item.VCodec == "") && (item.ACodec == "" || item.ACodec == "none") {
		return media.Rendition{Kind: media.KindImage, Locator: item.URL, Width: item.Width, Height: item.Height}
	}
	if t, ok := tallestThumbnail(item.Thumbnails); ok {
		return media.Rendition{
			Kind:        media.KindImage,
			Locator:     t.URL,
			QualityHint: media.QualityHint{Height: t.Height},
			Width:       t.Width,
			Height:      t.Height,
		}
	}
	return media.Rendition{Kind: media.KindImage}
}

func fetchable(f extract.Format) bool {
	if f.URL == "" {
		return false
	}
	p := strings.ToLower(f.Protocol)
	return !strings.Contains(p, "m3u8") && !strings.Contains(p, "dash") && !strings.HasSuffix(strings.ToLower(f.URL), ".m3u8")
}

// bestVideo ranks fetchable video formats by (height, bitrate). Formats that
// also carry audio win over silent ones.
func bestVideo(formats []extract.Format) (extract.Format, bool) {
	var muxed, silent []extract.Format
	for _, f := range formats {
		if !f.HasVideo() || !fetchable(f) {
			continue
		}
		if f.ACodec == "none" {
			silent = append(silent, f)
		} else {
			muxed = append(muxed, f)
		}
	}
	candidates := muxed
	if len(candidates) == 0 {
		candidates = silent
	}
	if len(candidates) == 0 {
		return extract.Format{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a := media.QualityHint{Height: candidates[i].Height, Bitrate: candidates[i].TBR}
		b := media.QualityHint{Height: candidates[j].Height, Bitrate: candidates[j].TBR}
		return a.Better(b)
	})
	return candidates[0], true
}

func bestAudio(formats []extract.Format) (extract.Format, bool) {
	var best extract.Format
	found := false
	for _, f := range formats {
		if !f.AudioOnly() || !fetchable(f) {
			continue
		}
		if !found || bitrate(f) > bitrate(best) {
			best, found = f, true
		}
	}
	return best, found
}

func bitrate(f extract.Format) float64 {
	if f.ABR > 0 {
		return f.ABR
	}
	return f.TBR
}

func tallestThumbnail(thumbs []extract.Thumbnail) (extract.Thumbnail, bool) {
	var best extract.Thumbnail
	found := false
	for _, t := range thumbs {
		if t.URL == "" {
			continue
		}
		if !found || t.Height >= best.Height {
			best, found = t, true
		}
	}
	return best, found
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
