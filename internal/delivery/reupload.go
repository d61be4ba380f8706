package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"mediarelay/internal/httpclient"
	"mediarelay/internal/media"
	"mediarelay/internal/pkg/errors"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/progress"
	"mediarelay/internal/scratch"
	"mediarelay/internal/transport"
)

// ReuploadConfig bounds the fetch-then-upload strategy.
type ReuploadConfig struct {
	// MaxSize rejects anything larger. Default 1 GiB.
	MaxSize int64
	// MemoryThreshold keeps bodies of known size up to this many bytes in
	// memory; anything else goes to a scratch file. Default 20 MiB.
	MemoryThreshold int64
	// Timeout bounds download plus upload. Default 90s.
	Timeout   time.Duration
	Providers []media.Provider
	UserAgent string
}

const (
	DefaultMaxSize         = 1 << 30
	DefaultMemoryThreshold = 20 << 20
	DefaultTransferTimeout = 90 * time.Second
)

// Reupload downloads the locator itself and uploads the bytes.
type Reupload struct {
	cfg       ReuploadConfig
	providers map[media.Provider]bool
	client    *http.Client
	dir       *scratch.Dir
	t         transport.Transport
	log       *logger.Logger
}

func NewReupload(cfg ReuploadConfig, client *http.Client, dir *scratch.Dir, t transport.Transport, log *logger.Logger) *Reupload {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.MemoryThreshold <= 0 {
		cfg.MemoryThreshold = DefaultMemoryThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTransferTimeout
	}
	if client == nil {
		client = httpclient.New(0)
	}
	providers := make(map[media.Provider]bool, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers[p] = true
	}
	return &Reupload{
		cfg:       cfg,
		providers: providers,
		client:    client,
		dir:       dir,
		t:         t,
		log:       log.WithComponent("delivery.reupload"),
	}
}

func (r *Reupload) Name() string { return NameReupload }

func (r *Reupload) Accepts(rd media.Rendition) bool {
	return rd.Locator != "" && r.providers[rd.Provider]
}

func (r *Reupload) Deliver(ctx context.Context, a Attempt) (media.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	rd := a.Rendition
	if rd.Size > r.cfg.MaxSize {
		return media.Outcome{}, errors.TooLarge(rd.Size, r.cfg.MaxSize)
	}
	size := r.probe(ctx, rd.Locator)
	if size > r.cfg.MaxSize {
		return media.Outcome{}, errors.TooLarge(size, r.cfg.MaxSize)
	}

	body, err := r.fetch(ctx, a.Request.ID, rd.Locator, a.Progress)
	if err != nil {
		return media.Outcome{}, err
	}
	defer body.close()

	f := transport.File{
		Kind:     rd.Kind,
		Reader:   body.reader,
		Name:     fileName(rd),
		Size:     body.size,
		Duration: rd.Duration,
		Width:    rd.Width,
		Height:   rd.Height,
	}
	ref, err := sendFile(ctx, r.t, a, f, a.Progress.Func(progress.PhaseUpload))
	if err != nil {
		return media.Outcome{}, TransportClassifier.Classify(err)
	}
	return media.Outcome{Status: media.StatusDelivered, Bytes: body.size, MessageID: ref.MessageID}, nil
}

// probe returns the advertised size from a HEAD request, or 0 when unknown.
func (r *Reupload) probe(ctx context.Context, locator string) int64 {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, locator, nil)
	if err != nil {
		return 0
	}
	r.setHeaders(req)
	resp, err := r.client.Do(req)
	if err != nil {
		return 0
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.ContentLength < 0 {
		return 0
	}
	return resp.ContentLength
}

func (r *Reupload) setHeaders(req *http.Request) {
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}
}

// payload is a downloaded body, in memory or in a scratch file.
type payload struct {
	reader io.Reader
	size   int64
	close  func()
}

// TempPrefix returns the scratch name prefix of reupload files owned by requestID.
func TempPrefix(requestID string) string {
	return "reupload-" + requestID + "-"
}

func (r *Reupload) fetch(ctx context.Context, requestID, locator string, sink *progress.Sink) (*payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnretryable, "delivery.fetch", "bad locator")
	}
	r.setHeaders(req)

	resp, err := httpclient.DoWithRetry(ctx, r.client, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return nil, FetchClassifier.Classify(err)
	}
	defer resp.Body.Close()
	if err := httpclient.CheckStatus(resp); err != nil {
		return nil, FetchClassifier.Classify(err)
	}

	total := resp.ContentLength
	if total > r.cfg.MaxSize {
		return nil, errors.TooLarge(total, r.cfg.MaxSize)
	}
	if total < 0 {
		total = 0
	}

	src := &limitedReader{r: resp.Body, limit: r.cfg.MaxSize}
	counted := &progressReader{r: src, total: total, report: sink.Func(progress.PhaseDownload)}

	if total > 0 && total <= r.cfg.MemoryThreshold {
		buf := bytes.NewBuffer(make([]byte, 0, total))
		if _, err := io.Copy(buf, counted); err != nil {
			return nil, r.copyError(err, src)
		}
		return &payload{reader: bytes.NewReader(buf.Bytes()), size: int64(buf.Len()), close: func() {}}, nil
	}

	tmp, err := r.dir.CreateTemp(TempPrefix(requestID) + "*" + extOf(locator))
	if err != nil {
		return nil, errors.Wrap(err, "delivery.fetch", "create temp file")
	}
	path := tmp.Name()
	remove := func() {
		if err := r.dir.Remove(path); err != nil {
			r.log.Warn("temp file cleanup failed", "path", path, "error", err.Error())
		}
	}
	_, err = io.Copy(tmp, counted)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		remove()
		return nil, r.copyError(err, src)
	}

	rc, contentType, size, err := r.dir.Open(path)
	if err != nil {
		remove()
		return nil, errors.Wrap(err, "delivery.fetch", "reopen temp file")
	}
	r.log.FromContext(ctx).Debug("downloaded to scratch", "bytes", size, "content_type", contentType)
	return &payload{reader: rc, size: size, close: func() {
		rc.Close()
		remove()
	}}, nil
}

func (r *Reupload) copyError(err error, src *limitedReader) error {
	if src.exceeded {
		return errors.TooLarge(src.read, r.cfg.MaxSize)
	}
	return FetchClassifier.Classify(fmt.Errorf("download body: %w", err))
}

var errTooLarge = fmt.Errorf("body exceeds size limit")

// limitedReader fails once more than limit bytes have been read.
type limitedReader struct {
	r        io.Reader
	limit    int64
	read     int64
	exceeded bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.limit {
		l.exceeded = true
		return n, errTooLarge
	}
	return n, err
}

type progressReader struct {
	r      io.Reader
	done   int64
	total  int64
	report func(done, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.report(p.done, p.total)
	}
	return n, err
}

func fileName(r media.Rendition) string {
	base := "media"
	if r.MultiItem {
		base = fmt.Sprintf("media_%d", r.Index+1)
	}
	ext := extOf(r.Locator)
	if ext == "" {
		switch r.Kind {
		case media.KindImage:
			ext = ".jpg"
		case media.KindAudio:
			ext = ".m4a"
		default:
			ext = ".mp4"
		}
	}
	return base + ext
}

func extOf(locator string) string {
	u, err := url.Parse(locator)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) < 2 || len(ext) > 5 {
		return ""
	}
	return ext
}
