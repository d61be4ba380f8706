package v1

// Request v1: body POSTed to a conversion endpoint.
//   - url: page URL of the media (not the resolved locator)
//   - quality_hint: preferred video height ("1080") or "audio"
type Request struct {
	URL         string `json:"url"`
	QualityHint string `json:"quality_hint,omitempty"`
}

// Response v1. Only stream/redirect/tunnel carry a deliverable url; any other
// status means this endpoint could not help.
type Response struct {
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
	Text   string `json:"text,omitempty"`
}

const (
	StatusStream   = "stream"
	StatusRedirect = "redirect"
	StatusTunnel   = "tunnel"
	StatusError    = "error"
	StatusPicker   = "picker"
)

// Deliverable reports whether the response hands back a fetchable url.
func (r Response) Deliverable() bool {
	switch r.Status {
	case StatusStream, StatusRedirect, StatusTunnel:
		return r.URL != ""
	}
	return false
}
