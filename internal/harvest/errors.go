package harvest

import "errors"

// Error kinds used to classify failures at component boundaries.
var (
	ErrTransport = errors.New("transport error")
	ErrUpstream  = errors.New("upstream error")
	ErrRender    = errors.New("render error")
	ErrStorage   = errors.New("storage error")
)

// Kind returns a short label for err suitable for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrRender):
		return "render"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
