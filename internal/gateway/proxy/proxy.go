package proxy

import (
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/aussiebroadwan/trustline/pkg/httpx"
	"github.com/aussiebroadwan/trustline/pkg/slogx"
)

// New returns a reverse proxy for route. Headers already on the inbound
// request, including the trust headers written by earlier stages, are
// forwarded as they are. Client address headers are not: X-Forwarded-For is
// rebuilt from the connection's peer and X-Real-IP is dropped.
func New(route Route) *httputil.ReverseProxy {
	target := route.Target()
	prefix := route.Prefix

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			if route.StripPrefix && prefix != "/" {
				p := strings.TrimPrefix(pr.In.URL.Path, prefix)
				if !strings.HasPrefix(p, "/") {
					p = "/" + p
				}
				pr.Out.URL.Path = p
				pr.Out.URL.RawPath = ""
			}
			pr.SetURL(target)
			pr.Out.Header.Del("X-Real-IP")
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slogx.FromContext(r.Context()).Error("upstream request failed", "route", route.Name, "err", err)
			httpx.WriteError(w, r, httpx.ErrBadGateway.WithMessage("upstream unavailable"))
		},
	}
}
