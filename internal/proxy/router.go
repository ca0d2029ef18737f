// Package proxy implements the AUTOMAT reverse proxy: dispatch by the first
// path segment to whichever registered PLATER backend serves that tag.
package proxy

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	svcerrors "github.com/kgraph-io/plater-automat/internal/errors"
	httpu "github.com/kgraph-io/plater-automat/internal/httputil"
	"github.com/kgraph-io/plater-automat/internal/logging"
	"github.com/kgraph-io/plater-automat/internal/registry"
)

// BackendResolver looks up the dial address registered for a tag.
type BackendResolver interface {
	GetHostByTag(tag string) string
}

// Router forwards requests to whichever backend is registered under the
// request's leading path segment, stripping that segment before forwarding.
type Router struct {
	registry BackendResolver
	logger   *logging.Logger
}

// NewRouter constructs a Router backed by reg.
func NewRouter(reg *registry.Registry, logger *logging.Logger) *Router {
	return &Router{registry: reg, logger: logger}
}

// ServeHTTP proxies r to the backend registered under tag, forwarding
// remainder as the request path. It takes the leading path segment and the
// remainder as arguments (cmd/automat passes the mux vars "tag" and
// "remainder"), so it does not itself satisfy http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request, tag, remainder string) {
	backendAddr := rt.registry.GetHostByTag(tag)
	if backendAddr == "" {
		httpu.WriteErrorResponse(w, r, svcerrors.NotFound(tag))
		return
	}

	target := &url.URL{Scheme: "http", Host: backendAddr}
	proxy := httputil.NewSingleHostReverseProxy(target)

	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		if remainder != "" && !strings.HasPrefix(remainder, "/") {
			remainder = "/" + remainder
		}
		if remainder == "" {
			remainder = "/"
		}
		req.URL.Path = remainder
		req.URL.RawQuery = r.URL.RawQuery
		req.Host = target.Host
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if rt.logger != nil {
			rt.logger.LogServiceCall(r.Context(), backendAddr, r.Method, http.StatusBadGateway, 0, err)
		}
		httpu.WriteErrorResponse(w, r, svcerrors.UpstreamError(tag, http.StatusBadGateway, err))
	}

	proxy.ServeHTTP(w, r)
}
