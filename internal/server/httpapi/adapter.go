package httpapi

import (
	"io"
	"net/http"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/gate"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

// toRequest converts r into the transport-independent request the gate and
// handlers work with. Multi-valued headers and query keys keep their first
// value.
func toRequest(w http.ResponseWriter, r *http.Request) (gate.Request, error) {
	req := gate.Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		Headers:    make(gate.Headers, len(r.Header)),
		Query:      map[string]string{},
		PathParams: map[string]string{},
	}
	for k, v := range r.Header {
		if len(v) > 0 {
			req.Headers[k] = v[0]
		}
	}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			req.Query[k] = v[0]
		}
	}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		for i, k := range rc.URLParams.Keys {
			req.PathParams[k] = rc.URLParams.Values[i]
		}
	}

	if r.Body != nil {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			return req, common.Wrap(common.KindValidation, "request body is too large or unreadable", err)
		}
		req.Body = body
	}
	return req, nil
}

// adapt serves a gate.Handler over HTTP.
func adapt(h gate.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := toRequest(w, r)
		if err != nil {
			writeError(w, err)
			return
		}

		resp, err := h(r.Context(), &gate.RequestContext{Request: req})
		if err != nil {
			writeError(w, err)
			return
		}
		if resp == nil {
			resp = &gate.Response{Status: http.StatusNoContent}
		}
		writeJSON(w, resp.Status, resp.Body)
	}
}

// principalID is the authenticated caller. Handlers behind Protect always
// have one.
func principalID(rc *gate.RequestContext) string {
	if rc.Principal != nil {
		return rc.Principal.ID
	}
	return ""
}
