package resolver

import (
	"context"
	"net/http"

	"github.com/ArildWaldan/suivi-sap/tracker"
)

// ObservingTransport reports every completed request made through it to an
// Observer. A host application installs it on the client it already uses to
// talk to the backends, so the vault sees authenticated traffic without any
// global hook. Requests issued by a Resolver are never reported.
type ObservingTransport struct {
	Base     http.RoundTripper
	Observer tracker.Observer
}

func (t *ObservingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil || t.Observer == nil || issuedByResolver(req.Context()) {
		return resp, err
	}
	t.Observer.Observe(req.Context(), describe(req, resp.StatusCode))
	return resp, nil
}

func describe(req *http.Request, status int) tracker.RequestDescriptor {
	headers := make(map[string]string, len(req.Header))
	for name, values := range req.Header {
		if len(values) > 0 {
			headers[name] = values[len(values)-1]
		}
	}
	return tracker.RequestDescriptor{
		Method:  req.Method,
		URL:     req.URL.String(),
		Status:  status,
		Headers: headers,
		Cookie:  req.Header.Get("Cookie"),
	}
}

type resolverRequestKey struct{}

func markResolverRequest(ctx context.Context) context.Context {
	return context.WithValue(ctx, resolverRequestKey{}, true)
}

func issuedByResolver(ctx context.Context) bool {
	marked, _ := ctx.Value(resolverRequestKey{}).(bool)
	return marked
}
