package metadata

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

type contextKeyClient struct{}

// Client describes the caller of a request for audit logging.
type Client struct {
	IP      string
	Browser string
	OS      string
	Bot     bool
}

// ClientMetadata records the caller's address and parsed User-Agent in the
// context. Run it after chi's RealIP so RemoteAddr already reflects proxy
// headers.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithClient(r.Context(), FromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromRequest builds the Client for r.
func FromRequest(r *http.Request) Client {
	c := Client{IP: hostOnly(r.RemoteAddr)}
	if raw := strings.TrimSpace(r.UserAgent()); raw != "" {
		ua := useragent.New(raw)
		name, version := ua.Browser()
		c.Browser = strings.TrimSpace(name + " " + version)
		c.OS = ua.OS()
		c.Bot = ua.Bot()
	}
	return c
}

// WithClient injects client metadata into a context.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, contextKeyClient{}, c)
}

// GetClient returns the client stored by ClientMetadata, if any.
func GetClient(ctx context.Context) (Client, bool) {
	c, ok := ctx.Value(contextKeyClient{}).(Client)
	return c, ok
}

func hostOnly(addr string) string {
	if addr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
