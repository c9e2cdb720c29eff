package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/urbanfoods/backend/pkg/logger"
	"github.com/urbanfoods/backend/pkg/metrics"
)

// ProviderAllowlist gates the webhook route on the payment provider's
// published origin addresses. Rejections are opaque: 403 with an empty body,
// no hint about why. The rejection is logged as a security event.
func ProviderAllowlist(allowedIPs []string, m *metrics.SettlementMetrics, logg *logger.Logger) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedIPs))
	for _, ip := range allowedIPs {
		if trimmed := strings.TrimSpace(ip); trimmed != "" {
			allowed[trimmed] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := originAddress(r)
			if _, ok := allowed[origin]; !ok {
				if logg != nil {
					ctx := logg.WithFields(r.Context(), map[string]any{
						"remote_ip": origin,
						"path":      r.URL.Path,
					})
					logg.Warn(ctx, "webhook from non-allowlisted address rejected")
				}
				m.IncWebhookRejected()
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// originAddress resolves the caller address, preferring the first entry of
// X-Forwarded-For when a load balancer sits in front.
func originAddress(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
