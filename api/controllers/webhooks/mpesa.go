package webhooks

import (
	"io"
	"net/http"

	"github.com/urbanfoods/backend/api/responses"
	mpesawebhook "github.com/urbanfoods/backend/internal/webhooks/mpesa"
	"github.com/urbanfoods/backend/pkg/logger"
)

const (
	// callbackAck is the fixed literal every allowlisted callback receives,
	// whatever the internal outcome. Anything else makes the provider retry.
	callbackAck = "OK"

	maxCallbackBody = 1 << 20
)

// MpesaCallback receives the provider's asynchronous payment result.
func MpesaCallback(svc mpesawebhook.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
		if err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "failed to read mpesa callback body")
			}
			responses.WriteAck(w, callbackAck)
			return
		}

		if err := svc.HandleCallback(ctx, raw); err != nil && logg != nil {
			logg.Error(ctx, "mpesa callback processing failed", err)
		}
		responses.WriteAck(w, callbackAck)
	}
}
