package checkout

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-checkout/internal/common"
)

// Handler exposes the payment intent endpoint.
type Handler struct {
	Resolver *Resolver
}

type intentResponse struct {
	ClientSecret string `json:"clientSecret"`
}

// CreatePaymentIntent decodes the cart, resolves the amount and returns the
// provider client secret.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Resolver == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured")
		return
	}
	req, err := h.Resolver.Decoder().Decode(r.Body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.Resolver.Resolve(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, intentResponse{ClientSecret: out.ClientSecret})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if appErr, ok := common.AsAppError(err); ok {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		common.JSONError(w, status, appErr.Code, appErr.Message)
		return
	}
	zerolog.Ctx(r.Context()).Error().Err(err).Msg("unclassified checkout error")
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
}
