package catalog

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-checkout/internal/common"
)

// Handler exposes the public product listing.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Products handles GET /api/v1/products.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured")
		return
	}
	params, err := h.service.ParseListParams(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	products, err := h.service.ListProducts(r.Context(), params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(products)))
	common.JSON(w, http.StatusOK, map[string]any{"data": products})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if appErr, ok := common.AsAppError(err); ok && appErr.HTTPStatus < http.StatusInternalServerError {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message)
		return
	}
	zerolog.Ctx(r.Context()).Error().Err(err).Msg("catalog listing failed")
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "Error fetching products")
}
