package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/lumeshop/storefront-api/internal/domain/cart"
)

// CreatePaymentIntent handles POST /api/payment/intent: price the stored cart
// server-side and register a pending charge with the gateway. The storefront
// confirms the returned client secret and then places the order with the
// intent id.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	req, err := decodeIntentRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	intent, err := h.checkout.CreateIntent(ctx, req.CartID, req.PromoCode)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			writeError(w, http.StatusNotFound, "cart not found")
			return
		}
		h.writeCheckoutError(ctx, w, err)
		return
	}

	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("paymentIntentId")
	e.Str(intent.ID)
	e.FieldStart("clientSecret")
	e.Str(intent.ClientSecret)
	e.FieldStart("amount")
	encDecimal(e, intent.Amount)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e)
}
