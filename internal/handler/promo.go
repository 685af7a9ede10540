package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/lumeshop/storefront-api/internal/domain/promo"
)

// ApplyPromo handles POST /api/promo/apply: validate a code against the
// current cart subtotal and return the discount it would grant. Nothing is
// redeemed here; redemption happens after the order is durably created.
func (h *Handler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	req, err := decodePromoApply(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d, err := h.promos.Validate(ctx, req.Code, req.Subtotal)
	if err != nil {
		var belowMin *promo.BelowMinimumError
		switch {
		case errors.Is(err, promo.ErrMissingCode),
			errors.Is(err, promo.ErrInvalidOrExpired):
			writeFieldErrors(w, http.StatusUnprocessableEntity, map[string]string{"promoCode": err.Error()})
		case errors.As(err, &belowMin):
			writeFieldErrors(w, http.StatusUnprocessableEntity, map[string]string{"promoCode": belowMin.Error()})
		default:
			zctx.From(ctx).Error("promo validation failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("promoCode")
	e.Str(d.Code)
	e.FieldStart("discount")
	encDecimal(e, d.Amount)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e)
}
