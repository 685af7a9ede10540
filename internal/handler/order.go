package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/lumeshop/storefront-api/internal/domain/checkout"
	"github.com/lumeshop/storefront-api/internal/domain/order"
	"github.com/lumeshop/storefront-api/internal/domain/payment"
	"github.com/lumeshop/storefront-api/internal/domain/promo"
)

// PlaceOrder handles POST /api/order: one checkout attempt end to end.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	req, err := decodeOrderRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.checkout.PlaceOrder(ctx, req)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	e.FieldStart("alreadyPlaced")
	e.Bool(res.AlreadyPlaced)
	e.FieldStart("order")
	encodeOrder(e, res.Order)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e)
}

// writeCheckoutError maps checkout failures onto the response taxonomy:
// 400 for request validation, 422 for promo problems the storefront renders
// inline, 402 for payment verification, 500 with a support pointer when the
// order could not be saved after a possible capture.
func (h *Handler) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		qtyErr      *checkout.InvalidQuantityError
		shipErr     *checkout.MissingShippingError
		belowMinErr *promo.BelowMinimumError
	)
	switch {
	case errors.Is(err, checkout.ErrMissingUser),
		errors.Is(err, checkout.ErrMissingCart),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrMissingPaymentIntent):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.As(err, &qtyErr):
		writeError(w, http.StatusBadRequest, qtyErr.Error())

	case errors.As(err, &shipErr):
		fields := make(map[string]string, len(shipErr.Fields))
		for _, f := range shipErr.Fields {
			fields[f] = "required"
		}
		writeFieldErrors(w, http.StatusBadRequest, fields)

	case errors.Is(err, promo.ErrMissingCode),
		errors.Is(err, promo.ErrInvalidOrExpired):
		writeFieldErrors(w, http.StatusUnprocessableEntity, map[string]string{"promoCode": err.Error()})

	case errors.As(err, &belowMinErr):
		writeFieldErrors(w, http.StatusUnprocessableEntity, map[string]string{"promoCode": belowMinErr.Error()})

	case errors.Is(err, payment.ErrStillProcessing):
		writeError(w, http.StatusPaymentRequired, "payment is still processing, please try again in a moment")

	case errors.Is(err, payment.ErrPaymentDeclined),
		errors.Is(err, payment.ErrPaymentFailed):
		writeError(w, http.StatusPaymentRequired, err.Error())

	case errors.Is(err, checkout.ErrPersist):
		zctx.From(ctx).Error("order persistence failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError,
			"your payment may have been processed but the order could not be saved; please contact support before retrying")

	default:
		zctx.From(ctx).Error("checkout failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// GetOrder handles GET /api/orders/{id} for the admin surface.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		zctx.From(r.Context()).Error("get order failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	e := &jx.Encoder{}
	encodeOrder(e, o)
	writeJSON(w, http.StatusOK, e)
}

// UpdateOrderStatus handles PATCH /api/orders/{id}/status. The transition is
// checked against the fulfilment state machine before anything is written;
// force bypasses the forward-path check for operator overrides.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	req, err := decodeStatusUpdate(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	to := order.Status(req.Status)
	if !to.Valid() {
		writeError(w, http.StatusBadRequest, "unknown order status: "+req.Status)
		return
	}

	o, err := h.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		zctx.From(ctx).Error("get order failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	notifyDraft, err := order.Transition(o.Status, to, req.Force)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	updated, err := h.orders.UpdateStatus(ctx, id, to)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		zctx.From(ctx).Error("update order status failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("order")
	encodeOrder(e, updated)
	e.FieldStart("notifyDraft")
	e.Bool(notifyDraft)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e)
}
