package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/lumeshop/storefront-api/internal/domain/checkout"
	"github.com/lumeshop/storefront-api/internal/domain/order"
	"github.com/lumeshop/storefront-api/internal/domain/payment"
	"github.com/lumeshop/storefront-api/internal/domain/pricing"
)

// maxBodySize bounds request bodies to keep jx decoding cheap.
const maxBodySize = 1 << 20

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
}

// decDecimal reads a JSON number (or number string) into a decimal.
func decDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	s := string(n)
	if len(s) > 1 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	return decimal.NewFromString(s)
}

func encDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}

// decodeOrderRequest parses the checkout payload. Unknown keys are skipped so
// the storefront can evolve its payload without breaking older servers.
func decodeOrderRequest(data []byte) (checkout.Request, error) {
	var req checkout.Request
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userId":
			req.UserID, err = d.Str()
		case "cartId":
			req.CartID, err = d.Str()
		case "paymentMethod":
			var s string
			s, err = d.Str()
			req.PaymentMethod = payment.Method(s)
		case "paymentIntentId":
			req.PaymentIntentID, err = d.Str()
		case "promoCode":
			req.PromoCode, err = d.Str()
		case "saveAddress":
			req.SaveAddress, err = d.Bool()
		case "billingAddress":
			req.BillingAddress, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				item, err := decodeLineItem(d)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		case "shipping":
			req.Shipping, err = decodeShipping(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func decodeLineItem(d *jx.Decoder) (pricing.LineItem, error) {
	var item pricing.LineItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			item.ProductID, err = d.Str()
		case "productName":
			item.ProductName, err = d.Str()
		case "unitPrice":
			item.UnitPrice, err = decDecimal(d)
		case "costPrice":
			item.CostPrice, err = decDecimal(d)
		case "discountPercent":
			item.DiscountPercent, err = decDecimal(d)
		case "quantity":
			item.Quantity, err = d.Int()
		case "color":
			item.Color, err = d.Str()
		case "shade":
			item.Shade, err = d.Str()
		case "imageUrl":
			item.ImageURL, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return item, err
}

func decodeShipping(d *jx.Decoder) (order.ShippingDetails, error) {
	var s order.ShippingDetails
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "firstName":
			s.FirstName, err = d.Str()
		case "lastName":
			s.LastName, err = d.Str()
		case "email":
			s.Email, err = d.Str()
		case "address":
			s.Address, err = d.Str()
		case "city":
			s.City, err = d.Str()
		case "postalCode":
			s.PostalCode, err = d.Str()
		case "state":
			s.State, err = d.Str()
		case "country":
			s.Country, err = d.Str()
		case "phone":
			s.Phone, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return s, err
}

type intentRequest struct {
	CartID    string
	PromoCode string
}

func decodeIntentRequest(data []byte) (intentRequest, error) {
	var req intentRequest
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "cartId":
			req.CartID, err = d.Str()
		case "promoCode":
			req.PromoCode, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

type promoApplyRequest struct {
	Code     string
	Subtotal decimal.Decimal
}

func decodePromoApply(data []byte) (promoApplyRequest, error) {
	var req promoApplyRequest
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "promoCode":
			req.Code, err = d.Str()
		case "subtotal":
			req.Subtotal, err = decDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

type statusUpdateRequest struct {
	Status string
	Force  bool
}

func decodeStatusUpdate(data []byte) (statusUpdateRequest, error) {
	var req statusUpdateRequest
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			req.Status, err = d.Str()
		case "force":
			req.Force, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("userId")
	e.Str(o.UserID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("paymentStatus")
	e.Str(string(o.PaymentStatus))
	if o.PaymentIntentID != "" {
		e.FieldStart("paymentIntentId")
		e.Str(o.PaymentIntentID)
	}
	e.FieldStart("subtotal")
	encDecimal(e, o.Subtotal)
	e.FieldStart("shippingCost")
	encDecimal(e, o.ShippingCost)
	e.FieldStart("discountAmount")
	encDecimal(e, o.DiscountAmount)
	e.FieldStart("totalAmount")
	encDecimal(e, o.TotalAmount)
	if o.PromoCode != "" {
		e.FieldStart("promoCode")
		e.Str(o.PromoCode)
	}
	if o.TrackingNumber != "" {
		e.FieldStart("trackingNumber")
		e.Str(o.TrackingNumber)
	}
	e.FieldStart("shipping")
	encodeShipping(e, o.Shipping)
	e.FieldStart("billingAddress")
	e.Str(o.BillingAddress)
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range o.Items {
		encodeOrderItem(e, item)
	}
	e.ArrEnd()
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"))
	e.ObjEnd()
}

func encodeShipping(e *jx.Encoder, s order.ShippingDetails) {
	e.ObjStart()
	e.FieldStart("firstName")
	e.Str(s.FirstName)
	e.FieldStart("lastName")
	e.Str(s.LastName)
	e.FieldStart("email")
	e.Str(s.Email)
	e.FieldStart("address")
	e.Str(s.Address)
	e.FieldStart("city")
	e.Str(s.City)
	e.FieldStart("postalCode")
	e.Str(s.PostalCode)
	if s.State != "" {
		e.FieldStart("state")
		e.Str(s.State)
	}
	e.FieldStart("country")
	e.Str(s.Country)
	if s.Phone != "" {
		e.FieldStart("phone")
		e.Str(s.Phone)
	}
	e.ObjEnd()
}

func encodeOrderItem(e *jx.Encoder, item order.LineItem) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(item.ProductID)
	e.FieldStart("productName")
	e.Str(item.ProductName)
	e.FieldStart("quantity")
	e.Int(item.Quantity)
	e.FieldStart("unitPrice")
	encDecimal(e, item.UnitPrice)
	e.FieldStart("subtotal")
	encDecimal(e, item.Subtotal)
	if item.Color != "" {
		e.FieldStart("color")
		e.Str(item.Color)
	}
	if item.Shade != "" {
		e.FieldStart("shade")
		e.Str(item.Shade)
	}
	if item.ImageURL != "" {
		e.FieldStart("imageUrl")
		e.Str(item.ImageURL)
	}
	e.ObjEnd()
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError emits the flat {"error": ...} envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("error")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, e)
}

// writeFieldErrors emits the field-scoped {"errors": {field: message}}
// envelope the storefront renders inline next to inputs.
func writeFieldErrors(w http.ResponseWriter, status int, fields map[string]string) {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("errors")
	e.ObjStart()
	for field, msg := range fields {
		e.FieldStart(field)
		e.Str(msg)
	}
	e.ObjEnd()
	e.ObjEnd()
	writeJSON(w, status, e)
}
