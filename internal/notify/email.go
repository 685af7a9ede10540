// Package notify sends customer-facing transactional email over SMTP.
// Sends are best-effort post-commit tasks; a failure here is logged by the
// caller and never fails the order.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/lumeshop/storefront-api/internal/domain/order"
)

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     string
	From     string
	Password string
}

// EmailSender sends order-confirmation email via a plain-auth SMTP relay.
type EmailSender struct {
	cfg SMTPConfig
	lg  *zap.Logger
	// send is swapped out in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSender creates an EmailSender for the given relay.
func NewEmailSender(cfg SMTPConfig, lg *zap.Logger) *EmailSender {
	return &EmailSender{
		cfg:  cfg,
		lg:   lg,
		send: smtp.SendMail,
	}
}

// OrderConfirmation emails the customer a summary of their freshly created
// order.
func (s *EmailSender) OrderConfirmation(ctx context.Context, o *order.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := buildConfirmation(s.cfg.From, o)
	addr := s.cfg.Host + ":" + s.cfg.Port
	auth := smtp.PlainAuth("", s.cfg.From, s.cfg.Password, s.cfg.Host)

	s.lg.Info("sending order confirmation",
		zap.String("order_id", o.ID),
		zap.String("to", o.Shipping.Email),
	)

	if err := s.send(addr, auth, s.cfg.From, []string{o.Shipping.Email}, msg); err != nil {
		return errors.Wrapf(err, "send confirmation for order %s", o.ID)
	}
	return nil
}

func buildConfirmation(from string, o *order.Order) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", o.Shipping.Email)
	fmt.Fprintf(&b, "Subject: Order confirmation %s\r\n", o.ID)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n")

	fmt.Fprintf(&b, "<h1>Thank you for your order, %s!</h1>", o.Shipping.FirstName)
	fmt.Fprintf(&b, "<p>Order <strong>%s</strong> has been received.</p>", o.ID)
	b.WriteString("<ul>")
	for _, item := range o.Items {
		fmt.Fprintf(&b, "<li>%d &times; %s — %s</li>",
			item.Quantity, item.ProductName, item.Subtotal.StringFixed(2))
	}
	b.WriteString("</ul>")
	if !o.DiscountAmount.IsZero() {
		fmt.Fprintf(&b, "<p>Discount: -%s</p>", o.DiscountAmount.StringFixed(2))
	}
	fmt.Fprintf(&b, "<p>Shipping: %s</p>", o.ShippingCost.StringFixed(2))
	fmt.Fprintf(&b, "<p><strong>Total: %s</strong></p>", o.TotalAmount.StringFixed(2))

	return []byte(b.String())
}
