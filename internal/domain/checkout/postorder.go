package checkout

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lumeshop/storefront-api/internal/domain/order"
)

// Collaborators for post-commit side effects. Each is optional; a nil field
// simply skips the corresponding task.

// Notifier sends the order-confirmation message to the customer.
type Notifier interface {
	OrderConfirmation(ctx context.Context, o *order.Order) error
}

// AddressSaver persists the shipping address back onto the user profile.
type AddressSaver interface {
	SaveAddress(ctx context.Context, userID string, s order.ShippingDetails) error
}

// CartRemover tears down the source cart once the order owns the snapshots.
type CartRemover interface {
	Delete(ctx context.Context, cartID string) error
}

// Redeemer burns one use of a promo code.
type Redeemer interface {
	Redeem(ctx context.Context, code string) error
}

// Publisher emits an order-created event for downstream consumers.
type Publisher interface {
	OrderCreated(ctx context.Context, o *order.Order) error
}

// SideEffects bundles the post-commit collaborators.
type SideEffects struct {
	Notifier  Notifier
	Addresses AddressSaver
	Carts     CartRemover
	Promos    Redeemer
	Events    Publisher
}

// task is one independently fallible post-commit step.
type task struct {
	name string
	run  func(ctx context.Context) error
}

// Runner executes post-commit tasks sequentially. Failures are logged and
// swallowed: the order is already durable, so nothing here may roll it back
// or surface to the customer as a checkout failure.
type Runner struct {
	lg      *zap.Logger
	effects SideEffects
	timeout time.Duration
}

// NewRunner creates a Runner with the given collaborators.
func NewRunner(lg *zap.Logger, effects SideEffects) *Runner {
	return &Runner{
		lg:      lg,
		effects: effects,
		timeout: 30 * time.Second,
	}
}

// After runs the side effects of a freshly committed order. The tasks run on
// a context detached from the request, so a client disconnect after commit
// does not abort confirmation messaging or cart teardown.
func (r *Runner) After(ctx context.Context, req Request, o *order.Order) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	for _, t := range r.tasks(req, o) {
		if err := t.run(ctx); err != nil {
			r.lg.Warn("post-order task failed",
				zap.String("task", t.name),
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
		}
	}
}

func (r *Runner) tasks(req Request, o *order.Order) []task {
	var tasks []task

	if r.effects.Promos != nil && o.PromoCode != "" {
		tasks = append(tasks, task{name: "redeem_promo", run: func(ctx context.Context) error {
			return r.effects.Promos.Redeem(ctx, o.PromoCode)
		}})
	}
	if r.effects.Notifier != nil {
		tasks = append(tasks, task{name: "confirmation_email", run: func(ctx context.Context) error {
			return r.effects.Notifier.OrderConfirmation(ctx, o)
		}})
	}
	if r.effects.Addresses != nil && req.SaveAddress {
		tasks = append(tasks, task{name: "save_address", run: func(ctx context.Context) error {
			return r.effects.Addresses.SaveAddress(ctx, o.UserID, o.Shipping)
		}})
	}
	if r.effects.Carts != nil {
		tasks = append(tasks, task{name: "cart_teardown", run: func(ctx context.Context) error {
			return r.effects.Carts.Delete(ctx, req.CartID)
		}})
	}
	if r.effects.Events != nil {
		tasks = append(tasks, task{name: "order_created_event", run: func(ctx context.Context) error {
			return r.effects.Events.OrderCreated(ctx, o)
		}})
	}

	return tasks
}
