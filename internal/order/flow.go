package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/storebot/internal/logger"
	"github.com/m3rciful/storebot/internal/model"
	"github.com/m3rciful/storebot/internal/store"
)

var (
	// ErrEmptyCatalog is returned when a buy action arrives with no products configured.
	ErrEmptyCatalog = errors.New("order: catalog is empty")
	// ErrOnlineDisabled is returned when the online path is chosen without a configured provider.
	ErrOnlineDisabled = errors.New("order: online payments are not configured")
)

// DeclineError carries the reason a pre-checkout validation was refused.
// The reason is shown to the buyer by the provider.
type DeclineError struct {
	Reason string
}

func (e *DeclineError) Error() string {
	return "order: pre-checkout declined: " + e.Reason
}

// Buyer identifies the purchasing user.
type Buyer struct {
	ID       int64
	Username string
	FullName string
}

// CatalogReader lists purchasable products, stable by id.
type CatalogReader interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
}

// CodeIssuer hands out a redemption code at most once per call.
// Implementations must mark the code consumed atomically with returning it.
type CodeIssuer interface {
	ClaimCode(ctx context.Context, productID int64) (string, error)
}

// AdminGateway broadcasts a decision request to every configured admin.
// Per-recipient failures are logged and do not abort the broadcast; an error
// is returned only when no admin could be reached at all.
type AdminGateway interface {
	RequestDecision(ctx context.Context, o PendingOrder) error
}

// InvoiceGateway issues a provider invoice for the order.
type InvoiceGateway interface {
	SendInvoice(ctx context.Context, o PendingOrder) error
}

// Notifier delivers outcome messages. All sends are best-effort: failures
// are logged and never roll back a committed transition, so the methods do
// not return errors.
type Notifier interface {
	OrderFulfilled(ctx context.Context, o PendingOrder, code string)
	OrderRejected(ctx context.Context, o PendingOrder)
	OrderUnavailable(ctx context.Context, o PendingOrder)
	OrderExpired(ctx context.Context, o PendingOrder)
	// FulfillmentStalled reports an approved or paid order whose code could
	// not be issued for a reason other than exhaustion, so the admins can
	// retry or settle it manually.
	FulfillmentStalled(ctx context.Context, o PendingOrder)
}

// Outcome describes how a resolved order ended.
type Outcome struct {
	Order    PendingOrder
	Approved bool
	// Code is the issued redemption code when fulfillment succeeded.
	Code string
	// Unavailable is set when the order was approved but no code was left.
	Unavailable bool
}

// Flow drives a pending order from selection to a terminal outcome.
type Flow struct {
	store    *PendingStore
	catalog  CatalogReader
	codes    CodeIssuer
	admins   AdminGateway
	invoices InvoiceGateway
	notify   Notifier
}

// NewFlow wires the payment flow. invoices may be nil when the online path
// is not configured.
func NewFlow(
	st *PendingStore,
	catalog CatalogReader,
	codes CodeIssuer,
	admins AdminGateway,
	invoices InvoiceGateway,
	notify Notifier,
) *Flow {
	return &Flow{
		store:    st,
		catalog:  catalog,
		codes:    codes,
		admins:   admins,
		invoices: invoices,
		notify:   notify,
	}
}

// Store exposes the pending order store for read-only inspection by handlers.
func (f *Flow) Store() *PendingStore {
	return f.store
}

// OnlineEnabled reports whether the provider-mediated path is available.
func (f *Flow) OnlineEnabled() bool {
	return f.invoices != nil
}

// Begin creates a pending order from the catalog snapshot at the given
// index, replacing any prior order of the same buyer. The index wraps modulo
// the current catalog length, so stale indices select a product instead of
// failing.
func (f *Flow) Begin(ctx context.Context, buyer Buyer, index int) (PendingOrder, error) {
	products, err := f.catalog.ListProducts(ctx)
	if err != nil {
		return PendingOrder{}, fmt.Errorf("begin order: %w", err)
	}
	if len(products) == 0 {
		return PendingOrder{}, ErrEmptyCatalog
	}

	p := products[wrapIndex(index, len(products))]
	now := time.Now()
	o := PendingOrder{
		BuyerID:       buyer.ID,
		ProductID:     p.ID,
		ProductName:   p.Name,
		Price:         p.Price,
		BuyerUsername: buyer.Username,
		BuyerFullName: buyer.FullName,
		State:         StateSelectingMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	replaced := f.store.Put(o)

	logger.SVCOrders.Info("order started",
		slog.String("event", "order.begin"),
		slog.Int64("user_id", buyer.ID),
		slog.Int64("product_id", p.ID),
		slog.Bool("replaced", replaced),
	)
	return o, nil
}

// ChooseMethod advances the order into the chosen confirmation path. On the
// online path the invoice is issued before returning.
func (f *Flow) ChooseMethod(ctx context.Context, buyerID int64, method PaymentMethod) (PendingOrder, error) {
	ev, err := method.Event()
	if err != nil {
		return PendingOrder{}, err
	}
	if method == MethodOnline && f.invoices == nil {
		return PendingOrder{}, ErrOnlineDisabled
	}

	o, err := f.store.Update(buyerID, func(o *PendingOrder) error {
		return o.Apply(ev)
	})
	if err != nil {
		return PendingOrder{}, err
	}

	if method == MethodOnline {
		if err := f.invoices.SendInvoice(ctx, o); err != nil {
			logger.SVCOrders.Error("invoice failed",
				slog.String("event", "order.invoice"),
				slog.Int64("user_id", buyerID),
				slog.String("err", err.Error()),
			)
			return o, fmt.Errorf("send invoice: %w", err)
		}
	}

	logger.SVCOrders.Info("method chosen",
		slog.String("event", "order.method"),
		slog.Int64("user_id", buyerID),
		slog.String("method", string(method)),
	)
	return o, nil
}

// SubmitProof records the proof-of-payment reference and broadcasts the
// decision request to every configured admin.
func (f *Flow) SubmitProof(ctx context.Context, buyerID int64, proofFileID string) (PendingOrder, error) {
	o, err := f.store.Update(buyerID, func(o *PendingOrder) error {
		if err := o.Apply(EventProofSubmitted); err != nil {
			return err
		}
		o.ProofFileID = proofFileID
		return nil
	})
	if err != nil {
		return PendingOrder{}, err
	}

	if err := f.admins.RequestDecision(ctx, o); err != nil {
		logger.SVCOrders.Error("decision broadcast failed",
			slog.String("event", "order.proof"),
			slog.Int64("user_id", buyerID),
			slog.String("err", err.Error()),
		)
		return o, fmt.Errorf("request decision: %w", err)
	}

	logger.SVCOrders.Info("proof submitted",
		slog.String("event", "order.proof"),
		slog.Int64("user_id", buyerID),
	)
	return o, nil
}

// Resolve applies an admin decision. The order is claimed atomically before
// any side effect runs, so of two racing decisions exactly one succeeds and
// the other observes ErrOrderNotFound.
func (f *Flow) Resolve(ctx context.Context, buyerID int64, approve bool) (Outcome, error) {
	ev := EventAdminRejected
	if approve {
		ev = EventAdminApproved
	}

	o, ok := f.store.TakeIf(buyerID, func(o PendingOrder) bool {
		return Allows(o.State, ev)
	})
	if !ok {
		return Outcome{}, ErrOrderNotFound
	}

	if !approve {
		f.notify.OrderRejected(ctx, o)
		logger.SVCOrders.Info("order rejected",
			slog.String("event", "order.resolve"),
			slog.Int64("user_id", buyerID),
		)
		return Outcome{Order: o}, nil
	}

	return f.fulfill(ctx, o)
}

// ValidatePreCheckout independently re-verifies a provider pre-checkout
// request: the payload must decode to a live order of the right product and
// the amount must match the order's recorded price. It never mutates the
// order; a *DeclineError explains any refusal.
func (f *Flow) ValidatePreCheckout(ctx context.Context, payload string, amount int) error {
	buyerID, productID, err := DecodePayload(payload)
	if err != nil {
		return &DeclineError{Reason: "This payment is no longer valid."}
	}
	o, ok := f.store.Get(buyerID)
	if !ok {
		return &DeclineError{Reason: "Order not found or already completed."}
	}
	if o.ProductID != productID || o.State != StateAwaitingProvider {
		return &DeclineError{Reason: "Order has changed, please start over."}
	}
	if amount != o.PriceMinor() {
		return &DeclineError{Reason: "Payment amount does not match the order."}
	}
	return nil
}

// CompletePayment finalizes a provider-confirmed payment: the order is
// claimed atomically, a code is issued, and the buyer and admins are
// notified. An unknown or already-settled payload is reported as
// ErrOrderNotFound so the caller can log and acknowledge without side
// effects.
func (f *Flow) CompletePayment(ctx context.Context, payload string, amount int) (Outcome, error) {
	buyerID, productID, err := DecodePayload(payload)
	if err != nil {
		return Outcome{}, fmt.Errorf("payment payload: %w", err)
	}

	o, ok := f.store.TakeIf(buyerID, func(o PendingOrder) bool {
		return o.ProductID == productID && Allows(o.State, EventPaymentSuccess)
	})
	if !ok {
		return Outcome{}, ErrOrderNotFound
	}

	if amount != o.PriceMinor() {
		// The provider charged a different amount than validated. The charge
		// already happened, so fulfill anyway and leave a loud trace.
		logger.SVCOrders.Warn("paid amount mismatch",
			slog.String("event", "order.payment"),
			slog.Int64("user_id", buyerID),
			slog.Int("amount", amount),
			slog.Int("expected", o.PriceMinor()),
		)
	}

	return f.fulfill(ctx, o)
}

// ExpireStale removes orders older than ttl and notifies their buyers.
// Returns the number of expired orders.
func (f *Flow) ExpireStale(ctx context.Context, ttl time.Duration) int {
	expired := f.store.TakeExpired(time.Now().Add(-ttl))
	for _, o := range expired {
		f.notify.OrderExpired(ctx, o)
		logger.SVCOrders.Info("order expired",
			slog.String("event", "order.expire"),
			slog.Int64("user_id", o.BuyerID),
			slog.String("state", string(o.State)),
		)
	}
	return len(expired)
}

// fulfill issues a code for an already-claimed order and notifies recipients.
func (f *Flow) fulfill(ctx context.Context, o PendingOrder) (Outcome, error) {
	code, err := f.codes.ClaimCode(ctx, o.ProductID)
	if errors.Is(err, store.ErrNoCodeAvailable) {
		f.notify.OrderUnavailable(ctx, o)
		logger.SVCOrders.Warn("order approved without stock",
			slog.String("event", "order.fulfill"),
			slog.String("status", "skip"),
			slog.Int64("user_id", o.BuyerID),
			slog.Int64("product_id", o.ProductID),
		)
		return Outcome{Order: o, Approved: true, Unavailable: true}, nil
	}
	if err != nil {
		// Storage failure, not exhaustion: put the order back so the
		// decision can be retried instead of losing the purchase. The
		// conditional put keeps a newer order the buyer may have started
		// meanwhile intact.
		f.store.PutIfAbsent(o)
		f.notify.FulfillmentStalled(ctx, o)
		return Outcome{}, fmt.Errorf("claim code: %w", err)
	}

	f.notify.OrderFulfilled(ctx, o, code)
	logger.SVCOrders.Info("order fulfilled",
		slog.String("event", "order.fulfill"),
		slog.String("status", "ok"),
		slog.Int64("user_id", o.BuyerID),
		slog.Int64("product_id", o.ProductID),
	)
	return Outcome{Order: o, Approved: true, Code: code}, nil
}

// wrapIndex maps any index onto [0, n) so stale catalog positions wrap
// instead of erroring.
func wrapIndex(index, n int) int {
	return ((index % n) + n) % n
}

const payloadPrefix = "order"

// EncodePayload renders the invoice payload carrying the buyer and product
// identity of an order.
func EncodePayload(o PendingOrder) string {
	return fmt.Sprintf("%s:%d:%d", payloadPrefix, o.BuyerID, o.ProductID)
}

// DecodePayload parses an invoice payload back into buyer and product ids.
func DecodePayload(payload string) (buyerID, productID int64, err error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 || parts[0] != payloadPrefix {
		return 0, 0, fmt.Errorf("malformed payload %q", payload)
	}
	buyerID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed payload %q", payload)
	}
	productID, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed payload %q", payload)
	}
	return buyerID, productID, nil
}
