package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/storebot/internal/logger"
	"github.com/m3rciful/storebot/internal/order"
	"github.com/m3rciful/storebot/internal/telegram"
	"github.com/m3rciful/storebot/internal/telegram/format"
)

func (h *Handlers) onBuy(c tele.Context) error {
	user := c.Sender()
	if user == nil {
		return nil
	}
	action, ok := telegram.DecodeAction(c)
	if !ok {
		return nil
	}
	index, err := action.Int()
	if err != nil {
		return telegram.SendText(c, "This button has expired, open the catalog again.")
	}

	ctx := telegram.BuildContext(c)
	buyer := order.Buyer{
		ID:       user.ID,
		Username: user.Username,
		FullName: fullName(user),
	}
	o, err := h.flow.Begin(ctx, buyer, index)
	if errors.Is(err, order.ErrEmptyCatalog) {
		return telegram.SendText(c, "No products available right now.")
	}
	if err != nil {
		return telegram.SendText(c, "Could not start the order, please try again.")
	}

	text := fmt.Sprintf("You are buying *%s* for %s.\nChoose a payment method.",
		format.EscapeMarkdown(o.ProductName), formatPrice(o.Price, h.cfg.Telegram.Currency))
	_ = c.Delete()
	return c.Send(text, &tele.SendOptions{
		ParseMode:   tele.ModeMarkdown,
		ReplyMarkup: paymentMethods(index, h.flow.OnlineEnabled()),
	})
}

func (h *Handlers) onPayAdmin(c tele.Context) error {
	user := c.Sender()
	if user == nil {
		return nil
	}
	ctx := telegram.BuildContext(c)
	o, err := h.flow.ChooseMethod(ctx, user.ID, order.MethodAdmin)
	if err != nil {
		return h.checkoutError(c, err)
	}

	text := fmt.Sprintf(
		"To pay for *%s* (%s), transfer the amount to the admin account "+
			"and send a photo of the receipt here.",
		format.EscapeMarkdown(o.ProductName), formatPrice(o.Price, h.cfg.Telegram.Currency))
	_ = c.Delete()
	return telegram.SendMD(c, text)
}

func (h *Handlers) onPayOnline(c tele.Context) error {
	user := c.Sender()
	if user == nil {
		return nil
	}
	ctx := telegram.BuildContext(c)
	_, err := h.flow.ChooseMethod(ctx, user.ID, order.MethodOnline)
	if errors.Is(err, order.ErrOnlineDisabled) {
		return telegram.SendText(c, "Online payments are not available, pay to the admin instead.")
	}
	if err != nil {
		return h.checkoutError(c, err)
	}
	_ = c.Delete()
	return nil
}

func (h *Handlers) onPayBack(c tele.Context) error {
	if user := c.Sender(); user != nil {
		h.flow.Store().Remove(user.ID)
	}
	action, ok := telegram.DecodeAction(c)
	if !ok {
		return h.showProduct(c, 0)
	}
	index, err := action.Int()
	if err != nil {
		index = 0
	}
	return h.showProduct(c, index)
}

// onPhoto treats an incoming photo as payment proof when, and only when, the
// sender's order is awaiting one. Unrelated photos are ignored.
func (h *Handlers) onPhoto(c tele.Context) error {
	user := c.Sender()
	msg := c.Message()
	if user == nil || msg == nil || msg.Photo == nil {
		return nil
	}
	o, ok := h.flow.Store().Get(user.ID)
	if !ok || o.State != order.StateAwaitingProof {
		return nil
	}

	ctx := telegram.BuildContext(c)
	if _, err := h.flow.SubmitProof(ctx, user.ID, msg.Photo.FileID); err != nil {
		if errors.Is(err, order.ErrOrderNotFound) || errors.Is(err, order.ErrInvalidTransition) {
			return nil
		}
		return telegram.SendText(c, "Could not forward your receipt, please try again.")
	}
	return telegram.SendText(c, "Receipt received. You will get your code once an admin confirms the payment.")
}

// onCheckout answers a pre-checkout query. The order is re-validated against
// the live pending state; approval is never unconditional.
func (h *Handlers) onCheckout(c tele.Context) error {
	q := c.PreCheckoutQuery()
	if q == nil {
		return nil
	}
	ctx := telegram.BuildContext(c)
	err := h.flow.ValidatePreCheckout(ctx, q.Payload, q.Total)
	if err == nil {
		return c.Accept()
	}

	var decline *order.DeclineError
	reason := "Payment cannot be processed."
	if errors.As(err, &decline) {
		reason = decline.Reason
	}
	logger.SVCOrders.Warn("pre-checkout declined",
		slog.String("event", "checkout.decline"),
		slog.Int64("user_id", q.Sender.ID),
		slog.String("reason", reason),
	)
	return c.Accept(reason)
}

// onPayment finalizes a provider-confirmed payment.
func (h *Handlers) onPayment(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Payment == nil {
		return nil
	}
	pay := msg.Payment
	ctx := telegram.BuildContext(c)

	_, err := h.flow.CompletePayment(ctx, pay.Payload, pay.Total)
	if errors.Is(err, order.ErrOrderNotFound) {
		// Duplicate or stale confirmation. Acknowledge silently.
		logger.SVCOrders.Warn("payment without matching order",
			slog.String("event", "payment.orphan"),
			slog.String("payload", logger.SanitizeLimit(pay.Payload, 64)),
		)
		return nil
	}
	if err != nil {
		return telegram.SendText(c,
			"Your payment was received but issuing the code failed. Support has been notified.")
	}
	return nil
}

// SendInvoice implements order.InvoiceGateway.
func (h *Handlers) SendInvoice(ctx context.Context, o order.PendingOrder) error {
	b := h.bot.Load()
	if b == nil {
		return errors.New("bot is not running")
	}
	inv := &tele.Invoice{
		Title:       o.ProductName,
		Description: "Purchase of " + o.ProductName,
		Payload:     order.EncodePayload(o),
		Token:       h.cfg.Telegram.ProviderToken,
		Currency:    h.cfg.Telegram.Currency,
		Prices: []tele.Price{
			{Label: o.ProductName, Amount: o.PriceMinor()},
		},
	}
	_, err := b.Send(&tele.User{ID: o.BuyerID}, inv)
	return err
}

func (h *Handlers) checkoutError(c tele.Context, err error) error {
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		return telegram.SendText(c, "You have no active order. Open the catalog to start one.")
	case errors.Is(err, order.ErrInvalidTransition):
		return telegram.SendText(c, "This order has already moved on, check its current step.")
	default:
		return telegram.SendText(c, "Something went wrong, please try again.")
	}
}

func fullName(u *tele.User) string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	return name
}
