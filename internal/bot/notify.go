package bot

import (
	"context"
	"fmt"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/storebot/internal/logger"
	"github.com/m3rciful/storebot/internal/order"
	"github.com/m3rciful/storebot/internal/telegram"
	"github.com/m3rciful/storebot/internal/telegram/format"
)

// The Notifier methods below are best-effort by contract: a failed send is
// logged and dropped, never allowed to roll back a settled order.

// OrderFulfilled delivers the redemption code to the buyer. For
// provider-settled orders the admins also get a success summary.
func (h *Handlers) OrderFulfilled(ctx context.Context, o order.PendingOrder, code string) {
	text := fmt.Sprintf(
		"✅ Payment confirmed!\n\nYour code for *%s*:\n`%s`",
		format.EscapeMarkdown(o.ProductName), code)
	h.tell(ctx, o.BuyerID, text)

	if o.State == order.StateAwaitingProvider {
		summary := fmt.Sprintf("💳 Online payment settled: %s, %s, buyer %d.",
			o.ProductName, formatPrice(o.Price, h.cfg.Telegram.Currency), o.BuyerID)
		for _, adminID := range h.cfg.Telegram.AdminIDs {
			h.tell(ctx, adminID, summary)
		}
	}
}

// OrderRejected tells the buyer the payment was not confirmed.
func (h *Handlers) OrderRejected(ctx context.Context, o order.PendingOrder) {
	h.tell(ctx, o.BuyerID, fmt.Sprintf(
		"❌ Your payment for *%s* was not confirmed. Contact the admin if you believe this is a mistake.",
		format.EscapeMarkdown(o.ProductName)))
}

// OrderUnavailable tells the buyer the product ran out after approval and
// warns every admin that a paid order needs manual follow-up.
func (h *Handlers) OrderUnavailable(ctx context.Context, o order.PendingOrder) {
	h.tell(ctx, o.BuyerID, fmt.Sprintf(
		"⚠️ Your payment for *%s* was confirmed, but the product is out of stock. "+
			"The admin will contact you shortly.",
		format.EscapeMarkdown(o.ProductName)))

	heads := fmt.Sprintf("⚠️ Paid order without stock: %s, buyer %d. Manual follow-up needed.",
		o.ProductName, o.BuyerID)
	for _, adminID := range h.cfg.Telegram.AdminIDs {
		h.tell(ctx, adminID, heads)
	}
}

// FulfillmentStalled alerts every admin that code issuance failed for an
// order that is already approved or paid, so someone settles it by hand.
func (h *Handlers) FulfillmentStalled(ctx context.Context, o order.PendingOrder) {
	alert := fmt.Sprintf("🚨 Code issuance failed: %s, buyer %d. The payment is confirmed; issue the code manually.",
		o.ProductName, o.BuyerID)
	for _, adminID := range h.cfg.Telegram.AdminIDs {
		h.tell(ctx, adminID, alert)
	}
}

// OrderExpired tells the buyer the unfinished order timed out.
func (h *Handlers) OrderExpired(ctx context.Context, o order.PendingOrder) {
	h.tell(ctx, o.BuyerID, fmt.Sprintf(
		"⏱ Your order for *%s* expired without payment. Open the catalog to start over.",
		format.EscapeMarkdown(o.ProductName)))
}

// tell sends a Markdown message to a single recipient through the async
// sender, logging failures instead of propagating them.
func (h *Handlers) tell(ctx context.Context, userID int64, text string) {
	b := h.bot.Load()
	if b == nil {
		logger.SVCNotify.Warn("notification dropped, bot not running",
			slog.String("event", "notify.drop"),
			slog.Int64("user_id", userID),
		)
		return
	}
	err := telegram.SendTo(ctx, b, &tele.User{ID: userID}, text,
		&tele.SendOptions{ParseMode: tele.ModeMarkdown})
	if err != nil {
		logger.SVCNotify.Warn("notification failed",
			slog.String("event", "notify.fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
}
