package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/storebot/internal/logger"
	"github.com/m3rciful/storebot/internal/order"
	"github.com/m3rciful/storebot/internal/telegram"
	"github.com/m3rciful/storebot/internal/telegram/format"
)

// RequestDecision implements order.AdminGateway: every configured admin gets
// the proof photo with approve/reject controls. Per-recipient failures are
// logged and skipped; the broadcast fails only when nobody was reachable.
func (h *Handlers) RequestDecision(ctx context.Context, o order.PendingOrder) error {
	b := h.bot.Load()
	if b == nil {
		return errors.New("bot is not running")
	}

	summary := decisionSummary(o, h.cfg.Telegram.Currency)
	delivered := 0
	for _, adminID := range h.cfg.Telegram.AdminIDs {
		var what interface{} = summary
		opts := &tele.SendOptions{
			ParseMode:   tele.ModeMarkdown,
			ReplyMarkup: decisionControls(o.BuyerID),
		}
		if o.ProofFileID != "" {
			what = &tele.Photo{
				File:    tele.File{FileID: o.ProofFileID},
				Caption: summary,
			}
		}
		if _, err := b.Send(&tele.User{ID: adminID}, what, opts); err != nil {
			logger.SVCNotify.Warn("decision request not delivered",
				slog.String("event", "admin.request"),
				slog.Int64("admin_id", adminID),
				slog.String("err", err.Error()),
			)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return errors.New("no admin could be reached")
	}
	return nil
}

func decisionSummary(o order.PendingOrder, currency string) string {
	var b strings.Builder
	b.WriteString("*Payment confirmation requested*\n\n")
	fmt.Fprintf(&b, "Product: %s\n", format.EscapeMarkdown(o.ProductName))
	fmt.Fprintf(&b, "Amount: %s\n", formatPrice(o.Price, currency))
	fmt.Fprintf(&b, "Buyer: %s", format.EscapeMarkdown(o.BuyerFullName))
	if o.BuyerUsername != "" {
		fmt.Fprintf(&b, " (@%s)", format.EscapeMarkdown(o.BuyerUsername))
	}
	fmt.Fprintf(&b, "\nBuyer ID: `%d`", o.BuyerID)
	return b.String()
}

func (h *Handlers) onApprove(c tele.Context) error {
	return h.decide(c, true)
}

func (h *Handlers) onReject(c tele.Context) error {
	return h.decide(c, false)
}

// decide applies an admin decision. The pending order is claimed atomically
// inside the flow, so of two admins pressing simultaneously exactly one
// decision takes effect; the other is told the order is gone.
func (h *Handlers) decide(c tele.Context, approve bool) error {
	user := c.Sender()
	if user == nil || !h.cfg.IsAdmin(user.ID) {
		return nil
	}
	action, ok := telegram.DecodeAction(c)
	if !ok {
		return nil
	}
	buyerID, err := action.Int64()
	if err != nil {
		return telegram.SendText(c, "This decision button is malformed.")
	}

	ctx := telegram.BuildContext(c)
	outcome, err := h.flow.Resolve(ctx, buyerID, approve)
	if errors.Is(err, order.ErrOrderNotFound) {
		// Already settled by another admin or expired.
		replaceDecisionMessage(c, "⏱ This order was already handled.")
		return nil
	}
	if err != nil {
		return telegram.SendText(c, "Could not apply the decision, please retry.")
	}

	switch {
	case !outcome.Approved:
		replaceDecisionMessage(c, fmt.Sprintf("❌ Order of buyer %d rejected.", buyerID))
	case outcome.Unavailable:
		replaceDecisionMessage(c, fmt.Sprintf("⚠️ Approved, but no codes left for %s.", outcome.Order.ProductName))
	default:
		replaceDecisionMessage(c, fmt.Sprintf("✅ Order of buyer %d approved, code issued.", buyerID))
	}
	return nil
}

// replaceDecisionMessage swaps the decision request for its verdict. The
// request may be a text message or a photo, which Telegram edits differently.
func replaceDecisionMessage(c tele.Context, text string) {
	if err := c.Edit(text); err == nil {
		return
	}
	if err := c.EditCaption(text); err == nil {
		return
	}
	_ = c.Send(text)
}

// onAdmin shows the pending orders overview to an admin.
func (h *Handlers) onAdmin(c tele.Context) error {
	orders := h.flow.Store().All()
	if len(orders) == 0 {
		return telegram.SendText(c, "No pending orders.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Pending orders: %d*\n", len(orders))
	for _, o := range orders {
		fmt.Fprintf(&b, "\n• %s (%s), buyer `%d`, %s",
			format.EscapeMarkdown(o.ProductName),
			formatPrice(o.Price, h.cfg.Telegram.Currency),
			o.BuyerID,
			string(o.State),
		)
	}
	return telegram.SendMD(c, b.String())
}
