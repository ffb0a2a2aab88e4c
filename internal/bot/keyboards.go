// Package bot implements the storefront surface: commands, catalog browsing,
// the two checkout paths, the admin decision controls, and outcome
// notifications.
package bot

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/storebot/internal/model"
	"github.com/m3rciful/storebot/internal/telegram/format"
)

// Callback uniques. Keys are stable: they are baked into inline keyboards of
// already-sent messages.
const (
	cbShopPrev = "shop_prev"
	cbShopNext = "shop_next"
	cbShopBuy  = "shop_buy"

	cbPayAdmin  = "pay_admin"
	cbPayOnline = "pay_online"
	cbPayBack   = "pay_back"

	cbAdmApprove = "adm_approve"
	cbAdmReject  = "adm_reject"
)

const (
	menuProducts = "🛍 Products"
	menuProfile  = "👤 Profile"
)

// mainMenu is the persistent reply keyboard shown by /start and /menu.
func mainMenu() *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{ResizeKeyboard: true}
	m.Reply(
		m.Row(m.Text(menuProducts), m.Text(menuProfile)),
	)
	return m
}

// productNav builds the prev | buy | next row for the catalog card at index.
func productNav(index int) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	idx := strconv.Itoa(index)
	m.Inline(
		m.Row(
			m.Data("⬅️", cbShopPrev, idx),
			m.Data("💳 Buy", cbShopBuy, idx),
			m.Data("➡️", cbShopNext, idx),
		),
	)
	return m
}

// paymentMethods builds the method selection keyboard. The online button is
// present only when a payment provider is configured.
func paymentMethods(index int, onlineEnabled bool) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	rows := []tele.Row{
		m.Row(m.Data("🤝 Pay to admin", cbPayAdmin, "")),
	}
	if onlineEnabled {
		rows = append(rows, m.Row(m.Data("💳 Pay online", cbPayOnline, "")))
	}
	rows = append(rows, m.Row(m.Data("↩️ Back", cbPayBack, strconv.Itoa(index))))
	m.Inline(rows...)
	return m
}

// decisionControls builds the approve/reject row attached to an admin
// decision request. The payload carries the buyer id being decided.
func decisionControls(buyerID int64) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	id := strconv.FormatInt(buyerID, 10)
	m.Inline(
		m.Row(
			m.Data("✅ Approve", cbAdmApprove, id),
			m.Data("❌ Reject", cbAdmReject, id),
		),
	)
	return m
}

// productCaption renders the catalog card text.
func productCaption(p model.Product, index, total int, currency string) string {
	text := fmt.Sprintf("*%s*\n\n%s\n\nPrice: %s\n№ %d of %d",
		format.EscapeMarkdown(p.Name), format.EscapeMarkdown(p.Description),
		formatPrice(p.Price, currency), index+1, total)
	return text
}

func formatPrice(price float64, currency string) string {
	return fmt.Sprintf("%.2f %s", price, currency)
}
