package bot

import (
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/storebot/internal/config"
	"github.com/m3rciful/storebot/internal/logger"
	"github.com/m3rciful/storebot/internal/order"
	"github.com/m3rciful/storebot/internal/store"
	"github.com/m3rciful/storebot/internal/telegram"
	"github.com/m3rciful/storebot/internal/telegram/format"
)

// Handlers owns the storefront surface. It doubles as the flow's admin
// gateway, invoice gateway, and notifier so all outbound traffic goes through
// one place.
type Handlers struct {
	cfg     *config.Config
	catalog *store.Catalog
	users   *store.Users
	flow    *order.Flow

	// bot is bound on startup, after the Telegram runtime has built it.
	bot atomic.Pointer[tele.Bot]
}

// NewHandlers builds the surface without a flow; call SetFlow once the flow
// exists. The two-step wiring breaks the cycle between the flow (which needs
// the gateways) and the handlers (which need the flow).
func NewHandlers(cfg *config.Config, catalog *store.Catalog, users *store.Users) *Handlers {
	return &Handlers{cfg: cfg, catalog: catalog, users: users}
}

// SetFlow installs the order flow driving the checkout handlers.
func (h *Handlers) SetFlow(f *order.Flow) {
	h.flow = f
}

// AttachBot binds the running bot instance used for admin broadcasts and
// buyer notifications outside a handler context.
func (h *Handlers) AttachBot(b *tele.Bot) {
	h.bot.Store(b)
}

// Register wires commands and callbacks into the registry.
func (h *Handlers) Register(reg *telegram.Registry) {
	reg.RegisterCommand("/start", telegram.Command{
		Handler:     h.onStart,
		Description: "Open the shop",
	})
	reg.RegisterCommand("/menu", telegram.Command{
		Handler:     h.onMenu,
		Description: "Show the main menu",
	})
	reg.RegisterCommand("/hide", telegram.Command{
		Handler:     h.onHide,
		Description: "Hide the keyboard",
		Hidden:      true,
	})
	reg.RegisterCommand("/admin", telegram.Command{
		Handler:     h.onAdmin,
		Description: "Pending orders overview",
		AdminOnly:   true,
	})

	_ = reg.RegisterCallback(cbShopPrev, h.onShopPrev)
	_ = reg.RegisterCallback(cbShopNext, h.onShopNext)
	_ = reg.RegisterCallback(cbShopBuy, h.onBuy)
	_ = reg.RegisterCallback(cbPayAdmin, h.onPayAdmin)
	_ = reg.RegisterCallback(cbPayOnline, h.onPayOnline)
	_ = reg.RegisterCallback(cbPayBack, h.onPayBack)
	_ = reg.RegisterCallback(cbAdmApprove, h.onApprove)
	_ = reg.RegisterCallback(cbAdmReject, h.onReject)

	reg.SetTextFallback(h.onText)
}

// Routes returns handlers for non-command endpoints: photos (payment proof),
// pre-checkout queries, and successful payments.
func (h *Handlers) Routes() []telegram.Route {
	return []telegram.Route{
		{Endpoint: tele.OnPhoto, Handler: telegram.Recover(telegram.Logger(h.onPhoto))},
		{Endpoint: tele.OnCheckout, Handler: telegram.Recover(telegram.Logger(h.onCheckout))},
		{Endpoint: tele.OnPayment, Handler: telegram.Recover(telegram.Logger(h.onPayment))},
	}
}

func (h *Handlers) onStart(c tele.Context) error {
	ctx := telegram.BuildContext(c)
	if user := c.Sender(); user != nil && h.users != nil {
		fullName := strings.TrimSpace(user.FirstName + " " + user.LastName)
		if err := h.users.Upsert(ctx, user.ID, user.Username, fullName); err != nil {
			logger.APP.Warn("user upsert failed",
				slog.String("event", "start.upsert"),
				slog.Int64("user_id", user.ID),
				slog.String("err", err.Error()),
			)
		}
	}
	return telegram.SendText(c, "Welcome to the shop! Pick a section below.", &tele.SendOptions{
		ReplyMarkup: mainMenu(),
	})
}

func (h *Handlers) onMenu(c tele.Context) error {
	return telegram.SendText(c, "Main menu.", &tele.SendOptions{ReplyMarkup: mainMenu()})
}

func (h *Handlers) onHide(c tele.Context) error {
	return telegram.SendText(c, "Keyboard hidden. Send /menu to bring it back.", &tele.SendOptions{
		ReplyMarkup: &tele.ReplyMarkup{RemoveKeyboard: true},
	})
}

// onText routes the reply-keyboard buttons.
func (h *Handlers) onText(c tele.Context) error {
	switch strings.TrimSpace(c.Text()) {
	case menuProducts:
		return h.showProduct(c, 0)
	case menuProfile:
		return h.onProfile(c)
	}
	// Anything else while an order awaits a photo is a gentle reminder.
	if user := c.Sender(); user != nil && h.flow != nil {
		if o, ok := h.flow.Store().Get(user.ID); ok && o.State == order.StateAwaitingProof {
			return telegram.SendText(c, "Please send a photo of your payment receipt.")
		}
	}
	return nil
}

func (h *Handlers) onProfile(c tele.Context) error {
	user := c.Sender()
	if user == nil {
		return nil
	}
	var b strings.Builder
	b.WriteString("*Profile*\n")
	b.WriteString("ID: `")
	b.WriteString(strconv.FormatInt(user.ID, 10))
	b.WriteString("`\n")
	if user.Username != "" {
		b.WriteString("Username: @")
		b.WriteString(format.EscapeMarkdown(user.Username))
		b.WriteString("\n")
	}
	if h.flow != nil {
		if o, ok := h.flow.Store().Get(user.ID); ok {
			b.WriteString("\nActive order: ")
			b.WriteString(format.EscapeMarkdown(o.ProductName))
			b.WriteString(" (")
			b.WriteString(formatPrice(o.Price, h.cfg.Telegram.Currency))
			b.WriteString(")")
		}
	}
	return telegram.SendMD(c, b.String())
}
