package bot

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/storebot/internal/telegram"
)

// showProduct renders the catalog card at index. The index wraps modulo the
// current catalog length so navigation is circular and stale buttons from an
// older, longer catalog still land on a product.
func (h *Handlers) showProduct(c tele.Context, index int) error {
	ctx := telegram.BuildContext(c)
	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		return telegram.SendText(c, "The shop is temporarily unavailable, please try again later.")
	}
	if len(products) == 0 {
		return telegram.SendText(c, "No products available right now.")
	}

	index = ((index % len(products)) + len(products)) % len(products)
	p := products[index]
	caption := productCaption(p, index, len(products), h.cfg.Telegram.Currency)
	markup := productNav(index)

	// Cards may switch between photo and text, which Telegram cannot edit
	// across. Drop the old card and send a fresh one.
	if c.Callback() != nil {
		_ = c.Delete()
	}

	if p.PhotoURL != nil && *p.PhotoURL != "" {
		photo := &tele.Photo{File: tele.FromURL(*p.PhotoURL), Caption: caption}
		return c.Send(photo, &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: markup})
	}
	return c.Send(caption, &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: markup})
}

func (h *Handlers) onShopPrev(c tele.Context) error {
	return h.navigate(c, -1)
}

func (h *Handlers) onShopNext(c tele.Context) error {
	return h.navigate(c, +1)
}

func (h *Handlers) navigate(c tele.Context, delta int) error {
	action, ok := telegram.DecodeAction(c)
	if !ok {
		return nil
	}
	index, err := action.Int()
	if err != nil {
		// Stale or tampered button. Restart from the first card.
		return h.showProduct(c, 0)
	}
	return h.showProduct(c, index+delta)
}
