package telegram

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/storebot/internal/logger"
)

var globalDispatcher atomic.Pointer[Dispatcher]

// SetDispatcher wires the asynchronous sender used by the send helpers.
func SetDispatcher(d *Dispatcher) {
	globalDispatcher.Store(d)
}

func currentDispatcher() *Dispatcher {
	return globalDispatcher.Load()
}

func sendAsync(ctx context.Context, action, endpoint string, run func() error) error {
	disp := currentDispatcher()
	if disp == nil {
		return run()
	}

	if err := disp.Enqueue(ctx, action, endpoint, run); err != nil {
		if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.String("action", action),
				slog.String("endpoint", endpoint),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}

// SendText sends raw text to the current recipient through the async sender.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var sendOpts *tele.SendOptions
	if len(opts) > 0 {
		sendOpts = opts[0]
	}
	return sendAsync(BuildContext(c), "send.text", "sendMessage", func() error {
		if sendOpts != nil {
			return c.Send(text, sendOpts)
		}
		return c.Send(text)
	})
}

// SendMD sends a Markdown message with optional reply markup.
func SendMD(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	var rm *tele.ReplyMarkup
	if len(markup) > 0 {
		rm = markup[0]
	}
	return SendText(c, text, &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: rm})
}

// SendTo sends a message to an arbitrary recipient through the async sender.
func SendTo(ctx context.Context, bot *tele.Bot, to tele.Recipient, what interface{}, opts ...interface{}) error {
	return sendAsync(ctx, "send.to", "sendMessage", func() error {
		_, err := bot.Send(to, what, opts...)
		return err
	})
}
