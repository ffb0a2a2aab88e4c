package telegram

import (
	"log/slog"
	"reflect"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/storebot/internal/logger"
)

// CommandRoutes prepares command handlers wrapped with the shared middleware.
// Admin-only commands are additionally gated by the allow-list check.
func CommandRoutes(reg *Registry, isAdmin func(int64) bool, onReject tele.HandlerFunc) []Route {
	if reg == nil {
		return nil
	}

	routes := make([]Route, 0, len(reg.Commands()))
	for name, def := range reg.Commands() {
		handlerName := normalizeHandlerName(name)
		inner := def.Handler
		h := func(c tele.Context) error {
			start := time.Now()
			return handleWithSummary(c, handlerName, start, inner)
		}
		var wrapped tele.HandlerFunc = h
		if def.AdminOnly {
			wrapped = AdminOnly(isAdmin, onReject)(wrapped)
		}
		wrapped = Logger(wrapped)
		wrapped = Recover(wrapped)
		routes = append(routes, Route{Endpoint: name, Handler: wrapped})
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(reg.Commands())),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)

	return routes
}

// CallbackRoute returns a handler that routes button presses through the
// registry by their decoded unique key.
func CallbackRoute(reg *Registry) Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if c.Callback() == nil {
			return nil
		}

		action, ok := DecodeAction(c)
		if !ok {
			_ = c.Respond()
			return nil
		}
		name := "callback." + normalizeHandlerName(action.Key)
		extras := []slog.Attr{slog.String("cb_key", action.Key)}

		_ = c.Respond()

		h, found := reg.GetCallback(action.Key)
		if !found || h == nil {
			fallback := reg.CallbackNotFound()
			extras = append(extras, slog.String("reason", "not_found"))
			return handleWithSummary(c, name, start, func(c tele.Context) error {
				if fallback != nil {
					return fallback(c)
				}
				return nil
			}, extras...)
		}

		return handleWithSummary(c, name, start, h, extras...)
	}
	return Route{
		Endpoint: tele.OnCallback,
		Handler:  Recover(Logger(handler)),
	}
}

// TextRoute routes free text through command aliases and the text fallback.
func TextRoute(reg *Registry) Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				return handleWithSummary(c, normalizeHandlerName(key), start, cmd.Handler)
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, fb)
			}
		}

		logHandlerSummary(c, "unknown_text", start, nil)
		return nil
	}
	return Route{
		Endpoint: tele.OnText,
		Handler:  Recover(Logger(handler)),
	}
}

func handleWithSummary(c tele.Context, handlerName string, start time.Time, fn tele.HandlerFunc, extras ...slog.Attr) error {
	WithHandler(c, handlerName)
	err := fn(c)
	logHandlerSummary(c, handlerName, start, err, extras...)
	return err
}

func logHandlerSummary(c tele.Context, handlerName string, start time.Time, err error, extras ...slog.Attr) {
	ctx := WithHandler(c, handlerName)

	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("handler", handlerName),
		slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
		)
	}
	if len(extras) > 0 {
		attrs = append(attrs, extras...)
	}
	logger.LogEvent(ctx, logger.Component("tg"), slog.LevelInfo, "handler.handled", attrs...)
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.TrimPrefix(name, "/")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	type coder interface{ Code() string }
	if c, ok := err.(coder); ok {
		code := strings.TrimSpace(c.Code())
		if code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil {
		return strings.ToUpper(strings.ReplaceAll(t.Name(), " ", "_"))
	}
	return "UNKNOWN_ERROR"
}
