package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Action is a decoded inline-button press: the button's unique key plus its
// raw payload. Handlers parse the payload through the typed accessors instead
// of splitting strings ad hoc.
type Action struct {
	Key     string
	Payload string
}

// ErrBadPayload indicates a callback payload that does not match the shape
// the handler expects. Such presses are answered and dropped, never acted on.
var ErrBadPayload = fmt.Errorf("malformed callback payload")

// DecodeAction parses Telebot's \f<unique>|<payload> callback encoding.
func DecodeAction(c tele.Context) (Action, bool) {
	cb := c.Callback()
	if cb == nil {
		return Action{}, false
	}
	a, ok := decodeRaw(cb.Data)
	if !ok && cb.Unique != "" {
		return Action{Key: cb.Unique}, true
	}
	return a, ok
}

func decodeRaw(data string) (Action, bool) {
	raw := strings.TrimPrefix(data, "\f")
	raw = strings.TrimPrefix(raw, "\\f")
	parts := strings.SplitN(raw, "|", 2)
	a := Action{Key: strings.TrimSpace(parts[0])}
	if len(parts) == 2 {
		a.Payload = parts[1]
	}
	if a.Key == "" {
		return Action{}, false
	}
	return a, true
}

// Int parses the payload as int.
func (a Action) Int() (int, error) {
	v, err := strconv.Atoi(a.Payload)
	if err != nil {
		return 0, ErrBadPayload
	}
	return v, nil
}

// Int64 parses the payload as int64.
func (a Action) Int64() (int64, error) {
	v, err := strconv.ParseInt(a.Payload, 10, 64)
	if err != nil {
		return 0, ErrBadPayload
	}
	return v, nil
}

// Parts splits the payload by sep and checks the expected arity.
func (a Action) Parts(sep string, want int) ([]string, error) {
	if a.Payload == "" {
		return nil, ErrBadPayload
	}
	parts := strings.Split(a.Payload, sep)
	if len(parts) != want {
		return nil, ErrBadPayload
	}
	return parts, nil
}
