package telegram

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func nopHandler(c tele.Context) error { return nil }

func TestDecodeRaw(t *testing.T) {
	cases := []struct {
		name    string
		data    string
		wantKey string
		wantPay string
		wantOK  bool
	}{
		{"key and payload", "\fshop_buy|2", "shop_buy", "2", true},
		{"escaped prefix", "\\fshop_buy|2", "shop_buy", "2", true},
		{"key only", "\fpay_back", "pay_back", "", true},
		{"empty payload", "\fadm_approve|", "adm_approve", "", true},
		{"payload with separator", "\fadm_approve|42|extra", "adm_approve", "42|extra", true},
		{"empty data", "", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, ok := decodeRaw(tc.data)
			if ok != tc.wantOK {
				t.Fatalf("decodeRaw(%q) ok = %v, want %v", tc.data, ok, tc.wantOK)
			}
			if a.Key != tc.wantKey || a.Payload != tc.wantPay {
				t.Fatalf("decodeRaw(%q) = (%q, %q), want (%q, %q)", tc.data, a.Key, a.Payload, tc.wantKey, tc.wantPay)
			}
		})
	}
}

func TestActionTypedAccessors(t *testing.T) {
	a := Action{Key: "shop_buy", Payload: "41"}
	if v, err := a.Int(); err != nil || v != 41 {
		t.Fatalf("Int() = (%d, %v), want (41, nil)", v, err)
	}
	if v, err := a.Int64(); err != nil || v != 41 {
		t.Fatalf("Int64() = (%d, %v), want (41, nil)", v, err)
	}

	bad := Action{Key: "shop_buy", Payload: "not-a-number"}
	if _, err := bad.Int(); err == nil {
		t.Fatal("Int() on garbage payload should fail")
	}
	if _, err := bad.Int64(); err == nil {
		t.Fatal("Int64() on garbage payload should fail")
	}

	pair := Action{Key: "x", Payload: "1:2"}
	parts, err := pair.Parts(":", 2)
	if err != nil {
		t.Fatalf("Parts: %v", err)
	}
	if parts[0] != "1" || parts[1] != "2" {
		t.Fatalf("Parts = %v", parts)
	}
	if _, err := pair.Parts(":", 3); err == nil {
		t.Fatal("Parts with wrong arity should fail")
	}
	if _, err := (Action{}).Parts(":", 1); err == nil {
		t.Fatal("Parts on empty payload should fail")
	}
}

func TestRegistryCommands(t *testing.T) {
	reg := NewRegistry()

	reg.RegisterCommand("/start", Command{Handler: nopHandler, Description: "start"})
	reg.RegisterCommand("/admin", Command{Handler: nopHandler, Description: "admin", AdminOnly: true})
	reg.RegisterCommand("/hide", Command{Handler: nopHandler, Description: "hide", Hidden: true})
	reg.RegisterCommand("no_slash", Command{Handler: nopHandler, Description: "bad"})
	reg.RegisterCommand("/start", Command{Handler: nopHandler, Description: "duplicate"})

	visible := reg.ListCommands(true)
	if len(visible) != 1 || visible[0].Text != "/start" {
		t.Fatalf("visible commands = %v, want only /start", visible)
	}
	if visible[0].Description != "start" {
		t.Fatalf("duplicate registration overwrote description: %q", visible[0].Description)
	}

	all := reg.ListCommands(false)
	if len(all) != 3 {
		t.Fatalf("all commands = %d, want 3", len(all))
	}

	if _, _, ok := reg.LookupCommand("start"); !ok {
		t.Fatal("LookupCommand should accept names without slash")
	}
	if _, _, ok := reg.LookupCommand("/missing"); ok {
		t.Fatal("LookupCommand found unregistered command")
	}
}

func TestRegistryCallbacks(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCallback("shop_buy", nopHandler); err != nil {
		t.Fatalf("RegisterCallback: %v", err)
	}
	if err := reg.RegisterCallback("shop_buy", nopHandler); err == nil {
		t.Fatal("duplicate callback registration should fail")
	}
	if err := reg.RegisterCallback("", nopHandler); err == nil {
		t.Fatal("empty key registration should fail")
	}
	if _, ok := reg.GetCallback("shop_buy"); !ok {
		t.Fatal("GetCallback should find registered key")
	}
	if _, ok := reg.GetCallback("missing"); ok {
		t.Fatal("GetCallback found unregistered key")
	}
	keys := reg.ListCallbacks()
	if len(keys) != 1 || keys[0] != "shop_buy" {
		t.Fatalf("ListCallbacks = %v", keys)
	}
}
