package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/storebot/internal/model"
	"github.com/m3rciful/storebot/internal/store"
)

type stubCatalog struct {
	products []model.Product
	err      error
}

func (s *stubCatalog) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.products, s.err
}

// stubCodes hands out at most remaining codes, mimicking the issue-once
// contract of the catalog store.
type stubCodes struct {
	mu        sync.Mutex
	remaining int
	code      string
	err       error
	claims    int
	// before runs at the top of ClaimCode, outside the stub lock, to let a
	// test interleave store activity with an in-flight claim.
	before func()
}

func (s *stubCodes) ClaimCode(ctx context.Context, productID int64) (string, error) {
	if s.before != nil {
		s.before()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if s.remaining <= 0 {
		return "", store.ErrNoCodeAvailable
	}
	s.remaining--
	s.claims++
	return s.code, nil
}

type stubAdmins struct {
	mu       sync.Mutex
	requests []PendingOrder
	err      error
}

func (s *stubAdmins) RequestDecision(ctx context.Context, o PendingOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, o)
	return s.err
}

type stubInvoices struct {
	mu       sync.Mutex
	invoices []PendingOrder
	err      error
}

func (s *stubInvoices) SendInvoice(ctx context.Context, o PendingOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices = append(s.invoices, o)
	return s.err
}

type stubNotifier struct {
	mu          sync.Mutex
	fulfilled   []string
	rejected    int
	unavailable int
	expired     int
	stalled     int
}

func (s *stubNotifier) OrderFulfilled(ctx context.Context, o PendingOrder, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fulfilled = append(s.fulfilled, code)
}

func (s *stubNotifier) OrderRejected(ctx context.Context, o PendingOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected++
}

func (s *stubNotifier) OrderUnavailable(ctx context.Context, o PendingOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable++
}

func (s *stubNotifier) FulfillmentStalled(ctx context.Context, o PendingOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalled++
}

func (s *stubNotifier) OrderExpired(ctx context.Context, o PendingOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired++
}

type flowFixture struct {
	flow     *Flow
	store    *PendingStore
	catalog  *stubCatalog
	codes    *stubCodes
	admins   *stubAdmins
	invoices *stubInvoices
	notify   *stubNotifier
}

func newFlowFixture() *flowFixture {
	f := &flowFixture{
		store: NewPendingStore(),
		catalog: &stubCatalog{products: []model.Product{
			{ID: 1, Name: "Starter", Price: 10.00},
			{ID: 2, Name: "Plus", Price: 49.90},
			{ID: 3, Name: "Pro", Price: 199.99},
			{ID: 4, Name: "Team", Price: 299.00},
			{ID: 5, Name: "Enterprise", Price: 999.00},
		}},
		codes:    &stubCodes{remaining: 1, code: "SECRET-1"},
		admins:   &stubAdmins{},
		invoices: &stubInvoices{},
		notify:   &stubNotifier{},
	}
	f.flow = NewFlow(f.store, f.catalog, f.codes, f.admins, f.invoices, f.notify)
	return f
}

var buyer = Buyer{ID: 100, Username: "buyer", FullName: "Buyer Name"}

func (f *flowFixture) beginAt(t *testing.T, index int) PendingOrder {
	t.Helper()
	o, err := f.flow.Begin(context.Background(), buyer, index)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return o
}

func TestBeginSnapshotsCatalogItem(t *testing.T) {
	f := newFlowFixture()
	o := f.beginAt(t, 2)

	if o.ProductID != 3 || o.ProductName != "Pro" || o.Price != 199.99 {
		t.Fatalf("snapshot mismatch: %+v", o)
	}
	if o.BuyerID != buyer.ID || o.BuyerUsername != "buyer" || o.BuyerFullName != "Buyer Name" {
		t.Fatalf("buyer fields mismatch: %+v", o)
	}
	if o.State != StateSelectingMethod {
		t.Fatalf("state = %s, want %s", o.State, StateSelectingMethod)
	}
	if _, ok := f.store.Get(buyer.ID); !ok {
		t.Fatal("pending order not stored")
	}
}

func TestBeginWrapsStaleIndex(t *testing.T) {
	f := newFlowFixture()
	o := f.beginAt(t, 7) // 7 mod 5 = 2
	if o.ProductID != 3 {
		t.Fatalf("ProductID = %d, want wrapped index product 3", o.ProductID)
	}
}

func TestBeginReplacesPriorOrder(t *testing.T) {
	f := newFlowFixture()
	f.beginAt(t, 0)
	o := f.beginAt(t, 1)

	if o.ProductID != 2 {
		t.Fatalf("ProductID = %d, want 2", o.ProductID)
	}
	if f.store.Len() != 1 {
		t.Fatalf("store holds %d orders, want 1", f.store.Len())
	}
	stored, _ := f.store.Get(buyer.ID)
	if stored.ProductID != 2 {
		t.Fatalf("stored ProductID = %d, prior order must be replaced, not merged", stored.ProductID)
	}
}

func TestBeginEmptyCatalog(t *testing.T) {
	f := newFlowFixture()
	f.catalog.products = nil
	if _, err := f.flow.Begin(context.Background(), buyer, 0); !errors.Is(err, ErrEmptyCatalog) {
		t.Fatalf("expected ErrEmptyCatalog, got %v", err)
	}
}

func TestAdminPathApprove(t *testing.T) {
	f := newFlowFixture()
	f.beginAt(t, 0)
	ctx := context.Background()

	if _, err := f.flow.ChooseMethod(ctx, buyer.ID, MethodAdmin); err != nil {
		t.Fatalf("choose method: %v", err)
	}
	o, err := f.flow.SubmitProof(ctx, buyer.ID, "photo-file-id")
	if err != nil {
		t.Fatalf("submit proof: %v", err)
	}
	if o.State != StateAwaitingDecision || o.ProofFileID != "photo-file-id" {
		t.Fatalf("after proof: %+v", o)
	}
	if len(f.admins.requests) != 1 {
		t.Fatalf("admin broadcasts = %d, want 1", len(f.admins.requests))
	}

	outcome, err := f.flow.Resolve(ctx, buyer.ID, true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !outcome.Approved || outcome.Code != "SECRET-1" {
		t.Fatalf("outcome = %+v", outcome)
	}
	if len(f.notify.fulfilled) != 1 {
		t.Fatalf("fulfilled notifications = %d, want 1", len(f.notify.fulfilled))
	}
	if _, ok := f.store.Get(buyer.ID); ok {
		t.Fatal("order must be removed on terminal outcome")
	}
}

func TestAdminPathReject(t *testing.T) {
	f := newFlowFixture()
	f.beginAt(t, 0)
	ctx := context.Background()
	f.flow.ChooseMethod(ctx, buyer.ID, MethodAdmin)
	f.flow.SubmitProof(ctx, buyer.ID, "proof")

	outcome, err := f.flow.Resolve(ctx, buyer.ID, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if outcome.Approved || outcome.Code != "" {
		t.Fatalf("outcome = %+v, want rejection without code", outcome)
	}
	if f.notify.rejected != 1 {
		t.Fatalf("rejected notifications = %d, want 1", f.notify.rejected)
	}
	if f.codes.claims != 0 {
		t.Fatal("rejection must not claim a code")
	}
	if _, ok := f.store.Get(buyer.ID); ok {
		t.Fatal("order must be removed on rejection")
	}
}

func TestResolveRequiresDecisionState(t *testing.T) {
	f := newFlowFixture()
	f.beginAt(t, 0)
	// Still selecting method: approve must not claim the order.
	if _, err := f.flow.Resolve(context.Background(), buyer.ID, true); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, ok := f.store.Get(buyer.ID); !ok {
		t.Fatal("order must survive a resolve in the wrong state")
	}
}

func TestConcurrentApprovalsExactlyOneWins(t *testing.T) {
	f := newFlowFixture()
	f.beginAt(t, 0)
	ctx := context.Background()
	f.flow.ChooseMethod(ctx, buyer.ID, MethodAdmin)
	f.flow.SubmitProof(ctx, buyer.ID, "proof")

	const racers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	won, notFound := 0, 0
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.flow.Resolve(ctx, buyer.ID, true)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, ErrOrderNotFound):
				notFound++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if won != 1 || notFound != racers-1 {
		t.Fatalf("won = %d, notFound = %d; want exactly one winner", won, notFound)
	}
	if f.codes.claims != 1 {
		t.Fatalf("code claims = %d, want exactly 1", f.codes.claims)
	}
	if len(f.notify.fulfilled) != 1 {
		t.Fatalf("fulfilled notifications = %d, want 1", len(f.notify.fulfilled))
	}
}

func TestApproveWithoutStock(t *testing.T) {
	f := newFlowFixture()
	f.codes.remaining = 0
	f.beginAt(t, 0)
	ctx := context.Background()
	f.flow.ChooseMethod(ctx, buyer.ID, MethodAdmin)
	f.flow.SubmitProof(ctx, buyer.ID, "proof")

	outcome, err := f.flow.Resolve(ctx, buyer.ID, true)
	if err != nil {
		t.Fatalf("resolve must not fail on exhausted stock: %v", err)
	}
	if !outcome.Unavailable {
		t.Fatalf("outcome = %+v, want Unavailable", outcome)
	}
	if f.notify.unavailable != 1 {
		t.Fatalf("unavailable notifications = %d, want 1", f.notify.unavailable)
	}
	if _, ok := f.store.Get(buyer.ID); ok {
		t.Fatal("order must still resolve (be removed) when no code is left")
	}
}

func TestFulfillStorageErrorRestoresOrder(t *testing.T) {
	f := newFlowFixture()
	f.beginAt(t, 0)
	ctx := context.Background()
	f.flow.ChooseMethod(ctx, buyer.ID, MethodAdmin)
	f.flow.SubmitProof(ctx, buyer.ID, "proof")
	f.codes.err = errors.New("db down")

	if _, err := f.flow.Resolve(ctx, buyer.ID, true); err == nil {
		t.Fatal("expected storage error")
	}
	if _, ok := f.store.Get(buyer.ID); !ok {
		t.Fatal("order must be restored so the decision can be retried")
	}
	if f.notify.stalled != 1 {
		t.Fatalf("stalled notifications = %d, want 1", f.notify.stalled)
	}
}

func TestFulfillStorageErrorKeepsNewerOrder(t *testing.T) {
	f := newFlowFixture()
	f.beginAt(t, 0)
	ctx := context.Background()
	f.flow.ChooseMethod(ctx, buyer.ID, MethodAdmin)
	f.flow.SubmitProof(ctx, buyer.ID, "proof")
	f.codes.err = errors.New("db down")
	// The claimed order is out of the store while codes are consulted.
	// Simulate the buyer starting a fresh purchase in that window; the
	// failed claim must not restore the old order over it.
	f.codes.before = func() { f.beginAt(t, 1) }

	if _, err := f.flow.Resolve(ctx, buyer.ID, true); err == nil {
		t.Fatal("expected storage error")
	}
	o, ok := f.store.Get(buyer.ID)
	if !ok {
		t.Fatal("buyer should still have a pending order")
	}
	if o.ProductID != 2 || o.State != StateSelectingMethod {
		t.Fatalf("newer order was clobbered by the restore: %+v", o)
	}
}

func TestOnlinePathHappy(t *testing.T) {
	f := newFlowFixture()
	o := f.beginAt(t, 2)
	ctx := context.Background()

	if _, err := f.flow.ChooseMethod(ctx, buyer.ID, MethodOnline); err != nil {
		t.Fatalf("choose online: %v", err)
	}
	if len(f.invoices.invoices) != 1 {
		t.Fatalf("invoices issued = %d, want 1", len(f.invoices.invoices))
	}
	if got := f.invoices.invoices[0].PriceMinor(); got != 19999 {
		t.Fatalf("invoice minor units = %d, want 19999", got)
	}

	payload := EncodePayload(o)
	if err := f.flow.ValidatePreCheckout(ctx, payload, 19999); err != nil {
		t.Fatalf("pre-checkout must approve a matching request: %v", err)
	}

	outcome, err := f.flow.CompletePayment(ctx, payload, 19999)
	if err != nil {
		t.Fatalf("complete payment: %v", err)
	}
	if outcome.Code != "SECRET-1" {
		t.Fatalf("outcome = %+v", outcome)
	}
	if _, ok := f.store.Get(buyer.ID); ok {
		t.Fatal("order must be removed after payment success")
	}
}

func TestChooseOnlineWithoutProvider(t *testing.T) {
	f := newFlowFixture()
	f.flow = NewFlow(f.store, f.catalog, f.codes, f.admins, nil, f.notify)
	f.beginAt(t, 0)

	if _, err := f.flow.ChooseMethod(context.Background(), buyer.ID, MethodOnline); !errors.Is(err, ErrOnlineDisabled) {
		t.Fatalf("expected ErrOnlineDisabled, got %v", err)
	}
}

func TestPreCheckoutDeclines(t *testing.T) {
	f := newFlowFixture()
	o := f.beginAt(t, 0)
	ctx := context.Background()
	f.flow.ChooseMethod(ctx, buyer.ID, MethodOnline)
	payload := EncodePayload(o)

	cases := []struct {
		name    string
		payload string
		amount  int
	}{
		{"malformed payload", "garbage", o.PriceMinor()},
		{"unknown order", "order:999:1", o.PriceMinor()},
		{"amount mismatch", payload, o.PriceMinor() + 1},
		{"wrong product", "order:100:999", o.PriceMinor()},
	}
	for _, tc := range cases {
		err := f.flow.ValidatePreCheckout(ctx, tc.payload, tc.amount)
		var decline *DeclineError
		if !errors.As(err, &decline) {
			t.Fatalf("%s: expected DeclineError, got %v", tc.name, err)
		}
		if decline.Reason == "" {
			t.Fatalf("%s: decline must carry a reason", tc.name)
		}
	}

	// Validation must not mutate the order.
	stored, ok := f.store.Get(buyer.ID)
	if !ok || stored.State != StateAwaitingProvider {
		t.Fatalf("order mutated by validation: %+v (ok=%v)", stored, ok)
	}
}

func TestPreCheckoutDeclinesCompletedOrder(t *testing.T) {
	f := newFlowFixture()
	o := f.beginAt(t, 0)
	ctx := context.Background()
	f.flow.ChooseMethod(ctx, buyer.ID, MethodOnline)
	payload := EncodePayload(o)

	if _, err := f.flow.CompletePayment(ctx, payload, o.PriceMinor()); err != nil {
		t.Fatalf("complete payment: %v", err)
	}
	var decline *DeclineError
	if err := f.flow.ValidatePreCheckout(ctx, payload, o.PriceMinor()); !errors.As(err, &decline) {
		t.Fatalf("expected decline for completed order, got %v", err)
	}
}

func TestCompletePaymentUnknownPayload(t *testing.T) {
	f := newFlowFixture()
	if _, err := f.flow.CompletePayment(context.Background(), "order:1:1", 100); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if f.codes.claims != 0 || len(f.notify.fulfilled) != 0 {
		t.Fatal("unknown payload must produce no side effects")
	}
}

func TestExpireStale(t *testing.T) {
	f := newFlowFixture()
	f.beginAt(t, 0)
	// Age the order beyond any TTL.
	f.store.Update(buyer.ID, func(o *PendingOrder) error {
		o.CreatedAt = o.CreatedAt.Add(-48 * time.Hour)
		return nil
	})

	if n := f.flow.ExpireStale(context.Background(), time.Hour); n != 1 {
		t.Fatalf("expired %d orders, want 1", n)
	}
	if f.notify.expired != 1 {
		t.Fatalf("expired notifications = %d, want 1", f.notify.expired)
	}
	if _, ok := f.store.Get(buyer.ID); ok {
		t.Fatal("expired order still present")
	}
}

func TestExpireStaleSparesInvoicedOrder(t *testing.T) {
	f := newFlowFixture()
	o := f.beginAt(t, 2)
	ctx := context.Background()
	if _, err := f.flow.ChooseMethod(ctx, buyer.ID, MethodOnline); err != nil {
		t.Fatalf("choose online: %v", err)
	}
	// The provider may confirm long after the invoice went out. Age the
	// order past any TTL and make sure the sweep leaves it alone.
	f.store.Update(buyer.ID, func(o *PendingOrder) error {
		o.CreatedAt = o.CreatedAt.Add(-48 * time.Hour)
		return nil
	})

	if n := f.flow.ExpireStale(ctx, time.Hour); n != 0 {
		t.Fatalf("expired %d orders, want 0", n)
	}
	if f.notify.expired != 0 {
		t.Fatalf("expired notifications = %d, want 0", f.notify.expired)
	}

	outcome, err := f.flow.CompletePayment(ctx, EncodePayload(o), o.PriceMinor())
	if err != nil {
		t.Fatalf("late payment must still fulfill: %v", err)
	}
	if outcome.Code != "SECRET-1" {
		t.Fatalf("outcome = %+v", outcome)
	}
}
