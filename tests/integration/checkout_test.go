//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"sync"
	"testing"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestCheckout_EmptyBasket(t *testing.T) {
	resetBasket(t)

	resp := doPostWithAuth(t, "/api/basket/checkout", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestCheckout_CreatesPaymentSnapshot(t *testing.T) {
	resetBasket(t)

	resp := doPostWithAuth(t, "/api/basket/items", itemRequest{
		ProductID: "eggs-10", Quantity: 2, DeliveryDate: "2026-09-10",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add: expected 200, got %d", resp.StatusCode)
	}

	resp = doPostWithAuth(t, "/api/basket/checkout", nil)
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		t.Fatalf("checkout: expected 201, got %d", resp.StatusCode)
	}
	out := decodeJSON[checkoutResponse](t, resp)
	resp.Body.Close()

	if !uuidPattern.MatchString(out.PaymentID) {
		t.Errorf("payment ID %q is not a UUID", out.PaymentID)
	}
	// 2 x 34.00 DKK
	if out.Total != 68 {
		t.Errorf("total: got %v, want 68", out.Total)
	}
	if out.Status != "unpaid" {
		t.Errorf("status: got %q, want unpaid", out.Status)
	}

	// The payment carries a copy of the basket lines.
	resp = doGetWithAuth(t, "/api/payments/"+out.PaymentID)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get payment: expected 200, got %d", resp.StatusCode)
	}

	p := decodeJSON[paymentResponse](t, resp)
	if len(p.Items) != 1 {
		t.Fatalf("payment items: got %d, want 1", len(p.Items))
	}
	if p.Items[0].Name != "Eggs, free range, 10 pcs" {
		t.Errorf("item name: got %q", p.Items[0].Name)
	}
	if p.Items[0].Quantity != 2 {
		t.Errorf("item quantity: got %d, want 2", p.Items[0].Quantity)
	}
	if p.Items[0].DeliveryDate != "2026-09-10" {
		t.Errorf("item delivery date: got %q", p.Items[0].DeliveryDate)
	}
}

func TestCheckout_FreshBasketAfterCheckout(t *testing.T) {
	resetBasket(t)

	resp := doPostWithAuth(t, "/api/basket/items", itemRequest{
		ProductID: "carrots-1kg", Quantity: 1, DeliveryDate: "2026-09-10",
	})
	resp.Body.Close()

	resp = doPostWithAuth(t, "/api/basket/checkout", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout: expected 201, got %d", resp.StatusCode)
	}

	// The next basket fetch yields a new, empty, open basket.
	resp = doGetWithAuth(t, "/api/basket")
	defer resp.Body.Close()

	b := decodeJSON[basketResponse](t, resp)
	if b.Status != "open" {
		t.Errorf("status: got %q, want open", b.Status)
	}
	if len(b.Items) != 0 {
		t.Errorf("items: got %d, want 0", len(b.Items))
	}
}

// TestCheckout_Concurrent fires parallel checkouts of the same basket and
// verifies exactly one payment is created.
func TestCheckout_Concurrent(t *testing.T) {
	resetBasket(t)

	resp := doPostWithAuth(t, "/api/basket/items", itemRequest{
		ProductID: "carrots-1kg", Quantity: 1, DeliveryDate: "2026-09-10",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add: expected 200, got %d", resp.StatusCode)
	}

	paymentsBefore := countPayments(t)

	const workers = 8
	statuses := make([]int, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodPost, baseURL+"/api/basket/checkout", nil)
			if err != nil {
				errs[i] = err
				return
			}
			req.Header.Set("api_key", testAPIKey)
			resp, err := httpClient.Do(req)
			if err != nil {
				errs[i] = err
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}

	created := 0
	for _, code := range statuses {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			// Lost the race: closed or already-drained basket.
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	if created != 1 {
		t.Errorf("successful checkouts: got %d, want 1 (statuses: %v)", created, statuses)
	}

	if got := countPayments(t); got != paymentsBefore+1 {
		t.Errorf("payments: got %d, want %d", got, paymentsBefore+1)
	}
}
