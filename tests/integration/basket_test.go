//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestBasket_NoAuth(t *testing.T) {
	resp := doGet(t, "/api/basket")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestBasket_InvalidKey(t *testing.T) {
	resp := doRequest(t, http.MethodGet, "/api/basket", nil, "wrong-key")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestGetBasket_LazilyCreated(t *testing.T) {
	resetBasket(t)

	resp := doGetWithAuth(t, "/api/basket")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	b := decodeJSON[basketResponse](t, resp)
	if b.Status != "open" {
		t.Errorf("status: got %q, want open", b.Status)
	}
	if len(b.Items) != 0 {
		t.Errorf("items: got %d, want 0", len(b.Items))
	}
	if b.Total != 0 {
		t.Errorf("total: got %v, want 0", b.Total)
	}
	if b.Currency != "DKK" {
		t.Errorf("currency: got %q, want DKK", b.Currency)
	}
}

func TestAddItem_RepeatedAddsAccumulate(t *testing.T) {
	resetBasket(t)

	resp := doPostWithAuth(t, "/api/basket/items", itemRequest{
		ProductID: "carrots-1kg", Quantity: 2, DeliveryDate: "2026-09-10",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first add: expected 200, got %d", resp.StatusCode)
	}

	resp = doPostWithAuth(t, "/api/basket/items", itemRequest{
		ProductID: "carrots-1kg", Quantity: 3, DeliveryDate: "2026-09-10",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second add: expected 200, got %d", resp.StatusCode)
	}

	b := decodeJSON[basketResponse](t, resp)
	if len(b.Items) != 1 {
		t.Fatalf("items: got %d, want 1", len(b.Items))
	}
	if b.Items[0].Quantity != 5 {
		t.Errorf("quantity: got %d, want 5", b.Items[0].Quantity)
	}
	// 5 x 12.00 DKK
	if b.Total != 60 {
		t.Errorf("total: got %v, want 60", b.Total)
	}
}

func TestAddItem_SeparateLinePerDeliveryDate(t *testing.T) {
	resetBasket(t)

	for _, date := range []string{"2026-09-10", "2026-09-17"} {
		resp := doPostWithAuth(t, "/api/basket/items", itemRequest{
			ProductID: "rye-bread", Quantity: 1, DeliveryDate: date,
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("add for %s: expected 200, got %d", date, resp.StatusCode)
		}
	}

	resp := doGetWithAuth(t, "/api/basket")
	defer resp.Body.Close()

	b := decodeJSON[basketResponse](t, resp)
	if len(b.Items) != 2 {
		t.Fatalf("items: got %d, want 2", len(b.Items))
	}
}

func TestAddItem_UnknownProduct(t *testing.T) {
	resp := doPostWithAuth(t, "/api/basket/items", itemRequest{
		ProductID: "no-such-product", Quantity: 1,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAddItem_InvalidQuantity(t *testing.T) {
	for _, qty := range []int{0, -3, 101} {
		resp := doPostWithAuth(t, "/api/basket/items", itemRequest{
			ProductID: "carrots-1kg", Quantity: qty,
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("quantity %d: expected 400, got %d", qty, resp.StatusCode)
		}
	}
}

func TestAddItem_InsufficientStock(t *testing.T) {
	resetBasket(t)

	// rye-bread has 15 in stock.
	resp := doPostWithAuth(t, "/api/basket/items", itemRequest{
		ProductID: "rye-bread", Quantity: 99, DeliveryDate: "2026-09-10",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestAddItem_UntrackedStock(t *testing.T) {
	resetBasket(t)
	t.Cleanup(func() { resetBasket(t) })

	// honey-450g has NULL stock: any quantity is accepted.
	resp := doPostWithAuth(t, "/api/basket/items", itemRequest{
		ProductID: "honey-450g", Quantity: 99, DeliveryDate: "2026-09-10",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRemoveItem_DecrementAndDelete(t *testing.T) {
	resetBasket(t)

	resp := doPostWithAuth(t, "/api/basket/items", itemRequest{
		ProductID: "potatoes-2kg", Quantity: 2, DeliveryDate: "2026-09-10",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add: expected 200, got %d", resp.StatusCode)
	}

	// 2 -> 1: the line stays.
	resp = doDeleteWithAuth(t, "/api/basket/items", itemRequest{
		ProductID: "potatoes-2kg", Quantity: 1, DeliveryDate: "2026-09-10",
	})
	b := decodeJSON[basketResponse](t, resp)
	resp.Body.Close()
	if len(b.Items) != 1 || b.Items[0].Quantity != 1 {
		t.Fatalf("after first remove: got %+v, want one line with quantity 1", b.Items)
	}

	// 1 -> 0: the line is deleted.
	resp = doDeleteWithAuth(t, "/api/basket/items", itemRequest{
		ProductID: "potatoes-2kg", Quantity: 1, DeliveryDate: "2026-09-10",
	})
	b = decodeJSON[basketResponse](t, resp)
	resp.Body.Close()
	if len(b.Items) != 0 {
		t.Fatalf("after second remove: got %d lines, want 0", len(b.Items))
	}
}

func TestRemoveItem_MoreThanPresentDeletesLine(t *testing.T) {
	resetBasket(t)

	resp := doPostWithAuth(t, "/api/basket/items", itemRequest{
		ProductID: "potatoes-2kg", Quantity: 3, DeliveryDate: "2026-09-10",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add: expected 200, got %d", resp.StatusCode)
	}

	resp = doDeleteWithAuth(t, "/api/basket/items", itemRequest{
		ProductID: "potatoes-2kg", Quantity: 10, DeliveryDate: "2026-09-10",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove: expected 200, got %d", resp.StatusCode)
	}

	b := decodeJSON[basketResponse](t, resp)
	if len(b.Items) != 0 {
		t.Fatalf("got %d lines, want 0", len(b.Items))
	}
}

func TestRemoveItem_MissingLineIsNoop(t *testing.T) {
	resetBasket(t)

	resp := doDeleteWithAuth(t, "/api/basket/items", itemRequest{
		ProductID: "carrots-1kg", Quantity: 1, DeliveryDate: "2031-01-01",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRemoveItem_RestoresStock(t *testing.T) {
	resetBasket(t)

	stockBefore := getStock(t, "apple-juice-1l")

	resp := doPostWithAuth(t, "/api/basket/items", itemRequest{
		ProductID: "apple-juice-1l", Quantity: 4, DeliveryDate: "2026-09-10",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add: expected 200, got %d", resp.StatusCode)
	}

	if got := getStock(t, "apple-juice-1l"); got != stockBefore-4 {
		t.Errorf("stock after add: got %d, want %d", got, stockBefore-4)
	}

	resp = doDeleteWithAuth(t, "/api/basket/items", itemRequest{
		ProductID: "apple-juice-1l", Quantity: 4, DeliveryDate: "2026-09-10",
	})
	resp.Body.Close()

	if got := getStock(t, "apple-juice-1l"); got != stockBefore {
		t.Errorf("stock after remove: got %d, want %d", got, stockBefore)
	}
}

func getStock(t *testing.T, productID string) int {
	t.Helper()

	resp := doGetWithAuth(t, "/api/products/"+productID)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get product: expected 200, got %d", resp.StatusCode)
	}

	p := decodeJSON[productResponse](t, resp)
	if p.Stock == nil {
		t.Fatalf("product %s has untracked stock", productID)
	}
	return *p.Stock
}
