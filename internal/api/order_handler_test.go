package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"infrasite/internal/checkout"
	"infrasite/internal/config"
	"infrasite/internal/database"
	"infrasite/internal/database/dbtest"
)

type orderFixture struct {
	db     *gorm.DB
	kv     *fakeKV
	router *gin.Engine
	server database.Equipment
}

func newOrderFixture(t *testing.T, cfg config.CheckoutConfig) *orderFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := dbtest.Open(t)
	server := database.Equipment{Name: "Dell PowerEdge R750", SKU: "DELL-R750", Price: 10000000, Active: true}
	if err := db.Create(&server).Error; err != nil {
		t.Fatalf("seed equipment: %v", err)
	}

	kv := newFakeKV()
	svc := checkout.NewService(db, cfg.VATPercent, nil, nil, nil)
	h := NewOrderHandler(db, svc, kv, newFakeStorage(), cfg)

	r := gin.New()
	r.POST("/v1/orders", h.PlaceOrder)
	r.GET("/v1/orders/:ref", h.GetByReference)
	r.GET("/v1/orders/:ref/invoice", h.InvoiceURL)
	admin := r.Group("/v1/admin", withUser(1, database.RoleAdmin))
	admin.GET("/orders", h.AdminList)
	admin.GET("/orders/:id", h.AdminGet)
	return &orderFixture{db: db, kv: kv, router: r, server: server}
}

func testCheckoutConfig() config.CheckoutConfig {
	return config.CheckoutConfig{
		VATPercent:         10,
		BankName:           "Vietcombank",
		BankAccountNumber:  "0071000123456",
		BankAccountHolder:  "CONG TY INFRASITE",
		OrdersPerHourPerIP: 3,
	}
}

func (f *orderFixture) orderBody(quantity int, extra string) string {
	return `{"items":[{"equipment_id":` + strconv.FormatUint(uint64(f.server.ID), 10) +
		`,"quantity":` + strconv.Itoa(quantity) + `}],"customer":{"name":"Nguyễn Văn A",` +
		`"email":"a@example.com","phone":"0901234567","address":"1 Lê Lợi","city":"Hà Nội"` + extra + `}}`
}

func (f *orderFixture) post(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return serve(f.router, req)
}

func TestPlaceOrder_BankTransfer(t *testing.T) {
	f := newOrderFixture(t, testCheckoutConfig())

	w := f.post(f.orderBody(1, ""))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}
	var resp placeOrderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Order.Subtotal != 10000000 || resp.Order.VAT != 1000000 || resp.Order.Total != 11000000 {
		t.Fatalf("unexpected totals %+v", resp.Order)
	}
	if resp.BankTransfer == nil {
		t.Fatalf("expected bank transfer instructions")
	}
	if resp.BankTransfer.TransferNote != resp.Order.Reference || resp.BankTransfer.Amount != 11000000 {
		t.Fatalf("unexpected bank transfer %+v", resp.BankTransfer)
	}

	w = serve(f.router, httptest.NewRequest(http.MethodGet, "/v1/orders/"+strings.ToLower(resp.Order.Reference), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("lookup expected 200 got %d", w.Code)
	}
}

func TestPlaceOrder_CODHasNoBankBlock(t *testing.T) {
	f := newOrderFixture(t, testCheckoutConfig())

	w := f.post(f.orderBody(2, `,"payment_method":"cod"`))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "bank_transfer\":{") {
		t.Fatalf("cod order should not carry bank details: %s", w.Body.String())
	}
}

func TestPlaceOrder_Rejections(t *testing.T) {
	f := newOrderFixture(t, testCheckoutConfig())

	if w := f.post(`{"items":[],"customer":{}}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty cart expected 400 got %d", w.Code)
	}
	if w := f.post(`{"items":[{"equipment_id":999,"quantity":1}],"customer":{"name":"A","email":"a@example.com","phone":"0901234567","address":"x"}}`); w.Code != http.StatusConflict {
		t.Fatalf("unknown equipment expected 409 got %d body=%s", w.Code, w.Body.String())
	}

	w := f.post(f.orderBody(1, `,"email":"not-an-email"`))
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "email") {
		t.Fatalf("invalid email expected 400 with field got %d body=%s", w.Code, w.Body.String())
	}

	var count int64
	f.db.Model(&database.Order{}).Count(&count)
	if count != 0 {
		t.Fatalf("rejected submissions must not create orders, got %d", count)
	}
}

func TestPlaceOrder_RateLimited(t *testing.T) {
	cfg := testCheckoutConfig()
	cfg.OrdersPerHourPerIP = 1
	f := newOrderFixture(t, cfg)

	if w := f.post(f.orderBody(1, "")); w.Code != http.StatusCreated {
		t.Fatalf("first order expected 201 got %d", w.Code)
	}
	if w := f.post(f.orderBody(1, "")); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second order expected 429 got %d", w.Code)
	}
}

func TestInvoiceURL(t *testing.T) {
	f := newOrderFixture(t, testCheckoutConfig())

	w := f.post(f.orderBody(1, ""))
	var resp placeOrderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	path := "/v1/orders/" + resp.Order.Reference + "/invoice"

	if w := serve(f.router, httptest.NewRequest(http.MethodGet, path, nil)); w.Code != http.StatusNotFound {
		t.Fatalf("invoice before render expected 404 got %d", w.Code)
	}

	key := "invoices/" + resp.Order.Reference + ".pdf"
	if err := f.db.Create(&database.OrderInvoice{OrderID: resp.Order.ID, ObjectKey: key}).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	w = serve(f.router, httptest.NewRequest(http.MethodGet, path, nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), key) {
		t.Fatalf("invoice expected 200 with url got %d body=%s", w.Code, w.Body.String())
	}

	if w := serve(f.router, httptest.NewRequest(http.MethodGet, "/v1/orders/NOPE/invoice", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("malformed reference expected 404 got %d", w.Code)
	}
}

func TestAdminOrders(t *testing.T) {
	f := newOrderFixture(t, testCheckoutConfig())
	f.post(f.orderBody(3, ""))

	w := serve(f.router, httptest.NewRequest(http.MethodGet, "/v1/admin/orders", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	var list struct {
		Items []database.Order `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list.Items) != 1 {
		t.Fatalf("expected one order, err=%v body=%s", err, w.Body.String())
	}
	if len(list.Items[0].Items) != 1 || list.Items[0].Items[0].Quantity != 3 {
		t.Fatalf("expected preloaded item with quantity 3, got %+v", list.Items[0].Items)
	}

	id := strconv.FormatUint(uint64(list.Items[0].ID), 10)
	if w := serve(f.router, httptest.NewRequest(http.MethodGet, "/v1/admin/orders/"+id, nil)); w.Code != http.StatusOK {
		t.Fatalf("admin get expected 200 got %d", w.Code)
	}
	if w := serve(f.router, httptest.NewRequest(http.MethodGet, "/v1/admin/orders/9999", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("missing order expected 404 got %d", w.Code)
	}
}
