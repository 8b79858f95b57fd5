package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"raffles/src/clock"
	"raffles/src/common"
	"raffles/src/config"
	"raffles/src/middlewares"
	"raffles/src/store"
	"raffles/src/types"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
)

const (
	secret = "secret"
	origin = "http://localhost:3000"
)

type fakeGateway struct {
	mu         sync.Mutex
	payments   map[string]*types.PaymentDetails
	failLookup bool
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreatePixPayment(_ context.Context, req types.PixPaymentRequest) (*types.PixPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := "pay-" + req.ExternalReference
	g.payments[id] = &types.PaymentDetails{ID: id, Status: types.PAYMENT_PENDING, ExternalReference: req.ExternalReference, Amount: req.Amount}
	return &types.PixPayment{ID: id, Status: types.PAYMENT_PENDING, QRCode: "00020126580014br.gov.bcb.pix" + req.ExternalReference, TicketURL: "https://pix.example/" + id}, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (*types.PaymentDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failLookup {
		return nil, errors.New("gateway timeout")
	}
	p, ok := g.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %s not found", id)
	}
	copied := *p
	return &copied, nil
}

func (g *fakeGateway) set(id string, status types.PaymentStatus, orderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[id] = &types.PaymentDetails{ID: id, Status: status, ExternalReference: orderID}
}

type fakeStripe struct {
	paymentID string
	err       error
}

func (f fakeStripe) ParseWebhook([]byte, string) (string, error) {
	return f.paymentID, f.err
}

type TestSuite struct {
	suite.Suite
	cfg     *config.Config
	clock   *clock.Manual
	gateway *fakeGateway
	app     *App
	router  *gin.Engine
}

func (s *TestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.cfg = &config.Config{
		Env:            "test",
		AllowedOrigins: []string{origin},
		AuthProvider:   "jwt",
		JWTSecret:      secret,
	}
	s.clock = clock.NewManual(time.Now())
	s.gateway = &fakeGateway{payments: map[string]*types.PaymentDetails{}}
	svc := common.NewService(store.NewMemoryStore(), common.Options{
		Provider: s.gateway,
		Clock:    s.clock,
		Rand:     func(n int) int { return n - 1 },
	})
	s.app = &App{cfg: s.cfg, svc: svc, verifier: middlewares.NewJWTVerifier(secret)}
	s.router = setupRouter(s.app)
}

func (s *TestSuite) token(caller types.Caller) string {
	tkn, err := middlewares.NewToken(secret, caller, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s.Require().NoError(err)
	return tkn
}

var (
	admin = types.Caller{UID: "admin", Name: "Admin", Email: "admin@example.com", Admin: true}
	ana   = types.Caller{UID: "ana", Name: "Ana", Email: "ana@example.com"}
	bruno = types.Caller{UID: "bruno", Name: "Bruno", Email: "bruno@example.com"}
)

func (s *TestSuite) do(method, path string, caller *types.Caller, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		s.Require().NoError(err)
		reader = strings.NewReader(string(raw))
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("origin", origin)
	if caller != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(*caller))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *TestSuite) createRaffle(total int) string {
	w := s.do("POST", "/api/v1/raffles", &admin, map[string]any{
		"title":      "Moto 0km",
		"unit_price": 10,
		"qtd_total":  total,
		"draw_at":    time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	return gjson.Get(w.Body.String(), "data.id").String()
}

func (s *TestSuite) TestPingRoute() {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	s.router.ServeHTTP(w, req)

	assert.Equal(s.T(), 200, w.Code)
}

func (s *TestSuite) TestMaintenanceMode() {
	s.cfg.Maintenance = true
	router := setupRouter(s.app)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/raffles", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 503, w.Code)
}

func (s *TestSuite) TestPurchaseFlow() {
	raffleID := s.createRaffle(10)

	w := s.do("POST", "/api/v1/users/me", &ana, nil)
	s.Equal(http.StatusOK, w.Code)
	w = s.do("GET", "/api/v1/users/me", &ana, nil)
	s.Equal("ana@example.com", gjson.Get(w.Body.String(), "data.email").String())

	w = s.do("POST", fmt.Sprintf("/api/v1/raffles/%s/reserve", raffleID), &ana, map[string]int{"quantity": 3})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	body := w.Body.String()
	orderID := gjson.Get(body, "data.id").String()
	s.Equal("[1,2,3]", gjson.Get(body, "data.numbers").Raw)
	s.Equal(30.0, gjson.Get(body, "data.total_price").Float())
	s.Equal("reserved", gjson.Get(body, "data.status").String())

	w = s.do("GET", fmt.Sprintf("/api/v1/raffles/%s/tickets?status=reserved", raffleID), nil, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Len(gjson.Get(w.Body.String(), "data").Array(), 3)

	w = s.do("GET", "/api/v1/orders/"+orderID+"/qrcode", &ana, nil)
	s.Equal(http.StatusConflict, w.Code)

	w = s.do("POST", "/api/v1/orders/"+orderID+"/payment", &ana, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("pay-"+orderID, gjson.Get(w.Body.String(), "data.payment_id").String())

	w = s.do("GET", "/api/v1/orders/"+orderID+"/qrcode", &ana, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("image/jpeg", w.Header().Get("Content-Type"))
	s.NotZero(w.Body.Len())

	s.gateway.set("pay-"+orderID, types.PAYMENT_APPROVED, orderID)
	w = s.do("POST", "/api/v1/webhook/payments", nil, fmt.Sprintf(`{"type":"payment","action":"payment.updated","data":{"id":"pay-%s"}}`, orderID))
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("paid", gjson.Get(w.Body.String(), "status").String())

	w = s.do("GET", "/api/v1/orders/"+orderID, &ana, nil)
	s.Equal("paid", gjson.Get(w.Body.String(), "data.status").String())

	w = s.do("GET", "/api/v1/raffles/"+raffleID, nil, nil)
	raffle := w.Body.String()
	s.Equal(int64(3), gjson.Get(raffle, "data.qtd_vendida").Int())
	s.Equal(int64(1), gjson.Get(raffle, "data.participantes").Int())
	s.Equal(30.0, gjson.Get(raffle, "data.revenue").Float())

	w = s.do("GET", "/api/v1/raffles/"+raffleID+"/stats", &admin, nil)
	stats := w.Body.String()
	s.Equal(int64(3), gjson.Get(stats, "data.sold").Int())
	s.Equal(int64(7), gjson.Get(stats, "data.available").Int())

	w = s.do("POST", "/api/v1/raffles/"+raffleID+"/draw", &admin, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal(int64(3), gjson.Get(w.Body.String(), "data.winning_number").Int())
	s.Equal("ana", gjson.Get(w.Body.String(), "data.winner_id").String())
	s.Equal("Ana", gjson.Get(w.Body.String(), "data.winner_name").String())

	w = s.do("POST", "/api/v1/raffles/"+raffleID+"/draw", &admin, map[string]int{"number": 1})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("failed-precondition", gjson.Get(w.Body.String(), "code").String())
}

func (s *TestSuite) TestAccessControl() {
	raffleID := s.createRaffle(5)

	w := s.do("POST", "/api/v1/raffles/"+raffleID+"/reserve", nil, map[string]int{"quantity": 1})
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do("POST", "/api/v1/raffles", &ana, map[string]any{"title": "x"})
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do("POST", "/api/v1/raffles/"+raffleID+"/reserve", &ana, map[string]int{"quantity": 2})
	s.Require().Equal(http.StatusCreated, w.Code)
	orderID := gjson.Get(w.Body.String(), "data.id").String()

	w = s.do("GET", "/api/v1/orders/"+orderID, &bruno, nil)
	s.Equal(http.StatusForbidden, w.Code)
	w = s.do("POST", "/api/v1/orders/"+orderID+"/cancel", &bruno, nil)
	s.Equal(http.StatusForbidden, w.Code)
	w = s.do("GET", "/api/v1/orders/"+orderID, &admin, nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.do("GET", "/api/v1/orders", &bruno, nil)
	s.Empty(gjson.Get(w.Body.String(), "data").Array())
	w = s.do("GET", "/api/v1/orders?raffle_id="+raffleID, &ana, nil)
	s.Len(gjson.Get(w.Body.String(), "data").Array(), 1)
}

func (s *TestSuite) TestReserveErrors() {
	raffleID := s.createRaffle(5)

	w := s.do("POST", "/api/v1/raffles/"+raffleID+"/reserve", &ana, map[string]int{"quantity": 6})
	s.Equal(http.StatusConflict, w.Code)
	s.Contains(gjson.Get(w.Body.String(), "error").String(), "insufficient inventory")

	w = s.do("POST", "/api/v1/raffles/"+raffleID+"/reserve", &ana, map[string]int{"quantity": 0})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do("POST", "/api/v1/raffles/missing/reserve", &ana, map[string]int{"quantity": 1})
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do("PUT", "/api/v1/raffles/"+raffleID+"/status", &admin, map[string]string{"status": "paused"})
	s.Require().Equal(http.StatusOK, w.Code)
	w = s.do("POST", "/api/v1/raffles/"+raffleID+"/reserve", &ana, map[string]int{"quantity": 1})
	s.Equal(http.StatusConflict, w.Code)

	w = s.do("PUT", "/api/v1/raffles/"+raffleID+"/status", &admin, map[string]string{"status": "finalized"})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *TestSuite) TestCreateRaffleValidation() {
	w := s.do("POST", "/api/v1/raffles", &admin, map[string]any{
		"title":      "Past",
		"unit_price": 10,
		"qtd_total":  10,
		"draw_at":    time.Now().Add(-time.Hour).Format(time.RFC3339),
	})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("invalid-argument", gjson.Get(w.Body.String(), "code").String())

	raffleID := s.createRaffle(5)
	w = s.do("POST", "/api/v1/raffles/"+raffleID+"/tickets", &admin, map[string]int{"count": 5})
	s.Equal(http.StatusConflict, w.Code)

	w = s.do("DELETE", "/api/v1/raffles/"+raffleID, &admin, nil)
	s.Equal(http.StatusOK, w.Code)
	s.app.svc.Wait()
	w = s.do("GET", "/api/v1/raffles/"+raffleID, nil, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *TestSuite) TestCancelAndSweep() {
	raffleID := s.createRaffle(5)
	w := s.do("POST", "/api/v1/raffles/"+raffleID+"/reserve", &ana, map[string]int{"quantity": 2})
	first := gjson.Get(w.Body.String(), "data.id").String()
	w = s.do("POST", "/api/v1/raffles/"+raffleID+"/reserve", &bruno, map[string]int{"quantity": 2})
	second := gjson.Get(w.Body.String(), "data.id").String()

	w = s.do("POST", "/api/v1/orders/"+first+"/cancel", &ana, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("cancelled", gjson.Get(w.Body.String(), "data.status").String())
	w = s.do("POST", "/api/v1/orders/"+first+"/cancel", &ana, nil)
	s.Equal(http.StatusOK, w.Code)

	s.clock.Advance(31 * time.Minute)
	expired, err := s.app.svc.Sweep(context.Background())
	s.Require().NoError(err)
	s.Equal(1, expired)
	w = s.do("GET", "/api/v1/orders/"+second, &bruno, nil)
	s.Equal("expired", gjson.Get(w.Body.String(), "data.status").String())

	w = s.do("GET", "/api/v1/raffles/"+raffleID+"/stats", &admin, nil)
	s.Equal(int64(5), gjson.Get(w.Body.String(), "data.available").Int())
}

func (s *TestSuite) TestAdminSettle() {
	raffleID := s.createRaffle(5)
	w := s.do("POST", "/api/v1/raffles/"+raffleID+"/reserve", &ana, map[string]int{"quantity": 1})
	orderID := gjson.Get(w.Body.String(), "data.id").String()

	w = s.do("POST", "/api/v1/orders/"+orderID+"/settle", &ana, nil)
	s.Equal(http.StatusForbidden, w.Code)
	w = s.do("POST", "/api/v1/orders/"+orderID+"/settle", &admin, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("paid", gjson.Get(w.Body.String(), "data.status").String())
	w = s.do("POST", "/api/v1/orders/missing/settle", &admin, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *TestSuite) TestPaymentWebhook() {
	s.Run("unparseable body answers 500", func() {
		w := s.do("POST", "/api/v1/webhook/payments", nil, `{"type":`)
		s.Equal(http.StatusInternalServerError, w.Code)
	})
	s.Run("other event types are ignored", func() {
		w := s.do("POST", "/api/v1/webhook/payments", nil, `{"type":"merchant_order","data":{"id":"1"}}`)
		s.Equal(http.StatusOK, w.Code)
		s.True(gjson.Get(w.Body.String(), "ignored").Bool())
	})
	s.Run("pending payments are ignored", func() {
		s.gateway.set("p-pending", types.PAYMENT_PENDING, "whatever")
		w := s.do("POST", "/api/v1/webhook/payments?type=payment&data.id=p-pending", nil, nil)
		s.Equal(http.StatusOK, w.Code)
		s.True(gjson.Get(w.Body.String(), "ignored").Bool())
	})
	s.Run("approved payment of a missing order answers 404", func() {
		s.gateway.set("p-orphan", types.PAYMENT_APPROVED, "missing-order")
		w := s.do("POST", "/api/v1/webhook/payments", nil, `{"type":"payment","data":{"id":"p-orphan"}}`)
		s.Equal(http.StatusNotFound, w.Code)
	})
	s.Run("lookup failure answers 500", func() {
		s.gateway.failLookup = true
		defer func() { s.gateway.failLookup = false }()
		w := s.do("POST", "/api/v1/webhook/payments", nil, `{"type":"payment","data":{"id":"p-orphan"}}`)
		s.Equal(http.StatusInternalServerError, w.Code)
	})
}

func (s *TestSuite) TestPaymentWebhookSignature() {
	s.cfg.MPWebhookSecret = "mp-secret"
	s.gateway.set("p-1", types.PAYMENT_PENDING, "o-1")
	body := `{"type":"payment","data":{"id":"p-1"}}`

	w := s.do("POST", "/api/v1/webhook/payments", nil, body)
	s.Equal(http.StatusUnauthorized, w.Code)

	mac := hmac.New(sha256.New, []byte("mp-secret"))
	mac.Write([]byte("id:p-1;request-id:req-9;ts:1700000000;"))
	req, _ := http.NewRequest("POST", "/api/v1/webhook/payments", strings.NewReader(body))
	req.Header.Set("x-signature", "ts=1700000000,v1="+hex.EncodeToString(mac.Sum(nil)))
	req.Header.Set("x-request-id", "req-9")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *TestSuite) TestStripeWebhook() {
	raffleID := s.createRaffle(5)
	w := s.do("POST", "/api/v1/raffles/"+raffleID+"/reserve", &ana, map[string]int{"quantity": 2})
	orderID := gjson.Get(w.Body.String(), "data.id").String()
	s.gateway.set("pi_1", types.PAYMENT_APPROVED, orderID)

	s.app.stripe = fakeStripe{err: errors.New("bad signature")}
	router := setupRouter(s.app)
	req, _ := http.NewRequest("POST", "/api/v1/webhook/stripe", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)

	s.app.stripe = fakeStripe{paymentID: "pi_1"}
	router = setupRouter(s.app)
	req, _ = http.NewRequest("POST", "/api/v1/webhook/stripe", strings.NewReader("{}"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("paid", gjson.Get(rec.Body.String(), "status").String())
}

func TestRunner(t *testing.T) {
	suite.Run(t, new(TestSuite))
}
