package lib

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"raffles/src/types"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const mercadoPagoDateLayout = "2006-01-02T15:04:05.000-07:00"

// MercadoPagoProvider issues PIX charges through the Mercado Pago payments API.
type MercadoPagoProvider struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

func NewMercadoPagoProvider(baseURL, accessToken string) *MercadoPagoProvider {
	return &MercadoPagoProvider{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *MercadoPagoProvider) Name() string {
	return "mercadopago"
}

func (p *MercadoPagoProvider) CreatePixPayment(ctx context.Context, req types.PixPaymentRequest) (*types.PixPayment, error) {
	body := map[string]any{
		"transaction_amount": req.Amount,
		"description":        req.Description,
		"payment_method_id":  "pix",
		"external_reference": req.ExternalReference,
		"date_of_expiration": req.ExpiresAt.Format(mercadoPagoDateLayout),
		"payer": map[string]any{
			"email":      req.PayerEmail,
			"first_name": req.PayerName,
		},
	}
	if req.NotificationURL != "" {
		body["notification_url"] = req.NotificationURL
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	res, err := p.do(ctx, http.MethodPost, "/v1/payments", raw, req.ExternalReference)
	if err != nil {
		log.Printf("[MercadoPago] Error creating payment for %s: %s\n", req.ExternalReference, err.Error())
		return nil, err
	}
	return &types.PixPayment{
		ID:        res.Get("id").String(),
		Status:    mercadoPagoStatus(res.Get("status").String()),
		QRCode:    res.Get("point_of_interaction.transaction_data.qr_code").String(),
		TicketURL: res.Get("point_of_interaction.transaction_data.ticket_url").String(),
	}, nil
}

func (p *MercadoPagoProvider) GetPayment(ctx context.Context, id string) (*types.PaymentDetails, error) {
	res, err := p.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), nil, "")
	if err != nil {
		return nil, err
	}
	return &types.PaymentDetails{
		ID:                res.Get("id").String(),
		Status:            mercadoPagoStatus(res.Get("status").String()),
		ExternalReference: res.Get("external_reference").String(),
		Amount:            res.Get("transaction_amount").Float(),
	}, nil
}

func (p *MercadoPagoProvider) do(ctx context.Context, method, path string, body []byte, idempotencyKey string) (gjson.Result, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, err
	}
	if resp.StatusCode >= 300 {
		message := gjson.GetBytes(raw, "message").String()
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return gjson.Result{}, fmt.Errorf("mercadopago %s %s: %d %s", method, path, resp.StatusCode, message)
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, errors.New("mercadopago: invalid JSON response")
	}
	return gjson.ParseBytes(raw), nil
}

func mercadoPagoStatus(s string) types.PaymentStatus {
	switch s {
	case "approved":
		return types.PAYMENT_APPROVED
	case "rejected":
		return types.PAYMENT_REJECTED
	case "cancelled", "refunded", "charged_back":
		return types.PAYMENT_CANCELLED
	}
	return types.PAYMENT_PENDING
}

// PaymentNotification is the part of a gateway notification the webhook acts on.
type PaymentNotification struct {
	Type   string
	Action string
	DataID string
}

// IsPayment reports whether the notification concerns a payment.
func (n PaymentNotification) IsPayment() bool {
	return n.Type == "payment" || strings.HasPrefix(n.Action, "payment.")
}

// ParsePaymentNotification reads a notification from its JSON body, falling back to the
// query parameters older notification formats use.
func ParsePaymentNotification(body []byte, query url.Values) (PaymentNotification, error) {
	var n PaymentNotification
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 {
		if !gjson.ValidBytes(trimmed) {
			return n, errors.New("malformed notification body")
		}
		doc := gjson.ParseBytes(trimmed)
		n.Type = doc.Get("type").String()
		if n.Type == "" {
			n.Type = doc.Get("topic").String()
		}
		n.Action = doc.Get("action").String()
		n.DataID = doc.Get("data.id").String()
	}
	if n.Type == "" {
		n.Type = query.Get("type")
	}
	if n.Type == "" {
		n.Type = query.Get("topic")
	}
	if n.DataID == "" {
		n.DataID = query.Get("data.id")
	}
	if n.DataID == "" {
		n.DataID = query.Get("id")
	}
	if n.Type == "" && n.Action == "" {
		return n, errors.New("notification has no type")
	}
	return n, nil
}

// VerifyMercadoPagoSignature checks an x-signature header ("ts=...,v1=...") against the
// manifest "id:<dataID>;request-id:<requestID>;ts:<ts>;".
func VerifyMercadoPagoSignature(secret, header, requestID, dataID string) bool {
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "ts":
			ts = value
		case "v1":
			v1 = value
		}
	}
	if ts == "" || v1 == "" {
		return false
	}
	expected, err := hex.DecodeString(v1)
	if err != nil {
		return false
	}
	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", strings.ToLower(dataID), requestID, ts)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hmac.Equal(mac.Sum(nil), expected)
}
