package payos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/otodealz/otodealz-backend/pkg/config"
	pkgerrors "github.com/otodealz/otodealz-backend/pkg/errors"
	"github.com/otodealz/otodealz-backend/pkg/logger"
)

const (
	paymentRequestsPath = "/v2/payment-requests"
	successCode         = "00"
)

var (
	errClientIDRequired    = errors.New("payos client id is required")
	errAPIKeyRequired      = errors.New("payos api key is required")
	errChecksumKeyRequired = errors.New("payos checksum key is required")
	errLoggerRequired      = errors.New("payos logger is required")
)

// Client exposes PayOS primitives with centralized auth, logging, signing, and error mapping.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	clientID    string
	apiKey      string
	checksumKey string
	logger      *logger.Logger
}

// NewClient initializes the PayOS wrapper and validates the credentials.
func NewClient(cfg config.PayOSConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, errClientIDRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	checksumKey := strings.TrimSpace(cfg.ChecksumKey)
	if checksumKey == "" {
		return nil, errChecksumKeyRequired
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api-merchant.payos.vn"
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		clientID:    clientID,
		apiKey:      apiKey,
		checksumKey: checksumKey,
		logger:      logg,
	}, nil
}

// ChecksumKey exposes the key so webhook handlers can verify signatures.
func (c *Client) ChecksumKey() string {
	if c == nil {
		return ""
	}
	return c.checksumKey
}

// CreatePaymentLink registers a QR payment request with the gateway.
func (c *Client) CreatePaymentLink(ctx context.Context, params CreatePaymentLinkParams) (*PaymentLink, error) {
	if params.OrderCode <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order code must be positive")
	}
	if params.AmountVND <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	req := createRequest{
		OrderCode:   params.OrderCode,
		Amount:      params.AmountVND,
		Description: params.Description,
		BuyerName:   params.BuyerName,
		ReturnURL:   params.ReturnURL,
		CancelURL:   params.CancelURL,
	}
	req.Signature = signCreateParams(c.checksumKey, req)

	c.log(ctx, "request", "create_payment_link", map[string]any{
		"order_code": params.OrderCode,
		"amount_vnd": params.AmountVND,
	})

	var envelope apiEnvelope
	if err := c.do(ctx, http.MethodPost, paymentRequestsPath, req, &envelope); err != nil {
		c.log(ctx, "error", "create_payment_link", map[string]any{"error": err.Error()})
		return nil, err
	}
	if err := c.checkEnvelope(envelope, "create payment link"); err != nil {
		c.log(ctx, "error", "create_payment_link", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_payment_link", map[string]any{
		"order_code":      envelope.Data.OrderCode,
		"payment_link_id": envelope.Data.PaymentLinkID,
		"status":          envelope.Data.Status,
	})
	return &PaymentLink{
		PaymentLinkID: envelope.Data.PaymentLinkID,
		OrderCode:     envelope.Data.OrderCode,
		AmountVND:     envelope.Data.Amount,
		Status:        envelope.Data.Status,
		CheckoutURL:   envelope.Data.CheckoutURL,
		QRCode:        envelope.Data.QRCode,
	}, nil
}

// GetPaymentLink reads the current state of a link by order code.
func (c *Client) GetPaymentLink(ctx context.Context, orderCode int64) (*PaymentLinkStatus, error) {
	if orderCode <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order code must be positive")
	}

	c.log(ctx, "request", "get_payment_link", map[string]any{"order_code": orderCode})

	var envelope apiEnvelope
	path := fmt.Sprintf("%s/%d", paymentRequestsPath, orderCode)
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		c.log(ctx, "error", "get_payment_link", map[string]any{"error": err.Error()})
		return nil, err
	}
	if err := c.checkEnvelope(envelope, "get payment link"); err != nil {
		c.log(ctx, "error", "get_payment_link", map[string]any{"error": err.Error()})
		return nil, err
	}

	status := &PaymentLinkStatus{
		PaymentLinkID: envelope.Data.PaymentLinkID,
		OrderCode:     envelope.Data.OrderCode,
		AmountVND:     envelope.Data.Amount,
		AmountPaidVND: envelope.Data.AmountPaid,
		Status:        envelope.Data.Status,
	}
	if len(envelope.Data.Transactions) > 0 {
		status.TransactionRef = envelope.Data.Transactions[0].Reference
	}

	c.log(ctx, "response", "get_payment_link", map[string]any{
		"order_code": status.OrderCode,
		"status":     status.Status,
	})
	return status, nil
}

// CancelPaymentLink invalidates an open link so a replacement can be issued.
func (c *Client) CancelPaymentLink(ctx context.Context, orderCode int64, reason string) error {
	if orderCode <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order code must be positive")
	}

	c.log(ctx, "request", "cancel_payment_link", map[string]any{"order_code": orderCode})

	body := map[string]string{"cancellationReason": reason}
	var envelope apiEnvelope
	path := fmt.Sprintf("%s/%d/cancel", paymentRequestsPath, orderCode)
	if err := c.do(ctx, http.MethodPost, path, body, &envelope); err != nil {
		c.log(ctx, "error", "cancel_payment_link", map[string]any{"error": err.Error()})
		return err
	}
	if err := c.checkEnvelope(envelope, "cancel payment link"); err != nil {
		c.log(ctx, "error", "cancel_payment_link", map[string]any{"error": err.Error()})
		return err
	}

	c.log(ctx, "response", "cancel_payment_link", map[string]any{"order_code": orderCode})
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("x-client-id", c.clientID)
	req.Header.Set("x-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payos request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payos response read failed")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerrors.New(pkgerrors.CodeGateway, "payos request rejected").
			WithDetails(map[string]any{
				"http_status": resp.StatusCode,
				"body":        strings.TrimSpace(string(raw)),
			})
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "payos response decode failed")
	}
	return nil
}

// checkEnvelope preserves the provider code and description on failure.
func (c *Client) checkEnvelope(envelope apiEnvelope, op string) error {
	if envelope.Code == successCode {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeGateway, fmt.Sprintf("payos %s failed", op)).
		WithDetails(map[string]any{
			"provider_code": envelope.Code,
			"provider_desc": envelope.Desc,
		})
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("payos %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("payos %s", phase))
	}
}
