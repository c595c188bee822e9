package payos

// Link status values echoed by the gateway.
const (
	LinkStatusPending   = "PENDING"
	LinkStatusPaid      = "PAID"
	LinkStatusCancelled = "CANCELLED"
	LinkStatusExpired   = "EXPIRED"
)

// CreatePaymentLinkParams describes one QR payment request.
type CreatePaymentLinkParams struct {
	OrderCode   int64
	AmountVND   int64
	Description string
	BuyerName   string
	ReturnURL   string
	CancelURL   string
}

// PaymentLink is the checkout handle returned on creation.
type PaymentLink struct {
	PaymentLinkID string
	OrderCode     int64
	AmountVND     int64
	Status        string
	CheckoutURL   string
	QRCode        string
}

// PaymentLinkStatus is the state of an existing link, queried by order code.
type PaymentLinkStatus struct {
	PaymentLinkID  string
	OrderCode      int64
	AmountVND      int64
	AmountPaidVND  int64
	Status         string
	TransactionRef string
}

// WebhookPayload is the push notification body sent on payment events.
type WebhookPayload struct {
	Code      string      `json:"code"`
	Desc      string      `json:"desc"`
	Success   bool        `json:"success"`
	Data      WebhookData `json:"data"`
	Signature string      `json:"signature"`
}

// WebhookData carries the settled transaction details.
type WebhookData struct {
	OrderCode           int64  `json:"orderCode"`
	Amount              int64  `json:"amount"`
	Description         string `json:"description"`
	Reference           string `json:"reference"`
	Code                string `json:"code"`
	Desc                string `json:"desc"`
	PaymentLinkID       string `json:"paymentLinkId"`
	TransactionDateTime string `json:"transactionDateTime"`
}

type createRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	BuyerName   string `json:"buyerName,omitempty"`
	ReturnURL   string `json:"returnUrl"`
	CancelURL   string `json:"cancelUrl"`
	Signature   string `json:"signature"`
}

type apiEnvelope struct {
	Code string   `json:"code"`
	Desc string   `json:"desc"`
	Data linkData `json:"data"`
}

type linkData struct {
	PaymentLinkID string `json:"paymentLinkId"`
	OrderCode     int64  `json:"orderCode"`
	Amount        int64  `json:"amount"`
	AmountPaid    int64  `json:"amountPaid"`
	Status        string `json:"status"`
	CheckoutURL   string `json:"checkoutUrl"`
	QRCode        string `json:"qrCode"`
	Transactions  []struct {
		Reference string `json:"reference"`
	} `json:"transactions"`
}
