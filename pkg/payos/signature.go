package payos

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// signCreateParams computes the HMAC-SHA256 signature over the five create
// fields in the gateway's fixed alphabetical order.
func signCreateParams(checksumKey string, req createRequest) string {
	data := fmt.Sprintf(
		"amount=%d&cancelUrl=%s&description=%s&orderCode=%d&returnUrl=%s",
		req.Amount, req.CancelURL, req.Description, req.OrderCode, req.ReturnURL,
	)
	return hmacHex(checksumKey, data)
}

// SignWebhookData computes the HMAC over the webhook data object with its
// fields sorted by key, matching what the gateway sends.
func SignWebhookData(checksumKey string, data WebhookData) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", err
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, stringifyField(fields[k])))
	}

	return hmacHex(checksumKey, strings.Join(parts, "&")), nil
}

// VerifyWebhookSignature recomputes the webhook HMAC and compares it in
// constant time.
func VerifyWebhookSignature(checksumKey string, data WebhookData, signature string) bool {
	if signature == "" {
		return false
	}
	expected, err := SignWebhookData(checksumKey, data)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

func stringifyField(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		// orderCode and amount arrive as JSON numbers
		if value == float64(int64(value)) {
			return fmt.Sprintf("%d", int64(value))
		}
		return fmt.Sprintf("%v", value)
	default:
		return fmt.Sprintf("%v", value)
	}
}

func hmacHex(key, data string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
