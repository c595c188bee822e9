package payos

import "testing"

func TestSignCreateParamsDeterministic(t *testing.T) {
	req := createRequest{
		OrderCode:   42,
		Amount:      1_000_000,
		Description: "deposit for appointment",
		ReturnURL:   "https://app.example/return",
		CancelURL:   "https://app.example/cancel",
	}

	first := signCreateParams("secret", req)
	second := signCreateParams("secret", req)
	if first == "" || first != second {
		t.Fatalf("expected stable signature, got %q and %q", first, second)
	}

	req.Amount = 2_000_000
	if signCreateParams("secret", req) == first {
		t.Fatal("changing amount must change the signature")
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	data := WebhookData{
		OrderCode:     42,
		Amount:        1_000_000,
		Description:   "deposit",
		Reference:     "FT2026-042",
		Code:          "00",
		Desc:          "success",
		PaymentLinkID: "plink-42",
	}

	signature, err := SignWebhookData("secret", data)
	if err != nil {
		t.Fatalf("sign webhook data: %v", err)
	}
	if !VerifyWebhookSignature("secret", data, signature) {
		t.Fatal("expected valid signature to verify")
	}
	if VerifyWebhookSignature("other-secret", data, signature) {
		t.Fatal("expected wrong key to fail")
	}

	tampered := data
	tampered.Amount = 9_000_000
	if VerifyWebhookSignature("secret", tampered, signature) {
		t.Fatal("expected tampered payload to fail")
	}
	if VerifyWebhookSignature("secret", data, "") {
		t.Fatal("expected empty signature to fail")
	}
}
