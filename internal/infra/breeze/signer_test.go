package breeze

import (
	"strings"
	"testing"
)

func TestComputeChecksum(t *testing.T) {
	// Fixed vector: SHA256("2024-01-02T03:04:05.000Z" + "{}" + "secret")
	timestamp := "2024-01-02T03:04:05.000Z"
	body := "{}"
	secret := "secret"

	got := computeChecksum(timestamp, body, secret)
	if len(got) != 64 {
		t.Fatalf("checksum length = %d, want 64 hex chars", len(got))
	}
	if got != computeChecksum(timestamp, body, secret) {
		t.Fatal("checksum is not deterministic")
	}
	if got == computeChecksum(timestamp, body, "other") {
		t.Fatal("checksum ignores the secret")
	}
	if got == computeChecksum("2024-01-02T03:04:06.000Z", body, secret) {
		t.Fatal("checksum ignores the timestamp")
	}
}

func TestSigner_GenerateHeaders(t *testing.T) {
	signer := NewSigner("key", "secret")
	signer.SetSession("tok-123")

	headers := signer.GenerateHeaders(`{"stock_code":"NIFTY"}`)

	if headers["X-AppKey"] != "key" {
		t.Errorf("X-AppKey = %q, want 'key'", headers["X-AppKey"])
	}
	if headers["X-SessionToken"] != "tok-123" {
		t.Errorf("X-SessionToken = %q, want 'tok-123'", headers["X-SessionToken"])
	}
	if !strings.HasPrefix(headers["X-Checksum"], "token ") {
		t.Errorf("X-Checksum = %q, want 'token ' prefix", headers["X-Checksum"])
	}
	// ISO second precision with a fixed millisecond suffix
	ts := headers["X-Timestamp"]
	if len(ts) != len("2024-01-02T03:04:05.000Z") || !strings.HasSuffix(ts, ".000Z") {
		t.Errorf("X-Timestamp format unexpected: %q", ts)
	}
}
