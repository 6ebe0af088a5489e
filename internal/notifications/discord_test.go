package notifications

import "testing"

func TestNewParsesWebhookURL(t *testing.T) {
	n, err := New("https://discord.com/api/webhooks/123456789/abcDEF-token_123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.webhookID != "123456789" || n.webhookTok != "abcDEF-token_123" {
		t.Fatalf("expected parsed id/token, got %q/%q", n.webhookID, n.webhookTok)
	}
}

func TestNewRejectsMalformedURL(t *testing.T) {
	if _, err := New("https://example.com/not-a-webhook"); err == nil {
		t.Fatalf("expected an error for a malformed webhook url")
	}
}
