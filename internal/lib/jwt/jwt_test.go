package jwt

import "testing"

func TestUnsubscribeTokenRoundTrip(t *testing.T) {
	p := New("test-secret")

	token, err := p.UnsubscribeToken("https://www.amazon.com/dp/B0TEST", "user@example.com")
	if err != nil {
		t.Fatalf("UnsubscribeToken: %v", err)
	}

	url, email, err := p.ParseUnsubscribeToken(token)
	if err != nil {
		t.Fatalf("ParseUnsubscribeToken: %v", err)
	}

	if url != "https://www.amazon.com/dp/B0TEST" {
		t.Errorf("url = %q", url)
	}
	if email != "user@example.com" {
		t.Errorf("email = %q", email)
	}
}

func TestParseUnsubscribeTokenWrongSecret(t *testing.T) {
	token, err := New("secret-a").UnsubscribeToken("https://www.amazon.com/dp/B0TEST", "user@example.com")
	if err != nil {
		t.Fatalf("UnsubscribeToken: %v", err)
	}

	if _, _, err := New("secret-b").ParseUnsubscribeToken(token); err == nil {
		t.Error("expected error for token signed with a different secret")
	}
}

func TestParseUnsubscribeTokenGarbage(t *testing.T) {
	if _, _, err := New("secret").ParseUnsubscribeToken("not-a-token"); err == nil {
		t.Error("expected error for malformed token")
	}
}
