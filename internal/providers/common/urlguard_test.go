package common

import (
	"context"
	"errors"
	"net/url"
	"testing"
)

func TestValidatePublicURLRejectsLocalTargets(t *testing.T) {
	blocked := []string{
		"http://localhost/admin",
		"http://127.0.0.1:8080/",
		"http://10.1.2.3/",
		"http://192.168.0.10/",
		"http://169.254.169.254/latest/meta-data",
		"http://[::1]/",
		"http://printer.local/",
		"http://metadata.google.internal/",
	}
	for _, raw := range blocked {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if err := ValidatePublicURL(context.Background(), u); !errors.Is(err, ErrBlockedURL) {
			t.Fatalf("%s: expected ErrBlockedURL, got %v", raw, err)
		}
	}
}

func TestValidatePublicURLSchemeAndHost(t *testing.T) {
	for _, raw := range []string{"ftp://example.com/", "file:///etc/passwd", "http:///nohost"} {
		u, _ := url.Parse(raw)
		if err := ValidatePublicURL(context.Background(), u); err == nil {
			t.Fatalf("%s: expected error", raw)
		}
	}
	if err := ValidatePublicURL(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil url")
	}
}

func TestValidatePublicURLAcceptsPublicIP(t *testing.T) {
	u, _ := url.Parse("https://93.184.216.34/page")
	if err := ValidatePublicURL(context.Background(), u); err != nil {
		t.Fatalf("expected public ip to pass, got %v", err)
	}
}
