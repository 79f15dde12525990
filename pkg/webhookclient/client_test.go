package webhookclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSignature_MatchesManualHMAC(t *testing.T) {
	payload := []byte(`{"event":"create_user","user_id":42}`)
	mac := hmac.New(sha256.New, []byte("shared-secret"))
	mac.Write(payload)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if got := Signature("shared-secret", payload); got != want {
		t.Fatalf("expected signature %q, got %q", want, got)
	}
}

func TestPost_SendsSignedRequest(t *testing.T) {
	payload := []byte(`{"event":"create_user","user_id":7}`)
	var gotSignature, gotToken, gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(SignatureHeader)
		gotToken = r.Header.Get(TokenHeader)
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewClientWithHTTPClient(srv.Client())
	result, err := client.Post(context.Background(), srv.URL, "secret", payload)
	if err != nil {
		t.Fatalf("Post returned error: %v", err)
	}
	if result.Status != http.StatusOK {
		t.Fatalf("expected status 200, got %d", result.Status)
	}
	if result.Body != `{"ok":true}` {
		t.Fatalf("expected response body to be captured, got %q", result.Body)
	}
	if !bytes.Equal(gotBody, payload) {
		t.Fatalf("expected payload to arrive unmodified, got %q", gotBody)
	}
	if gotSignature != Signature("secret", payload) {
		t.Fatalf("expected signature header to match payload HMAC, got %q", gotSignature)
	}
	if gotToken != "secret" {
		t.Fatalf("expected token header %q, got %q", "secret", gotToken)
	}
	if gotContentType != "application/json" {
		t.Fatalf("expected JSON content type, got %q", gotContentType)
	}
}

func TestPost_ReturnsNon2xxAsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	client := NewClientWithHTTPClient(srv.Client())
	result, err := client.Post(context.Background(), srv.URL, "", []byte(`{}`))
	if err != nil {
		t.Fatalf("expected non-2xx to be a delivered response, got error: %v", err)
	}
	if result.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", result.Status)
	}
	if result.Body != "upstream down" {
		t.Fatalf("expected response body to be captured, got %q", result.Body)
	}
}

func TestPost_TruncatesLongResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", maxResponseBytes*2)))
	}))
	defer srv.Close()

	client := NewClientWithHTTPClient(srv.Client())
	result, err := client.Post(context.Background(), srv.URL, "", []byte(`{}`))
	if err != nil {
		t.Fatalf("Post returned error: %v", err)
	}
	if len(result.Body) != maxResponseBytes {
		t.Fatalf("expected body truncated to %d bytes, got %d", maxResponseBytes, len(result.Body))
	}
}

func TestPost_TransportFailureReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	client := NewClientWithHTTPClient(srv.Client())
	srv.Close()

	result, err := client.Post(context.Background(), endpoint, "", []byte(`{}`))
	if err == nil {
		t.Fatalf("expected transport error for closed server, got result %+v", result)
	}
}

func TestValidateEndpointURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https endpoint", "https://partner.example.com/hooks", false},
		{"http endpoint", "http://partner.example.com/hooks", false},
		{"empty is allowed", "", false},
		{"localhost rejected", "http://localhost:8080/hooks", true},
		{"loopback literal rejected", "http://127.0.0.1/hooks", true},
		{"private range rejected", "http://10.1.2.3/hooks", true},
		{"link local rejected", "http://169.254.169.254/latest/meta-data", true},
		{"ipv6 loopback rejected", "http://[::1]/hooks", true},
		{"non-http scheme rejected", "ftp://partner.example.com/hooks", true},
		{"missing host rejected", "https:///hooks", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEndpointURL(tt.url)
			if tt.wantErr && err == nil {
				t.Fatalf("expected %q to be rejected", tt.url)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected %q to be accepted, got %v", tt.url, err)
			}
		})
	}
}
