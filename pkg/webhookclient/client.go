/**
 * @description
 * This package provides the HTTP client used to deliver lifecycle webhooks to
 * the operator-configured integration endpoint. The production client is
 * SSRF-guarded: requests to private, loopback, link-local and metadata
 * addresses are blocked at dial time, including after DNS resolution, so a
 * hostile webhook URL cannot reach internal infrastructure.
 *
 * Every request body is signed with HMAC-SHA256 over the raw payload; the
 * receiver can verify the X-Webhook-Signature header with the shared secret.
 *
 * @dependencies
 * - github.com/doyensec/safeurl: SSRF-safe HTTP client construction.
 */

package webhookclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// maxResponseBytes bounds how much of the endpoint's response body is kept
// for the audit log.
const maxResponseBytes = 2048

// Header names sent with every delivery.
const (
	SignatureHeader = "X-Webhook-Signature"
	TokenHeader     = "X-Webhook-Token"
)

// Client delivers signed JSON payloads to a webhook endpoint.
type Client struct {
	HTTPClient *http.Client
}

// NewClient builds the SSRF-guarded production client. The timeout bounds the
// whole request including connection setup and body read.
func NewClient(timeout time.Duration) *Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443, 8080, 8443).
		Build()
	wrapped := safeurl.Client(config)
	return &Client{HTTPClient: wrapped.Client}
}

// NewClientWithHTTPClient wraps an existing http.Client; used by tests.
func NewClientWithHTTPClient(httpClient *http.Client) *Client {
	return &Client{HTTPClient: httpClient}
}

// Result captures the endpoint's response for the audit log.
type Result struct {
	Status int
	Body   string
}

// Signature computes the hex HMAC-SHA256 of the payload under the shared
// secret, prefixed with the scheme identifier.
func Signature(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Post delivers one payload. Any HTTP status counts as a delivered response
// and is returned in the Result; only transport-level failures (refused
// connection, timeout, blocked address) return an error.
func (c *Client) Post(ctx context.Context, endpoint string, secret string, payload []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "reseller-service-webhook/1.0")
	if secret != "" {
		req.Header.Set(TokenHeader, secret)
		req.Header.Set(SignatureHeader, Signature(secret, payload))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		// The status line arrived; a torn body still counts as a response.
		return &Result{Status: resp.StatusCode, Body: string(body)}, nil
	}
	return &Result{Status: resp.StatusCode, Body: strings.ToValidUTF8(string(body), "")}, nil
}

// Private and special-purpose ranges rejected when the operator saves a
// webhook URL. The dial-time guard blocks them too; this check exists to give
// immediate feedback instead of a failed delivery later.
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"100.64.0.0/10",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid blocked network %q: %v", cidr, err))
		}
		nets = append(nets, network)
	}
	return nets
}

// ValidateEndpointURL rejects webhook URLs that are malformed, use a
// non-HTTP scheme, or point at a blocked address literal.
func ValidateEndpointURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("webhook url scheme must be http or https, got %q", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("webhook url has no host")
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("webhook url host %q is not allowed", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("webhook url host %q is in a blocked range", host)
			}
		}
	}
	return nil
}
