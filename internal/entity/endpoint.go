package entity

import (
	"fmt"
	"net/url"
	"strings"
)

// Network identifies a blockchain network (e.g. "ethereum", "bitcoin").
type Network string

func (n Network) String() string {
	return string(n)
}

// NetworkKind classifies how a network's endpoints speak JSON-RPC.
type NetworkKind string

// Constants for known network kinds.
const (
	// KindEVM covers networks using the generic JSON-RPC 2.0 envelope (eth_* methods).
	KindEVM NetworkKind = "evm"
	// KindBitcoin covers networks using the legacy single-version envelope with
	// HTTP basic credentials.
	KindBitcoin NetworkKind = "bitcoin"
)

// Endpoint describes one network-reachable RPC service instance. Endpoints are
// defined at startup and never mutated; health is tracked separately.
type Endpoint struct {
	URL       string  `json:"url"`
	Name      string  `json:"name"`
	Network   Network `json:"network"`
	Protected bool    `json:"protected"`
	Priority  int     `json:"priority"` // lower = preferred
}

// ValidateEndpointURL checks that a raw endpoint URL is well formed and uses a
// supported scheme.
func ValidateEndpointURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("endpoint url cannot be empty")
	}

	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return fmt.Errorf("invalid endpoint url format '%s': %w", rawURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "http", "https", "ws", "wss":
		// Allowed schemes
	default:
		return fmt.Errorf("endpoint url '%s' has unsupported scheme: '%s'", rawURL, scheme)
	}

	return nil
}

// ProtectionLabel returns the display string for this endpoint's
// front-running-protection status.
func (e Endpoint) ProtectionLabel() string {
	if e.Protected {
		return fmt.Sprintf("protected by %s", e.Name)
	}
	return "not protected"
}

// EndpointHealth is the point-in-time health view of one endpoint, exposed to
// the query surface.
type EndpointHealth struct {
	Endpoint Endpoint `json:"endpoint"`
	Healthy  *bool    `json:"healthy"` // nil = never attempted
	LastGood bool     `json:"lastGood"`
}
