package fetcher

import (
	"crypto/tls"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync/atomic"
)

// identityRotator hands out browser identities round-robin so consecutive
// requests do not share a User-Agent.
type identityRotator struct {
	userAgents     []string
	acceptLanguage string
	index          atomic.Int64
}

func newIdentityRotator(userAgents []string, acceptLanguage string) *identityRotator {
	if acceptLanguage == "" {
		acceptLanguage = "en-US,en;q=0.5"
	}
	return &identityRotator{userAgents: userAgents, acceptLanguage: acceptLanguage}
}

// next returns the next User-Agent in rotation.
func (r *identityRotator) next() string {
	if len(r.userAgents) == 0 {
		return "Mozilla/5.0 (compatible; finscrape/1.0)"
	}
	idx := (r.index.Add(1) - 1) % int64(len(r.userAgents))
	return r.userAgents[idx]
}

// apply sets a full browser-like header set for ua on h.
func (r *identityRotator) apply(h http.Header, ua string) {
	h.Set("User-Agent", ua)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", r.acceptLanguage)
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("DNT", "1")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")

	// Client hints only make sense for Chromium identities.
	if strings.Contains(ua, "Chrome/") {
		h.Set("Sec-Ch-Ua", fmt.Sprintf(`"Chromium";v="%[1]s", "Not?A_Brand";v="8", "Google Chrome";v="%[1]s"`, chromeMajor(ua)))
		h.Set("Sec-Ch-Ua-Mobile", "?0")
		h.Set("Sec-Ch-Ua-Platform", fmt.Sprintf("%q", platformOf(ua)))
	}
}

func chromeMajor(ua string) string {
	i := strings.Index(ua, "Chrome/")
	if i < 0 {
		return "120"
	}
	rest := ua[i+len("Chrome/"):]
	if j := strings.IndexByte(rest, '.'); j > 0 {
		return rest[:j]
	}
	return "120"
}

func platformOf(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Windows"
	case strings.Contains(ua, "Macintosh"):
		return "macOS"
	default:
		return "Linux"
	}
}

// windowSizes are common desktop viewports for the rendered fetcher.
var windowSizes = [][2]int{
	{1920, 1080}, {1366, 768}, {1536, 864}, {1440, 900}, {1280, 720},
}

func randomWindowSize() (int, int) {
	s := windowSizes[rand.Intn(len(windowSizes))]
	return s[0], s[1]
}

// browserTLSConfig returns a TLS config whose cipher preference order
// mimics a desktop browser.
func browserTLSConfig(insecure bool) *tls.Config {
	cipherSuites := [][]uint16{
		// Chrome-like
		{
			tls.TLS_AES_128_GCM_SHA256,
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		},
		// Firefox-like
		{
			tls.TLS_AES_128_GCM_SHA256,
			tls.TLS_CHACHA20_POLY1305_SHA256,
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		},
	}

	return &tls.Config{
		CipherSuites:       cipherSuites[rand.Intn(len(cipherSuites))],
		MinVersion:         tls.VersionTLS12,
		MaxVersion:         tls.VersionTLS13,
		CurvePreferences:   []tls.CurveID{tls.X25519, tls.CurveP256, tls.CurveP384},
		InsecureSkipVerify: insecure,
	}
}
