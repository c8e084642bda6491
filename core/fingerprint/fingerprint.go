// Package fingerprint maintains stable per-session mimicry identities. A
// session profile pins one identity token for its lifetime; every attribute
// a request carries (user agent, headers, referrer, cookie posture) is
// derived deterministically from that token, so a session's traffic looks
// like one returning user rather than a stream of randomized clients.
package fingerprint

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gofeint/gofeint/core/config"
	"github.com/gofeint/gofeint/core/events"
	"github.com/gofeint/gofeint/pkg/clock"
	"github.com/gofeint/gofeint/pkg/entropy"

	"github.com/google/uuid"
)

// Category segments the attribute pools by traffic pattern.
type Category string

const (
	CategoryBrowsing  Category = "browsing"
	CategoryStreaming Category = "streaming"
	CategoryAPI       Category = "api"
)

var categories = []Category{CategoryBrowsing, CategoryStreaming, CategoryAPI}

// Profile is one application-layer session identity. It is stable for its
// lifetime and rotated after a bounded request count or age.
type Profile struct {
	IdentityToken  string
	Category       Category
	PreferredPaths []string
	CookieState    string
	CreatedAt      time.Time

	requests int
}

// Requests reports how many requests the profile has served.
func (p *Profile) Requests() int {
	return p.requests
}

// Attributes is the header-like identity tuple reused on every request
// within a session. The deliberate absence of per-request randomness is what
// keeps the traffic from looking synthetic.
type Attributes struct {
	UserAgent      string
	AcceptLanguage string
	Accept         string
	Referrer       string
	CookieEnabled  bool
}

// Bounded attribute pools, segmented by category where patterns differ.
var userAgentPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

var acceptLanguagePool = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.8",
	"de-DE,de;q=0.9,en;q=0.7",
	"fr-FR,fr;q=0.9,en;q=0.6",
	"es-ES,es;q=0.9,en;q=0.5",
}

var acceptByCategory = map[Category]string{
	CategoryBrowsing:  "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	CategoryStreaming: "video/webm,video/mp4,application/x-mpegURL,*/*;q=0.5",
	CategoryAPI:       "application/json, text/plain, */*",
}

var referrerPool = []string{
	"",
	"https://www.google.com/",
	"https://duckduckgo.com/",
	"https://news.ycombinator.com/",
	"https://www.bing.com/",
}

var pathsByCategory = map[Category][]string{
	CategoryBrowsing:  {"/", "/products", "/search", "/about", "/blog", "/contact"},
	CategoryStreaming: {"/stream", "/media/playlist.m3u8", "/media/segment", "/live"},
	CategoryAPI:       {"/api/v1/items", "/api/v1/users", "/api/v1/search", "/api/v1/status"},
}

// ForSession derives the attribute tuple for a profile. Selection is an
// HMAC-SHA256 walk over the identity token, so the same profile always maps
// to the same attributes.
func ForSession(p *Profile) Attributes {
	return Attributes{
		UserAgent:      userAgentPool[derive(p.IdentityToken, "ua", len(userAgentPool))],
		AcceptLanguage: acceptLanguagePool[derive(p.IdentityToken, "lang", len(acceptLanguagePool))],
		Accept:         acceptByCategory[p.Category],
		Referrer:       referrerPool[derive(p.IdentityToken, "ref", len(referrerPool))],
		CookieEnabled:  derive(p.IdentityToken, "cookie", 4) != 0, // most real clients carry cookies
	}
}

// derive indexes a pool of size n from the HMAC of the token under a
// per-attribute label.
func derive(token, label string, n int) int {
	mac := hmac.New(sha256.New, []byte(token))
	mac.Write([]byte(label))
	sum := mac.Sum(nil)
	return int(binary.BigEndian.Uint32(sum[:4]) % uint32(n))
}

// Manager owns the live profile for one vector and rotates it on the
// configured request-count and age bounds. Not safe for concurrent use.
type Manager struct {
	cfg  config.Sessions
	rng  *entropy.Source
	clk  clock.Clock
	sink events.Sink

	current *Profile
}

// NewManager builds a session manager. Profiles are created lazily on first
// use.
func NewManager(cfg config.Sessions, rng *entropy.Source, clk clock.Clock, sink events.Sink) (*Manager, error) {
	if rng == nil {
		return nil, fmt.Errorf("session manager requires an entropy source")
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Manager{cfg: cfg, rng: rng, clk: clk, sink: sink}, nil
}

// Current returns the live profile, creating or rotating it as the bounds
// require.
func (m *Manager) Current() *Profile {
	if m.current == nil {
		m.current = m.newProfile()
		return m.current
	}
	if m.current.requests >= m.cfg.RotateAfterRequests ||
		m.clk.Since(m.current.CreatedAt) >= m.cfg.RotateAfter {
		m.Rotate()
	}
	return m.current
}

// OnRequest marks one request served by the profile.
func (m *Manager) OnRequest(p *Profile) {
	p.requests++
}

// Rotate discards the live profile and starts a new one.
func (m *Manager) Rotate() {
	old := m.current
	m.current = m.newProfile()
	details := map[string]interface{}{
		"identity": m.current.IdentityToken,
		"category": string(m.current.Category),
	}
	if old != nil {
		details["previous_requests"] = old.requests
	}
	events.Emit(m.sink, "fingerprint", events.TypeSessionRotation, details)
}

func (m *Manager) newProfile() *Profile {
	category := entropy.Pick(m.rng, categories)
	token := uuid.New().String()
	paths := pathsByCategory[category]

	// A session prefers a small stable subset of the category's paths.
	subset := make([]string, 0, 3)
	for _, idx := range m.rng.Perm(len(paths))[:3] {
		subset = append(subset, paths[idx])
	}

	return &Profile{
		IdentityToken:  token,
		Category:       category,
		PreferredPaths: subset,
		CookieState:    fmt.Sprintf("sid=%s", token[:8]),
		CreatedAt:      m.clk.Now(),
	}
}
