package emit

import (
	"fmt"
	"strings"

	"github.com/gofeint/gofeint/core/fingerprint"
)

// BuildRequest renders an HTTP/1.1 request carrying a session's stable
// fingerprint attributes. host is the target's host:port; path must begin
// with a slash.
func BuildRequest(attrs fingerprint.Attributes, host, path, cookie string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&b, "Host: %s\r\n", host)
	fmt.Fprintf(&b, "User-Agent: %s\r\n", attrs.UserAgent)
	fmt.Fprintf(&b, "Accept: %s\r\n", attrs.Accept)
	fmt.Fprintf(&b, "Accept-Language: %s\r\n", attrs.AcceptLanguage)
	if attrs.Referrer != "" {
		fmt.Fprintf(&b, "Referer: %s\r\n", attrs.Referrer)
	}
	if attrs.CookieEnabled && cookie != "" {
		fmt.Fprintf(&b, "Cookie: %s\r\n", cookie)
	}
	b.WriteString("Connection: keep-alive\r\n\r\n")
	return []byte(b.String())
}

// BuildSlowPost renders the header block of a POST whose body will trickle
// in as chunked pieces. Content-Length is declared up front so the target
// must hold the connection while the body arrives.
func BuildSlowPost(attrs fingerprint.Attributes, host, path string, contentLength int) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "POST %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&b, "Host: %s\r\n", host)
	fmt.Fprintf(&b, "User-Agent: %s\r\n", attrs.UserAgent)
	fmt.Fprintf(&b, "Accept: %s\r\n", attrs.Accept)
	fmt.Fprintf(&b, "Accept-Language: %s\r\n", attrs.AcceptLanguage)
	b.WriteString("Content-Type: application/x-www-form-urlencoded\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n", contentLength)
	b.WriteString("Connection: keep-alive\r\n\r\n")
	return []byte(b.String())
}
