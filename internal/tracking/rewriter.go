package tracking

import (
	"fmt"
	"net/url"
	"strings"
)

// Rewriter transforms rendered email HTML so every outbound link passes
// through the click-redirect endpoint and an open pixel is present. All
// transforms are pure functions of their inputs.
type Rewriter struct {
	baseURL string
	signer  *Signer
}

// NewRewriter creates a rewriter rooted at baseURL (no trailing slash).
func NewRewriter(baseURL string, signer *Signer) *Rewriter {
	return &Rewriter{baseURL: strings.TrimRight(baseURL, "/"), signer: signer}
}

// ClickURL builds the signed redirect URL for a target link.
func (rw *Rewriter) ClickURL(token, target string) string {
	return fmt.Sprintf("%s/track/click/%s?url=%s&sig=%s",
		rw.baseURL, token, url.QueryEscape(target), rw.signer.Sign(token, target))
}

// OpenPixelURL builds the open-pixel URL for a token.
func (rw *Rewriter) OpenPixelURL(token string) string {
	return fmt.Sprintf("%s/track/open/%s.png", rw.baseURL, token)
}

// UnsubscribeURL builds a signed unsubscribe link. These are excluded from
// click rewriting so opt-out never depends on a ledger write.
func (rw *Rewriter) UnsubscribeURL(email, emailType string) string {
	return fmt.Sprintf("%s/unsubscribe?email=%s&type=%s&tok=%s",
		rw.baseURL, url.QueryEscape(email), url.QueryEscape(emailType),
		rw.signer.SignUnsubscribe(email, emailType))
}

// RewriteLinks replaces every href with a signed click-redirect URL.
// mailto:, tel:, fragment, and already-tracked links are left unchanged, so
// applying it twice produces the same output as applying it once.
func (rw *Rewriter) RewriteLinks(html, token string) string {
	var b strings.Builder
	b.Grow(len(html))

	rest := html
	for {
		i := strings.Index(rest, `href="`)
		if i == -1 {
			b.WriteString(rest)
			break
		}
		start := i + len(`href="`)
		end := strings.Index(rest[start:], `"`)
		if end == -1 {
			b.WriteString(rest)
			break
		}

		target := rest[start : start+end]
		b.WriteString(rest[:start])
		if rw.skipLink(target) {
			b.WriteString(target)
		} else {
			b.WriteString(rw.ClickURL(token, target))
		}
		rest = rest[start+end:]
	}
	return b.String()
}

func (rw *Rewriter) skipLink(target string) bool {
	switch {
	case strings.HasPrefix(target, "mailto:"),
		strings.HasPrefix(target, "tel:"),
		strings.HasPrefix(target, "#"):
		return true
	case strings.HasPrefix(target, rw.baseURL+"/track/click/"):
		// Already wrapped.
		return true
	case strings.HasPrefix(target, rw.baseURL+"/unsubscribe"):
		return true
	}
	return false
}

// InjectOpenPixel appends an invisible 1x1 image immediately before the
// closing </body> tag, or at the end of fragments that lack one.
func (rw *Rewriter) InjectOpenPixel(html, token string) string {
	pixel := fmt.Sprintf(`<img src="%s" width="1" height="1" style="display:none">`, rw.OpenPixelURL(token))
	if i := strings.LastIndex(html, "</body>"); i != -1 {
		return html[:i] + pixel + html[i:]
	}
	return html + pixel
}

// Apply rewrites links and then injects the open pixel. Order matters: the
// pixel has no href so it must be added after link rewriting.
func (rw *Rewriter) Apply(html, token string) string {
	return rw.InjectOpenPixel(rw.RewriteLinks(html, token), token)
}
