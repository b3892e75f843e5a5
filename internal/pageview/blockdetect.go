package pageview

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot interstitial detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// DetectBlock checks a response for an interstitial served instead of the
// dealer page. Dealer sites routinely embed reCAPTCHA on lead forms, so
// captcha markers only count on small pages.
func DetectBlock(resp *http.Response, body []byte) BlockType {
	if resp == nil {
		return BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cf-challenge") {
		return BlockCloudflare
	}

	if len(body) < 8000 {
		if strings.Contains(lower, "captcha") && (strings.Contains(lower, "verify you are") || strings.Contains(lower, "are you a robot") || strings.Contains(lower, "attention required")) {
			return BlockCaptcha
		}
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "enable javascript") && !strings.Contains(lower, "<footer") {
			return BlockJSShell
		}
	}

	return BlockNone
}
