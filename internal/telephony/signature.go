package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"call-insights/pkg/logger"
)

const headerTwilioSignature = "X-Twilio-Signature"

// ComputeSignature returns Twilio's request signature: base64(HMAC-SHA1(authToken,
// fullURL followed by each POST param name and value, sorted by name)).
func ComputeSignature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		vals := slices.Clone(params[k])
		slices.Sort(vals)
		for _, v := range vals {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func ValidSignature(authToken, fullURL string, params url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	want := ComputeSignature(authToken, fullURL, params)
	return hmac.Equal([]byte(want), []byte(signature))
}

// RequireSignature rejects webhook requests that do not carry a valid
// X-Twilio-Signature. publicBaseURL is the externally visible origin
// (e.g. https://calls.example.com); when empty it is derived from the request.
func RequireSignature(authToken, publicBaseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromGin(c)
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid webhook payload", "error": err.Error()})
			return
		}
		full := requestURL(c.Request, publicBaseURL)
		if !ValidSignature(authToken, full, c.Request.PostForm, c.GetHeader(headerTwilioSignature)) {
			log.Warn("twilio signature rejected", "url", full)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Invalid signature", "error": "signature mismatch"})
			return
		}
		c.Next()
	}
}

func requestURL(r *http.Request, publicBaseURL string) string {
	if publicBaseURL != "" {
		return strings.TrimRight(publicBaseURL, "/") + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
