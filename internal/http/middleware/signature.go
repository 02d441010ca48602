package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/jmehdipour/sms-relay/internal/twiml"
)

// TwilioSignature computes the X-Twilio-Signature value: base64 HMAC-SHA1,
// keyed by the auth token, over the full request URL followed by every POST
// parameter name and value in sorted order.
func TwilioSignature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(fullURL)
	for _, k := range keys {
		vals := append([]string(nil), params[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			sb.WriteString(k)
			sb.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(sb.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// TwilioSignatureMiddleware rejects webhook calls whose signature does not
// match. publicURL is the URL as the provider sees it; when empty it is
// rebuilt from the request, which only works without a rewriting proxy.
func TwilioSignatureMiddleware(authToken, publicURL string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sig := c.Request().Header.Get("X-Twilio-Signature")
			if sig == "" {
				return c.Blob(http.StatusForbidden, twiml.ContentType, twiml.Render("Missing signature"))
			}

			if _, err := c.FormParams(); err != nil {
				return c.Blob(http.StatusBadRequest, twiml.ContentType, twiml.Render("Invalid form"))
			}
			// the query string is signed as part of the URL, not as parameters
			params := c.Request().PostForm

			u := publicURL
			if u == "" {
				u = c.Scheme() + "://" + c.Request().Host + c.Request().URL.RequestURI()
			}

			want := TwilioSignature(authToken, u, params)
			if !hmac.Equal([]byte(want), []byte(sig)) {
				return c.Blob(http.StatusForbidden, twiml.ContentType, twiml.Render("Invalid signature"))
			}
			return next(c)
		}
	}
}
