package relay

import (
	"net/http"
	"net/textproto"
	"strings"
)

// hopHeaders apply to a single connection and are never relayed.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// requestHeaders returns the headers sent upstream. Host and Content-Length
// are left to the HTTP client, which derives them from the target URL and
// the (possibly rewritten) body.
func requestHeaders(in http.Header) http.Header {
	out := cleanHeaders(in)
	out.Del("Host")
	out.Del("Content-Length")
	return out
}

// responseHeaders returns the upstream headers relayed to the client.
func responseHeaders(in http.Header) http.Header {
	return cleanHeaders(in)
}

func cleanHeaders(in http.Header) http.Header {
	out := in.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, v := range in.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = textproto.TrimString(name); name != "" {
				out.Del(name)
			}
		}
	}
	for _, h := range hopHeaders {
		out.Del(h)
	}
	return out
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		dst[k] = append([]string(nil), vv...)
	}
}
