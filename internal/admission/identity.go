package admission

import (
	"net"
	"net/http"
	"strings"
)

// ForwardedForHeader is the header a reverse proxy uses to pass the client address.
const ForwardedForHeader = "X-Forwarded-For"

// ClientIdentity derives the rate-limit identity of the caller: the first
// entry of X-Forwarded-For if present, otherwise the host of the direct
// connection.
//
// The forwarded header is trusted as-is. Deployments must sit behind a reverse
// proxy that overwrites it; exposed directly, any client can pick its own
// identity and bypass the cooldown.
func ClientIdentity(r *http.Request) string {
	if forwarded := r.Header.Get(ForwardedForHeader); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
