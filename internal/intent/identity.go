package intent

import "net/http"

const identityHeader = "X-User-Id"

// callerIdentity extracts the opaque, trusted caller identity from the
// request header. An absent header maps to the default owner token, not
// an error — no authentication happens in this layer.
func callerIdentity(r *http.Request) string {
	id := r.Header.Get(identityHeader)
	if id == "" {
		return defaultOwner
	}
	return id
}

// isPrivileged reports whether identity may see resources it doesn't own.
// The platform has no operator-role concept yet; nothing is privileged.
func isPrivileged(identity string) bool {
	return false
}
