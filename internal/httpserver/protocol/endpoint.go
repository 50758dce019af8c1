// Package protocol describes how endpoint groups hand their routes to the
// server's router.
package protocol

import "net/http"

// Access decides which middleware the router puts in front of a route.
type Access int

const (
	// AccessUser routes require a verified bearer token and are rate limited per user.
	AccessUser Access = iota
	// AccessPublic routes skip authentication and are rate limited per client address.
	AccessPublic
	// AccessOps routes (health, metrics) skip both authentication and rate limiting.
	AccessOps
)

type EndpointRoute struct {
	Method  string
	Path    string
	Handler http.Handler
	Access  Access
}

type Endpoint interface {
	Name() string
	Routes() []EndpointRoute
}
