package http

// Route patterns for the verification HTTP surface.
const (
	routeVerify   = "/verify"
	routeIdentity = "/identity"
)

// Route names for mux URL building.
const (
	routeNameVerify   = "verify"
	routeNameIdentity = "identity"
)
