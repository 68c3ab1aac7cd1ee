// Package common contains shared constants, sentinel errors and helpers used
// across the signing service, its HTTP surface and the operator CLI.
package common

const (
	// AuthorizationHeader carries the bearer access token on HTTP requests.
	AuthorizationHeader = "Authorization"
	// BearerPrefix precedes the token in AuthorizationHeader.
	BearerPrefix = "Bearer "
)
