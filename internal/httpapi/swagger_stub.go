//go:build !swagger

package httpapi

import "github.com/go-chi/chi/v5"

// MountSwagger leaves /swagger/ unrouted; build with -tags=swagger to serve
// the API docs.
func MountSwagger(chi.Router) {}
