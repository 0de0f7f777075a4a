package transport

import (
	"net/http"

	"github.com/pitabwire/digiurban/model"
)

// callerFunc is a handler that runs with the authenticated caller.
type callerFunc func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext)

// withCaller resolves the RequestContext installed by BuildRequestContext
// and rejects the request when it is missing.
func withCaller(fn callerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("Contexto de requisição ausente"))
			return
		}
		fn(w, r, rctx)
	}
}
