package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/questlab/geminiquest/pkg/core"
	"github.com/questlab/geminiquest/pkg/gateway/apierror"
	"github.com/questlab/geminiquest/pkg/gateway/mw"
)

func invalidBody() error {
	return core.NewInvalidRequestError("invalid json body")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	coreErr, status := apierror.FromError(err, reqID)
	mw.WriteJSONError(w, status, coreErr)
}

// decodeJSON reads the request body into dst; a false return means the
// error response was already written.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		reqID, _ := mw.RequestIDFrom(r.Context())
		coreErr, status := apierror.FromError(invalidBody(), reqID)
		mw.WriteJSONError(w, status, coreErr)
		return false
	}
	return true
}
