/*
Package resp writes the unified JSON envelope every HTTP endpoint answers with.

Successful calls carry code 0 and their data; failed calls carry the business code from
the errs package, its user-facing message and, where the error has any, structured meta.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/logx"
)

// JSONResponse is the envelope of every HTTP response body.
type JSONResponse struct {
	// Code is 0 on success, otherwise an errs code.
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`

	// Meta carries structured error details, e.g. the remaining mute time.
	Meta map[string]any `json:"meta,omitempty"`
}

// RespondJSON writes payload with the given status. A zero status means 200.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	if httpStatus == 0 {
		httpStatus = http.StatusOK
	}

	body, err := json.Marshal(payload)
	if err != nil {
		logx.FromRequest(r).Error().Err(err).Int("http_status", httpStatus).Msg("Error encoding JSON response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(httpStatus)

	if _, err := w.Write(body); err != nil {
		logx.FromRequest(r).Debug().Err(err).Msg("Client went away before the response was written")
	}
}

// RespondSuccess answers 200 with data.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusOK, JSONResponse{Message: "success", Data: data})
}

// RespondCreated answers 201 with the created resource.
func RespondCreated(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusCreated, JSONResponse{Message: "created", Data: data})
}

// RespondError answers with a business error. Errors without an HTTP status go out as 200.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	if customErr.Kind == errs.KindInternal || customErr.Kind == errs.KindTransientStore {
		logx.FromRequest(r).Warn().
			Int("code", customErr.Code).
			Str("kind", string(customErr.Kind)).
			Msg(customErr.Message)
	}

	RespondJSON(w, r, customErr.Status, JSONResponse{
		Code:    customErr.Code,
		Message: customErr.Message,
		Meta:    customErr.Meta,
	})
}

// RespondErr answers with any error returned by the core.
func RespondErr(w http.ResponseWriter, r *http.Request, err error) {
	RespondError(w, r, errs.Wrap(err))
}
