package docker

import (
	"encoding/json"
	"net/http"

	"github.com/furukawa-project/furukawad/internal/apperr"
)

// DiagnosticAcceptHeader is the media type a client sends to opt into the
// richer {code, message, suggestion} error body instead of Docker-CLI's
// plain {"message": "..."}.
const DiagnosticAcceptHeader = "application/vnd.furukawa.diagnostic+json"

// StatusFor maps an apperr.Code to the HTTP status it is reported under.
func StatusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeContainerNotFound, apperr.CodeImageNotFound,
		apperr.CodeNetworkNotFound, apperr.CodeVolumeNotFound,
		apperr.CodeRegManifestMissing, apperr.CodeRegBlobMissing,
		apperr.CodeFSLayerNotFound:
		return http.StatusNotFound
	case apperr.CodeContainerInvalidTransition, apperr.CodeNetworkImmutable:
		return http.StatusConflict
	case apperr.CodeContainerNotModified:
		return http.StatusNotModified
	case apperr.CodeInvalidArgument, apperr.CodeImageDigestInvalid,
		apperr.CodeFSUnsafePath, apperr.CodeRegNoMatchingPlatform,
		apperr.CodeRegDigestMismatch:
		return http.StatusBadRequest
	case apperr.CodeRegAuthFailed:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a Docker-CLI-compatible {"message": "..."} body,
// or the richer diagnostic body when the client's Accept header asks for
// it, with a status derived from the error's apperr.Code (or 500 for an
// error that never went through apperr).
func WriteError(w http.ResponseWriter, acceptHeader string, err error) {
	appErr, ok := apperr.As(err)
	code := apperr.Code("INTERNAL")
	message := err.Error()
	status := http.StatusInternalServerError
	var suggestion string
	if ok {
		code = appErr.Code()
		message = appErr.Error()
		suggestion = appErr.Suggestion()
		status = StatusFor(code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if acceptHeader == DiagnosticAcceptHeader {
		json.NewEncoder(w).Encode(DiagnosticResponse{
			Code:       string(code),
			Message:    message,
			Suggestion: suggestion,
		})
		return
	}
	json.NewEncoder(w).Encode(ErrorResponse{Message: message})
}
