package server

import (
	"errors"
	"net/http"

	"github.com/bytedance/sonic"

	"brokergate/internal/locker"
	"brokergate/internal/logger"
	"brokergate/internal/store"
	"brokergate/internal/tools"
)

// Responses mirror the broker's own envelope so callers parse one shape for
// local and proxied results alike.
type okEnvelope struct {
	S string      `json:"s"`
	D interface{} `json:"d"`
}

type errEnvelope struct {
	S      string `json:"s"`
	ErrMsg string `json:"errmsg"`
}

func respond(w http.ResponseWriter, status int, d interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body, err := sonic.Marshal(okEnvelope{S: "ok", D: d})
	if err != nil {
		return
	}
	w.Write(body) //nolint:errcheck
}

func respondErr(w http.ResponseWriter, log logger.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s: request failed", err)
	} else {
		log.Debugf("%s: request rejected", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body, merr := sonic.Marshal(errEnvelope{S: "error", ErrMsg: err.Error()})
	if merr != nil {
		return
	}
	w.Write(body) //nolint:errcheck
}

// statusFor maps the gateway's error taxonomy onto facade status codes.
// Upstream rejections keep the broker's own status.
func statusFor(err error) int {
	var uerr *locker.UpstreamError
	switch {
	case errors.Is(err, locker.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, locker.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, locker.ErrAccountMismatch), errors.Is(err, store.ErrNotFound), errors.Is(err, tools.ErrUnknownTool):
		return http.StatusNotFound
	case errors.As(err, &uerr):
		return uerr.StatusCode
	case errors.Is(err, locker.ErrTransient):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
