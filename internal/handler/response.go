package handler

import (
	"errors"
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"autopilot-engine/internal/logic"
)

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps logic.StatusError to its status code; anything else is a
// 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var se *logic.StatusError
	if errors.As(err, &se) {
		httpx.WriteJsonCtx(r.Context(), w, se.Code, errorBody{Error: se.Msg})
		return
	}
	httpx.WriteJsonCtx(r.Context(), w, http.StatusInternalServerError, errorBody{Error: err.Error()})
}

func writeResult(w http.ResponseWriter, r *http.Request, resp any, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.OkJsonCtx(r.Context(), w, resp)
}

func parseRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.Parse(r, v); err != nil {
		httpx.WriteJsonCtx(r.Context(), w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return false
	}
	return true
}
