package handler

import (
	"net/http"

	"autopilot-engine/internal/logic"
	"autopilot-engine/internal/svc"
	"autopilot-engine/internal/types"
)

func RunHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := logic.NewRunLogic(r.Context(), svcCtx)
		resp, err := l.Run()
		writeResult(w, r, resp, err)
	}
}

func StatusHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := logic.NewStatusLogic(r.Context(), svcCtx)
		resp, err := l.Status()
		writeResult(w, r, resp, err)
	}
}

func ReportHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := logic.NewReportLogic(r.Context(), svcCtx)
		resp, err := l.Report()
		writeResult(w, r, resp, err)
	}
}

func HistoryHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.HistoryRequest
		if !parseRequest(w, r, &req) {
			return
		}
		l := logic.NewHistoryLogic(r.Context(), svcCtx)
		resp, err := l.History(&req)
		writeResult(w, r, resp, err)
	}
}

func PortfolioHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := logic.NewPortfolioLogic(r.Context(), svcCtx)
		resp, err := l.Portfolio()
		writeResult(w, r, resp, err)
	}
}

func SetModeHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.ModeRequest
		if !parseRequest(w, r, &req) {
			return
		}
		l := logic.NewSetModeLogic(r.Context(), svcCtx)
		resp, err := l.SetMode(&req)
		writeResult(w, r, resp, err)
	}
}

func AuditRunsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.HistoryRequest
		if !parseRequest(w, r, &req) {
			return
		}
		l := logic.NewAuditLogic(r.Context(), svcCtx)
		resp, err := l.Runs(&req)
		writeResult(w, r, resp, err)
	}
}

func AuditDecisionsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.DecisionsRequest
		if !parseRequest(w, r, &req) {
			return
		}
		l := logic.NewAuditLogic(r.Context(), svcCtx)
		resp, err := l.Decisions(&req)
		writeResult(w, r, resp, err)
	}
}

func SeriesHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SeriesRequest
		if !parseRequest(w, r, &req) {
			return
		}
		l := logic.NewSeriesLogic(r.Context(), svcCtx)
		resp, err := l.Series(&req)
		writeResult(w, r, resp, err)
	}
}
