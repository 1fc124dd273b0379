package logic

import (
	"context"
	"net/http"

	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/internal/svc"
	"autopilot-engine/internal/types"
)

type AuditLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewAuditLogic(ctx context.Context, svcCtx *svc.ServiceContext) *AuditLogic {
	return &AuditLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *AuditLogic) Runs(req *types.HistoryRequest) (*types.AuditRunsReply, error) {
	if err := l.available(); err != nil {
		return nil, err
	}
	runs, err := l.svcCtx.Repos.Runs.Recent(l.ctx, clampLimit(req.Limit))
	if err != nil {
		return nil, err
	}
	return &types.AuditRunsReply{Runs: runs}, nil
}

func (l *AuditLogic) Decisions(req *types.DecisionsRequest) (*types.DecisionsReply, error) {
	if err := l.available(); err != nil {
		return nil, err
	}
	decisions, err := l.svcCtx.Repos.Runs.Decisions(l.ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	if len(decisions) == 0 {
		return nil, notFound("run %s not found", req.RunID)
	}
	return &types.DecisionsReply{RunID: req.RunID, Decisions: decisions}, nil
}

func (l *AuditLogic) available() error {
	if l.svcCtx.Repos == nil {
		return newStatusError(http.StatusServiceUnavailable, "audit store is not configured")
	}
	return nil
}
