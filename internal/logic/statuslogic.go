package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/internal/svc"
	"autopilot-engine/internal/types"
)

type StatusLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewStatusLogic(ctx context.Context, svcCtx *svc.ServiceContext) *StatusLogic {
	return &StatusLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *StatusLogic) Status() (*types.StatusReply, error) {
	s := l.svcCtx.Scheduler
	resp := &types.StatusReply{
		State:     string(s.State()),
		Running:   s.Running(),
		Mode:      string(s.Mode()),
		Watchlist: s.Watchlist(),
	}
	if last := s.Last(); last != nil {
		resp.LastRunID = last.RunID
	}
	return resp, nil
}
