package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/internal/svc"
	"autopilot-engine/internal/types"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

type HistoryLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewHistoryLogic(ctx context.Context, svcCtx *svc.ServiceContext) *HistoryLogic {
	return &HistoryLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *HistoryLogic) History(req *types.HistoryRequest) (*types.HistoryReply, error) {
	limit := clampLimit(req.Limit)
	if l.svcCtx.Reports != nil {
		runs, err := l.svcCtx.Reports.History(l.ctx, int64(limit))
		if err == nil {
			return &types.HistoryReply{Runs: runs}, nil
		}
		l.Errorf("read history from redis: %v", err)
	}
	if l.svcCtx.Journal != nil {
		runs, err := l.svcCtx.Journal.Recent(limit)
		if err != nil {
			return nil, err
		}
		return &types.HistoryReply{Runs: runs}, nil
	}
	resp := &types.HistoryReply{}
	if last := l.svcCtx.Scheduler.Last(); last != nil {
		resp.Runs = append(resp.Runs, last)
	}
	return resp, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultHistoryLimit
	case n > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return n
	}
}
