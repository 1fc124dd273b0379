package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/internal/svc"
	"autopilot-engine/internal/types"
)

type PortfolioLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewPortfolioLogic(ctx context.Context, svcCtx *svc.ServiceContext) *PortfolioLogic {
	return &PortfolioLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *PortfolioLogic) Portfolio() (*types.PortfolioReply, error) {
	return &types.PortfolioReply{State: l.svcCtx.Ledger.Snapshot()}, nil
}
