package logic

import (
	"context"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/internal/svc"
	"autopilot-engine/internal/types"
	"autopilot-engine/pkg/autopilot"
)

type SetModeLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewSetModeLogic(ctx context.Context, svcCtx *svc.ServiceContext) *SetModeLogic {
	return &SetModeLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *SetModeLogic) SetMode(req *types.ModeRequest) (*types.ModeReply, error) {
	mode := autopilot.Mode(strings.ToLower(strings.TrimSpace(req.Mode)))
	if err := l.svcCtx.Scheduler.SetMode(mode); err != nil {
		return nil, badRequest("mode must be %q or %q", autopilot.ModePropose, autopilot.ModeExecute)
	}
	l.Infof("autopilot mode set to %s", mode)
	return &types.ModeReply{Mode: string(mode)}, nil
}
