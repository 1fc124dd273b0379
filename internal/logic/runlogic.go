package logic

import (
	"context"
	"errors"
	"net/http"

	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/internal/svc"
	"autopilot-engine/internal/types"
	"autopilot-engine/pkg/autopilot"
)

type RunLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewRunLogic(ctx context.Context, svcCtx *svc.ServiceContext) *RunLogic {
	return &RunLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Run performs a synchronous run. The run outlives a disconnected client;
// its own timeout bounds it.
func (l *RunLogic) Run() (*types.RunReply, error) {
	report, err := l.svcCtx.Scheduler.RunOnce(context.WithoutCancel(l.ctx))
	if errors.Is(err, autopilot.ErrRunInProgress) {
		return nil, newStatusError(http.StatusConflict, "a run is already in progress")
	}
	if err != nil {
		return nil, err
	}
	topN := 5
	if l.svcCtx.Config.Notify.Loaded() && l.svcCtx.Config.Notify.Value.TopN > 0 {
		topN = l.svcCtx.Config.Notify.Value.TopN
	}
	l.Infof("manual run %s finished: %s", report.RunID, report.Status)
	return &types.RunReply{
		RunID:   report.RunID,
		Status:  string(report.Status),
		Summary: report.Summary(topN),
		Report:  report,
	}, nil
}
