package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/internal/svc"
	"autopilot-engine/pkg/autopilot"
)

type ReportLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewReportLogic(ctx context.Context, svcCtx *svc.ServiceContext) *ReportLogic {
	return &ReportLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Report returns the newest run: in memory first, then Redis, then the
// journal, so a restarted process still answers.
func (l *ReportLogic) Report() (*autopilot.RunReport, error) {
	if last := l.svcCtx.Scheduler.Last(); last != nil {
		return last, nil
	}
	if l.svcCtx.Reports != nil {
		last, err := l.svcCtx.Reports.Last(l.ctx)
		if err != nil {
			l.Errorf("read last run from redis: %v", err)
		} else if last != nil {
			return last, nil
		}
	}
	if l.svcCtx.Journal != nil {
		recent, err := l.svcCtx.Journal.Recent(1)
		if err != nil {
			return nil, err
		}
		if len(recent) > 0 {
			return recent[0], nil
		}
	}
	return nil, notFound("no run has finished yet")
}
