package logic

import (
	"context"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/internal/svc"
	"autopilot-engine/internal/types"
)

type SeriesLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewSeriesLogic(ctx context.Context, svcCtx *svc.ServiceContext) *SeriesLogic {
	return &SeriesLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Series returns cached bars only; it never calls the provider.
func (l *SeriesLogic) Series(req *types.SeriesRequest) (*types.SeriesReply, error) {
	instrument := strings.ToUpper(strings.TrimSpace(req.Instrument))
	interval := l.svcCtx.Autopilot.Autopilot.Interval
	series, ok := l.svcCtx.Series.Get(instrument, interval)
	if !ok || series.Len() == 0 {
		return nil, notFound("no cached bars for %s", instrument)
	}
	if req.Limit > 0 {
		series = series.Tail(req.Limit)
	}
	return &types.SeriesReply{
		Instrument: instrument,
		Interval:   interval,
		Bars:       series.Bars,
	}, nil
}
