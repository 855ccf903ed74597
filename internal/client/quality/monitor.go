package quality

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Monitor reads RTCP receiver reports for the outbound audio track and logs
// the link quality the remote side observes. It is armed once a call reaches
// the connected state.
type Monitor struct {
	logger       *zap.SugaredLogger
	warnLossRate float64
}

func NewMonitor(logger *zap.SugaredLogger) *Monitor {
	return &Monitor{
		logger:       logger,
		warnLossRate: 0.05,
	}
}

// Watch consumes RTCP from the sender until ctx is canceled or the
// underlying transport closes. Intended to run on its own goroutine.
func (m *Monitor) Watch(ctx context.Context, sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if ctx.Err() != nil {
			return
		}

		n, _, err := sender.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			if ctx.Err() != nil {
				return
			}
			m.logger.Debugw("rtcp read failed", "error", err)
			return
		}

		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			m.logger.Debugw("dropping malformed rtcp packet", "error", err)
			continue
		}

		for _, pkt := range packets {
			m.inspect(pkt)
		}
	}
}

func (m *Monitor) inspect(pkt rtcp.Packet) {
	rr, ok := pkt.(*rtcp.ReceiverReport)
	if !ok {
		return
	}

	for _, report := range rr.Reports {
		lossRate := float64(report.FractionLost) / 256.0
		fields := []interface{}{
			"ssrc", report.SSRC,
			"loss_rate", lossRate,
			"jitter", report.Jitter,
			"total_lost", report.TotalLost,
			"ts", time.Now().Unix(),
		}
		if lossRate >= m.warnLossRate {
			m.logger.Warnw("degraded outbound audio", fields...)
		} else {
			m.logger.Debugw("outbound audio report", fields...)
		}
	}
}
