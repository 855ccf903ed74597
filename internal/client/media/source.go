package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"voicebridge/internal/core/domain"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Source supplies the local audio track for a call.
type Source interface {
	Track() webrtc.TrackLocal
	// Start begins feeding media into the track. Blocks until ctx is
	// canceled or the source fails.
	Start(ctx context.Context) error
	Close() error
}

// UDPSource bridges an external encoder into a call: it listens for RTP
// packets on a local UDP port (GStreamer, ffmpeg and friends can publish
// there) and pumps them into a static RTP track.
type UDPSource struct {
	listener *net.UDPConn
	track    *webrtc.TrackLocalStaticRTP
	logger   *zap.SugaredLogger
}

// NewUDPSource binds the UDP port and prepares an Opus audio track.
func NewUDPSource(address string, logger *zap.SugaredLogger) (*UDPSource, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaAcquisition, err)
	}

	listener, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaAcquisition, err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "voicebridge",
	)
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaAcquisition, err)
	}

	return &UDPSource{
		listener: listener,
		track:    track,
		logger:   logger,
	}, nil
}

func (s *UDPSource) Track() webrtc.TrackLocal {
	return s.track
}

// Start reads RTP packets off the UDP socket and writes them to the track.
// Malformed packets are dropped and logged.
func (s *UDPSource) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	buf := make([]byte, 1500)
	for {
		n, _, err := s.listener.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("%w: %v", domain.ErrMediaAcquisition, err)
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			s.logger.Debugw("dropping malformed rtp packet", "error", err)
			continue
		}

		if _, err := s.track.Write(buf[:n]); err != nil {
			if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, webrtc.ErrConnectionClosed) {
				return nil
			}
			return err
		}
	}
}

func (s *UDPSource) Close() error {
	return s.listener.Close()
}
