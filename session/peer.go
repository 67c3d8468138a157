package session

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/gopxl/beep"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"

	"github.com/progrium/voice-sessions/local"
	"github.com/progrium/voice-sessions/metrics"
	"github.com/progrium/voice-sessions/trackstreamer"
)

// RTPSink receives a copy of a remote track's packets.
type RTPSink interface {
	trackstreamer.RTPWriter
	io.Closer
}

type PeerOptions struct {
	Format   beep.Format
	Playback bool
	// Record returns a sink for the raw packets of a remote track.
	Record func(trackID string) (RTPSink, error)
}

type peerConn struct {
	*local.Peer

	mu    sync.Mutex
	sinks []io.Closer
}

func (c *peerConn) Run() error {
	return c.HandleSignals()
}

func (c *peerConn) Close() error {
	err := c.Peer.Close()
	c.mu.Lock()
	sinks := c.sinks
	c.sinks = nil
	c.mu.Unlock()
	for _, s := range sinks {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (c *peerConn) addSink(s io.Closer) {
	c.mu.Lock()
	c.sinks = append(c.sinks, s)
	c.mu.Unlock()
}

// DialPeer returns a Dialer that answers a WebRTC offer over websocket
// signaling and reports the remote audio track and data channel messages.
func DialPeer(opts PeerOptions) Dialer {
	return func(ctx context.Context, url string, h Handlers) (Conn, error) {
		peer, err := local.NewPeer(ctx, url)
		if err != nil {
			return nil, err
		}
		c := &peerConn{Peer: peer}
		log := slog.Default().With("component", "peer")

		peer.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
			log.Debug("connection state", "state", st.String())
			switch st {
			case webrtc.PeerConnectionStateConnected:
				h.Connected()
			case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
				h.Closed()
			}
		})

		peer.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
			if remote.Kind() != webrtc.RTPCodecTypeAudio {
				return
			}
			log.Info("remote track", "id", remote.ID(), "codec", remote.Codec().MimeType)
			go local.DrainRTCP(receiver, func(*rtcp.SenderReport) {
				metrics.SenderReports.Inc()
			})

			t := newRemoteTrack(remote, opts.Format)
			t.playback = opts.Playback
			t.ended = func(err error) {
				if err != nil {
					log.Warn("remote track failed", "id", remote.ID(), "err", err)
				}
				h.TrackEnded(t)
			}
			if opts.Record != nil {
				sink, err := opts.Record(remote.ID())
				if err != nil {
					log.Warn("track recording disabled", "id", remote.ID(), "err", err)
				} else {
					t.sink = sink
					c.addSink(sink)
				}
			}
			h.Track(t)
		})

		peer.OnDataChannel(func(dc *webrtc.DataChannel) {
			log.Debug("data channel", "label", dc.Label())
			dc.OnMessage(func(msg webrtc.DataChannelMessage) {
				h.Message(msg.Data)
			})
		})

		return c, nil
	}
}
