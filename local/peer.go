package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
)

// Signal is one websocket signaling message. Data holds a JSON encoded
// webrtc.SessionDescription or webrtc.ICECandidateInit.
type Signal struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

const (
	EventOffer     = "offer"
	EventAnswer    = "answer"
	EventCandidate = "candidate"
)

// Peer is a receive-only audio peer that answers offers from a remote
// backend over a websocket.
type Peer struct {
	*webrtc.PeerConnection
	ws   *websocket.Conn
	wsMu sync.Mutex
	log  *slog.Logger
}

func NewPeer(ctx context.Context, url string) (*Peer, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	rtcpeer, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		conn.Close()
		return nil, err
	}

	peer := &Peer{
		PeerConnection: rtcpeer,
		ws:             conn,
		log:            slog.Default().With("component", "peer"),
	}

	if _, err := rtcpeer.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		peer.Close()
		return nil, err
	}

	rtcpeer.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		b, err := json.Marshal(c.ToJSON())
		if err != nil {
			peer.log.Warn("marshal candidate", "err", err)
			return
		}
		if err := peer.WriteSignal(Signal{Event: EventCandidate, Data: string(b)}); err != nil {
			peer.log.Warn("send candidate", "err", err)
		}
	})

	return peer, nil
}

// WriteSignal sends one signaling message.
func (p *Peer) WriteSignal(s Signal) error {
	p.wsMu.Lock()
	defer p.wsMu.Unlock()
	return p.ws.WriteJSON(s)
}

// HandleSignals answers offers and applies remote candidates until the
// websocket closes.
func (p *Peer) HandleSignals() error {
	for {
		var msg Signal
		if err := p.ws.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		switch msg.Event {
		case EventOffer:
			var offer webrtc.SessionDescription
			if err := json.Unmarshal([]byte(msg.Data), &offer); err != nil {
				return fmt.Errorf("offer: %w", err)
			}
			if err := p.SetRemoteDescription(offer); err != nil {
				return fmt.Errorf("offer: %w", err)
			}
			answer, err := p.CreateAnswer(nil)
			if err != nil {
				return fmt.Errorf("answer: %w", err)
			}
			if err := p.SetLocalDescription(answer); err != nil {
				return fmt.Errorf("answer: %w", err)
			}
			b, err := json.Marshal(answer)
			if err != nil {
				return err
			}
			if err := p.WriteSignal(Signal{Event: EventAnswer, Data: string(b)}); err != nil {
				return err
			}
		case EventCandidate:
			var candidate webrtc.ICECandidateInit
			if err := json.Unmarshal([]byte(msg.Data), &candidate); err != nil {
				return fmt.Errorf("candidate: %w", err)
			}
			if err := p.AddICECandidate(candidate); err != nil {
				return fmt.Errorf("candidate: %w", err)
			}
		default:
			p.log.Debug("unknown signal", "event", msg.Event)
		}
	}
}

func (p *Peer) Close() (err error) {
	err = p.PeerConnection.Close()
	if werr := p.ws.Close(); err == nil {
		err = werr
	}
	return
}

// DrainRTCP reads RTCP from a receiver until it closes. Interceptors such
// as NACK only run while RTCP is being read.
func DrainRTCP(receiver *webrtc.RTPReceiver, onReport func(*rtcp.SenderReport)) {
	for {
		pkts, _, err := receiver.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			if sr, ok := pkt.(*rtcp.SenderReport); ok && onReport != nil {
				onReport(sr)
			}
		}
	}
}
