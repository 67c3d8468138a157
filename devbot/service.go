// Package devbot is a local stand-in for a voice backend. It hands out
// rooms over HTTP, offers an Opus audio track and a data channel over
// websocket signaling, and plays a scripted conversation.
package devbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"github.com/rs/xid"

	"github.com/progrium/voice-sessions/connect"
	"github.com/progrium/voice-sessions/local"
)

type Service struct {
	Addr   string
	Script Script
	Log    *slog.Logger
	// RTPPort, when set, takes the bot's audio from Opus RTP on this UDP
	// port instead of generated tones.
	RTPPort int

	upgrader websocket.Upgrader
}

func (s *Service) init() error {
	if s.Log == nil {
		s.Log = slog.Default().With("component", "devbot")
	}
	if s.Addr == "" {
		s.Addr = os.Getenv("DEVBOT_ADDR")
	}
	if s.Addr == "" {
		s.Addr = ":8088"
	}
	if s.RTPPort == 0 {
		if v := os.Getenv("DEVBOT_RTP_PORT"); v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("DEVBOT_RTP_PORT: %w", err)
			}
			s.RTPPort = port
		}
	}
	if len(s.Script.Turns) == 0 {
		s.Script = DefaultScript()
		if path := os.Getenv("DEVBOT_SCRIPT"); path != "" {
			script, err := LoadScript(path)
			if err != nil {
				return err
			}
			s.Script = script
		}
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return nil
}

func (s *Service) Serve(ctx context.Context) {
	if err := s.init(); err != nil {
		s.Log.Error("devbot", "err", err)
		os.Exit(1)
	}
	srv := &http.Server{Addr: s.Addr, Handler: s.Handler(ctx)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.Log.Info("listening", "addr", s.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.Log.Error("listen", "err", err)
		os.Exit(1)
	}
}

// Handler serves /connect, /health and the /session signaling endpoint.
func (s *Service) Handler(ctx context.Context) http.Handler {
	if s.Log == nil {
		s.Log = slog.Default().With("component", "devbot")
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/connect", s.handleConnect)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.Log.Warn("upgrade", "err", err)
			return
		}
		defer conn.Close()
		log := s.Log.With("bot", r.URL.Query().Get("bot"), "remote", r.RemoteAddr)
		if err := s.runSession(ctx, conn, log); err != nil {
			log.Warn("session ended", "err", err)
			return
		}
		log.Info("session ended")
	})
	return mux
}

func (s *Service) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"detail": "Method Not Allowed"})
		return
	}
	var req connect.Request
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": fmt.Sprintf("Invalid request: %v", err)})
			return
		}
	}
	botType := req.BotType
	if botType == "" {
		botType = "intake"
	}
	writeJSON(w, http.StatusOK, connect.Credentials{
		RoomURL: fmt.Sprintf("ws://%s/session?bot=%s", r.Host, botType),
		Token:   xid.New().String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Service) runSession(ctx context.Context, conn *websocket.Conn, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	defer pc.Close()

	var wsMu sync.Mutex
	send := func(sig local.Signal) error {
		wsMu.Lock()
		defer wsMu.Unlock()
		return conn.WriteJSON(sig)
	}

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  1,
	}, "audio", "devbot")
	if err != nil {
		return err
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		return err
	}
	go processRTCP(sender, log)

	var voice Voice = mutedVoice{}
	if s.RTPPort != 0 {
		go func() {
			if err := forwardRTP(ctx, track, s.RTPPort); err != nil {
				log.Warn("rtp forward", "port", s.RTPPort, "err", err)
			}
		}()
	} else {
		voice, err = newToneVoice(track)
		if err != nil {
			return err
		}
	}

	dc, err := pc.CreateDataChannel("rtvi", nil)
	if err != nil {
		return err
	}
	dc.OnOpen(func() {
		b := &bot{script: s.Script, out: dc, voice: voice, now: time.Now}
		go func() {
			if err := b.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("script", "err", err)
			}
		}()
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		b, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		if err := send(local.Signal{Event: local.EventCandidate, Data: string(b)}); err != nil {
			log.Warn("send candidate", "err", err)
		}
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		log.Info("connection state", "state", st.String())
		if st == webrtc.PeerConnectionStateFailed {
			cancel()
			conn.Close()
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return err
	}
	b, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	if err := send(local.Signal{Event: local.EventOffer, Data: string(b)}); err != nil {
		return err
	}

	for {
		var msg local.Signal
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		switch msg.Event {
		case local.EventAnswer:
			var answer webrtc.SessionDescription
			if err := json.Unmarshal([]byte(msg.Data), &answer); err != nil {
				return err
			}
			if err := pc.SetRemoteDescription(answer); err != nil {
				return err
			}
		case local.EventCandidate:
			var candidate webrtc.ICECandidateInit
			if err := json.Unmarshal([]byte(msg.Data), &candidate); err != nil {
				return err
			}
			if err := pc.AddICECandidate(candidate); err != nil {
				return err
			}
		}
	}
}

// Read incoming RTCP packets so interceptors such as NACK run.
func processRTCP(sender *webrtc.RTPSender, log *slog.Logger) {
	for {
		pkts, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			rr, ok := pkt.(*rtcp.ReceiverReport)
			if !ok {
				continue
			}
			for _, r := range rr.Reports {
				log.Debug("receiver report", "ssrc", r.SSRC, "lost", r.TotalLost, "jitter", r.Jitter)
			}
		}
	}
}
