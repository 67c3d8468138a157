package devbot

import (
	"context"
	"fmt"
	"net"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media/samplebuilder"
)

// mutedVoice sends no audio; the track is fed from elsewhere.
type mutedVoice struct{}

func (mutedVoice) Speak(ctx context.Context, text string) error { return ctx.Err() }

// forwardRTP listens for Opus RTP packets on a UDP port and writes them to
// track until ctx is done. This lets an external process such as
// `ffmpeg -f rtp` or gstreamer supply the bot's voice.
func forwardRTP(ctx context.Context, track *webrtc.TrackLocalStaticSample, port int) error {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	defer listener.Close()

	sampleBuffer := samplebuilder.New(10, &codecs.OpusPacket{}, 48000)
	inbound := make([]byte, 1500) // UDP MTU
	for {
		n, _, err := listener.ReadFrom(inbound)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("rtp read: %w", err)
		}

		packet := &rtp.Packet{}
		if err := packet.Unmarshal(inbound[:n]); err != nil {
			continue
		}
		sampleBuffer.Push(packet)
		for {
			sample := sampleBuffer.Pop()
			if sample == nil {
				break
			}
			if err := track.WriteSample(*sample); err != nil {
				return err
			}
		}
	}
}
