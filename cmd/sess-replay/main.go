package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/progrium/voice-sessions/record"
	"github.com/progrium/voice-sessions/transcript"
	"tractor.dev/toolkit-go/engine"
	"tractor.dev/toolkit-go/engine/cli"
)

func main() {
	engine.Run(Main{})
}

type Main struct {
	session *record.Session
}

func (m *Main) InitializeCLI(root *cli.Command) {
	root.Run = func(ctx *cli.Context, args []string) {
		if len(args) < 1 {
			log.Fatal("usage: sess-replay <session-dir|session-file>")
		}
		sess, err := record.Load(args[0])
		if err != nil {
			log.Fatal(err)
		}
		m.session = sess

		fmt.Printf("session %s (%s) started %s\n", sess.ID, sess.BotType, sess.Start.Format(time.RFC3339))
		for _, t := range sess.Tracks() {
			fmt.Printf("  track %s at %s: %s\n", t.TrackID, time.Duration(t.Start), t.File)
		}
		for _, e := range sess.Events(record.TypeState) {
			fmt.Printf("  %8s  state %v\n", time.Duration(e.At).Round(time.Millisecond), e.Data)
		}

		a := transcript.NewAssembler()
		for _, e := range sess.Transcript() {
			a.Handle(e)
		}
		fmt.Println()
		for _, msg := range a.Messages() {
			mark := ""
			if !msg.Complete {
				mark = " …"
			}
			fmt.Printf("[%s] %s: %s%s\n", msg.Timestamp.Format(time.TimeOnly), msg.Role, msg.Content, mark)
		}
		if a.State() == transcript.Streaming {
			os.Exit(2)
		}
	}
}
