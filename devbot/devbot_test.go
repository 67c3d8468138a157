package devbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gotest.tools/assert"

	"github.com/progrium/voice-sessions/connect"
	"github.com/progrium/voice-sessions/rtvi"
	"github.com/progrium/voice-sessions/transcript"
)

type recorder struct {
	msgs []string
}

func (r *recorder) SendText(s string) error {
	r.msgs = append(r.msgs, s)
	return nil
}

type silentVoice struct {
	spoken []string
}

func (v *silentVoice) Speak(ctx context.Context, text string) error {
	v.spoken = append(v.spoken, text)
	return nil
}

func TestBotPlaysScript(t *testing.T) {
	out := &recorder{}
	voice := &silentVoice{}
	b := &bot{
		script: Script{Turns: []Turn{
			{User: "hello", Bot: []string{"Hi", "there"}},
			{User: "bye", Bot: []string{"Goodbye"}},
		}},
		out:   out,
		voice: voice,
		now:   time.Now,
	}
	require.NoError(t, b.run(context.Background()))

	ready, err := rtvi.Decode([]byte(out.msgs[0]))
	require.NoError(t, err)
	assert.Equal(t, rtvi.TypeBotReady, ready.Type)

	a := transcript.NewAssembler()
	p := transcript.NewPlayback()
	for _, raw := range out.msgs[1:] {
		m, err := rtvi.Decode([]byte(raw))
		require.NoError(t, err)
		e, ok, err := m.Event()
		require.NoError(t, err)
		require.True(t, ok, m.Type)
		a.Handle(e)
		p.Handle(e)
	}

	var got []string
	for _, m := range a.Messages() {
		got = append(got, string(m.Role)+":"+m.Content)
		assert.Assert(t, m.Complete)
	}
	assert.DeepEqual(t, []string{"user:hello", "assistant:Hi there", "user:bye", "assistant:Goodbye"}, got)
	assert.DeepEqual(t, []string{"Hi", "there", "Goodbye"}, voice.spoken)
	assert.Assert(t, !p.Progress().Speaking)
}

func TestBotStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &bot{
		script: Script{Turns: []Turn{{User: "x", Bot: []string{"y"}}}, ChunkDelay: time.Hour},
		out:    &recorder{},
		voice:  &silentVoice{},
		now:    time.Now,
	}
	require.ErrorIs(t, b.run(ctx), context.Canceled)
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
turns:
  - user: what's the weather
    bot: ["Sunny ", "all day."]
chunk_delay: 50ms
loop: true
`), 0644))
	s, err := LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, 1, len(s.Turns))
	assert.Equal(t, 50*time.Millisecond, s.ChunkDelay)
	assert.Equal(t, DefaultScript().Pause, s.Pause)
	assert.Assert(t, s.Loop)

	require.NoError(t, os.WriteFile(path, []byte("turns: []\n"), 0644))
	_, err = LoadScript(path)
	assert.ErrorContains(t, err, "at least one turn")
}

func TestConnectEndpoint(t *testing.T) {
	s := &Service{}
	srv := httptest.NewServer(s.Handler(context.Background()))
	defer srv.Close()

	c := &connect.Client{URL: srv.URL + "/connect"}
	creds, err := c.Connect(context.Background(), connect.Request{BotType: "shawarma"})
	require.NoError(t, err)
	assert.Assert(t, strings.HasSuffix(creds.RoomURL, "/session?bot=shawarma"), creds.RoomURL)
	assert.Assert(t, creds.Token != "")
	require.NoError(t, c.Health(context.Background()))

	resp, err := http.Get(srv.URL + "/connect")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	var detail map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	assert.Equal(t, "Method Not Allowed", detail["detail"])
}

func TestLoadScriptTestdata(t *testing.T) {
	s, err := LoadScript(filepath.Join("testdata", "support.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2, len(s.Turns))
	assert.Equal(t, 80*time.Millisecond, s.ChunkDelay)
	assert.Equal(t, 2*time.Second, s.Pause)
	assert.DeepEqual(t, []string{"Thanks.", "It shipped yesterday", "and arrives tomorrow."}, s.Turns[1].Bot)
}
