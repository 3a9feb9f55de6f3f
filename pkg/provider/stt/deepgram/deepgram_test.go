package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/freshtrack/freshtrack/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "multi", q.Get("language"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
	assertEqual(t, "endpointing", "300", q.Get("endpointing"))
	assertEqual(t, "utterance_end_ms", "1000", q.Get("utterance_end_ms"))
}

func TestBuildURL_Options(t *testing.T) {
	p, err := New("key",
		WithModel("base"),
		WithLanguage("hi"),
		WithSampleRate(48000),
		WithEndpointing(0),
		WithUtteranceEnd(1500),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "hi", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
	assertEqual(t, "utterance_end_ms", "1500", q.Get("utterance_end_ms"))
	if _, ok := q["endpointing"]; ok {
		t.Error("endpointing should be omitted when disabled")
	}
}

func TestBuildURL_LanguageOverriddenByCfg(t *testing.T) {
	p, err := New("key", WithLanguage("hi"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{Language: "bn"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "bn", u.Query().Get("language"))
}

func TestBuildURL_Keywords(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{
		Keywords: []stt.KeywordBoost{
			{Keyword: "darjan", Boost: 2},
			{Keyword: "paanch", Boost: 1.5},
		},
	})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	kws := u.Query()["keywords"]
	if len(kws) != 2 {
		t.Fatalf("expected 2 keywords, got %d: %v", len(kws), kws)
	}
	found := map[string]bool{}
	for _, kw := range kws {
		found[kw] = true
	}
	if !found["darjan:2"] || !found["paanch:1.5"] {
		t.Errorf("keywords = %v", kws)
	}
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantOK  bool
		text    string
		isFinal bool
		eou     bool
	}{
		{
			name:   "partial",
			raw:    `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"do","confidence":0.6}]}}`,
			wantOK: true,
			text:   "do",
		},
		{
			name:    "final mid utterance",
			raw:     `{"type":"Results","is_final":true,"speech_final":false,"channel":{"alternatives":[{"transcript":"do kilo"}]}}`,
			wantOK:  true,
			text:    "do kilo",
			isFinal: true,
		},
		{
			name:    "speech final",
			raw:     `{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"do kilo aloo"}]}}`,
			wantOK:  true,
			text:    "do kilo aloo",
			isFinal: true,
			eou:     true,
		},
		{
			name:    "utterance end",
			raw:     `{"type":"UtteranceEnd","channel":[0,1],"last_word_end":2.4}`,
			wantOK:  true,
			isFinal: true,
			eou:     true,
		},
		{name: "metadata", raw: `{"type":"Metadata","request_id":"abc"}`},
		{name: "speech started", raw: `{"type":"SpeechStarted","timestamp":0.5}`},
		{name: "empty alternatives", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "invalid json", raw: `{invalid`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tr, ok := parseDeepgramResponse([]byte(tc.raw))
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			assertEqual(t, "text", tc.text, tr.Text)
			if tr.IsFinal != tc.isFinal {
				t.Errorf("IsFinal = %v, want %v", tr.IsFinal, tc.isFinal)
			}
			if tr.EndOfUtterance != tc.eou {
				t.Errorf("EndOfUtterance = %v, want %v", tr.EndOfUtterance, tc.eou)
			}
		})
	}
}

func TestParseDeepgramResponse_Words(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"start": 1.5,
		"duration": 0.9,
		"channel": {
			"alternatives": [{
				"transcript": "paanch ta dim",
				"confidence": 0.91,
				"words": [
					{"word": "paanch", "start": 1.5, "end": 1.9, "confidence": 0.97},
					{"word": "ta", "start": 1.9, "end": 2.0, "confidence": 0.80},
					{"word": "dim", "start": 2.0, "end": 2.4, "confidence": 0.95}
				]
			}]
		}
	}`)

	tr, ok := parseDeepgramResponse(raw)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if tr.Confidence != 0.91 {
		t.Errorf("confidence = %f, want 0.91", tr.Confidence)
	}
	if len(tr.Words) != 3 {
		t.Fatalf("words = %d, want 3", len(tr.Words))
	}
	if tr.Words[0].Start != 1500*time.Millisecond {
		t.Errorf("word start = %v", tr.Words[0].Start)
	}
	if tr.Timestamp != 1500*time.Millisecond || tr.Duration != 900*time.Millisecond {
		t.Errorf("timing = %v/%v", tr.Timestamp, tr.Duration)
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

// ---- Streaming tests ----

// fakeDeepgram accepts one connection, waits for an audio frame and replies
// with a final followed by an UtteranceEnd event.
func fakeDeepgram(t *testing.T, gotAuth chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()

		ctx := r.Context()
		typ, _, err := c.Read(ctx)
		if err != nil || typ != websocket.MessageBinary {
			return
		}
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"aat"}]}}`))
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"aat din pore"}]}}`))
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"UtteranceEnd"}`))

		// Wait for CloseStream.
		_, _, _ = c.Read(ctx)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStartStream_RoundTrip(t *testing.T) {
	gotAuth := make(chan string, 1)
	srv := fakeDeepgram(t, gotAuth)

	p, err := New("secret", WithEndpoint(strings.Replace(srv.URL, "http", "ws", 1)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer sess.Close()

	assertEqual(t, "auth", "Token secret", <-gotAuth)

	if err := sess.SendAudio(make([]byte, 320)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case p := <-sess.Partials():
		assertEqual(t, "partial", "aat", p.Text)
	case <-ctx.Done():
		t.Fatal("timed out waiting for partial")
	}

	var finals []stt.Transcript
	for len(finals) < 2 {
		select {
		case f := <-sess.Finals():
			finals = append(finals, f)
		case <-ctx.Done():
			t.Fatalf("timed out after %d finals", len(finals))
		}
	}
	assertEqual(t, "final", "aat din pore", finals[0].Text)
	if finals[0].EndOfUtterance {
		t.Error("first final should not end the utterance")
	}
	if !finals[1].EndOfUtterance || finals[1].Text != "" {
		t.Errorf("second final = %+v, want empty end-of-utterance marker", finals[1])
	}

	if err := sess.SetKeywords(nil); !errors.Is(err, stt.ErrNotSupported) {
		t.Errorf("SetKeywords err = %v, want ErrNotSupported", err)
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	gotAuth := make(chan string, 1)
	srv := fakeDeepgram(t, gotAuth)

	p, _ := New("secret", WithEndpoint(strings.Replace(srv.URL, "http", "ws", 1)))
	sess, err := p.StartStream(context.Background(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	<-gotAuth

	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := sess.SendAudio([]byte{0}); err == nil {
		t.Error("SendAudio after Close should fail")
	}
	if _, ok := <-sess.Finals(); ok {
		t.Error("Finals should be closed after Close")
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
