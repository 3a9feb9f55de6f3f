// Package mock provides a test double for the tts.Provider interface.
//
//	p := &mock.Provider{Chunks: [][]byte{[]byte("pcm")}}
//	audio, _ := p.SynthesizeStream(ctx, textCh, voice)
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/freshtrack/freshtrack/pkg/provider/tts"
)

// SynthesizeCall records one SynthesizeStream invocation. Text is filled in
// once the caller closes the text channel.
type SynthesizeCall struct {
	Voice tts.VoiceProfile
	Text  string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks is emitted on every audio channel after the text channel is
	// closed.
	Chunks [][]byte

	// SynthesizeErr, if non-nil, is returned from SynthesizeStream.
	SynthesizeErr error

	// Block, if non-nil, is received from before audio is emitted. Tests
	// use it to hold synthesis open until the context is cancelled.
	Block chan struct{}

	// Voices is returned by ListVoices.
	Voices []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned from ListVoices.
	ListVoicesErr error

	calls []*SynthesizeCall
}

// SynthesizeStream records the call, collects the text fragments and then
// emits Chunks.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	call := &SynthesizeCall{Voice: voice}
	p.calls = append(p.calls, call)
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := append([][]byte(nil), p.Chunks...)
	block := p.Block
	p.mu.Unlock()

	out := make(chan []byte, len(chunks))
	go func() {
		defer close(out)
		var sb strings.Builder
	collect:
		for {
			select {
			case frag, ok := <-text:
				if !ok {
					break collect
				}
				sb.WriteString(frag)
			case <-ctx.Done():
				return
			}
		}
		p.mu.Lock()
		call.Text = sb.String()
		p.mu.Unlock()

		if block != nil {
			select {
			case <-block:
			case <-ctx.Done():
				return
			}
		}
		for _, c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ListVoices returns Voices, ListVoicesErr.
func (p *Provider) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Voices, p.ListVoicesErr
}

// Calls returns copies of the recorded SynthesizeStream calls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.calls))
	for i, c := range p.calls {
		out[i] = *c
	}
	return out
}

var _ tts.Provider = (*Provider)(nil)
