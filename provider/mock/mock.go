// Package mock provides scripted provider implementations for testing.
package mock

import "context"

const defaultReply = "好的，我明白了。"

// Reasoner implements provider.Reasoner with scripted replies.
// It records every prompt it receives.
type Reasoner struct {
	replies []string
	idx     int

	// Prompts holds the prompts received, in order.
	Prompts []string
	// Err, when set, is returned instead of a reply.
	Err error
}

// NewReasoner creates a Reasoner that cycles through the given replies.
func NewReasoner(replies ...string) *Reasoner {
	return &Reasoner{replies: replies}
}

// Complete returns the next scripted reply, cycling through the queue.
func (r *Reasoner) Complete(_ context.Context, prompt string) (string, error) {
	r.Prompts = append(r.Prompts, prompt)
	if r.Err != nil {
		return "", r.Err
	}
	if len(r.replies) == 0 {
		return defaultReply, nil
	}
	reply := r.replies[r.idx%len(r.replies)]
	r.idx++
	return reply, nil
}

// Transcriber implements provider.Transcriber with a fixed transcript.
type Transcriber struct {
	Text string
	Err  error

	// Audio holds the last payload received.
	Audio  []byte
	Format string
}

// Transcribe records the payload and returns the scripted transcript.
func (t *Transcriber) Transcribe(_ context.Context, audio []byte, format string) (string, error) {
	t.Audio, t.Format = audio, format
	if t.Err != nil {
		return "", t.Err
	}
	if t.Text == "" {
		return "明天下午三点提醒我买菜", nil
	}
	return t.Text, nil
}

// Synthesizer implements provider.Synthesizer with a fixed byte payload.
type Synthesizer struct {
	Audio []byte
	Err   error
	Calls int
}

// Speak returns the scripted audio bytes.
func (s *Synthesizer) Speak(_ context.Context, _ string) ([]byte, error) {
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Audio == nil {
		return []byte("RIFF"), nil
	}
	return s.Audio, nil
}
