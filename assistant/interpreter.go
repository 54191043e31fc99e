package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/cr8z/taskvoice/provider"
)

// Interpreter turns free-text commands into structured intents by asking
// the reasoning service once per command.
type Interpreter struct {
	reasoner provider.Reasoner
}

// NewInterpreter creates an Interpreter backed by the given reasoner.
func NewInterpreter(r provider.Reasoner) *Interpreter {
	return &Interpreter{reasoner: r}
}

// Interpret builds the analysis prompt from the command, the cache
// snapshot, and the current time, and parses the reply into an Intent.
// A transport failure is surfaced as-is; an unparsable reply is not a
// failure and comes back as a query intent.
func (i *Interpreter) Interpret(ctx context.Context, command string, snap Snapshot, now time.Time) (*Intent, error) {
	reply, err := i.reasoner.Complete(ctx, analysisPrompt(command, snap, now))
	if err != nil {
		return nil, fmt.Errorf("interpret command: %w", err)
	}
	return ParseIntent(reply), nil
}
