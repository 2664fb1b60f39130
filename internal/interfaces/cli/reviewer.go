package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// PromptReviewer asks about each review-required field on a terminal.
// Answers: "a" accepts the proposed value, "s" or an empty line skips,
// anything else is stored as the value.  End of input skips every
// remaining field.
type PromptReviewer struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
	eof bool
}

var _ extraction.Reviewer = (*PromptReviewer)(nil)

// NewPromptReviewer reads answers from in and writes prompts to out.
func NewPromptReviewer(in io.Reader, out io.Writer) *PromptReviewer {
	return &PromptReviewer{in: bufio.NewReader(in), out: out}
}

// Review prompts for one item.
func (r *PromptReviewer) Review(ctx context.Context, item simulant.ReviewItem) (extraction.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return extraction.Decision{}, err
	}
	if r.eof {
		return extraction.Decision{Action: extraction.ActionSkip}, nil
	}

	fmt.Fprintf(r.out, "\n%s\n", extraction.Describe(item))
	if item.Notes != "" {
		fmt.Fprintf(r.out, "  notes: %s\n", item.Notes)
	}
	fmt.Fprint(r.out, "[a]ccept, [s]kip, or type a value: ")

	line, err := r.in.ReadString('\n')
	if err == io.EOF {
		r.eof = true
	} else if err != nil {
		return extraction.Decision{}, err
	}
	return parseAnswer(line), nil
}

func parseAnswer(line string) extraction.Decision {
	answer := strings.TrimSpace(line)
	switch strings.ToLower(answer) {
	case "a", "accept", "y", "yes":
		return extraction.Decision{Action: extraction.ActionAccept}
	case "", "s", "skip", "n", "no":
		return extraction.Decision{Action: extraction.ActionSkip}
	}
	return extraction.Decision{Action: extraction.ActionSet, Value: answer}
}
