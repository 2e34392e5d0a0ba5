package annotate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/apichanges/internal/model"
)

// ErrQuit is returned by Run when the reviewer stops before the last issue.
// Progress has been saved by then.
var ErrQuit = errors.New("annotation paused")

// Action is one reviewer decision.
type Action byte

const (
	Agree    Action = 'a'
	Disagree Action = 'd'
	Skip     Action = 's'
	Quit     Action = 'q'
)

// ParseAction maps reviewer input to an action.
func ParseAction(s string) (Action, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 1 {
		return 0, false
	}
	switch a := Action(s[0]); a {
	case Agree, Disagree, Skip, Quit:
		return a, true
	}
	return 0, false
}

// Prompter asks the reviewer for a decision on one issue. Ask returns
// ctx.Err() when ctx is cancelled while waiting.
type Prompter interface {
	Ask(ctx context.Context, issue model.Issue, index, total int) (Action, error)
}

// Session drives a document through the reviewer's decisions, saving after
// every transition.
type Session struct {
	doc      *Document
	output   string
	prompter Prompter
	out      io.Writer
}

// NewSession creates a session writing to output. Messages go to out.
func NewSession(doc *Document, output string, prompter Prompter, out io.Writer) *Session {
	return &Session{doc: doc, output: output, prompter: prompter, out: out}
}

// Run prompts for every issue from the saved cursor on. It returns ErrQuit
// when the reviewer quits and nil once every issue has been handled.
func (s *Session) Run(ctx context.Context) error {
	if s.doc.Done() {
		return s.complete()
	}

	for {
		if ctx.Err() != nil {
			return s.pause()
		}

		action, err := s.prompter.Ask(ctx, s.doc.Current(), s.doc.Progress, len(s.doc.Issues))
		if err != nil {
			if ctx.Err() != nil {
				return s.pause()
			}
			return fmt.Errorf("reading decision: %w", err)
		}
		if action == Quit {
			return s.pause()
		}

		number := s.doc.Current().Number
		completed, err := s.doc.Apply(action)
		if err != nil {
			return err
		}
		if err := Save(s.output, s.doc); err != nil {
			return fmt.Errorf("saving progress: %w", err)
		}
		log.Debug().Int("issue", number).Str("action", string(action)).Msg("annotation recorded")

		if completed {
			fmt.Fprintf(s.out, "All issues processed. Annotated data has been saved to %s\n", s.output)
			return nil
		}
	}
}

func (s *Session) pause() error {
	if err := Save(s.output, s.doc); err != nil {
		return fmt.Errorf("saving progress: %w", err)
	}
	fmt.Fprintf(s.out, "Progress saved. You can restart later from issue %d.\n", s.doc.Progress+1)
	return ErrQuit
}

func (s *Session) complete() error {
	s.doc.Progress = 0
	if err := Save(s.output, s.doc); err != nil {
		return fmt.Errorf("saving progress: %w", err)
	}
	fmt.Fprintf(s.out, "All issues processed. Annotated data has been saved to %s\n", s.output)
	return nil
}

// TerminalPrompter reads decisions line by line, re-asking on invalid input.
// End of input counts as quit.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer

	once  sync.Once
	lines chan line
}

type line struct {
	text string
	err  error
}

// NewTerminalPrompter creates a prompter over in and out.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out, lines: make(chan line, 1)}
}

// read feeds input lines to p.lines until the first read error.
func (p *TerminalPrompter) read() {
	defer close(p.lines)
	for {
		text, err := p.in.ReadString('\n')
		p.lines <- line{text: text, err: err}
		if err != nil {
			return
		}
	}
}

// Ask shows the issue and its machine verdict, then waits for a decision or
// for ctx to be cancelled.
func (p *TerminalPrompter) Ask(ctx context.Context, issue model.Issue, index, total int) (Action, error) {
	p.once.Do(func() { go p.read() })

	fmt.Fprintf(p.out, "\nIssue %d of %d\n%s\n\n", index+1, total, strings.Repeat("=", 40))
	fmt.Fprintf(p.out, "Issue Title: %s\n", issue.Title)
	if issue.Verdict != nil {
		labels := make([]string, 0, len(issue.Verdict.Classes))
		for _, l := range issue.Verdict.Labels() {
			labels = append(labels, string(l))
		}
		fmt.Fprintf(p.out, "Verdict: %s\n", strings.Join(labels, ", "))
	}
	fmt.Fprintln(p.out)

	for {
		fmt.Fprint(p.out, "Choose an action: (a)gree, (d)isagree, (s)kip, (q)uit: ")
		var l line
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(p.out)
			return 0, ctx.Err()
		case l, ok = <-p.lines:
		}
		if !ok {
			fmt.Fprintln(p.out)
			return Quit, nil
		}
		if action, valid := ParseAction(l.text); valid {
			return action, nil
		}
		if errors.Is(l.err, io.EOF) {
			fmt.Fprintln(p.out)
			return Quit, nil
		}
		if l.err != nil {
			return 0, l.err
		}
		fmt.Fprintln(p.out, "Error: please enter a, d, s or q.")
	}
}
