package annotate

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/apichanges/internal/model"
)

type scriptedPrompter struct {
	actions []Action
	asked   []int
}

func (p *scriptedPrompter) Ask(_ context.Context, issue model.Issue, index, total int) (Action, error) {
	p.asked = append(p.asked, issue.Number)
	if len(p.actions) == 0 {
		return 0, errors.New("script exhausted")
	}
	a := p.actions[0]
	p.actions = p.actions[1:]
	return a, nil
}

func issues(numbers ...int) []model.Issue {
	out := make([]model.Issue, len(numbers))
	for i, n := range numbers {
		out[i] = model.Issue{Number: n, Title: "issue"}
	}
	return out
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadShapes(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		count    int
		progress int
	}{
		{"bare list", `[{"number": 1, "title": "a"}, {"number": 2, "title": "b"}]`, 2, 0},
		{"search results", `{"search_results": [{"number": 1, "title": "a"}]}`, 1, 0},
		{"document", `{"issues": [{"number": 1}, {"number": 2}, {"number": 3}], "progress": 2}`, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Load(writeFile(t, tt.content))
			require.NoError(t, err)
			assert.Len(t, doc.Issues, tt.count)
			assert.Equal(t, tt.progress, doc.Progress)
		})
	}
}

func TestLoadRejectsNegativeProgress(t *testing.T) {
	_, err := Load(writeFile(t, `{"issues": [], "progress": -1}`))
	require.Error(t, err)
}

func TestParseAction(t *testing.T) {
	for in, want := range map[string]Action{"a": Agree, "D\n": Disagree, " s ": Skip, "q": Quit} {
		got, ok := ParseAction(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "x", "agree", "\n"} {
		_, ok := ParseAction(in)
		assert.False(t, ok, in)
	}
}

func TestApplyTransitions(t *testing.T) {
	doc := &Document{Issues: issues(1, 2, 3)}

	done, err := doc.Apply(Agree)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, doc.Progress)
	require.NotNil(t, doc.Issues[0].AuthorAnnotation)
	assert.True(t, doc.Issues[0].AuthorAnnotation.IsAPIChange)

	_, err = doc.Apply(Quit)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Progress, "quit keeps the cursor")

	_, err = doc.Apply(Skip)
	require.NoError(t, err)
	assert.Nil(t, doc.Issues[1].AuthorAnnotation)

	done, err = doc.Apply(Disagree)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 0, doc.Progress, "completion resets the cursor")
	assert.False(t, doc.Issues[2].AuthorAnnotation.IsAPIChange)
}

func TestSkipKeepsPriorAnnotation(t *testing.T) {
	doc := &Document{Issues: issues(1, 2)}
	doc.Issues[0].AuthorAnnotation = &model.Annotation{IsAPIChange: true}

	_, err := doc.Apply(Skip)
	require.NoError(t, err)
	assert.True(t, doc.Issues[0].AuthorAnnotation.IsAPIChange)
}

func TestSessionQuitAndResume(t *testing.T) {
	output := filepath.Join(t.TempDir(), "annotated.json")
	doc := &Document{Issues: issues(1, 2, 3)}
	var out bytes.Buffer

	p := &scriptedPrompter{actions: []Action{Agree, Quit}}
	err := NewSession(doc, output, p, &out).Run(context.Background())
	require.ErrorIs(t, err, ErrQuit)
	assert.Contains(t, out.String(), "restart later from issue 2")

	saved, err := Load(output)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Progress)
	require.NotNil(t, saved.Issues[0].AuthorAnnotation)
	assert.True(t, saved.Issues[0].AuthorAnnotation.IsAPIChange)

	out.Reset()
	p = &scriptedPrompter{actions: []Action{Disagree, Skip}}
	require.NoError(t, NewSession(saved, output, p, &out).Run(context.Background()))
	assert.Equal(t, []int{2, 3}, p.asked, "resumes at the saved cursor")
	assert.Contains(t, out.String(), "All issues processed")

	final, err := Load(output)
	require.NoError(t, err)
	assert.Equal(t, 0, final.Progress)
	assert.True(t, final.Issues[0].AuthorAnnotation.IsAPIChange)
	assert.False(t, final.Issues[1].AuthorAnnotation.IsAPIChange)
	assert.Nil(t, final.Issues[2].AuthorAnnotation)
}

func TestSessionSavesEveryTransition(t *testing.T) {
	output := filepath.Join(t.TempDir(), "annotated.json")
	doc := &Document{Issues: issues(1, 2, 3)}

	// The prompter fails on the third issue; the first two decisions must
	// already be on disk.
	p := &scriptedPrompter{actions: []Action{Agree, Disagree}}
	err := NewSession(doc, output, p, &bytes.Buffer{}).Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrQuit)

	saved, err := Load(output)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Progress)
	assert.NotNil(t, saved.Issues[1].AuthorAnnotation)
}

func TestSessionEmptyDocument(t *testing.T) {
	output := filepath.Join(t.TempDir(), "annotated.json")
	var out bytes.Buffer
	p := &scriptedPrompter{}

	require.NoError(t, NewSession(&Document{}, output, p, &out).Run(context.Background()))
	assert.Empty(t, p.asked)
	assert.Contains(t, out.String(), "All issues processed")

	saved, err := Load(output)
	require.NoError(t, err)
	assert.Empty(t, saved.Issues)
}

func TestSessionCancelledWhileWaitingPauses(t *testing.T) {
	output := filepath.Join(t.TempDir(), "annotated.json")
	in, w := io.Pipe()
	defer w.Close()

	doc := &Document{Issues: issues(1, 2, 3), Progress: 1}
	var out bytes.Buffer
	s := NewSession(doc, output, NewTerminalPrompter(in, &out), &out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrQuit)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	saved, err := Load(output)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Progress)
	assert.Nil(t, saved.Issues[1].AuthorAnnotation)
	assert.Contains(t, out.String(), "restart later from issue 2")
}

func TestTerminalPrompterCancelled(t *testing.T) {
	in, w := io.Pipe()
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewTerminalPrompter(in, &bytes.Buffer{}).Ask(ctx, model.Issue{Number: 1}, 0, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTerminalPrompterReprompts(t *testing.T) {
	var out bytes.Buffer
	verdict := model.Verdict{Classes: []model.Classification{{Label: model.Labels()[0], Confidence: 0.9}}}
	issue := model.Issue{Number: 7, Title: "Tuya token expired", Verdict: &verdict}

	p := NewTerminalPrompter(strings.NewReader("x\nagree\nd\n"), &out)
	action, err := p.Ask(context.Background(), issue, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, Disagree, action)

	text := out.String()
	assert.Contains(t, text, "Issue 1 of 4")
	assert.Contains(t, text, "Tuya token expired")
	assert.Contains(t, text, string(model.Labels()[0]))
	assert.Equal(t, 2, strings.Count(text, "please enter"))
}

func TestTerminalPrompterEOFQuits(t *testing.T) {
	p := NewTerminalPrompter(strings.NewReader(""), &bytes.Buffer{})
	action, err := p.Ask(context.Background(), model.Issue{Number: 1}, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, Quit, action)
}
