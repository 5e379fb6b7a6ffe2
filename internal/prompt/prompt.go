package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	clierr "github.com/ggonzalez94/pokt-rotate/internal/errors"
)

// Asker asks one question and blocks until a line of input arrives.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

type lineResult struct {
	line string
	err  error
}

// LineAsker reads answers line by line from an input stream. Close releases
// the input so a pending read does not keep the process alive.
type LineAsker struct {
	out    io.Writer
	in     io.Reader
	reader *bufio.Reader
	mu     sync.Mutex
	closed bool

	// abandoned is set when a read was left pending by a cancelled Ask.
	abandoned bool
}

func NewLineAsker(in io.Reader, out io.Writer) *LineAsker {
	return &LineAsker{in: in, out: out, reader: bufio.NewReader(in)}
}

func (a *LineAsker) Ask(ctx context.Context, question string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.abandoned {
		return "", clierr.New(clierr.CodeAborted, "input closed")
	}
	if _, err := fmt.Fprint(a.out, question); err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "write prompt", err)
	}

	done := make(chan lineResult, 1)
	go func() {
		line, err := a.reader.ReadString('\n')
		done <- lineResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		a.abandoned = true
		return "", clierr.Wrap(clierr.CodeAborted, "prompt cancelled", ctx.Err())
	case res := <-done:
		if res.err != nil && !(errors.Is(res.err, io.EOF) && res.line != "") {
			if errors.Is(res.err, io.EOF) {
				return "", clierr.New(clierr.CodeAborted, "no answer: input closed")
			}
			return "", clierr.Wrap(clierr.CodeInternal, "read answer", res.err)
		}
		return strings.TrimRight(res.line, "\r\n"), nil
	}
}

// Close releases the underlying input when it can be closed. It is safe to
// call more than once.
func (a *LineAsker) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if c, ok := a.in.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Confirm asks question and reports whether the answer is y or yes. Any
// other answer declines.
func Confirm(ctx context.Context, asker Asker, question string) (bool, error) {
	answer, err := asker.Ask(ctx, question)
	if err != nil {
		return false, err
	}
	return IsYes(answer), nil
}

func IsYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// Scripted answers questions from a fixed list and records what was asked.
type Scripted struct {
	Answers   []string
	Questions []string
}

func (s *Scripted) Ask(_ context.Context, question string) (string, error) {
	s.Questions = append(s.Questions, question)
	if len(s.Answers) == 0 {
		return "", clierr.New(clierr.CodeAborted, "no answer: input closed")
	}
	answer := s.Answers[0]
	s.Answers = s.Answers[1:]
	return answer, nil
}
