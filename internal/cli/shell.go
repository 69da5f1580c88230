package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cloudfs/cloudsh/internal/core"
	"github.com/cloudfs/cloudsh/internal/util"
)

// ErrExit ends the command loop.
var ErrExit = errors.New("exit")

// usageError carries the usage line of a command that got bad arguments.
type usageError string

func (u usageError) Error() string { return "usage: " + string(u) }

// Shell reads command lines and dispatches them to the command table.
// Commands run one at a time; the session is only touched from here.
type Shell struct {
	engine  *Engine
	session *core.Session

	in     *bufio.Reader
	out    io.Writer
	errw   io.Writer
	prompt string

	commands map[string]*command
	order    []string

	baseLevel util.LogLevel
	debug     bool

	logger zerolog.Logger
}

// NewShell creates a shell over the engine's session.
func NewShell(e *Engine, in io.Reader, out, errw io.Writer) *Shell {
	sh := &Shell{
		engine:    e,
		session:   e.Session,
		in:        bufio.NewReader(in),
		out:       out,
		errw:      errw,
		prompt:    e.Config.Prompt,
		baseLevel: util.CurrentLevel(),
		logger:    util.GetLogger("shell"),
	}
	sh.commands, sh.order = commandTable()
	return sh
}

// Run reads and executes lines until end of input or a quit command.
func (s *Shell) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(s.out, s.prompt)

		line, readErr := s.in.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return readErr
		}
		if readErr == io.EOF && line == "" {
			fmt.Fprintln(s.out)
			return nil
		}

		if err := s.Exec(ctx, line); err != nil {
			if errors.Is(err, ErrExit) {
				return nil
			}
			s.report(err)
		}
		if readErr == io.EOF {
			return nil
		}
	}
}

// Exec runs one command line and returns the command's error unprinted.
func (s *Shell) Exec(ctx context.Context, line string) error {
	words, err := SplitWords(strings.TrimSpace(line))
	if err != nil {
		return fmt.Errorf("malformed command line: %w", err)
	}
	if len(words) == 0 {
		return nil
	}

	cmd, ok := s.commands[words[0]]
	if !ok {
		return errors.New("?Invalid command")
	}
	s.logger.Trace().Strs("words", words).Msg("dispatch")
	return cmd.run(ctx, s, words[1:])
}

// report prints a failed command's diagnostic.
func (s *Shell) report(err error) {
	var usage usageError
	switch {
	case errors.As(err, &usage):
		fmt.Fprintf(s.out, "      %s\n", string(usage))
	default:
		fmt.Fprintln(s.errw, err)
	}
}

// readLine reads one more line from the input, used for password prompts.
func (s *Shell) readLine(prompt string) (string, error) {
	fmt.Fprint(s.out, prompt)
	line, err := s.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
