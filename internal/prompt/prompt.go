package prompt

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"imdata/internal/logging"
)

// Mode controls how questions are answered.
type Mode int

const (
	// Interactive asks on the terminal; a non-terminal stdin answers no.
	Interactive Mode = iota
	// Always answers yes without asking.
	Always
	// Never answers no without asking.
	Never
)

// Asker is what dataset jobs need from a Decider.
type Asker interface {
	Force(forced bool, question string) bool
}

// Decider answers download questions.
type Decider struct {
	mode   Mode
	in     *bufio.Reader
	out    io.Writer
	isTTY  bool
	logger *slog.Logger
	mu     sync.Mutex
}

// Option customises a Decider.
type Option func(*Decider)

// WithIO replaces stdin/stdout. The reader is treated as a terminal when tty is true.
func WithIO(in io.Reader, out io.Writer, tty bool) Option {
	return func(d *Decider) {
		d.in = bufio.NewReader(in)
		d.out = out
		d.isTTY = tty
	}
}

// WithLogger sets the logger used for decision records.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Decider) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New builds a Decider reading from the process terminal.
func New(mode Mode, opts ...Option) *Decider {
	d := &Decider{
		mode:   mode,
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		isTTY:  isTerminal(os.Stdin),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.NewComponentLogger(d.logger, "prompt")
	return d
}

// ModeFromFlags maps --yes and --no-input onto a Mode. --no-input wins.
func ModeFromFlags(yes, noInput bool) Mode {
	switch {
	case noInput:
		return Never
	case yes:
		return Always
	default:
		return Interactive
	}
}

// Confirm asks question and reports the answer. Only "y" counts as yes.
func (d *Decider) Confirm(question string) bool {
	answer, reason := d.answer(question)
	result := "no"
	if answer {
		result = "yes"
	}
	d.logger.Info("download decision",
		logging.Args(append(logging.DecisionAttrs("download_prompt", result, reason),
			logging.String("question", question))...)...)
	return answer
}

// Force reports yes without asking when forced is set, otherwise defers to Confirm.
func (d *Decider) Force(forced bool, question string) bool {
	if forced {
		d.logger.Info("download decision",
			logging.Args(append(logging.DecisionAttrs("download_prompt", "yes", "forced by flag"),
				logging.String("question", question))...)...)
		return true
	}
	return d.Confirm(question)
}

func (d *Decider) answer(question string) (bool, string) {
	switch d.mode {
	case Always:
		return true, "--yes"
	case Never:
		return false, "--no-input"
	}
	if !d.isTTY {
		return false, "stdin is not a terminal"
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "%s (y/N) ", strings.TrimSpace(question))
	line, err := d.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(d.out)
		return false, "no answer"
	}
	if strings.TrimSpace(line) == "y" {
		return true, "answered y"
	}
	return false, "answered " + quoteAnswer(line)
}

func quoteAnswer(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return "empty"
	}
	return fmt.Sprintf("%q", line)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
