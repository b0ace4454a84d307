package interrogation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sealor/ai-extractor/pkg/conversation"
	"github.com/sealor/ai-extractor/pkg/logging"
	"golang.org/x/term"
)

// Interactive lets a person review each parsed event on the terminal and
// send corrections to the model. Answering never switches to autopilot for
// the rest of the run.
type Interactive struct {
	t         *term.Terminal
	fd        int
	autopilot bool
	logger    *slog.Logger
}

type Option func(*Interactive)

// WithRawMode puts the terminal fd into raw mode while reading, so line
// editing works on a real TTY.
func WithRawMode(fd int) Option {
	return func(i *Interactive) { i.fd = fd }
}

func WithLogger(l *slog.Logger) Option {
	return func(i *Interactive) { i.logger = l }
}

func NewInteractive(rw io.ReadWriter, opts ...Option) *Interactive {
	i := &Interactive{t: term.NewTerminal(rw, "> "), fd: -1, logger: logging.Logger()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Interactive) Autopilot() bool {
	return i.autopilot
}

func (i *Interactive) GetInterrogationMessage(ctx context.Context, event *conversation.EventNode) (*conversation.MessageNode, error) {
	if i.autopilot {
		return nil, nil
	}
	last := event.Last()
	if last == nil || last.Role != conversation.RoleFunction {
		return nil, nil
	}

	fmt.Fprintln(i.t, "Event:", event.RawEventStr())
	fmt.Fprintln(i.t, "Parsed:", last.AIFunctionCallResult)
	if event.EventObj != nil {
		fmt.Fprintf(i.t, "Object: %v\n", event.EventObj)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		answer, err := i.readLine("Correct the model? (yes/no/never) ")
		if errors.Is(err, io.EOF) {
			i.logger.Info("input closed, switching to autopilot")
			i.autopilot = true
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "", "n", "no":
			return nil, nil
		case "never":
			i.autopilot = true
			i.logger.Info("autopilot on")
			return nil, nil
		case "y", "yes":
			return i.readCorrection(ctx)
		default:
			fmt.Fprintln(i.t, "Please answer yes, no or never.")
		}
	}
}

func (i *Interactive) readCorrection(ctx context.Context) (*conversation.MessageNode, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		correction, err := i.readLine("Correction: ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				i.autopilot = true
				return nil, nil
			}
			return nil, err
		}
		if correction = strings.TrimSpace(correction); correction != "" {
			return newMessage(correction), nil
		}
	}
}

func (i *Interactive) readLine(prompt string) (string, error) {
	i.t.SetPrompt(prompt)
	if i.fd < 0 {
		return i.t.ReadLine()
	}

	oldState, err := term.MakeRaw(i.fd)
	if err != nil {
		return "", err
	}
	if width, height, err := term.GetSize(i.fd); err == nil {
		i.t.SetSize(width, height)
	}
	line, err := i.t.ReadLine()
	if restoreErr := term.Restore(i.fd, oldState); err == nil {
		err = restoreErr
	}
	return line, err
}
