package channels

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/chzyer/readline"

	"github.com/tinyclaw/tinyclaw/pkg/bus"
	"github.com/tinyclaw/tinyclaw/pkg/logger"
)

// CLISessionKey is the fixed chat ID the terminal channel publishes under,
// so every operator line lands in session "cli:default". A single local
// operator talks to one conversation, so there is no chat routing to do
// beyond this constant.
const CLISessionKey = "default"

// CLIChannel is a terminal REPL: an inbound channel that reads operator
// lines via readline (with history and basic editing) and an outbound
// channel that prints replies to stdout. It is the one channel adapter
// that ships without an external service dependency.
type CLIChannel struct {
	*BaseChannel
	rl      *readline.Instance
	running atomic.Bool
	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
}

func NewCLIChannel(msgBus *bus.MessageBus, historyFile string) (*CLIChannel, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline instance: %w", err)
	}

	return &CLIChannel{
		BaseChannel: NewBaseChannel("cli", nil, msgBus, nil),
		rl:          rl,
	}, nil
}

func (c *CLIChannel) Start(ctx context.Context) error {
	c.mu.Lock()
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.running.Store(true)
	logger.InfoC("cli", "Starting terminal channel")

	go c.readLoop(ctx)
	return nil
}

func (c *CLIChannel) readLoop(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		default:
		}

		line, err := c.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF || err != nil {
			return
		}
		if line == "" {
			continue
		}

		c.HandleMessage("operator", CLISessionKey, line, nil, nil)
	}
}

func (c *CLIChannel) Stop(ctx context.Context) error {
	c.running.Store(false)
	c.mu.Lock()
	stop := c.stop
	done := c.done
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	c.rl.Close()
	if done != nil {
		<-done
	}
	logger.InfoC("cli", "Terminal channel stopped")
	return nil
}

func (c *CLIChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	fmt.Fprintf(c.rl.Stdout(), "agent> %s\n", msg.Content)
	for _, media := range msg.Media {
		fmt.Fprintf(c.rl.Stdout(), "  [attachment: %s]\n", media)
	}
	return nil
}

func (c *CLIChannel) IsRunning() bool {
	return c.running.Load()
}
