package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/feedback"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/gateway"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/projection"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/session"
	"github.com/rs/zerolog/log"
)

var errMultiplayer = errors.New("multiplayer mode coming soon")

type PlayCmd struct {
	Mode string `help:"Game mode (single, multiplayer)." enum:"single,multiplayer" default:"single"`
}

func (p *PlayCmd) Run(ctx context.Context, globals *Globals) error {
	if p.Mode == "multiplayer" {
		return errMultiplayer
	}

	cfg, err := globals.load()
	if err != nil {
		return err
	}
	defer globals.setupMetrics(ctx, cfg)()

	con := newConsole(os.Stdout)
	services := setupServices(cfg, Collaborators{
		Hooks:     feedback.LogHooks{},
		OnBalance: con.balance,
		OnWin:     con.resolved,
	})
	defer services.Close()

	if err := services.Machine.Reconcile(ctx); err != nil {
		con.printf("could not import the active round: %v\n", err)
	}

	return con.run(ctx, services.Machine, os.Stdin)
}

// machine is the subset of session.Machine the console drives.
type machine interface {
	gateway.Controller
	Reconcile(ctx context.Context) error
}

const consoleHelp = `commands:
  start   pay the entry fee and start a round
  eject   leave the running round and collect the payout
  again   clear a finished round
  status  print the current round
  quit    exit
`

// console is the interactive front end. Output may come from the input loop
// and from the snapshot follower at the same time, so writes are serialized.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) balance(bal *big.Int) {
	c.printf("balance: %s\n", FormatAmount(bal))
}

func (c *console) resolved(id models.SessionID, result models.Result) {
	if !result.Won {
		c.printf("session %s lost at %s\n", id, projection.FormatMultiplier(result.FinalMultiplierBp))
		return
	}
	c.printf("you won %s in session %s\n", FormatAmount(result.Payout), id)
}

func (c *console) run(ctx context.Context, m machine, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	snapshots, stop := m.Watch()
	followed := make(chan struct{})
	go func() {
		defer close(followed)
		c.follow(snapshots)
	}()
	defer func() {
		stop()
		<-followed
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.printf("%s", consoleHelp)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if c.handle(ctx, m, strings.TrimSpace(line)) {
				return nil
			}
		}
	}
}

// handle runs one command and reports whether the console should exit.
func (c *console) handle(ctx context.Context, m machine, cmd string) bool {
	var err error
	switch strings.ToLower(cmd) {
	case "":
		return false
	case "start":
		if err = m.Start(ctx); err == nil {
			c.printf("start submitted, waiting for confirmation\n")
		}
	case "eject":
		if err = m.Eject(ctx); err == nil {
			c.printf("eject submitted\n")
		}
	case "again":
		err = m.PlayAgain(ctx)
	case "status":
		c.printf("%s\n", renderSnapshot(m.Snapshot()))
	case "help":
		c.printf("%s", consoleHelp)
	case "quit", "exit":
		return true
	default:
		c.printf("unknown command %q, type help\n", cmd)
	}

	if err != nil {
		log.Debug().Err(err).Str("command", cmd).Msg("command failed")
		c.printf("%s failed: %v\n", cmd, err)
	}
	return false
}

// follow prints a line whenever the state, the eject prompt or the surfaced
// error changes. Frame-by-frame multiplier updates are left to status.
func (c *console) follow(snapshots <-chan session.Snapshot) {
	var last session.Snapshot
	first := true
	for s := range snapshots {
		if !first && s.State == last.State && s.AwaitingEject == last.AwaitingEject && s.Error == last.Error {
			continue
		}
		first = false
		last = s
		c.printf("%s\n", renderSnapshot(s))
	}
}
