package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/tickantoe/internal/dex"
	"github.com/robalobadob/tickantoe/internal/game"
	"github.com/robalobadob/tickantoe/internal/render"
	"github.com/robalobadob/tickantoe/internal/session"
)

const playHelp = `commands:
  show                   print the board
  online on|off          enable or disable presence
  seek | cancel | leave  matchmaking
  retry                  reconnect after a lost connection
  badge +N|-N            change the wager
  reset [maxGen]         new grid, optionally under a new generation ceiling
  search <text>          look up names
  guess <pos> <id|name>  place an entity at position 0..8
  quit`

// presence is the online state machine as seen by the REPL.
type presence interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Seek(ctx context.Context) error
	Cancel(ctx context.Context) error
	Leave(ctx context.Context) error
	Retry(ctx context.Context) error
}

// searcher resolves names typed at the prompt.
type searcher interface {
	Matches(ctx context.Context, guess string, maxGen int) ([]dex.Match, error)
}

// repl is a line-driven client session.
type repl struct {
	game     *game.Game
	store    *session.Store
	online   presence
	searcher searcher

	mu  sync.Mutex // guards out
	out io.Writer
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *repl) show() { r.printf("%s\n", render.Board(r.store.Snapshot())) }

// watch reports connection losses until ctx is done.
func (r *repl) watch(ctx context.Context, lost <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-lost:
			r.printf("connection lost (%v); type retry to reconnect\n", err)
		}
	}
}

// run reads commands until quit or EOF.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	r.show()
	sc := bufio.NewScanner(in)
	for {
		r.printf("> ")
		if !sc.Scan() {
			return sc.Err()
		}
		quit, err := r.exec(ctx, sc.Text())
		if err != nil {
			r.printf("error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// exec runs one command line.
func (r *repl) exec(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	var err error
	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help", "?":
		r.printf("%s\n", playHelp)
		return false, nil
	case "show":
	case "online":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return false, errors.New("usage: online on|off")
		}
		if args[0] == "on" {
			err = r.online.Enable(ctx)
		} else {
			err = r.online.Disable(ctx)
		}
	case "seek":
		err = r.online.Seek(ctx)
	case "cancel":
		err = r.online.Cancel(ctx)
	case "leave":
		err = r.online.Leave(ctx)
	case "retry":
		err = r.online.Retry(ctx)
	case "badge":
		if len(args) != 1 {
			return false, errors.New("usage: badge +N|-N")
		}
		diff, perr := strconv.Atoi(args[0])
		if perr != nil {
			return false, fmt.Errorf("badge: %w", perr)
		}
		_, err = r.game.OfferNewBadge(ctx, diff)
	case "reset":
		maxGen := 0
		if len(args) > 0 {
			n, perr := strconv.Atoi(args[0])
			if perr != nil || n < 1 {
				return false, errors.New("usage: reset [maxGen]")
			}
			maxGen = n
		}
		_, err = r.game.Reset(ctx, maxGen)
	case "search":
		return false, r.search(ctx, strings.Join(args, " "))
	case "guess":
		err = r.guess(ctx, args)
	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	if err != nil {
		return false, err
	}
	r.show()
	return false, nil
}

func (r *repl) search(ctx context.Context, text string) error {
	matches, err := r.searcher.Matches(ctx, text, r.store.Snapshot().Online.MaxGen)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		r.printf("no matches\n")
	}
	for _, m := range matches {
		r.printf("  %4d  %s\n", m.Dex, m.Name)
	}
	return nil
}

func (r *repl) guess(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: guess <pos> <id|name>")
	}
	pos, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("guess: %w", err)
	}
	entity, err := r.resolve(ctx, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	ok, err := r.game.TestGuess(ctx, pos, entity)
	if err != nil {
		return err
	}
	if ok {
		r.printf("%s fits\n", entity.Name)
	} else {
		r.printf("%s does not fit\n", entity.Name)
	}
	return nil
}

// resolve turns an id or a name into an entity. Names go through search and
// must match exactly (case-insensitively) unless there is a single result.
func (r *repl) resolve(ctx context.Context, ref string) (session.Entity, error) {
	if id, err := strconv.Atoi(ref); err == nil {
		return session.Entity{Name: "#" + ref, Key: id, ID: id}, nil
	}
	matches, err := r.searcher.Matches(ctx, ref, r.store.Snapshot().Online.MaxGen)
	if err != nil {
		return session.Entity{}, err
	}
	var pick *dex.Match
	for i, m := range matches {
		if strings.EqualFold(m.Name, ref) {
			pick = &matches[i]
			break
		}
	}
	if pick == nil && len(matches) == 1 {
		pick = &matches[0]
	}
	if pick == nil || len(pick.Forms) == 0 {
		log.Debug().Str("ref", ref).Int("matches", len(matches)).Msg("unresolved guess")
		return session.Entity{}, fmt.Errorf("no single entity named %q", ref)
	}
	f := pick.Forms[0]
	return session.Entity{Generation: f.Generation, Name: f.Name, Key: f.MonID, ID: f.ID}, nil
}
