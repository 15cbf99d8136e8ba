package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"communitychat/pkg/chat"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the feed live and chat from the prompt",
		Long: `watch redraws the feed on every change. When input is on, each line you
type is sent as a message. Commands:
  /unsend <id>   remove one of your messages
  /name <name>   change your display name
  /ids           print message ids
  /quit          leave`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
	cmd.Flags().Bool("input", isTerminal(os.Stdin), "read messages from stdin")
	return cmd
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// screen serialises writes from the subscription and the prompt.
type screen struct {
	mu    sync.Mutex
	out   io.Writer
	tty   bool
	r     *renderer
	last  chat.View
	ready bool
}

func (s *screen) draw(v chat.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last, s.ready = v, true
	if s.tty {
		fmt.Fprint(s.out, "\x1b[H\x1b[2J")
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			s.r.width = w
		}
	} else {
		fmt.Fprintln(s.out)
	}
	s.r.View(v)
}

func (s *screen) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *screen) ids() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		s.r.IDs(s.last)
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	tty := out == os.Stdout && isTerminal(os.Stdout)
	scr := &screen{out: out, tty: tty, r: &renderer{out: out, color: tty, clock: sess.engine.Clock}}

	unsub, err := sess.engine.Subscribe(scr.draw)
	if err != nil {
		return err
	}
	defer unsub()

	if input, _ := cmd.Flags().GetBool("input"); !input {
		<-ctx.Done()
		return nil
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, sess, scr, line); quit {
				return nil
			}
		}
	}
}

// handleLine runs one prompt line. It reports whether to leave.
func handleLine(ctx context.Context, sess *session, scr *screen, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case line == "/ids":
		scr.ids()
	case strings.HasPrefix(line, "/unsend "):
		res, err := sess.engine.Unsend(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/unsend ")))
		if err != nil {
			scr.printf("unsend failed: %v\n", err)
			return false
		}
		scr.printf("%s\n", describeUnsend(res))
	case strings.HasPrefix(line, "/name "):
		id := sess.engine.SetDisplayName(strings.TrimPrefix(line, "/name "))
		scr.printf("you are now %s\n", id.DisplayName)
	default:
		if _, err := sess.engine.Send(ctx, line); err != nil {
			scr.printf("%v\n", describeSendError(err))
			return false
		}
		go sess.engine.WatchCooldown(ctx, time.Second, func(rem time.Duration) {
			if rem > 0 {
				scr.printf("next message in %ds\n", int(rem.Round(time.Second)/time.Second))
			}
		})
	}
	return false
}
