// Package interactive provides the interactive prompt of tdrs client.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"

	"github.com/tdrs-protocol/tdrs-go/pkg/tdrs"
)

// Session is the part of a transport the prompt drives.
type Session interface {
	Send(ctx context.Context, payload []byte) (string, error)
	Connect() error
	Disconnect() error
	Reconnect() error
	State() tdrs.State
	Undelivered() []string
	OnEvent(handler tdrs.EventHandler)
}

// Client is an interactive readline session. Plain lines are sent as
// messages; lines starting with '/' are commands.
type Client struct {
	session Session
	rl      *readline.Instance
	out     io.Writer
}

// New creates a client prompt for s.
func New(s Session) (*Client, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tdrs> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := newClient(s, rl.Stdout())
	c.rl = rl
	return c, nil
}

func newClient(s Session, out io.Writer) *Client {
	c := &Client{session: s, out: out}
	s.OnEvent(c.handleEvent)
	return c
}

// Stdout returns a writer that coordinates with the prompt.
func (c *Client) Stdout() io.Writer {
	return c.out
}

// Run reads lines until quit, EOF or ctx is done.
func (c *Client) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.execute(ctx, line); quit {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// execute handles one input line and reports whether the session should end.
func (c *Client) execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}
	if !strings.HasPrefix(input, "/") {
		c.send(ctx, input)
		return false
	}

	parts := strings.Fields(input[1:])
	if len(parts) == 0 {
		c.printHelp()
		return false
	}
	cmd := strings.ToLower(parts[0])

	switch cmd {
	case "help", "?", "h":
		c.printHelp()

	case "send", "s":
		c.send(ctx, strings.TrimSpace(strings.TrimPrefix(input[1:], parts[0])))

	case "status", "st":
		c.cmdStatus()

	case "links", "l":
		c.cmdLinks()

	case "undelivered", "u":
		c.cmdUndelivered()

	case "connect":
		c.report("connect", c.session.Connect())

	case "disconnect":
		c.report("disconnect", c.session.Disconnect())

	case "reconnect", "r":
		c.report("reconnect", c.session.Reconnect())

	case "quit", "exit", "q":
		return true

	default:
		fmt.Fprintf(c.out, "Unknown command: /%s (type /help for commands)\n", cmd)
	}
	return false
}

func (c *Client) printHelp() {
	fmt.Fprintln(c.out, `
TDRS Client:
  <text>           - Send text as a message
  /send <text>     - Send text (also text starting with '/')

  Session:
    /status        - Show connections, channel states and cache
    /links         - List configured and discovered links
    /undelivered   - List hashes of packets the relay rejected
    /connect       - Connect to a random link
    /disconnect    - Release the active connection
    /reconnect     - Disconnect and connect again

  /help            - Show this help
  /quit            - Exit`)
}

func (c *Client) send(ctx context.Context, text string) {
	if text == "" {
		fmt.Fprintln(c.out, "Nothing to send")
		return
	}
	hash, err := c.session.Send(ctx, []byte(text))
	if err != nil {
		fmt.Fprintf(c.out, "Send failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, ">> %s\n", hash)
}

func (c *Client) report(op string, err error) {
	if err != nil {
		fmt.Fprintf(c.out, "%s failed: %v\n", op, err)
		return
	}
	fmt.Fprintf(c.out, "%s ok\n", op)
}

func (c *Client) cmdStatus() {
	st := c.session.State()

	fmt.Fprintf(c.out, "Identity:    %s\n", st.Identity)
	if st.Active != nil {
		fmt.Fprintf(c.out, "Active link: %s\n", st.Active)
	} else {
		fmt.Fprintln(c.out, "Active link: none")
	}
	fmt.Fprintf(c.out, "Cached:      %d (undelivered %d)\n", st.CachedPackets, st.Undelivered)

	if len(st.Connections) == 0 {
		return
	}
	fmt.Fprintln(c.out)
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LINK\tACTIVE\tREADY\tPUBLISHER\tRECEIVER")
	for _, cs := range st.Connections {
		fmt.Fprintf(w, "%s\t%t\t%t\t%s\t%s\n",
			cs.Link, cs.Active, cs.Ready, channelCell(cs.Publisher), channelCell(cs.Receiver))
	}
	w.Flush()
}

func channelCell(ch tdrs.ChannelState) string {
	if ch.RetryCount == 0 {
		return ch.State.String()
	}
	return fmt.Sprintf("%s (retries %d)", ch.State, ch.RetryCount)
}

func (c *Client) cmdLinks() {
	links := c.session.State().Links
	if len(links) == 0 {
		fmt.Fprintln(c.out, "No links")
		return
	}
	for i, l := range links {
		fmt.Fprintf(c.out, "  %d. %s\n", i+1, l)
	}
}

func (c *Client) cmdUndelivered() {
	hashes := c.session.Undelivered()
	if len(hashes) == 0 {
		fmt.Fprintln(c.out, "No undelivered packets")
		return
	}
	for _, h := range hashes {
		fmt.Fprintf(c.out, "  %s\n", h)
	}
}

func (c *Client) handleEvent(ev tdrs.Event) {
	switch ev.Type {
	case tdrs.EventMessage:
		fmt.Fprintf(c.out, "<< %s\n", ev.Payload)
	case tdrs.EventTerminate:
		fmt.Fprintln(c.out, "[relay terminated]")
	case tdrs.EventPeerEntered:
		fmt.Fprintf(c.out, "[peer entered] %s\n", ev.Link)
	case tdrs.EventPeerExited:
		fmt.Fprintf(c.out, "[peer exited] %s\n", ev.Link)
	}
}
