// ABOUTME: Colored terminal output for the live conversation.
// ABOUTME: Peer messages, own replies, and notices each get their own look.

package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// Printer renders the conversation as it unfolds. Peer lines are cyan, this
// agent's own lines green, system chatter gray, and failure notices yellow.
type Printer struct {
	out  io.Writer
	self string
	now  func() time.Time

	peer   *color.Color
	own    *color.Color
	system *color.Color
	notice *color.Color
	stamp  *color.Color
}

// NewPrinter writes the conversation for the given agent id to out.
// A nil out defaults to stdout.
func NewPrinter(out io.Writer, selfID string) *Printer {
	if out == nil {
		out = os.Stdout
	}
	return &Printer{
		out:    out,
		self:   selfID,
		now:    time.Now,
		peer:   color.New(color.FgCyan),
		own:    color.New(color.FgGreen),
		system: color.New(color.FgHiBlack),
		notice: color.New(color.FgYellow),
		stamp:  color.New(color.FgHiBlack),
	}
}

// Peer prints a message heard from another agent.
func (p *Printer) Peer(sender, content string) {
	p.stampNow()
	p.peer.Fprintf(p.out, "%s: ", sender)
	fmt.Fprintln(p.out, content)
}

// Self prints this agent's own broadcast reply.
func (p *Printer) Self(content string) {
	p.stampNow()
	p.own.Fprintf(p.out, "%s: ", p.self)
	fmt.Fprintln(p.out, content)
}

// System prints quiet operational chatter: joins, prunes, shutdown.
func (p *Printer) System(format string, args ...any) {
	p.stampNow()
	p.system.Fprintf(p.out, "· "+format+"\n", args...)
}

// Notice prints something the operator should see, like a failed turn.
func (p *Printer) Notice(format string, args ...any) {
	p.stampNow()
	p.notice.Fprintf(p.out, "! "+format+"\n", args...)
}

func (p *Printer) stampNow() {
	p.stamp.Fprintf(p.out, "%s ", p.now().Format("15:04:05"))
}
