// Package cmdlog logs instrument traffic with the commands and replies
// colored so a long sequence log can be skimmed.
package cmdlog

import (
	"fmt"
	"log"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gotmc/ppmslab/instrument"
)

func isASCII(s string) bool {
	return !strings.ContainsFunc(s, func(r rune) bool {
		switch {
		case r < 7:
			return true
		case r > 6 && r < 14:
			return false
		case r > 13 && r < 32:
			return true
		case r > 127:
			return true
		}
		return false
	})
}

var (
	NameStyle  = lipgloss.NewStyle().Bold(true)
	CmdStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	ReplyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	ErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Transport wraps an instrument transport, logging everything sent and
// received.
type Transport struct {
	Name string
	T    instrument.Transport
	// QuietCommands logs only queries and failed commands.
	QuietCommands bool
}

var _ instrument.Transport = (*Transport)(nil)

// Wrap returns t logged under name.
func Wrap(name string, t instrument.Transport) *Transport {
	return &Transport{Name: name, T: t}
}

func (l *Transport) Command(format string, a ...any) error {
	err := l.T.Command(format, a...)
	if err != nil || !l.QuietCommands {
		c := format
		if a != nil {
			c = fmt.Sprintf(format, a...)
		}
		l.logf(c, "", err)
	}
	return err
}

func (l *Transport) Query(cmd string) (string, error) {
	s, err := l.T.Query(cmd)
	l.logf(cmd, Describe(s), err)
	return s, err
}

func (l *Transport) logf(cmd, reply string, err error) {
	prefix := NameStyle.Render(l.Name) + " " + CmdStyle.Render(strings.TrimSpace(cmd))
	switch {
	case err != nil:
		log.Printf("%s: %s", prefix, ErrStyle.Render(err.Error()))
	case reply != "":
		log.Printf("%s: %s", prefix, ReplyStyle.Render(reply))
	default:
		log.Print(prefix)
	}
}

// Describe formats a reply for the log: quoted when it is text, hex when
// it is binary.
func Describe(a string) string {
	a = strings.TrimSuffix(a, "\n")
	switch {
	case len(a) == 0:
		return "<no response>"
	case isASCII(a):
		return fmt.Sprintf("[%d] %q", len(a), a)
	case len(a) < 32:
		return fmt.Sprintf("[%d] %q (% 2x)", len(a), a, []byte(a))
	default:
		return fmt.Sprintf("[%d] % 2x", len(a), []byte(a))
	}
}
