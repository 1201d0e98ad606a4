package terminal

import (
	"bufio"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Reader reads lines of user input
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps in
func NewReader(in io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(in)}
}

// ReadLine reads a line of input, trimmed. A final line without a newline
// is returned before io.EOF.
func (r *Reader) ReadLine() (string, error) {
	input, err := r.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && input != "" {
			return strings.TrimSpace(input), nil
		}
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// IsTerminal checks if stdout is a terminal
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// CommandKind identifies a slash command
type CommandKind int

const (
	CmdNone CommandKind = iota // plain message
	CmdExit
	CmdClear
	CmdHistory
	CmdTraces
	CmdMode
	CmdMock
	CmdReset
	CmdUnknown
)

// Command is a parsed line of input
type Command struct {
	Kind CommandKind
	Arg  string
}

// ParseCommand classifies a line. Lines not starting with "/" are messages,
// except for the bare words exit and quit.
func ParseCommand(line string) Command {
	line = strings.TrimSpace(line)
	if line == "exit" || line == "quit" {
		return Command{Kind: CmdExit}
	}
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: CmdNone}
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "exit", "quit":
		return Command{Kind: CmdExit}
	case "clear":
		return Command{Kind: CmdClear}
	case "history":
		return Command{Kind: CmdHistory}
	case "traces":
		return Command{Kind: CmdTraces}
	case "mode":
		return Command{Kind: CmdMode, Arg: arg}
	case "mock":
		return Command{Kind: CmdMock, Arg: arg}
	case "reset":
		return Command{Kind: CmdReset}
	}
	return Command{Kind: CmdUnknown, Arg: name}
}
