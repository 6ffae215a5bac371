package services

import (
	"strings"
	"time"

	"puzzlebot/models"

	"github.com/google/uuid"
)

const (
	CommandStart    = "start"
	CommandHelp     = "help"
	CommandAnswer   = "answer"
	CommandRegister = "register"
	CommandShow     = "show"
	CommandRecent   = "recent"
)

// Command is one inbound chat command. Name is the normalized keyword and
// Args the whitespace-separated tokens after it.
type Command struct {
	ID        string
	Name      string
	Args      []string
	Sender    Sender
	MessageID int64
}

// NewCommand parses raw chat text. A leading slash and a "@botname" suffix
// on the keyword are optional; the keyword is matched case-insensitively.
func NewCommand(sender Sender, text string, messageID int64) Command {
	name, args := ParseCommandText(text)
	return Command{
		ID:        uuid.NewString(),
		Name:      name,
		Args:      args,
		Sender:    sender,
		MessageID: messageID,
	}
}

func ParseCommandText(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name), fields[1:]
}

// Response is the semantic outcome of a command. Presentation is left to the
// caller: Response carries only the data a renderer needs.
type Response struct {
	CommandID string
	Command   string
	Username  string
	Puzzle    *models.Puzzle
	Answer    *models.Answer
	Answers   []models.Answer
	Since     time.Time
	Err       *CommandError
	// Reply asks the transport to thread the response to the inbound message.
	Reply bool
}

func (r *Response) OK() bool {
	return r.Err == nil
}

func (r *Response) fail(err *CommandError) *Response {
	err.Command = r.Command
	r.Err = err
	r.Reply = true
	return r
}
