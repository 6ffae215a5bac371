// Package views renders dispatcher responses as Telegram-flavoured HTML.
package views

import (
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"puzzlebot/services"
)

//go:embed templates/*.tmpl templates/commands/*.tmpl
var templateFS embed.FS

const timeLayout = "2006-01-02 15:04:05"

type Renderer struct {
	tmpl    *template.Template
	version string
}

type view struct {
	*services.Response
	Version   string
	Message   string
	MinAnswer int
	MaxAnswer int
	MaxName   int
	Forbidden string
}

func NewRenderer(version string) (*Renderer, error) {
	tmpl, err := template.New("views").Funcs(template.FuncMap{
		"formatTime": func(t time.Time) string { return t.Format(timeLayout) },
		"username":   displayName,
		"inc":        func(i int) int { return i + 1 },
	}).ParseFS(templateFS, "templates/*.tmpl", "templates/commands/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, version: version}, nil
}

func (r *Renderer) Render(resp *services.Response) (string, error) {
	data := view{
		Response:  resp,
		Version:   r.version,
		MinAnswer: services.MinAnswerLength,
		MaxAnswer: services.MaxAnswerLength,
		MaxName:   services.MaxPuzzleNameLength,
		Forbidden: services.ForbiddenCharacters,
	}
	if resp.Err != nil {
		data.Message = resp.Err.Message
	}

	var b strings.Builder
	if err := r.tmpl.ExecuteTemplate(&b, templateFor(resp), data); err != nil {
		return "", fmt.Errorf("failed to render %s response: %w", resp.Command, err)
	}
	return strings.TrimSpace(b.String()), nil
}

func templateFor(resp *services.Response) string {
	if resp.Err != nil {
		if showsHelp(resp.Command, resp.Err.Kind) {
			return "help_" + resp.Command
		}
		return "error"
	}
	switch resp.Command {
	case services.CommandAnswer:
		return "gotanswer"
	case services.CommandRegister:
		return "gotpuzzle"
	case services.CommandShow:
		return "showanswers"
	case services.CommandRecent:
		return "recentanswers"
	default:
		return "hello"
	}
}

// showsHelp picks the errors a user fixes by rewriting the command; those
// come with the command's usage text.
func showsHelp(command string, kind services.Kind) bool {
	switch command {
	case services.CommandAnswer:
		return kind == services.KindBadSyntax || kind == services.KindTooShort || kind == services.KindNumericOnly
	case services.CommandRegister:
		return kind == services.KindBadSyntax || kind == services.KindTooLong
	case services.CommandShow, services.CommandRecent:
		return kind == services.KindBadSyntax
	}
	return false
}

func displayName(name string) string {
	if name == "" {
		return "anonymous"
	}
	return "@" + name
}
