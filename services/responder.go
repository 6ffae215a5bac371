package services

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Renderer turns a Response into chat text.
type Renderer interface {
	Render(resp *Response) (string, error)
}

// Reply is what a transport sends back to the chat.
type Reply struct {
	CommandID string `json:"command_id"`
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ReplyTo   *int64 `json:"reply_to"`
	Kind      string `json:"kind"`
}

// Responder runs a command through the dispatcher and renders the result.
// It is shared by the HTTP webhook and the websocket hub.
type Responder struct {
	dispatcher *Dispatcher
	renderer   Renderer
	log        logrus.FieldLogger
}

func NewResponder(dispatcher *Dispatcher, renderer Renderer, log logrus.FieldLogger) *Responder {
	return &Responder{dispatcher: dispatcher, renderer: renderer, log: log}
}

func (r *Responder) Respond(ctx context.Context, cmd Command) *Reply {
	resp := r.dispatcher.Dispatch(ctx, cmd)

	reply := &Reply{
		CommandID: resp.CommandID,
		ChatID:    cmd.Sender.ID,
	}
	if resp.Err != nil {
		reply.Kind = resp.Err.Kind.String()
	}
	if resp.Reply && cmd.MessageID != 0 {
		messageID := cmd.MessageID
		reply.ReplyTo = &messageID
	}

	text, err := r.renderer.Render(resp)
	if err != nil {
		r.log.WithError(err).WithField("command_id", resp.CommandID).Error("Failed to render response")
		text = genericFailure
	}
	reply.Text = text
	return reply
}
