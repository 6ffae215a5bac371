package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const genericFailure = "Something went wrong while processing your command, please try again later."

// Dispatcher turns a Command into a Response. It is safe for concurrent use;
// the stores are its only shared state.
type Dispatcher struct {
	puzzles      PuzzleRegistry
	answers      AnswerLedger
	gate         Authorizer
	log          logrus.FieldLogger
	metrics      *Metrics
	recentWindow time.Duration
	now          func() time.Time
}

type DispatcherOption func(*Dispatcher)

func WithMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithRecentWindow(window time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.recentWindow = window }
}

func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(puzzles PuzzleRegistry, answers AnswerLedger, gate Authorizer, log logrus.FieldLogger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		puzzles:      puzzles,
		answers:      answers,
		gate:         gate,
		log:          log,
		recentWindow: 24 * time.Hour,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch always returns a response. Validation and authorization failures
// come back as a response error without touching storage mutations; storage
// failures are logged and reported with a generic message.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (resp *Response) {
	start := time.Now()
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	log := d.log.WithFields(logrus.Fields{
		"command_id": cmd.ID,
		"command":    cmd.Name,
		"user_id":    cmd.Sender.ID,
	})
	log.Debug("Command received")

	resp = &Response{CommandID: cmd.ID, Command: cmd.Name, Username: cmd.Sender.Name}
	defer func() {
		if r := recover(); r != nil {
			resp = &Response{CommandID: cmd.ID, Command: cmd.Name, Username: cmd.Sender.Name}
			d.internalError(log, resp, fmt.Errorf("panic: %v", r))
		}
		outcome := "ok"
		if resp.Err != nil {
			outcome = resp.Err.Kind.String()
		}
		d.metrics.observe(metricLabel(cmd.Name), outcome, time.Since(start))
		log.WithField("outcome", outcome).Debug("Command responded")
	}()

	switch cmd.Name {
	case CommandStart, CommandHelp:
		return resp
	case CommandAnswer:
		d.answer(ctx, log, cmd, resp)
	case CommandRegister:
		d.register(ctx, log, cmd, resp)
	case CommandShow:
		d.show(ctx, log, cmd, resp)
	case CommandRecent:
		d.recent(ctx, log, cmd, resp)
	default:
		resp.fail(newCommandError(KindBadSyntax, "Unknown command %q, send /help to see what I understand.", cmd.Name))
	}
	return resp
}

func (d *Dispatcher) answer(ctx context.Context, log logrus.FieldLogger, cmd Command, resp *Response) {
	intent, cerr := ParseAnswerCommand(cmd.Args)
	if cerr != nil {
		resp.fail(cerr)
		return
	}
	log = log.WithField("puzzle_id", intent.PuzzleID)

	puzzle, err := d.puzzles.Get(ctx, intent.PuzzleID)
	if errors.Is(err, ErrPuzzleNotFound) {
		resp.fail(newCommandError(KindNotFound, "No puzzle with ID %s", intent.RawID))
		return
	}
	if err != nil {
		d.internalError(log, resp, err)
		return
	}
	resp.Puzzle = puzzle

	prior, err := d.answers.HasAnswer(ctx, puzzle.ID, cmd.Sender.ID)
	if err != nil {
		d.internalError(log, resp, err)
		return
	}
	if prior != nil {
		d.alreadyAnswered(resp, prior.PuzzleID, prior.Registered)
		resp.Answer = prior
		return
	}

	if cerr := ValidateAnswerText(&intent); cerr != nil {
		resp.fail(cerr)
		return
	}

	answer, err := d.answers.Register(ctx, puzzle.ID, cmd.Sender.ID, cmd.Sender.Name, intent.Text)
	var already *AlreadyAnsweredError
	switch {
	case err == nil:
		resp.Answer = answer
		log.WithField("answer_id", answer.ID).Info("Registered new answer")
	case errors.As(err, &already):
		d.alreadyAnswered(resp, already.Existing.PuzzleID, already.Existing.Registered)
		resp.Answer = already.Existing
	case errors.Is(err, ErrPuzzleNotFound):
		resp.fail(newCommandError(KindNotFound, "No puzzle with ID %s", intent.RawID))
	default:
		d.internalError(log, resp, err)
	}
}

func (d *Dispatcher) alreadyAnswered(resp *Response, puzzleID uint, registered time.Time) {
	resp.fail(newCommandError(KindAlreadyAnswered,
		"You have already answered this puzzle #%d: (%s)!", puzzleID, registered.Format("2006-01-02 15:04:05")))
}

func (d *Dispatcher) register(ctx context.Context, log logrus.FieldLogger, cmd Command, resp *Response) {
	intent, cerr := ParseRegisterCommand(cmd.Args, d.gate)
	if cerr != nil {
		if cerr.Kind == KindUnauthorized {
			d.auditUnauthorized(cmd, "", intent.Token)
		}
		resp.fail(cerr)
		return
	}

	puzzle, err := d.puzzles.Create(ctx, intent.Name)
	if err != nil {
		d.internalError(log, resp, err)
		return
	}
	resp.Puzzle = puzzle
	resp.Reply = true
	log.WithField("puzzle_id", puzzle.ID).Info("Registered new puzzle")
}

func (d *Dispatcher) show(ctx context.Context, log logrus.FieldLogger, cmd Command, resp *Response) {
	intent, cerr := ParseShowCommand(cmd.Args)
	if cerr != nil {
		resp.fail(cerr)
		return
	}
	log = log.WithField("puzzle_id", intent.PuzzleID)

	exists, err := d.puzzles.Exists(ctx, intent.PuzzleID)
	if err != nil {
		d.internalError(log, resp, err)
		return
	}
	if !exists {
		resp.fail(newCommandError(KindNotFound, "No puzzle with ID %s", intent.RawID))
		return
	}

	if cerr := AuthorizeShow(intent, d.gate); cerr != nil {
		d.auditUnauthorized(cmd, intent.RawID, intent.Token)
		resp.fail(cerr)
		return
	}

	puzzle, err := d.puzzles.GetWithAnswers(ctx, intent.PuzzleID)
	if errors.Is(err, ErrPuzzleNotFound) {
		resp.fail(newCommandError(KindNotFound, "No puzzle with ID %s", intent.RawID))
		return
	}
	if err != nil {
		d.internalError(log, resp, err)
		return
	}
	resp.Puzzle = puzzle
	resp.Answers = puzzle.Answers
	resp.Reply = true
}

func (d *Dispatcher) recent(ctx context.Context, log logrus.FieldLogger, cmd Command, resp *Response) {
	intent, cerr := ParseRecentCommand(cmd.Args, d.gate)
	if cerr != nil {
		if cerr.Kind == KindUnauthorized {
			d.auditUnauthorized(cmd, "", intent.Token)
		}
		resp.fail(cerr)
		return
	}

	since := d.now().Add(-d.recentWindow)
	answers, err := d.answers.Recent(ctx, since)
	if err != nil {
		d.internalError(log, resp, err)
		return
	}
	resp.Since = since
	resp.Answers = answers
	resp.Reply = true
}

// auditUnauthorized records a rejected admin token at warn level so audits
// can filter on audit=true.
func (d *Dispatcher) auditUnauthorized(cmd Command, puzzleID, token string) {
	fields := logrus.Fields{
		"audit":      true,
		"command_id": cmd.ID,
		"command":    cmd.Name,
		"user_id":    cmd.Sender.ID,
		"username":   cmd.Sender.Name,
		"token":      token,
	}
	if puzzleID != "" {
		fields["puzzle_id"] = puzzleID
	}
	d.log.WithFields(fields).Warn("Unauthorized admin command")
}

func (d *Dispatcher) internalError(log logrus.FieldLogger, resp *Response, err error) {
	log.WithError(err).Error("Command failed")
	resp.Puzzle, resp.Answer, resp.Answers = nil, nil, nil
	resp.fail(&CommandError{Kind: KindPersistence, Message: genericFailure, Err: err})
}

func metricLabel(name string) string {
	switch name {
	case CommandStart, CommandHelp, CommandAnswer, CommandRegister, CommandShow, CommandRecent:
		return name
	default:
		return "unknown"
	}
}
