package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"puzzlebot/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type dispatcherFixture struct {
	dispatcher *Dispatcher
	store      *MemoryStore
	hook       *test.Hook
	metrics    *Metrics
}

func newDispatcherFixture(t *testing.T, opts ...DispatcherOption) *dispatcherFixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	store := NewMemoryStore()
	metrics := NewMetrics(prometheus.NewRegistry())
	opts = append([]DispatcherOption{WithMetrics(metrics)}, opts...)
	return &dispatcherFixture{
		dispatcher: NewDispatcher(store, store, staticGate("real"), logger, opts...),
		store:      store,
		hook:       hook,
		metrics:    metrics,
	}
}

func (f *dispatcherFixture) run(userID int64, username, text string) *Response {
	return f.dispatcher.Dispatch(context.Background(), NewCommand(Sender{ID: userID, Name: username}, text, 0))
}

func (f *dispatcherFixture) auditEntries() []logrus.Entry {
	var out []logrus.Entry
	for _, e := range f.hook.AllEntries() {
		if e.Data["audit"] == true {
			out = append(out, *e)
		}
	}
	return out
}

func TestDispatch_Greeting(t *testing.T) {
	f := newDispatcherFixture(t)

	for _, text := range []string{"/start", "/help"} {
		resp := f.run(1, "alice", text)
		require.True(t, resp.OK())
		assert.Equal(t, "alice", resp.Username)
		assert.False(t, resp.Reply)
	}
}

func TestDispatch_AnswerOnceThenAlreadyAnswered(t *testing.T) {
	f := newDispatcherFixture(t)
	_, err := f.store.Create(context.Background(), "riddle")
	require.NoError(t, err)

	first := f.run(10, "alice", "/answer 1 banana split")
	require.True(t, first.OK(), "unexpected error: %v", first.Err)
	assert.Equal(t, "banana split", first.Answer.Text)
	assert.Equal(t, "riddle", first.Puzzle.Name)
	assert.Equal(t, "alice", first.Username)
	assert.False(t, first.Reply)

	for _, text := range []string{"/answer 1 a different answer", "/answer 1 #", "/answer 1 1234567"} {
		again := f.run(10, "alice", text)
		require.False(t, again.OK())
		assert.Equal(t, KindAlreadyAnswered, again.Err.Kind, text)
		assert.Equal(t, first.Answer.Registered, again.Answer.Registered)
		assert.Contains(t, again.Err.Message, first.Answer.Registered.Format("2006-01-02 15:04:05"))
		assert.True(t, again.Reply)
	}

	stored, err := f.store.HasAnswer(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "banana split", stored.Text)
}

func TestDispatch_AnswerRejections(t *testing.T) {
	f := newDispatcherFixture(t)
	_, err := f.store.Create(context.Background(), "riddle")
	require.NoError(t, err)

	tests := []struct {
		text     string
		wantKind Kind
		wantMsg  string
	}{
		{text: "/answer", wantKind: KindBadSyntax},
		{text: "/answer 1", wantKind: KindBadSyntax},
		{text: "/answer x banana split", wantKind: KindBadSyntax, wantMsg: "not x"},
		{text: "/answer 5 banana split", wantKind: KindNotFound, wantMsg: "No puzzle with ID 5"},
		{text: "/answer 1 #$&", wantKind: KindTooShort},
		{text: "/answer 1 1234567", wantKind: KindNumericOnly},
		{text: "/answer 1 this & that", wantKind: KindForbiddenCharacters},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			resp := f.run(10, "alice", tt.text)
			require.False(t, resp.OK())
			assert.Equal(t, tt.wantKind, resp.Err.Kind)
			assert.Equal(t, CommandAnswer, resp.Err.Command)
			if tt.wantMsg != "" {
				assert.Contains(t, resp.Err.Message, tt.wantMsg)
			}
		})
	}

	none, err := f.store.HasAnswer(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestDispatch_RegisterWithWrongTokenCreatesNothing(t *testing.T) {
	f := newDispatcherFixture(t)

	resp := f.run(99, "mallory", "/register My Puzzle wrongtoken")

	require.False(t, resp.OK())
	assert.Equal(t, KindUnauthorized, resp.Err.Kind)
	exists, err := f.store.Exists(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, exists)

	audits := f.auditEntries()
	require.Len(t, audits, 1)
	assert.Equal(t, logrus.WarnLevel, audits[0].Level)
	assert.Equal(t, int64(99), audits[0].Data["user_id"])
	assert.Equal(t, "mallory", audits[0].Data["username"])
	assert.Equal(t, "wrongtoken", audits[0].Data["token"])
}

func TestDispatch_Register(t *testing.T) {
	f := newDispatcherFixture(t)

	resp := f.run(1, "admin", "/register My Puzzle real")

	require.True(t, resp.OK(), "unexpected error: %v", resp.Err)
	assert.Equal(t, uint(1), resp.Puzzle.ID)
	assert.Equal(t, "My Puzzle", resp.Puzzle.Name)
	assert.True(t, resp.Reply)

	exists, err := f.store.Exists(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDispatch_RegisterNameRules(t *testing.T) {
	f := newDispatcherFixture(t)

	resp := f.run(1, "admin", "/register a<b real")
	require.False(t, resp.OK())
	assert.Equal(t, KindForbiddenCharacters, resp.Err.Kind)

	resp = f.run(1, "admin", "/register real")
	require.False(t, resp.OK())
	assert.Equal(t, KindBadSyntax, resp.Err.Kind)
	assert.Empty(t, f.auditEntries())
}

func TestDispatch_ShowUnknownPuzzleIsNotFoundRegardlessOfToken(t *testing.T) {
	f := newDispatcherFixture(t)
	for i := 0; i < 3; i++ {
		_, err := f.store.Create(context.Background(), fmt.Sprintf("p%d", i))
		require.NoError(t, err)
	}

	for _, token := range []string{"real", "wrong"} {
		resp := f.run(1, "admin", "/show 9999 "+token)
		require.False(t, resp.OK())
		assert.Equal(t, KindNotFound, resp.Err.Kind)
	}
	assert.Empty(t, f.auditEntries())
}

func TestDispatch_ShowKeepsSyntaxAndNotFoundApart(t *testing.T) {
	f := newDispatcherFixture(t)

	resp := f.run(1, "admin", "/show abc real")
	require.False(t, resp.OK())
	assert.Equal(t, KindBadSyntax, resp.Err.Kind)

	resp = f.run(1, "admin", "/show 12 real")
	require.False(t, resp.OK())
	assert.Equal(t, KindNotFound, resp.Err.Kind)

	resp = f.run(1, "admin", "/show 12")
	require.False(t, resp.OK())
	assert.Equal(t, KindBadSyntax, resp.Err.Kind)
}

func TestDispatch_ShowWrongTokenIsAudited(t *testing.T) {
	f := newDispatcherFixture(t)
	_, err := f.store.Create(context.Background(), "riddle")
	require.NoError(t, err)

	resp := f.run(42, "eve", "/show 1 guess")

	require.False(t, resp.OK())
	assert.Equal(t, KindUnauthorized, resp.Err.Kind)
	assert.Nil(t, resp.Answers)

	audits := f.auditEntries()
	require.Len(t, audits, 1)
	assert.Equal(t, logrus.WarnLevel, audits[0].Level)
	assert.Equal(t, int64(42), audits[0].Data["user_id"])
	assert.Equal(t, "1", audits[0].Data["puzzle_id"])
	assert.Equal(t, "guess", audits[0].Data["token"])
}

func TestDispatch_ShowListsAnswers(t *testing.T) {
	f := newDispatcherFixture(t)
	_, err := f.store.Create(context.Background(), "riddle")
	require.NoError(t, err)
	require.True(t, f.run(10, "alice", "/answer 1 banana split").OK())
	require.True(t, f.run(11, "bob", "/answer 1 apple crumble").OK())

	resp := f.run(1, "admin", "/show 1 real")

	require.True(t, resp.OK(), "unexpected error: %v", resp.Err)
	require.Len(t, resp.Answers, 2)
	assert.Equal(t, "banana split", resp.Answers[0].Text)
	assert.Equal(t, "apple crumble", resp.Answers[1].Text)
	assert.Equal(t, uint(1), resp.Puzzle.ID)
	assert.True(t, resp.Reply)
}

func TestDispatch_Recent(t *testing.T) {
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	f := newDispatcherFixture(t, WithClock(func() time.Time { return now }), WithRecentWindow(time.Hour))
	clock := now.Add(-2 * time.Hour)
	f.store.WithClock(func() time.Time { return clock })
	_, err := f.store.Create(context.Background(), "riddle")
	require.NoError(t, err)
	require.True(t, f.run(10, "alice", "/answer 1 too early here").OK())
	clock = now.Add(-time.Minute)
	require.True(t, f.run(11, "bob", "/answer 1 just in time").OK())

	resp := f.run(1, "admin", "/recent real")
	require.True(t, resp.OK(), "unexpected error: %v", resp.Err)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, "bob", resp.Answers[0].Username)
	assert.Equal(t, now.Add(-time.Hour), resp.Since)

	resp = f.run(1, "admin", "/recent nope")
	require.False(t, resp.OK())
	assert.Equal(t, KindUnauthorized, resp.Err.Kind)
	assert.Len(t, f.auditEntries(), 1)
}

func TestDispatch_UnknownCommand(t *testing.T) {
	f := newDispatcherFixture(t)

	resp := f.run(1, "alice", "/dance now")

	require.False(t, resp.OK())
	assert.Equal(t, KindBadSyntax, resp.Err.Kind)
	assert.Contains(t, resp.Err.Message, "/help")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CommandCounter.WithLabelValues("unknown", "bad_syntax")))
}

func TestDispatch_RecordsMetrics(t *testing.T) {
	f := newDispatcherFixture(t)
	_, err := f.store.Create(context.Background(), "riddle")
	require.NoError(t, err)

	f.run(10, "alice", "/answer 1 banana split")
	f.run(10, "alice", "/answer 1 banana split")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CommandCounter.WithLabelValues("answer", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CommandCounter.WithLabelValues("answer", "already_answered")))
}

type failingLedger struct {
	*MemoryStore
	err error
}

func (l failingLedger) HasAnswer(context.Context, uint, int64) (*models.Answer, error) {
	return nil, l.err
}

type panickingRegistry struct {
	*MemoryStore
}

func (panickingRegistry) Get(context.Context, uint) (*models.Puzzle, error) {
	panic("connection pool exhausted")
}

func TestDispatch_PersistenceErrorIsGeneric(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store := NewMemoryStore()
	_, err := store.Create(context.Background(), "riddle")
	require.NoError(t, err)
	cause := errors.New("pq: relation \"answers\" does not exist")
	d := NewDispatcher(store, failingLedger{MemoryStore: store, err: cause}, staticGate("real"), logger)

	resp := d.Dispatch(context.Background(), NewCommand(Sender{ID: 10, Name: "alice"}, "/answer 1 banana split", 0))

	require.False(t, resp.OK())
	assert.Equal(t, KindPersistence, resp.Err.Kind)
	assert.Equal(t, genericFailure, resp.Err.Message)
	assert.NotContains(t, resp.Err.Message, "relation")
	assert.ErrorIs(t, resp.Err, cause)
	assert.Nil(t, resp.Puzzle)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, uint(1), hook.LastEntry().Data["puzzle_id"])
}

func TestDispatch_RecoversFromPanics(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := NewMemoryStore()
	d := NewDispatcher(panickingRegistry{store}, store, staticGate("real"), logger)

	resp := d.Dispatch(context.Background(), NewCommand(Sender{ID: 10}, "/answer 1 banana split", 0))

	require.False(t, resp.OK())
	assert.Equal(t, KindPersistence, resp.Err.Kind)
}

func TestDispatch_ConcurrentAnswersFromOneUser(t *testing.T) {
	f := newDispatcherFixture(t)
	_, err := f.store.Create(context.Background(), "riddle")
	require.NoError(t, err)

	const attempts = 40
	results := make([]*Response, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.run(77, "dave", fmt.Sprintf("/answer 1 attempt number %d", i))
		}(i)
	}
	wg.Wait()

	ok, already := 0, 0
	for _, resp := range results {
		switch {
		case resp.OK():
			ok++
		case resp.Err.Kind == KindAlreadyAnswered:
			already++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, already)

	puzzle, err := f.store.GetWithAnswers(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, puzzle.Answers, 1)
}

func TestDispatch_ConcurrentAnswersFromManyUsers(t *testing.T) {
	f := newDispatcherFixture(t)
	_, err := f.store.Create(context.Background(), "riddle")
	require.NoError(t, err)

	const users = 25
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			f.run(user, "", "/answer 1 my own answer")
			f.run(user, "", "/answer 1 my own answer")
		}(int64(i + 1))
	}
	wg.Wait()

	puzzle, err := f.store.GetWithAnswers(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, puzzle.Answers, users)
}

func TestDispatch_WithAdminGate(t *testing.T) {
	gate, err := NewAdminGate("real", bcrypt.MinCost)
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	store := NewMemoryStore()
	d := NewDispatcher(store, store, gate, logger)

	resp := d.Dispatch(context.Background(), NewCommand(Sender{ID: 1}, "/register Gate Test real", 0))
	require.True(t, resp.OK(), "unexpected error: %v", resp.Err)

	resp = d.Dispatch(context.Background(), NewCommand(Sender{ID: 1}, "/register Gate Test REAL", 0))
	require.False(t, resp.OK())
	assert.Equal(t, KindUnauthorized, resp.Err.Kind)
}
