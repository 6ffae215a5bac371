package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"puzzlebot/models"
)

type answerKey struct {
	puzzleID uint
	userID   int64
}

// MemoryStore keeps puzzles and answers in process memory. It implements
// both PuzzleRegistry and AnswerLedger; a single mutex makes every operation
// atomic. Used with STORAGE_DRIVER=memory and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	nextID   uint
	answerID uint
	puzzles  map[uint]*models.Puzzle
	answers  map[answerKey]*models.Answer
	order    map[uint][]answerKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:     time.Now,
		puzzles: make(map[uint]*models.Puzzle),
		answers: make(map[answerKey]*models.Answer),
		order:   make(map[uint][]answerKey),
	}
}

// WithClock replaces the time source used for timestamps.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Exists(_ context.Context, id uint) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.puzzles[id]
	return ok, nil
}

func (s *MemoryStore) Get(_ context.Context, id uint) (*models.Puzzle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.puzzles[id]
	if !ok {
		return nil, ErrPuzzleNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetWithAnswers(_ context.Context, id uint) (*models.Puzzle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.puzzles[id]
	if !ok {
		return nil, ErrPuzzleNotFound
	}
	cp := *p
	cp.Answers = make([]models.Answer, 0, len(s.order[id]))
	for _, key := range s.order[id] {
		cp.Answers = append(cp.Answers, *s.answers[key])
	}
	return &cp, nil
}

func (s *MemoryStore) Create(_ context.Context, name string) (*models.Puzzle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p := &models.Puzzle{ID: s.nextID, Name: name, CreatedAt: s.now()}
	s.puzzles[p.ID] = p
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) HasAnswer(_ context.Context, puzzleID uint, userID int64) (*models.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[answerKey{puzzleID, userID}]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) Register(_ context.Context, puzzleID uint, userID int64, username, text string) (*models.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.puzzles[puzzleID]; !ok {
		return nil, ErrPuzzleNotFound
	}
	key := answerKey{puzzleID, userID}
	if existing, ok := s.answers[key]; ok {
		cp := *existing
		return nil, &AlreadyAnsweredError{Existing: &cp}
	}
	s.answerID++
	a := &models.Answer{
		ID:         s.answerID,
		PuzzleID:   puzzleID,
		UserID:     userID,
		Username:   username,
		Text:       text,
		Registered: s.now(),
	}
	s.answers[key] = a
	s.order[puzzleID] = append(s.order[puzzleID], key)
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) Recent(_ context.Context, since time.Time) ([]models.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Answer
	for _, a := range s.answers {
		if !a.Registered.Before(since) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Registered.Equal(out[j].Registered) {
			return out[i].ID > out[j].ID
		}
		return out[i].Registered.After(out[j].Registered)
	})
	return out, nil
}
