package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sender is the chat identity a transport delivers a command for.
type Sender struct {
	ID   int64
	Name string
}

// SenderClaims is the JWT body a chat gateway signs for each sender.
type SenderClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TicketService issues and verifies gateway tickets: HS256 tokens that bind
// a chat user id (subject) and display name.
type TicketService struct {
	secret []byte
	now    func() time.Time
}

func NewTicketService(secret string) *TicketService {
	return &TicketService{secret: []byte(secret), now: time.Now}
}

func (s *TicketService) Issue(sender Sender, ttl time.Duration) (string, error) {
	now := s.now()
	claims := SenderClaims{
		Name: sender.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  strconv.FormatInt(sender.ID, 10),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign ticket: %w", err)
	}
	return token, nil
}

func (s *TicketService) Verify(ticket string) (Sender, error) {
	var claims SenderClaims
	_, err := jwt.ParseWithClaims(ticket, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return Sender{}, fmt.Errorf("invalid ticket: %w", err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Sender{}, errors.New("invalid ticket: subject is not a user id")
	}
	return Sender{ID: id, Name: claims.Name}, nil
}
