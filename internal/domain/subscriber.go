package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrInvalidSubscriber = errors.New("invalid subscriber")
	ErrDuplicate         = errors.New("subscriber already exists")
)

const (
	maxNameRunes  = 256
	maxEmailBytes = 320
)

// forbiddenNameChars are rejected so names can be echoed into HTML and
// mail headers without escaping surprises.
const forbiddenNameChars = `/()"<>\{}`

type Subscriber struct {
	ID           uuid.UUID
	Email        string
	Name         string
	SubscribedAt time.Time
}

// NewSubscriber validates raw form input and returns a subscriber with a fresh ID.
func NewSubscriber(name, email string, now time.Time) (Subscriber, error) {
	n, err := parseName(name)
	if err != nil {
		return Subscriber{}, err
	}
	e, err := parseEmail(email)
	if err != nil {
		return Subscriber{}, err
	}
	return Subscriber{ID: uuid.New(), Email: e, Name: n, SubscribedAt: now.UTC()}, nil
}

func parseName(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", fmt.Errorf("%w: name is required", ErrInvalidSubscriber)
	case utf8.RuneCountInString(s) > maxNameRunes:
		return "", fmt.Errorf("%w: name is longer than %d characters", ErrInvalidSubscriber, maxNameRunes)
	case strings.ContainsAny(s, forbiddenNameChars):
		return "", fmt.Errorf("%w: name contains forbidden characters", ErrInvalidSubscriber)
	}
	return s, nil
}

func parseEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidSubscriber)
	}
	if len(s) > maxEmailBytes {
		return "", fmt.Errorf("%w: email is too long", ErrInvalidSubscriber)
	}
	addr, err := mail.ParseAddress(s)
	// a display name ("Ursula <u@x.io>") means the caller sent more than an address
	if err != nil || addr.Name != "" || addr.Address != s {
		return "", fmt.Errorf("%w: %q is not a valid email", ErrInvalidSubscriber, s)
	}
	return strings.ToLower(addr.Address), nil
}
