// Package feedback submits customer feedback.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptySubject = errors.New("feedback subject is required")
	ErrEmptyContent = errors.New("feedback content is required")
)

// Message is the wire payload (FeedbackSaveDto).
type Message struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// Transport posts the message.
type Transport interface {
	Post(ctx context.Context, path string, body, out any) error
}

// Service sends feedback for the signed-in customer.
type Service struct {
	api Transport
}

// NewService returns a Service.
func NewService(api Transport) *Service {
	return &Service{api: api}
}

// Send trims both fields and posts them. Nothing is sent if either is empty.
func (s *Service) Send(ctx context.Context, subject, content string) error {
	msg := Message{
		Subject: strings.TrimSpace(subject),
		Content: strings.TrimSpace(content),
	}
	if msg.Subject == "" {
		return ErrEmptySubject
	}
	if msg.Content == "" {
		return ErrEmptyContent
	}

	if err := s.api.Post(ctx, "/feedbacks", msg, nil); err != nil {
		return fmt.Errorf("send feedback: %w", err)
	}
	return nil
}
