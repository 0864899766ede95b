package feedback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	path string
	body any
	err  error
}

func (f *fakeTransport) Post(ctx context.Context, path string, body, out any) error {
	f.path = path
	f.body = body
	return f.err
}

func TestSend(t *testing.T) {
	api := &fakeTransport{}
	svc := NewService(api)

	require.NoError(t, svc.Send(context.Background(), "  Flat white ", "\tToo hot\n"))
	assert.Equal(t, "/feedbacks", api.path)
	assert.Equal(t, Message{Subject: "Flat white", Content: "Too hot"}, api.body)
}

func TestSendValidation(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		content string
		want    error
	}{
		{"empty subject", "", "body", ErrEmptySubject},
		{"blank subject", "   ", "body", ErrEmptySubject},
		{"empty content", "subject", "", ErrEmptyContent},
		{"both empty", "", "", ErrEmptySubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeTransport{}
			err := NewService(api).Send(context.Background(), tt.subject, tt.content)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, api.path, "nothing is sent")
		})
	}
}

func TestSendWrapsTransportError(t *testing.T) {
	boom := errors.New("boom")
	err := NewService(&fakeTransport{err: boom}).Send(context.Background(), "s", "c")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "send feedback")
}
