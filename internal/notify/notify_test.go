package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

type fakeDialer struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeDialer) DialAndSendWithContext(_ context.Context, msgs ...*mail.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msgs...)
	return nil
}

func TestEmailSenderSend(t *testing.T) {
	d := &fakeDialer{}
	s := newEmailSender(d, "", "ops@example.com", nil)

	status, err := s.Send(context.Background(), "Maintenance request (high urgency)", "Pipe burst in 3B")
	require.NoError(t, err)
	assert.Equal(t, "Email sent to ops@example.com", status)
	require.Len(t, d.sent, 1)

	rcpts, err := d.sent[0].GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"ops@example.com"}, rcpts)
	assert.Equal(t, []string{"Maintenance request (high urgency)"}, d.sent[0].GetGenHeader(mail.HeaderSubject))
	assert.Equal(t, DefaultFrom, s.from)
}

func TestEmailSenderErrors(t *testing.T) {
	s := newEmailSender(&fakeDialer{err: errors.New("535 auth failed")}, "landlord@example.com", "ops@example.com", nil)
	_, err := s.Send(context.Background(), "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "535 auth failed")

	bad := newEmailSender(&fakeDialer{}, "landlord@example.com", "not an address", nil)
	_, err = bad.Send(context.Background(), "s", "b")
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	status, err := NewLogSender("ops@example.com", nil).Send(context.Background(), "s", "b")
	require.NoError(t, err)
	assert.Contains(t, status, "ops@example.com")
}
