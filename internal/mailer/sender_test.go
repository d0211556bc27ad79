package mailer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/sells-group/printlog-cli/internal/mailer/mocks"
	"github.com/sells-group/printlog-cli/internal/model"
	"github.com/sells-group/printlog-cli/internal/resilience"
)

var testEnvelope = model.Envelope{
	FromName: "Organization 3D Printer",
	To:       "administrator@example.com",
	Subject:  "3D Print Issue on Printer 1",
	HTMLBody: "<p>hi</p>",
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, LogSender{}.Send(context.Background(), testEnvelope))
}

func TestRetrying_RetriesTransient(t *testing.T) {
	next := mocks.NewMockSender(t)
	next.On("Send", mock.Anything, testEnvelope).
		Return(resilience.NewTransientError(errors.New("421 busy"), 421)).Once()
	next.On("Send", mock.Anything, testEnvelope).Return(nil).Once()

	s := NewRetrying(next, "smtp", fastRetry())
	require.NoError(t, s.Send(context.Background(), testEnvelope))
}

func TestRetrying_PermanentNotRetried(t *testing.T) {
	next := mocks.NewMockSender(t)
	next.On("Send", mock.Anything, testEnvelope).Return(errors.New("550 rejected")).Once()

	s := NewRetrying(next, "smtp", fastRetry())
	err := s.Send(context.Background(), testEnvelope)
	require.Error(t, err)
	assert.Equal(t, resilience.ClassPermanent, resilience.ClassifyError(err))
}

func TestRateLimited_PassesThrough(t *testing.T) {
	next := mocks.NewMockSender(t)
	next.On("Send", mock.Anything, testEnvelope).Return(nil).Twice()

	s := NewRateLimited(next, 1000, 1)
	require.NoError(t, s.Send(context.Background(), testEnvelope))
	require.NoError(t, s.Send(context.Background(), testEnvelope))
}

func TestRateLimited_DisabledReturnsNext(t *testing.T) {
	next := mocks.NewMockSender(t)
	assert.Same(t, next, NewRateLimited(next, 0, 1))
}

func TestRateLimited_ContextCancelled(t *testing.T) {
	next := mocks.NewMockSender(t)
	next.On("Send", mock.Anything, testEnvelope).Return(nil).Once()

	s := NewRateLimited(next, 0.001, 1)
	require.NoError(t, s.Send(context.Background(), testEnvelope))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Send(ctx, testEnvelope))
}

func TestNewSMTP_RequiresHost(t *testing.T) {
	_, err := NewSMTP(SMTPConfig{})
	assert.Error(t, err)
}

func TestNewSMTP_Builds(t *testing.T) {
	s, err := NewSMTP(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", TLS: "mandatory"})
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestBuildMessage(t *testing.T) {
	env := testEnvelope
	env.FromAddress = "printer@example.com"
	msg, err := buildMessage(env)
	require.NoError(t, err)

	from, err := msg.GetSender(false)
	require.NoError(t, err)
	assert.Equal(t, "printer@example.com", from)
	assert.Contains(t, msg.GetFromString()[0], "Organization 3D Printer")

	env.To = "not an address"
	_, err = buildMessage(env)
	assert.Error(t, err)
}

func TestBuildMessage_RequiresFromAddress(t *testing.T) {
	env := testEnvelope
	env.FromAddress = ""
	_, err := buildMessage(env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from address is required")
}

func TestSMTPSender_DialFailureIsTransient(t *testing.T) {
	s, err := NewSMTP(SMTPConfig{Host: "127.0.0.1", Port: 1, TLS: "none", Timeout: time.Second})
	require.NoError(t, err)

	env := testEnvelope
	env.FromAddress = "printer@example.com"
	err = s.Send(context.Background(), env)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestTLSPolicy(t *testing.T) {
	assert.Equal(t, mail.NoTLS, tlsPolicy("none"))
	assert.Equal(t, mail.TLSOpportunistic, tlsPolicy("opportunistic"))
	assert.Equal(t, mail.TLSMandatory, tlsPolicy("mandatory"))
	assert.Equal(t, mail.TLSMandatory, tlsPolicy(""))
}
