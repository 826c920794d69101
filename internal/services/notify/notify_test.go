package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/models"
	"github.com/galihcitta/confras/internal/services/messaging"
)

type MockPublisher struct {
	mutex sync.Mutex
	jobs  []messaging.Job
	err   error
}

func (p *MockPublisher) Publish(ctx context.Context, job messaging.Job) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

type MockMailer struct {
	sent []Email
	err  error
}

func (m *MockMailer) Send(ctx context.Context, email Email) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

type NotifyTestSuite struct {
	suite.Suite
	logger    *zap.Logger
	publisher *MockPublisher
	notifier  *Notifier
	tenant    *models.Tenant
}

func (s *NotifyTestSuite) SetupTest() {
	var err error
	s.logger, err = zap.NewDevelopment()
	s.Require().NoError(err)
	s.publisher = &MockPublisher{}
	s.notifier = NewNotifier(s.publisher, "Confras", s.logger)
	s.tenant = &models.Tenant{ID: "42", Name: "Padaria Boa", Email: "org@example.com"}
}

func (s *NotifyTestSuite) decode(job messaging.Job) Email {
	s.Equal(messaging.JobEmail, job.Kind)
	var email Email
	s.Require().NoError(json.Unmarshal(job.Payload, &email))
	return email
}

func (s *NotifyTestSuite) TestWelcome() {
	s.Require().NoError(s.notifier.Welcome(context.Background(), s.tenant, "https://x/festa/padariaboa", "https://x/admin"))
	s.Require().Len(s.publisher.jobs, 1)

	email := s.decode(s.publisher.jobs[0])
	s.Equal("org@example.com", email.To)
	s.Contains(email.Text, "https://x/festa/padariaboa")
}

func (s *NotifyTestSuite) TestPasswordReset() {
	s.Require().NoError(s.notifier.PasswordReset(context.Background(), "org@example.com", "https://x/reset?token=abc"))
	email := s.decode(s.publisher.jobs[0])
	s.Contains(email.Text, "https://x/reset?token=abc")
}

func (s *NotifyTestSuite) TestGuestSubmitted() {
	guest := &models.Guest{Name: "Ana"}
	s.Require().NoError(s.notifier.GuestSubmitted(context.Background(), s.tenant, guest, "https://x/admin"))
	email := s.decode(s.publisher.jobs[0])
	s.Contains(email.Subject, "Ana")
}

func (s *NotifyTestSuite) TestSkipsMissingRecipient() {
	s.Require().NoError(s.notifier.PasswordReset(context.Background(), "", "link"))
	s.Empty(s.publisher.jobs)
}

func (s *NotifyTestSuite) TestPublishFailure() {
	s.publisher.err = errors.New("broker down")
	s.Error(s.notifier.Welcome(context.Background(), s.tenant, "a", "b"))
}

func (s *NotifyTestSuite) TestEmailJobHandler() {
	mailer := &MockMailer{}
	handler := EmailJobHandler(mailer)

	job, err := messaging.NewJob(messaging.JobEmail, Email{To: "a@b.c", Subject: "hi", Text: "body"})
	s.Require().NoError(err)
	s.Require().NoError(handler.HandleJob(context.Background(), job))
	s.Require().Len(mailer.sent, 1)
	s.Equal("hi", mailer.sent[0].Subject)

	bad, err := messaging.NewJob(messaging.JobEmail, Email{Subject: "no recipient"})
	s.Require().NoError(err)
	s.Error(handler.HandleJob(context.Background(), bad))

	s.Error(handler.HandleJob(context.Background(), messaging.Job{Kind: messaging.JobEmail, Payload: []byte(`[`)}))
}

func (s *NotifyTestSuite) TestSMTPMailer_InvalidAddresses() {
	mailer := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 2525, From: "not an address"}, s.logger)
	s.ErrorContains(mailer.Send(context.Background(), Email{To: "a@b.c"}), "sender")

	mailer = NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 2525, From: "noreply@confras.app"}, s.logger)
	s.ErrorContains(mailer.Send(context.Background(), Email{To: "broken"}), "recipient")
}

func (s *NotifyTestSuite) TestLogMailer() {
	s.NoError(NewLogMailer(s.logger).Send(context.Background(), Email{To: "a@b.c"}))
}

func TestNotifyTestSuite(t *testing.T) {
	suite.Run(t, new(NotifyTestSuite))
}
