package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/socialpulse/followwatch/internal/models"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, address, handle string, threshold, count int64) bool {
	args := m.Called(ctx, address, handle, threshold, count)
	return args.Bool(0)
}

func TestMilestoneHTML(t *testing.T) {
	at := time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)
	msg := MilestoneHTML("acme", 1000, 1050, at)

	assert.Contains(t, msg, "🎉 <b>Milestone Achieved!</b>")
	assert.Contains(t, msg, "<b>@acme</b> has reached <b>1,000</b> followers!")
	assert.Contains(t, msg, "Current count: <b>1,050</b> followers")
	assert.Contains(t, msg, "Achieved at: 2024-03-05 14:07 UTC")
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "999", FormatCount(999))
	assert.Equal(t, "10,000,000", FormatCount(10_000_000))
}

func TestRouter_Routing(t *testing.T) {
	tests := []struct {
		name      string
		address   string
		wantEmail bool
		wantChat  bool
	}{
		{name: "Chat id", address: "123456", wantChat: true},
		{name: "Channel name", address: "@acme_updates", wantChat: true},
		{name: "E-mail address", address: "owner@example.com", wantEmail: true},
		{name: "Empty", address: "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := new(MockNotifier)
			email := new(MockNotifier)
			if tt.wantChat {
				chat.On("Notify", mock.Anything, strings.TrimSpace(tt.address), "acme", int64(1000), int64(1001)).Return(true)
			}
			if tt.wantEmail {
				email.On("Notify", mock.Anything, tt.address, "acme", int64(1000), int64(1001)).Return(true)
			}

			router := NewRouter(chat, email)
			sent := router.Notify(context.Background(), tt.address, "acme", 1000, 1001)

			assert.Equal(t, tt.wantChat || tt.wantEmail, sent)
			chat.AssertExpectations(t)
			email.AssertExpectations(t)
		})
	}
}

func TestRouter_MissingChannel(t *testing.T) {
	router := NewRouter(nil, nil)
	assert.False(t, router.Notify(context.Background(), "owner@example.com", "acme", 10, 10))
	assert.False(t, router.Notify(context.Background(), "123", "acme", 10, 10))
}

type fakeDialer struct {
	mu   sync.Mutex
	sent []*gomail.Message
	err  error
	wait time.Duration
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	time.Sleep(d.wait)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, m...)
	return d.err
}

func TestEmailNotifier(t *testing.T) {
	dialer := &fakeDialer{}
	notifier := NewEmailNotifierWithDialer("bot@example.com", dialer)

	assert.True(t, notifier.Notify(context.Background(), "owner@example.com", "acme", 5000, 5012))
	require.Len(t, dialer.sent, 1)
	assert.Equal(t, []string{"owner@example.com"}, dialer.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"@acme reached 5,000 followers"}, dialer.sent[0].GetHeader("Subject"))

	failing := NewEmailNotifierWithDialer("bot@example.com", &fakeDialer{err: errors.New("smtp down")})
	assert.False(t, failing.Notify(context.Background(), "owner@example.com", "acme", 5000, 5012))
}

func TestEmailNotifier_Timeout(t *testing.T) {
	notifier := NewEmailNotifierWithDialer("bot@example.com", &fakeDialer{wait: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.False(t, notifier.Notify(ctx, "owner@example.com", "acme", 10, 10))
}

func newFakeBotAPI(t *testing.T, sendOK bool) (*httptest.Server, *[]map[string]string) {
	t.Helper()
	var mu sync.Mutex
	var sent []map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"watch","username":"watch_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			mu.Lock()
			sent = append(sent, map[string]string{
				"chat_id":    r.FormValue("chat_id"),
				"text":       r.FormValue("text"),
				"parse_mode": r.FormValue("parse_mode"),
			})
			mu.Unlock()
			if !sendOK {
				_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
				return
			}
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":123,"type":"private"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server, &sent
}

func TestTelegramNotifier_Notify(t *testing.T) {
	server, sent := newFakeBotAPI(t, true)
	notifier := NewTelegramNotifierWithEndpoint("token", server.URL+"/bot%s/%s", server.Client())

	assert.True(t, notifier.Notify(context.Background(), "123", "acme", 1000, 1050))
	require.Len(t, *sent, 1)
	assert.Equal(t, "123", (*sent)[0]["chat_id"])
	assert.Equal(t, "HTML", (*sent)[0]["parse_mode"])
	assert.Contains(t, (*sent)[0]["text"], "<b>1,000</b>")
}

func TestTelegramNotifier_Failures(t *testing.T) {
	server, _ := newFakeBotAPI(t, false)

	tests := []struct {
		name     string
		notifier *TelegramNotifier
		address  string
	}{
		{name: "No token", notifier: NewTelegramNotifierWithEndpoint("", server.URL+"/bot%s/%s", server.Client()), address: "123"},
		{name: "Invalid chat id", notifier: NewTelegramNotifierWithEndpoint("token", server.URL+"/bot%s/%s", server.Client()), address: "not-a-chat"},
		{name: "API rejects", notifier: NewTelegramNotifierWithEndpoint("token", server.URL+"/bot%s/%s", server.Client()), address: "123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.notifier.Notify(context.Background(), tt.address, "acme", 10, 10))
		})
	}
}

func TestTeamsPublisher(t *testing.T) {
	var received TeamsMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	report := &models.CycleReport{
		StartedAt: time.Now(),
		Duration:  "1.2s",
		Checked:   2,
		Updated:   1,
		Errored:   1,
		Profiles: []models.ProfileOutcome{
			{Handle: "acme", Status: models.StatusUpdated},
			{Handle: "beta", Status: models.StatusError, Error: "source unavailable"},
		},
	}

	publisher := NewTeamsPublisher(server.URL)
	require.NoError(t, publisher.PublishCycleReport(context.Background(), report))

	assert.Equal(t, "MessageCard", received.Type)
	assert.Equal(t, "D13438", received.ThemeColor)
	require.Len(t, received.Sections, 2)
	assert.Contains(t, received.Sections[1].ActivityText, "**@beta** - source unavailable")
}

func TestTeamsPublisher_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := NewTeamsPublisher(server.URL).PublishCycleReport(context.Background(), &models.CycleReport{})
	assert.Error(t, err)
}
