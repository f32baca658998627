package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstep-hub/learning-engine/internal/domain/notification"
	"github.com/nextstep-hub/learning-engine/internal/domain/quota"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
)

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{Level: logger.LevelError, Output: nullWriter{}})
}

// ─────────────────────────────────────────────────────────────────────────────
// Role providers
// ─────────────────────────────────────────────────────────────────────────────

func TestStaticRoleProvider(t *testing.T) {
	p, err := NewStaticRoleProvider(map[string]string{
		"admin-user": "admin",
		"m-1":        "mentor",
	}, quota.RoleFreeMember)
	require.NoError(t, err)

	role, err := p.RoleOf(context.Background(), shared.UserID("admin-user"))
	require.NoError(t, err)
	assert.Equal(t, quota.RoleAdmin, role)

	role, err = p.RoleOf(context.Background(), shared.UserID("unknown"))
	require.NoError(t, err)
	assert.Equal(t, quota.RoleFreeMember, role)
}

func TestStaticRoleProvider_RejectsBadRole(t *testing.T) {
	_, err := NewStaticRoleProvider(map[string]string{"u": "emperor"}, quota.RoleFreeMember)
	assert.Error(t, err)

	_, err = NewStaticRoleProvider(nil, quota.Role("nope"))
	assert.Error(t, err)
}

func TestHTTPRoleProvider_ResolvesAndCaches(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "secret", r.Header.Get("X-Service-Key"))
		_ = json.NewEncoder(w).Encode(roleResponse{Role: "premium_member"})
	}))
	defer srv.Close()

	p, err := NewHTTPRoleProvider(HTTPRoleProviderConfig{
		BaseURL:    srv.URL,
		ServiceKey: "secret",
		Logger:     quietLogger(),
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		role, err := p.RoleOf(context.Background(), shared.UserID("u1"))
		require.NoError(t, err)
		assert.Equal(t, quota.RolePremiumMember, role)
	}

	// first call populates the cache, the rest serve from it
	assert.Equal(t, int64(1), hits.Load())
}

func TestHTTPRoleProvider_UnknownUserIsGuest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := NewHTTPRoleProvider(HTTPRoleProviderConfig{BaseURL: srv.URL, Logger: quietLogger()})
	require.NoError(t, err)

	role, err := p.RoleOf(context.Background(), shared.UserID("ghost"))
	require.NoError(t, err)
	assert.Equal(t, quota.RoleGuest, role)
}

func TestHTTPRoleProvider_OutageServesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p, err := NewHTTPRoleProvider(HTTPRoleProviderConfig{
		BaseURL:      srv.URL,
		FallbackRole: quota.RoleFreeMember,
		Logger:       quietLogger(),
	})
	require.NoError(t, err)

	role, err := p.RoleOf(context.Background(), shared.UserID("u1"))
	require.NoError(t, err)
	assert.Equal(t, quota.RoleFreeMember, role)
}

// ─────────────────────────────────────────────────────────────────────────────
// Notification dispatch
// ─────────────────────────────────────────────────────────────────────────────

type recordingSender struct {
	sent []*notification.Notification
	err  error
}

func (s *recordingSender) Send(_ context.Context, n *notification.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

type capturingPublisher struct {
	events []shared.Event
}

func (p *capturingPublisher) Publish(e shared.Event) error {
	p.events = append(p.events, e)
	return nil
}

func TestDispatcher_DeliversAndPublishesSent(t *testing.T) {
	inner := &recordingSender{}
	pub := &capturingPublisher{}
	d := NewDispatcher(inner, pub, quietLogger())

	n := notification.New(shared.UserID("u1"), notification.TypeStreakMilestone, "7 days!", "Keep it up")
	require.NoError(t, d.Send(context.Background(), n))

	require.Len(t, inner.sent, 1)
	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventNotificationSent, pub.events[0].EventType())
}

func TestDispatcher_FailurePublishesFailed(t *testing.T) {
	inner := &recordingSender{err: errors.New("channel down")}
	pub := &capturingPublisher{}
	d := NewDispatcher(inner, pub, quietLogger())

	n := notification.New(shared.UserID("u1"), notification.TypeStreakReminder, "Streak at risk", "Study today")
	err := d.Send(context.Background(), n)
	require.Error(t, err)

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventNotificationFailed, pub.events[0].EventType())
}

func TestWebhookSender_PostsPayload(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s, err := NewWebhookSender(WebhookSenderConfig{URL: srv.URL, ServiceKey: "k"})
	require.NoError(t, err)

	n := notification.New(shared.UserID("u1"), notification.TypeRoadmapCompleted, "Done!", "Roadmap finished").
		WithPriority(notification.PriorityHigh).
		WithData("roadmap_id", "go-basics")
	require.NoError(t, s.Send(context.Background(), n))

	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "roadmap_completed", got.Type)
	assert.Equal(t, "high", got.Priority)
	assert.Equal(t, "go-basics", got.Data["roadmap_id"])
	assert.NotEmpty(t, got.ID)
}

func TestWebhookSender_RejectionIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	s, err := NewWebhookSender(WebhookSenderConfig{URL: srv.URL})
	require.NoError(t, err)

	n := notification.New(shared.UserID("u1"), notification.TypeStreakReminder, "t", "b")
	sendErr := s.Send(context.Background(), n)
	require.Error(t, sendErr)
	assert.ErrorContains(t, sendErr, "status 422")
}
