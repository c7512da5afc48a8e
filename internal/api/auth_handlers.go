package api

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/saasbilling/handler"
	"github.com/dmitrymomot/saasbilling/pkg/logger"
	"github.com/dmitrymomot/saasbilling/pkg/session"
	"github.com/dmitrymomot/saasbilling/pkg/sessionsync"
)

type tabRequest struct {
	Tab string `query:"tab"`
}

type broadcastRequest struct {
	Tab  string                `query:"tab"`
	Type sessionsync.EventType `json:"type"`
}

type signOutResponse struct {
	Success bool `json:"success"`
}

// sessionAction tells the polling tab what to do.
type sessionAction struct {
	Action string `json:"action"`
	URL    string `json:"url,omitempty"`
}

const (
	actionRefresh  = "refresh"
	actionNavigate = "navigate"
)

// channelName scopes sync channels per user so one user's logout never
// reaches another user's tabs.
func channelName(userID string) string {
	return sessionsync.DefaultChannelName + ":" + userID
}

// tabID prefers the header, then the query parameter. Requests without
// either get a fresh origin, which only means they hear their own events.
func tabID(ctx handler.Context, fromQuery string) string {
	if id := strings.TrimSpace(ctx.Request().Header.Get(TabHeader)); id != "" {
		return id
	}
	if id := strings.TrimSpace(fromQuery); id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Server) newChannel(userID, origin string, opts ...sessionsync.Option) *sessionsync.Channel {
	base := []sessionsync.Option{
		sessionsync.WithName(channelName(userID)),
		sessionsync.WithOrigin(origin),
		sessionsync.WithLoginURL(s.cfg.LoginURL),
		sessionsync.WithLogger(s.log),
	}
	if s.syncPrimary != nil {
		base = append(base, sessionsync.WithPrimary(s.syncPrimary))
	}
	if s.syncFallback != nil {
		base = append(base, sessionsync.WithFallback(s.syncFallback))
	}
	return sessionsync.New(append(base, opts...)...)
}

// publish sends one event on the user's channel from origin.
func (s *Server) publish(ctx context.Context, userID, origin string, typ sessionsync.EventType) error {
	ch := s.newChannel(userID, origin)
	if err := ch.Init(ctx); err != nil {
		return err
	}
	defer ch.Close()
	return ch.Broadcast(ctx, typ)
}

// signOut destroys the session and tells the user's other tabs. It succeeds
// without a session so repeated sign-outs are harmless.
func (s *Server) signOut(ctx handler.Context, req tabRequest) handler.Response {
	sess, err := s.sessions.Destroy(ctx, ctx.ResponseWriter(), ctx.Request())
	if err != nil {
		if session.IsNotFound(err) {
			return handler.JSON(signOutResponse{Success: true})
		}
		return handler.Fail(err)
	}

	if err := s.publish(ctx, sess.UserID, tabID(ctx, req.Tab), sessionsync.UserLogout); err != nil {
		s.log.WarnContext(ctx, "failed to broadcast logout", logger.UserID(sess.UserID), logger.Error(err))
	}
	return handler.JSON(signOutResponse{Success: true})
}

// broadcastSession relays a tab's own session change to its siblings.
func (s *Server) broadcastSession(ctx handler.Context, req broadcastRequest) handler.Response {
	if !req.Type.Valid() {
		return handler.Fail(sessionsync.ErrUnknownEvent)
	}
	if err := s.publish(ctx, currentUserID(ctx), tabID(ctx, req.Tab), req.Type); err != nil {
		return handler.Fail(err)
	}
	return handler.Empty()
}

// sessionEvents long-polls the user's channel and reports the first action
// for this tab, or 204 when the poll times out. Each poll joins the channel
// afresh, so events published between two polls are not seen by this tab.
// The next poll picks up later events only.
func (s *Server) sessionEvents(ctx handler.Context, req tabRequest) handler.Response {
	actions := make(chan sessionAction, 1)
	emit := func(a sessionAction) {
		select {
		case actions <- a:
		default:
		}
	}

	ch := s.newChannel(currentUserID(ctx), tabID(ctx, req.Tab),
		sessionsync.WithRefresher(sessionsync.RefresherFunc(func(context.Context) error {
			emit(sessionAction{Action: actionRefresh})
			return nil
		})),
		sessionsync.WithNavigator(sessionsync.NavigatorFunc(func(_ context.Context, url string) error {
			emit(sessionAction{Action: actionNavigate, URL: url})
			return nil
		})),
	)
	if err := ch.Init(ctx); err != nil {
		return handler.Fail(err)
	}
	defer ch.Close()

	timer := time.NewTimer(s.cfg.SessionEventsTimeout)
	defer timer.Stop()

	select {
	case a := <-actions:
		return handler.JSON(a)
	case <-timer.C:
		return handler.Empty()
	case <-ctx.Done():
		return handler.Empty()
	}
}
