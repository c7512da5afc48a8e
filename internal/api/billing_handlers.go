package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/dmitrymomot/saasbilling/handler"
	"github.com/dmitrymomot/saasbilling/pkg/billing"
	"github.com/dmitrymomot/saasbilling/pkg/logger"
)

type historyRequest struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

type portalRequest struct {
	ReturnURL string `json:"returnUrl"`
}

type webhookRequest struct {
	Provider string `path:"provider"`
}

func (s *Server) subscription(ctx handler.Context, _ struct{}) handler.Response {
	overview, err := s.billing.GetOverview(ctx, currentUserID(ctx))
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(overview)
}

// history passes limit and offset through unchanged; the service clamps them.
func (s *Server) history(ctx handler.Context, req historyRequest) handler.Response {
	page, err := s.billing.History(ctx, currentUserID(ctx), req.Limit, req.Offset)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(page)
}

func (s *Server) cancel(ctx handler.Context, _ struct{}) handler.Response {
	userID := currentUserID(ctx)
	res, err := s.billing.Cancel(ctx, userID)
	if err != nil {
		return handler.Fail(err)
	}
	s.log.InfoContext(ctx, "subscription cancellation scheduled", logger.UserID(userID))
	return handler.JSON(res)
}

func (s *Server) reactivate(ctx handler.Context, _ struct{}) handler.Response {
	userID := currentUserID(ctx)
	res, err := s.billing.Reactivate(ctx, userID)
	if err != nil {
		return handler.Fail(err)
	}
	s.log.InfoContext(ctx, "subscription reactivated", logger.UserID(userID))
	return handler.JSON(res)
}

// portal always answers with JSON so the client decides how to navigate.
func (s *Server) portal(ctx handler.Context, req portalRequest) handler.Response {
	ps, err := s.billing.Portal(ctx, currentUserID(ctx), req.ReturnURL)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(ps)
}

// webhook acknowledges with 200 once the event is applied or ignored.
// Verification failures answer 400 so the provider does not retry a forged
// delivery as if it were transient.
func (s *Server) webhook(ctx handler.Context, req webhookRequest) handler.Response {
	name := billing.ProviderName(req.Provider)
	if name != billing.ProviderStripe && name != billing.ProviderLemonSqueezy {
		return handler.Fail(handler.ErrNotFound)
	}

	r := ctx.Request()
	payload, err := io.ReadAll(http.MaxBytesReader(ctx.ResponseWriter(), r.Body, s.cfg.MaxWebhookBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return handler.Fail(errors.Join(billing.ErrInvalidWebhookPayload, err))
		}
		return handler.Fail(err)
	}

	if err := s.billing.HandleWebhook(ctx, name, payload, r.Header); err != nil {
		return handler.Fail(err)
	}
	return handler.EmptyWithStatus(http.StatusOK)
}
