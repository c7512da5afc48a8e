// Package handler adapts typed request handlers to net/http.
//
// A HandlerFunc receives a Context and a request value filled by the
// configured binders, and returns a Response. Binding and rendering errors,
// and errors returned through Fail, are passed to the ErrorHandler, which
// turns them into a JSON body of the form
//
//	{"error": "...", "code": "...", "details": "..."}
//
// Basic usage:
//
//	type historyRequest struct {
//		Limit  int `query:"limit"`
//		Offset int `query:"offset"`
//	}
//
//	h := func(ctx handler.Context, req historyRequest) handler.Response {
//		page, err := svc.History(ctx, userID, req.Limit, req.Offset)
//		if err != nil {
//			return handler.Fail(err)
//		}
//		return handler.JSON(page)
//	}
//
//	r.Get("/billing/history", handler.Wrap(h,
//		handler.WithBinders[handler.Context, historyRequest](binder.BindQuery()),
//		handler.WithErrorHandler[handler.Context, historyRequest](errorHandler),
//	))
package handler
