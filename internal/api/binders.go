package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/saasbilling/binder"
	"github.com/dmitrymomot/saasbilling/handler"
)

func queryParams() handler.Bind { return binder.BindQuery() }

func jsonBody() handler.Bind { return binder.BindJSON() }

func pathParams() handler.Bind { return binder.Path(chi.URLParam) }
