// Package binder fills request structs from JSON bodies, query strings and
// path parameters.
//
// Each binder reads only its own struct tag (`query:"..."`, `path:"..."`) or,
// for JSON, the `json:"..."` tags via encoding/json. Binders are combined with
// handler.WithBinders and applied in order.
package binder
