// Package clientip resolves the originating client address of a request
// served behind reverse proxies.
//
// A Resolver checks a configured list of proxy headers in order and falls
// back to the TCP peer address. Only list headers your edge proxy
// overwrites; a client can forge any header the proxy passes through.
//
//	r := clientip.New("CF-Connecting-IP", "X-Forwarded-For")
//	router.Use(r.Middleware)
//	ip := clientip.FromContext(req.Context())
package clientip
