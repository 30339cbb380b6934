// Package server provides the HTTP routing and middleware behind `dird serve`.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] is applied in the order it is added: the first middleware is the outermost wrapper.
// [Recover] and [Logging] are the stock middleware.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns, so a route registered
// for GET answers other methods with 405 Method Not Allowed.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
//
// # Routes
//
//   - GET /status : registry generation, configured sources with their load state, profile names
//   - GET /metrics : prometheus collectors
//
// The directory itself has no HTTP routes; lookups and CRUD go through the CLI.
package server
