// Package outbound routes messages from sessions to external delivery
// surfaces through pluggable channel adapters.
//
// Invariants:
// - Registering an id twice atomically replaces the previous adapter.
// - Unknown channels, adapter errors, and adapter panics become SendResult values.
// - Send never returns an error and never lets a panic escape.
//
// Usage:
//
//	router := outbound.NewRouter(logger)
//	_ = router.Register("log", outbound.NewLogChannel(logger))
//	res := router.Send(ctx, "log", "user", "hello", outbound.SendOptions{})
//	_ = res.OK
package outbound
