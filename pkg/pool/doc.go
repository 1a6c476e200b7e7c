// Package pool manages concurrent conversation sessions keyed by thread id.
//
// Invariants:
// - At most one live session exists per thread id.
// - Events of one session are reduced and fanned out in emission order.
// - Pending state and the run buffer are updated before any listener sees an event.
// - Idle reclamation never touches running sessions or sessions awaiting user input.
//
// Usage:
//
//	p, _ := pool.New(pool.Options{Factory: factory, Logger: logger})
//	p.StartSweeper()
//	defer p.Close()
//	cancel := p.Subscribe(func(threadID string, ev harness.Event) { _ = ev })
//	defer cancel()
//	_, _ = p.GetOrCreate(ctx, "thread-1", "app")
//	_ = p.SendWait(ctx, "thread-1", "hello", nil)
package pool
