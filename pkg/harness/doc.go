// Package harness defines the session runtime contract and a model-backed
// implementation over Anthropic and OpenAI chat APIs.
//
// Invariants:
// - Events of one harness are delivered to subscribers in emission order.
// - Every run emits agent_start first and agent_end last, even on failure.
// - At most one run per harness is in flight at a time.
//
// Usage:
//
//	provider, _ := harness.NewProvider("claude", apiKey)
//	h := harness.NewModelHarness(harness.ModelOptions{Provider: provider})
//	_ = h.Init(ctx)
//	cancel := h.Subscribe(func(ev harness.Event) { _ = ev })
//	defer cancel()
//	_ = h.SwitchThread(ctx, "thread-1")
//	_ = h.SendMessage(ctx, "hello", nil)
package harness
