// Package sched runs the firing loop.
//
// One goroutine ticks at a fixed short period and scans the timer store for
// due timers (target time at or before the tick time). Each due timer fires
// on its own goroutine so a hanging action never blocks the next tick or a
// sibling timer; an in-flight guard keeps a slow fire from being dispatched
// twice. Success advances (recurring) or retires (one-time) the timer;
// failure leaves it due, to be retried on the next tick.
//
// A single periodic scan is deliberately used instead of one OS timer per
// timer object: it is simpler to reason about and can be driven
// deterministically in tests via the injected clock and a direct tick call.
package sched
