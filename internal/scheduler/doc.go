// Package scheduler drives time-based work for the shield service.
//
// Ticker is the single periodic trigger of the evaluation loop; its lifecycle
// is explicit (Start/Stop) so repeated enables never stack timers.
//
// Queue holds delayed one-shot jobs (upcoming-start notifications) in a
// min-heap owned by one goroutine, sleeping at most maxSleepCap between checks
// so wall-clock steps and system sleep are picked up within a minute.
package scheduler
