// Package notifier delivers slot announcements to subscribed chats.
//
// Deliver renders one message per slot and queues one send per recipient.
// A fixed pool of workers drains the queue through a token bucket and a
// circuit breaker, so a slow or failing chat platform never blocks the
// poll loop.
//
// # Failures
//
// Sends that fail with ErrRecipientGone are final: the OnGone hook runs and
// the chat is expected to be unregistered. Every other error is transient.
// It is retried up to Config.RetryMax times, then logged and dropped.
package notifier
