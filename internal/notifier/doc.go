// Package notifier delivers the welcome push: the latest evidence image sent
// to a recipient right after they open a session.
//
// Pushes are queued by the webhook handler and delivered by a small worker
// pool, so the webhook reply never waits on the messaging provider. Sends are
// rate limited and retried with jittered exponential backoff; permanent
// provider rejections are not retried.
//
// A push records LastEventSent for its recipient and never touches
// LastTemplateSent.
package notifier
