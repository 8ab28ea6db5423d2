// Package dedupe provides a TTL cache over platform message identifiers so
// redelivered bot updates (long-poll retries, reconnect replays) are
// processed exactly once.
package dedupe
