// Package notifications delivers run outcomes via pluggable notifiers.
//
// When a topic is configured the service posts run outcomes to ntfy;
// without one it degrades to a no-op so callers never branch. The publishes
// and errors toggles silence individual event classes without removing the
// service.
//
// Extend this package if you need alternative transports; the run
// coordinator depends only on the Service interface.
package notifications
