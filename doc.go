// Package ikc provides the asynchronous inter-kernel communication runtime:
// a task scheduler, mailbox and portal channels, and a barrier, built on an
// IKC flow engine that drives raw mailbox/portal operations through a
// config/wait task pair with transient-error retry.
package ikc
