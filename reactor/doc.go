// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness reactor used by the HTTP engine: an
// edge-triggered, one-shot epoll wrapper on Linux and a stub elsewhere.
//
// One-shot registration is what keeps a connection single-owner: once a
// descriptor fires it is disarmed until the worker that handled it calls
// Modify again.
package reactor
