// Package timeouts defines shared timeout defaults for lectureStudio processes.
package timeouts

import "time"

// OTelShutdown caps the flush of pending spans when a process exits.
const OTelShutdown = 5 * time.Second

// HealthCheck caps a single gRPC health check call.
const HealthCheck = time.Second

// AwaitCommits caps how long shutdown waits for queued timeline commits.
const AwaitCommits = 30 * time.Second
