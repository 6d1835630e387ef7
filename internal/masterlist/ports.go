package masterlist

import (
	"context"

	"certsync/pkg/result"
)

// AccessTokenProvider obtains the primary credential. First step of the
// dual-token flow; the access token grants permission to call the other
// services.
type AccessTokenProvider interface {
	AcquireToken(ctx context.Context) result.Result[string]
}

// ServiceTokenProvider obtains the service-specific credential using the
// access token from the first step.
type ServiceTokenProvider interface {
	AcquireToken(ctx context.Context, accessToken string) result.Result[string]
}

// BinaryDownloader fetches the raw Master List bundle using both
// credentials.
type BinaryDownloader interface {
	Download(ctx context.Context, creds AuthCredentials) result.Result[[]byte]
}

// Extractor decodes a raw bundle into the payload. It never raises for any
// input; every fault is caught at this boundary and classified.
type Extractor interface {
	Extract(raw []byte) result.Result[*MasterListPayload]
}

// Store atomically replaces all persisted records with the payload's
// contents and reports the number of rows written. On failure the prior
// contents remain intact.
type Store interface {
	Store(ctx context.Context, payload *MasterListPayload) result.Result[int]
}

// UnlockFunc releases a previously acquired run lock.
type UnlockFunc func(ctx context.Context)

// RunLock guards against overlapping sync runs across processes. A held
// lock surfaces as a business-rule failure, not an error.
type RunLock interface {
	TryAcquire(ctx context.Context) result.Result[UnlockFunc]
}

// Notifier publishes sync outcomes for downstream consumers. Publishing is
// best-effort; implementations log their own delivery failures.
type Notifier interface {
	SyncCompleted(ctx context.Context, rows int)
	SyncFailed(ctx context.Context, desc *result.FailureDescription)
}
