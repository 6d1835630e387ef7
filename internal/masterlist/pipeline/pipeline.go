// Package pipeline chains the five sync stages: acquire the access token,
// trade it for the service token, download the bundle, extract its
// records, and atomically replace the trust store. A failure in any stage
// short-circuits the rest and surfaces with its original classification.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"certsync/internal/masterlist"
	"certsync/pkg/result"
)

// Pipeline wires the sync stages through their ports.
type Pipeline struct {
	access     masterlist.AccessTokenProvider
	service    masterlist.ServiceTokenProvider
	downloader masterlist.BinaryDownloader
	extractor  masterlist.Extractor
	store      masterlist.Store
	logger     *slog.Logger
}

// New constructs the pipeline. Every port is required.
func New(
	access masterlist.AccessTokenProvider,
	service masterlist.ServiceTokenProvider,
	downloader masterlist.BinaryDownloader,
	extractor masterlist.Extractor,
	store masterlist.Store,
	logger *slog.Logger,
) (*Pipeline, error) {
	switch {
	case access == nil:
		return nil, fmt.Errorf("pipeline: access token provider is required")
	case service == nil:
		return nil, fmt.Errorf("pipeline: service token provider is required")
	case downloader == nil:
		return nil, fmt.Errorf("pipeline: downloader is required")
	case extractor == nil:
		return nil, fmt.Errorf("pipeline: extractor is required")
	case store == nil:
		return nil, fmt.Errorf("pipeline: store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		access:     access,
		service:    service,
		downloader: downloader,
		extractor:  extractor,
		store:      store,
		logger:     logger,
	}, nil
}

// Run executes one complete sync and returns the number of rows written.
func (p *Pipeline) Run(ctx context.Context) result.Result[int] {
	creds := result.FlatMap(p.access.AcquireToken(ctx),
		func(accessToken string) result.Result[masterlist.AuthCredentials] {
			return result.Map(p.service.AcquireToken(ctx, accessToken),
				func(serviceToken string) masterlist.AuthCredentials {
					return masterlist.AuthCredentials{
						AccessToken:  accessToken,
						ServiceToken: serviceToken,
					}
				})
		})

	raw := result.FlatMap(creds, func(c masterlist.AuthCredentials) result.Result[[]byte] {
		return p.downloader.Download(ctx, c)
	})

	payload := result.FlatMap(raw, func(b []byte) result.Result[*masterlist.MasterListPayload] {
		return p.extractor.Extract(b)
	})

	return result.FlatMap(payload, func(pl *masterlist.MasterListPayload) result.Result[int] {
		return p.store.Store(ctx, pl)
	}).
		Peek(func(rows int) {
			p.logger.Info("sync pipeline complete", "rows_stored", rows)
		}).
		PeekFailure(func(desc *result.FailureDescription) {
			p.logger.Error("sync pipeline failed", "code", desc.Code, "error", desc.Error())
		})
}
