package masterlist

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certsync/pkg/result"
)

func strPtr(s string) *string { return &s }

func TestNewCertificateRecord(t *testing.T) {
	t.Run("valid input builds a record with a fresh id", func(t *testing.T) {
		r := NewCertificateRecord([]byte{0x30, 0x82}, "CN=Test CSCA,C=DE", []byte{0x30}, SourceICAOMasterList, "0x1a2b", strPtr("aabb"), nil)
		require.True(t, r.IsSuccess())

		rec := r.MustValue()
		assert.NotEqual(t, uuid.Nil, rec.ID)
		assert.Equal(t, []byte{0x30, 0x82}, rec.Certificate)
		assert.Equal(t, "0x1a2b", rec.SerialNumber)
		assert.Equal(t, "aabb", *rec.SubjectKeyID)
		assert.Nil(t, rec.AuthorityKeyID)
		assert.Nil(t, rec.UpdatedAt, "timestamp stays nil until persisted")
	})

	t.Run("empty bytes are a validation failure", func(t *testing.T) {
		r := NewCertificateRecord(nil, "CN=x", nil, SourceICAOMasterList, "0x1", nil, nil)
		assert.Equal(t, result.CodeValidation, r.MustFailure().Code)
	})

	t.Run("missing source is a validation failure", func(t *testing.T) {
		r := NewCertificateRecord([]byte{0x30}, "CN=x", nil, "", "0x1", nil, nil)
		assert.Equal(t, result.CodeValidation, r.MustFailure().Code)
	})
}

func TestNewCrlRecord(t *testing.T) {
	t.Run("valid input", func(t *testing.T) {
		r := NewCrlRecord([]byte{0x30, 0x01}, SourceICAOMasterList, "CN=CRL Issuer,C=FR", strPtr("FR"))
		require.True(t, r.IsSuccess())
		rec := r.MustValue()
		assert.NotEqual(t, uuid.Nil, rec.ID)
		assert.Equal(t, "FR", *rec.Country)
	})

	t.Run("country is optional", func(t *testing.T) {
		r := NewCrlRecord([]byte{0x30}, SourceICAOMasterList, "CN=No Country", nil)
		require.True(t, r.IsSuccess())
		assert.Nil(t, r.MustValue().Country)
	})

	t.Run("empty bytes fail", func(t *testing.T) {
		r := NewCrlRecord(nil, SourceICAOMasterList, "CN=x", nil)
		assert.Equal(t, result.CodeValidation, r.MustFailure().Code)
	})
}

func TestNewRevokedCertificateRecord(t *testing.T) {
	crlID := uuid.New()
	revokedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid input references the parent CRL", func(t *testing.T) {
		r := NewRevokedCertificateRecord(SourceICAOMasterList, strPtr("DE"), "0xdead", crlID, strPtr("keyCompromise"), revokedAt)
		require.True(t, r.IsSuccess())
		rec := r.MustValue()
		assert.Equal(t, crlID, rec.CrlID)
		assert.Equal(t, "keyCompromise", *rec.RevocationReason)
		assert.Equal(t, revokedAt, rec.RevocationDate)
	})

	t.Run("missing CRL reference fails", func(t *testing.T) {
		r := NewRevokedCertificateRecord(SourceICAOMasterList, nil, "0x1", uuid.Nil, nil, revokedAt)
		assert.Equal(t, result.CodeValidation, r.MustFailure().Code)
	})

	t.Run("missing serial fails", func(t *testing.T) {
		r := NewRevokedCertificateRecord(SourceICAOMasterList, nil, "", crlID, nil, revokedAt)
		assert.Equal(t, result.CodeValidation, r.MustFailure().Code)
	})
}

func TestMasterListPayloadTotals(t *testing.T) {
	payload := &MasterListPayload{
		RootCAs:             make([]CertificateRecord, 5),
		CRLs:                make([]CrlRecord, 1),
		RevokedCertificates: make([]RevokedCertificateRecord, 5),
	}

	assert.Equal(t, 5, payload.TotalCertificates())
	assert.Equal(t, 11, payload.TotalItems())

	empty := &MasterListPayload{}
	assert.Zero(t, empty.TotalCertificates())
	assert.Zero(t, empty.TotalItems())
}

func TestRunStatus(t *testing.T) {
	t.Run("begin and finish", func(t *testing.T) {
		status := NewRunStatus()
		assert.False(t, status.Running())

		require.True(t, status.TryBegin())
		assert.True(t, status.Running())
		assert.False(t, status.TryBegin(), "second begin must be rejected while running")

		status.Finish(RunReport{State: RunStateSucceeded, RowsStored: 11})
		assert.False(t, status.Running())

		report, ok := status.Last()
		require.True(t, ok)
		assert.Equal(t, RunStateSucceeded, report.State)
		assert.Equal(t, 11, report.RowsStored)
	})

	t.Run("no report before the first run", func(t *testing.T) {
		_, ok := NewRunStatus().Last()
		assert.False(t, ok)
	})

	t.Run("only one concurrent begin wins", func(t *testing.T) {
		status := NewRunStatus()
		var wins int32
		var mu sync.Mutex
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if status.TryBegin() {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, wins)
	})
}
