// Package masterlist holds the domain model for the trust-store sync: the
// records extracted from a signed Master List bundle and the ports the
// pipeline consumes. Adapters live in subpackages.
package masterlist

import (
	"time"

	"github.com/google/uuid"

	"certsync/pkg/result"
)

// Source tag stamped on every record extracted from the bundle.
const SourceICAOMasterList = "icao-masterlist"

// CertificateRecord is a root-authority (CSCA) or document-signer
// certificate. Certificate holds the exact DER bytes as found in the
// bundle.
type CertificateRecord struct {
	ID             uuid.UUID
	Certificate    []byte
	SubjectKeyID   *string
	AuthorityKeyID *string
	Issuer         string
	RawIssuer      []byte
	Source         string
	SerialNumber   string
	UpdatedAt      *time.Time
}

// CrlRecord is a certificate revocation list. RawCRL holds the exact DER
// bytes as found in the bundle.
type CrlRecord struct {
	ID        uuid.UUID
	RawCRL    []byte
	Source    string
	Issuer    string
	Country   *string
	UpdatedAt *time.Time
}

// RevokedCertificateRecord is a single revoked entry from a CRL. CrlID
// references the parent CrlRecord produced in the same extraction pass.
type RevokedCertificateRecord struct {
	ID               uuid.UUID
	Source           string
	Country          *string
	SerialNumber     string
	CrlID            uuid.UUID
	RevocationReason *string
	RevocationDate   time.Time
	UpdatedAt        *time.Time
}

// AuthCredentials is the dual-token pair required by the download service:
// the access token goes into the Authorization header, the service token
// into x-sfc-authorization. Built once per run, never persisted.
type AuthCredentials struct {
	AccessToken  string
	ServiceToken string
}

// MasterListPayload is the complete extracted content of one bundle.
type MasterListPayload struct {
	RootCAs             []CertificateRecord
	DSCs                []CertificateRecord
	CRLs                []CrlRecord
	RevokedCertificates []RevokedCertificateRecord
}

// TotalCertificates counts root-authority and document-signer records.
func (p *MasterListPayload) TotalCertificates() int {
	return len(p.RootCAs) + len(p.DSCs)
}

// TotalItems counts every record in the payload.
func (p *MasterListPayload) TotalItems() int {
	return p.TotalCertificates() + len(p.CRLs) + len(p.RevokedCertificates)
}

// NewCertificateRecord validates and builds a certificate record with a
// fresh identifier. The raw DER bytes are required.
func NewCertificateRecord(der []byte, issuer string, rawIssuer []byte, source, serial string, ski, aki *string) result.Result[CertificateRecord] {
	if len(der) == 0 {
		return result.Fail[CertificateRecord](result.CodeValidation, "certificate bytes are required")
	}
	if source == "" {
		return result.Fail[CertificateRecord](result.CodeValidation, "certificate source is required")
	}
	return result.Ok(CertificateRecord{
		ID:             uuid.New(),
		Certificate:    der,
		SubjectKeyID:   ski,
		AuthorityKeyID: aki,
		Issuer:         issuer,
		RawIssuer:      rawIssuer,
		Source:         source,
		SerialNumber:   serial,
	})
}

// NewCrlRecord validates and builds a CRL record with a fresh identifier.
func NewCrlRecord(der []byte, source, issuer string, country *string) result.Result[CrlRecord] {
	if len(der) == 0 {
		return result.Fail[CrlRecord](result.CodeValidation, "CRL bytes are required")
	}
	if source == "" {
		return result.Fail[CrlRecord](result.CodeValidation, "CRL source is required")
	}
	return result.Ok(CrlRecord{
		ID:      uuid.New(),
		RawCRL:  der,
		Source:  source,
		Issuer:  issuer,
		Country: country,
	})
}

// NewRevokedCertificateRecord validates and builds a revoked-entry record.
// The parent CRL identifier must be set.
func NewRevokedCertificateRecord(source string, country *string, serial string, crlID uuid.UUID, reason *string, revokedAt time.Time) result.Result[RevokedCertificateRecord] {
	if crlID == uuid.Nil {
		return result.Fail[RevokedCertificateRecord](result.CodeValidation, "revoked entry requires a parent CRL reference")
	}
	if serial == "" {
		return result.Fail[RevokedCertificateRecord](result.CodeValidation, "revoked entry requires a serial number")
	}
	return result.Ok(RevokedCertificateRecord{
		ID:               uuid.New(),
		Source:           source,
		Country:          country,
		SerialNumber:     serial,
		CrlID:            crlID,
		RevocationReason: reason,
		RevocationDate:   revokedAt,
	})
}
