// Package extract decodes a signed Master List bundle into domain records.
//
// The walk is linear with no backtracking: outer SignedData envelope →
// encapsulated CscaMasterList (the root-authority set) → certificates
// embedded in the envelope itself (signer identities) → revocation lists
// with their revoked entries. All faults, including panics out of the
// ASN.1 layer, are caught at the Extract boundary and classified as
// technical failures.
package extract

import (
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"certsync/internal/masterlist"
	"certsync/pkg/result"
)

// revocationReasonNames maps RFC 5280 CRLReason values to their names.
// Value 7 is unused by the RFC.
var revocationReasonNames = map[int]string{
	0:  "unspecified",
	1:  "keyCompromise",
	2:  "cACompromise",
	3:  "affiliationChanged",
	4:  "superseded",
	5:  "cessationOfOperation",
	6:  "certificateHold",
	8:  "removeFromCRL",
	9:  "privilegeWithdrawn",
	10: "aACompromise",
}

// Engine implements the Extractor port.
type Engine struct {
	logger *slog.Logger
	source string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for extraction diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New constructs an extraction engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger: slog.Default(),
		source: masterlist.SourceICAOMasterList,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Extract decodes the raw bundle into a payload. It never panics for any
// input, including empty or random bytes; every fault becomes a
// technical-classified Failure with a descriptive message.
func (e *Engine) Extract(raw []byte) result.Result[*masterlist.MasterListPayload] {
	return result.FromComputation(func() (*masterlist.MasterListPayload, error) {
		return e.extract(raw)
	}, result.CodeTechnical, "parse master list bundle")
}

func (e *Engine) extract(raw []byte) (*masterlist.MasterListPayload, error) {
	sd, err := decodeContentInfo(raw)
	if err != nil {
		return nil, err
	}

	innerCerts, err := e.extractInnerCertificates(sd)
	if err != nil {
		return nil, err
	}

	outerCerts, err := e.extractOuterCertificates(sd)
	if err != nil {
		return nil, err
	}

	crls, revoked, err := e.extractCRLs(sd)
	if err != nil {
		return nil, err
	}

	// Fixed ordering: master-list certificates first, envelope signers after.
	rootCAs := make([]masterlist.CertificateRecord, 0, len(innerCerts)+len(outerCerts))
	rootCAs = append(rootCAs, innerCerts...)
	rootCAs = append(rootCAs, outerCerts...)

	payload := &masterlist.MasterListPayload{
		RootCAs:             rootCAs,
		CRLs:                crls,
		RevokedCertificates: revoked,
	}

	e.logger.Info("extraction complete",
		"inner_certs", len(innerCerts),
		"outer_certs", len(outerCerts),
		"root_cas", len(rootCAs),
		"crls", len(crls),
		"revoked", len(revoked),
	)

	return payload, nil
}

// extractInnerCertificates decodes the CscaMasterList carried in the
// envelope's encapsulated content.
func (e *Engine) extractInnerCertificates(sd *signedData) ([]masterlist.CertificateRecord, error) {
	content, err := sd.encapContent()
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, nil
	}

	ml, err := decodeMasterList(content)
	if err != nil {
		return nil, err
	}

	records := make([]masterlist.CertificateRecord, 0, len(ml.CertList))
	for i, el := range ml.CertList {
		rec, err := e.certificateRecord(el.FullBytes)
		if err != nil {
			return nil, fmt.Errorf("master list certificate %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// extractOuterCertificates decodes the certificates embedded directly in
// the envelope, the signer identities.
func (e *Engine) extractOuterCertificates(sd *signedData) ([]masterlist.CertificateRecord, error) {
	if len(sd.Certificates.Bytes) == 0 {
		return nil, nil
	}
	elements, err := rawElements(sd.Certificates.Bytes)
	if err != nil {
		return nil, fmt.Errorf("split envelope certificates: %w", err)
	}

	records := make([]masterlist.CertificateRecord, 0, len(elements))
	for i, der := range elements {
		rec, err := e.certificateRecord(der)
		if err != nil {
			return nil, fmt.Errorf("envelope certificate %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// certificateRecord converts one DER certificate into a domain record.
// Missing SKI/AKI extensions are logged but leave the field nil; they are
// never a failure.
func (e *Engine) certificateRecord(der []byte) (masterlist.CertificateRecord, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return masterlist.CertificateRecord{}, fmt.Errorf("parse certificate: %w", err)
	}

	issuer := cert.Issuer.String()
	serial := serialHex(cert.SerialNumber)

	var ski, aki *string
	if len(cert.SubjectKeyId) > 0 {
		s := hex.EncodeToString(cert.SubjectKeyId)
		ski = &s
	} else {
		e.logger.Warn("certificate has no subject key identifier", "issuer", issuer, "serial", serial)
	}
	if len(cert.AuthorityKeyId) > 0 {
		s := hex.EncodeToString(cert.AuthorityKeyId)
		aki = &s
	}

	rec := masterlist.NewCertificateRecord(der, issuer, cert.RawIssuer, e.source, serial, ski, aki)
	if desc, failed := rec.Failure(); failed {
		return masterlist.CertificateRecord{}, desc
	}
	return rec.MustValue(), nil
}

// extractCRLs decodes every revocation list embedded in the envelope plus
// one record per revoked entry, each referencing its parent CRL.
func (e *Engine) extractCRLs(sd *signedData) ([]masterlist.CrlRecord, []masterlist.RevokedCertificateRecord, error) {
	if len(sd.CRLs.Bytes) == 0 {
		return nil, nil, nil
	}
	elements, err := rawElements(sd.CRLs.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("split envelope CRLs: %w", err)
	}

	var crls []masterlist.CrlRecord
	var revoked []masterlist.RevokedCertificateRecord
	for i, der := range elements {
		crlRec, entries, err := e.crlRecords(der)
		if err != nil {
			return nil, nil, fmt.Errorf("CRL %d: %w", i, err)
		}
		crls = append(crls, crlRec)
		revoked = append(revoked, entries...)
	}
	return crls, revoked, nil
}

func (e *Engine) crlRecords(der []byte) (masterlist.CrlRecord, []masterlist.RevokedCertificateRecord, error) {
	rl, err := x509.ParseRevocationList(der)
	if err != nil {
		return masterlist.CrlRecord{}, nil, fmt.Errorf("parse revocation list: %w", err)
	}

	issuer := rl.Issuer.String()
	country := issuerCountry(rl.Issuer.Country)

	crlRes := masterlist.NewCrlRecord(der, e.source, issuer, country)
	if desc, failed := crlRes.Failure(); failed {
		return masterlist.CrlRecord{}, nil, desc
	}
	crlRec := crlRes.MustValue()

	entries := make([]masterlist.RevokedCertificateRecord, 0, len(rl.RevokedCertificateEntries))
	for i, entry := range rl.RevokedCertificateEntries {
		reason := revocationReason(entry)
		rec := masterlist.NewRevokedCertificateRecord(
			e.source, country, serialHex(entry.SerialNumber), crlRec.ID, reason, entry.RevocationTime)
		if desc, failed := rec.Failure(); failed {
			return masterlist.CrlRecord{}, nil, fmt.Errorf("revoked entry %d: %w", i, desc)
		}
		entries = append(entries, rec.MustValue())
	}
	return crlRec, entries, nil
}

// revocationReason returns the entry's reason name, or nil when the entry
// carries no reason extension. The ReasonCode field alone cannot tell
// absence from "unspecified", so presence is checked on the extension.
func revocationReason(entry x509.RevocationListEntry) *string {
	present := false
	for _, ext := range entry.Extensions {
		if ext.Id.Equal(oidCRLReason) {
			present = true
			break
		}
	}
	if !present {
		return nil
	}
	name, ok := revocationReasonNames[entry.ReasonCode]
	if !ok {
		name = fmt.Sprintf("reason(%d)", entry.ReasonCode)
	}
	return &name
}

// issuerCountry derives the 2-letter country code from the issuer's C
// attribute. Absence is not an error.
func issuerCountry(countries []string) *string {
	for _, c := range countries {
		c = strings.ToUpper(strings.TrimSpace(c))
		if len(c) == 2 {
			return &c
		}
	}
	return nil
}

// serialHex renders a serial number the way the stored records expect it:
// 0x-prefixed lowercase hex, with the sign ahead of the prefix.
func serialHex(n interface{ Text(int) string }) string {
	s := n.Text(16)
	if strings.HasPrefix(s, "-") {
		return "-0x" + s[1:]
	}
	return "0x" + s
}
