package extract

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certsync/pkg/result"
)

// emptySetDER is a zero-element SET, used for the envelope fields the
// extraction walk never looks at.
var emptySetDER = []byte{0x31, 0x00}

type testIssuer struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
	der  []byte
}

// makeCert builds a self-signed CA certificate. The serial number lets a
// test identify which certificate landed where in the output.
func makeCert(t *testing.T, serial int64, cn string, withSKI bool) testIssuer {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: cn, Country: []string{"DE"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	if withSKI {
		tmpl.SubjectKeyId = []byte{0xab, 0xcd, byte(serial)}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return testIssuer{cert: cert, key: key, der: der}
}

// makeCRL signs a revocation list with the given issuer. Entries with a
// zero reason code get no reason extension at all.
func makeCRL(t *testing.T, issuer testIssuer, number int64, entries []x509.RevocationListEntry) []byte {
	t.Helper()

	tmpl := &x509.RevocationList{
		Number:                    big.NewInt(number),
		ThisUpdate:                time.Now().Add(-time.Hour),
		NextUpdate:                time.Now().Add(24 * time.Hour),
		RevokedCertificateEntries: entries,
	}
	der, err := x509.CreateRevocationList(rand.Reader, tmpl, issuer.cert, issuer.key)
	require.NoError(t, err)
	return der
}

type envelopeSpec struct {
	innerCerts [][]byte
	outerCerts [][]byte
	crls       [][]byte
	contentOID asn1.ObjectIdentifier
	noContent  bool
}

// buildEnvelope assembles a SignedData bundle byte by byte. RawValue
// fields are emitted verbatim by the marshaller, so every tagged wrapper
// is constructed here rather than via struct tags.
func buildEnvelope(t *testing.T, spec envelopeSpec) []byte {
	t.Helper()

	sd := signedData{
		Version:          3,
		DigestAlgorithms: asn1.RawValue{FullBytes: emptySetDER},
		SignerInfos:      asn1.RawValue{FullBytes: emptySetDER},
	}

	oid := spec.contentOID
	if oid == nil {
		oid = oidICAOMasterList
	}
	sd.EncapContentInfo.ContentType = oid

	if !spec.noContent {
		ml := cscaMasterList{Version: 0}
		for _, der := range spec.innerCerts {
			ml.CertList = append(ml.CertList, asn1.RawValue{FullBytes: der})
		}
		mlDER, err := asn1.Marshal(ml)
		require.NoError(t, err)

		octet, err := asn1.Marshal(mlDER)
		require.NoError(t, err)
		wrapped, err := asn1.Marshal(asn1.RawValue{
			Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: octet,
		})
		require.NoError(t, err)
		sd.EncapContentInfo.Content = asn1.RawValue{FullBytes: wrapped}
	}

	if len(spec.outerCerts) > 0 {
		sd.Certificates = asn1.RawValue{
			Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true,
			Bytes: concat(spec.outerCerts),
		}
	}
	if len(spec.crls) > 0 {
		sd.CRLs = asn1.RawValue{
			Class: asn1.ClassContextSpecific, Tag: 1, IsCompound: true,
			Bytes: concat(spec.crls),
		}
	}

	sdDER, err := asn1.Marshal(sd)
	require.NoError(t, err)
	content, err := asn1.Marshal(asn1.RawValue{
		Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: sdDER,
	})
	require.NoError(t, err)

	out, err := asn1.Marshal(contentInfo{
		ContentType: oidSignedData,
		Content:     asn1.RawValue{FullBytes: content},
	})
	require.NoError(t, err)
	return out
}

// buildEnvelopeWrongOuterOID is like buildEnvelope but stamps the outer
// ContentInfo with an OID that is not SignedData.
func buildEnvelopeWrongOuterOID(t *testing.T, inner []byte) []byte {
	t.Helper()
	var info contentInfo
	_, err := asn1.Unmarshal(inner, &info)
	require.NoError(t, err)
	info.ContentType = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	out, err := asn1.Marshal(info)
	require.NoError(t, err)
	return out
}

func concat(chunks [][]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func TestExtractRejectsMalformedInput(t *testing.T) {
	engine := New()

	valid := buildEnvelope(t, envelopeSpec{
		innerCerts: [][]byte{makeCert(t, 1, "CSCA One", true).der},
	})

	cases := map[string][]byte{
		"empty input":     nil,
		"random bytes":    {0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03},
		"truncated":       valid[:len(valid)/2],
		"single byte":     {0x30},
		"not signed data": buildEnvelopeWrongOuterOID(t, valid),
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			r := engine.Extract(input)
			require.True(t, r.IsFailure(), "must fail, never panic")

			desc := r.MustFailure()
			assert.Equal(t, result.CodeTechnical, desc.Code)
			assert.Equal(t, "parse master list bundle", desc.Message)
			assert.Error(t, desc.Cause)
		})
	}
}

func TestExtractCertificates(t *testing.T) {
	engine := New()

	t.Run("inner and outer certificates, inner set first", func(t *testing.T) {
		inner := []testIssuer{
			makeCert(t, 1, "CSCA One", true),
			makeCert(t, 2, "CSCA Two", true),
			makeCert(t, 3, "CSCA Three", true),
		}
		outer := []testIssuer{
			makeCert(t, 101, "Signer One", true),
			makeCert(t, 102, "Signer Two", true),
		}

		raw := buildEnvelope(t, envelopeSpec{
			innerCerts: [][]byte{inner[0].der, inner[1].der, inner[2].der},
			outerCerts: [][]byte{outer[0].der, outer[1].der},
		})

		r := engine.Extract(raw)
		require.True(t, r.IsSuccess(), r.String())
		payload := r.MustValue()

		require.Len(t, payload.RootCAs, 5)

		// The master-list SET reorders its elements under DER, so the
		// first three records are checked as a set; the envelope
		// certificates keep their encoded order.
		innerSerials := []string{
			payload.RootCAs[0].SerialNumber,
			payload.RootCAs[1].SerialNumber,
			payload.RootCAs[2].SerialNumber,
		}
		assert.ElementsMatch(t, []string{"0x1", "0x2", "0x3"}, innerSerials)
		assert.Equal(t, "0x65", payload.RootCAs[3].SerialNumber)
		assert.Equal(t, "0x66", payload.RootCAs[4].SerialNumber)
	})

	t.Run("record fields carry the exact bytes and key identifiers", func(t *testing.T) {
		ca := makeCert(t, 0x1f4b, "CSCA Exact", true)

		raw := buildEnvelope(t, envelopeSpec{innerCerts: [][]byte{ca.der}})
		payload := engine.Extract(raw).MustValue()

		require.Len(t, payload.RootCAs, 1)
		rec := payload.RootCAs[0]
		assert.Equal(t, ca.der, rec.Certificate)
		assert.Equal(t, "0x1f4b", rec.SerialNumber)
		assert.Equal(t, ca.cert.Issuer.String(), rec.Issuer)
		assert.Equal(t, ca.cert.RawIssuer, rec.RawIssuer)
		assert.Equal(t, "icao-masterlist", rec.Source)
		require.NotNil(t, rec.SubjectKeyID)
		assert.Equal(t, "abcd4b", *rec.SubjectKeyID)
		assert.Nil(t, rec.UpdatedAt)
	})

	t.Run("missing subject key identifier is tolerated", func(t *testing.T) {
		ca := makeCert(t, 7, "CSCA No SKI", false)

		raw := buildEnvelope(t, envelopeSpec{innerCerts: [][]byte{ca.der}})
		payload := engine.Extract(raw).MustValue()

		require.Len(t, payload.RootCAs, 1)
		assert.Nil(t, payload.RootCAs[0].SubjectKeyID)
	})

	t.Run("document signer collection is always empty", func(t *testing.T) {
		raw := buildEnvelope(t, envelopeSpec{
			innerCerts: [][]byte{makeCert(t, 1, "CSCA", true).der},
		})
		payload := engine.Extract(raw).MustValue()
		assert.Empty(t, payload.DSCs)
	})

	t.Run("envelope without encapsulated content yields no root authorities", func(t *testing.T) {
		outer := makeCert(t, 9, "Signer Only", true)
		raw := buildEnvelope(t, envelopeSpec{
			noContent:  true,
			outerCerts: [][]byte{outer.der},
		})
		payload := engine.Extract(raw).MustValue()
		require.Len(t, payload.RootCAs, 1)
		assert.Equal(t, "0x9", payload.RootCAs[0].SerialNumber)
	})
}

func TestExtractCRLs(t *testing.T) {
	engine := New()

	t.Run("one list with entries referencing the parent record", func(t *testing.T) {
		issuer := makeCert(t, 1, "CRL Issuer", true)
		revokedAt := time.Date(2025, 2, 10, 8, 30, 0, 0, time.UTC)

		entries := []x509.RevocationListEntry{
			{SerialNumber: big.NewInt(0xa1), RevocationTime: revokedAt, ReasonCode: 1},
			{SerialNumber: big.NewInt(0xa2), RevocationTime: revokedAt, ReasonCode: 5},
			{SerialNumber: big.NewInt(0xa3), RevocationTime: revokedAt},
		}
		crlDER := makeCRL(t, issuer, 1, entries)

		raw := buildEnvelope(t, envelopeSpec{
			innerCerts: [][]byte{issuer.der},
			crls:       [][]byte{crlDER},
		})

		payload := engine.Extract(raw).MustValue()

		require.Len(t, payload.CRLs, 1)
		crl := payload.CRLs[0]
		assert.Equal(t, crlDER, crl.RawCRL)
		assert.Equal(t, issuer.cert.Subject.String(), crl.Issuer)
		require.NotNil(t, crl.Country)
		assert.Equal(t, "DE", *crl.Country)
		assert.Nil(t, crl.UpdatedAt)

		require.Len(t, payload.RevokedCertificates, 3)
		for _, rev := range payload.RevokedCertificates {
			assert.Equal(t, crl.ID, rev.CrlID)
			assert.Equal(t, "DE", *rev.Country)
			assert.Equal(t, revokedAt, rev.RevocationDate.UTC())
		}

		assert.Equal(t, "0xa1", payload.RevokedCertificates[0].SerialNumber)
		require.NotNil(t, payload.RevokedCertificates[0].RevocationReason)
		assert.Equal(t, "keyCompromise", *payload.RevokedCertificates[0].RevocationReason)
		assert.Equal(t, "cessationOfOperation", *payload.RevokedCertificates[1].RevocationReason)
		assert.Nil(t, payload.RevokedCertificates[2].RevocationReason,
			"entry without a reason extension stays nil")
	})

	t.Run("multiple lists keep their entries attached to the right parent", func(t *testing.T) {
		issuerA := makeCert(t, 1, "Issuer A", true)
		issuerB := makeCert(t, 2, "Issuer B", true)
		now := time.Now().Truncate(time.Second).UTC()

		crlA := makeCRL(t, issuerA, 1, []x509.RevocationListEntry{
			{SerialNumber: big.NewInt(10), RevocationTime: now},
		})
		crlB := makeCRL(t, issuerB, 1, []x509.RevocationListEntry{
			{SerialNumber: big.NewInt(20), RevocationTime: now},
			{SerialNumber: big.NewInt(21), RevocationTime: now},
		})

		raw := buildEnvelope(t, envelopeSpec{crls: [][]byte{crlA, crlB}})
		payload := engine.Extract(raw).MustValue()

		require.Len(t, payload.CRLs, 2)
		require.Len(t, payload.RevokedCertificates, 3)

		assert.Equal(t, payload.CRLs[0].ID, payload.RevokedCertificates[0].CrlID)
		assert.Equal(t, payload.CRLs[1].ID, payload.RevokedCertificates[1].CrlID)
		assert.Equal(t, payload.CRLs[1].ID, payload.RevokedCertificates[2].CrlID)
	})
}

func TestExtractFullBundle(t *testing.T) {
	engine := New()

	inner := []testIssuer{
		makeCert(t, 1, "CSCA One", true),
		makeCert(t, 2, "CSCA Two", true),
		makeCert(t, 3, "CSCA Three", true),
	}
	outer := []testIssuer{
		makeCert(t, 101, "Signer One", true),
		makeCert(t, 102, "Signer Two", true),
	}

	now := time.Now().Truncate(time.Second).UTC()
	entries := make([]x509.RevocationListEntry, 0, 5)
	for i := int64(1); i <= 5; i++ {
		entries = append(entries, x509.RevocationListEntry{
			SerialNumber:   big.NewInt(0xb0 + i),
			RevocationTime: now,
			ReasonCode:     1,
		})
	}
	crlDER := makeCRL(t, inner[0], 7, entries)

	raw := buildEnvelope(t, envelopeSpec{
		innerCerts: [][]byte{inner[0].der, inner[1].der, inner[2].der},
		outerCerts: [][]byte{outer[0].der, outer[1].der},
		crls:       [][]byte{crlDER},
	})

	r := engine.Extract(raw)
	require.True(t, r.IsSuccess(), r.String())
	payload := r.MustValue()

	assert.Len(t, payload.RootCAs, 5)
	assert.Empty(t, payload.DSCs)
	assert.Len(t, payload.CRLs, 1)
	assert.Len(t, payload.RevokedCertificates, 5)
	assert.Equal(t, 5, payload.TotalCertificates())
	assert.Equal(t, 11, payload.TotalItems())
}

func TestSerialHex(t *testing.T) {
	tests := []struct {
		name   string
		serial int64
		want   string
	}{
		{"zero", 0, "0x0"},
		{"small", 1, "0x1"},
		{"multi byte", 255, "0xff"},
		{"large", 0xdeadbeef, "0xdeadbeef"},
		{"negative keeps sign ahead of prefix", -31, "-0x1f"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serialHex(big.NewInt(tt.serial)))
		})
	}
}
