package extract

import (
	"encoding/asn1"
	"fmt"
)

// ASN.1 structures for the CMS SignedData envelope and the embedded
// CscaMasterList. Only the fields the extraction walk needs are decoded;
// everything else is captured raw. Signature verification is out of scope,
// so DigestAlgorithms and SignerInfos stay opaque.
//
//	CscaMasterList ::= SEQUENCE {
//	    version    INTEGER,
//	    certList   SET OF Certificate
//	}

var (
	oidSignedData     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	oidICAOMasterList = asn1.ObjectIdentifier{2, 23, 136, 1, 1, 2}
	oidCRLReason      = asn1.ObjectIdentifier{2, 5, 29, 21}
)

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type signedData struct {
	Version          int
	DigestAlgorithms asn1.RawValue
	EncapContentInfo encapContentInfo
	Certificates     asn1.RawValue `asn1:"optional,tag:0"`
	CRLs             asn1.RawValue `asn1:"optional,tag:1"`
	SignerInfos      asn1.RawValue
}

type encapContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type cscaMasterList struct {
	Version  int
	CertList []asn1.RawValue `asn1:"set"`
}

// decodeContentInfo unwraps the outer envelope and rejects anything that is
// not a SignedData container.
func decodeContentInfo(raw []byte) (*signedData, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	var info contentInfo
	if _, err := asn1.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode ContentInfo: %w", err)
	}
	if !info.ContentType.Equal(oidSignedData) {
		return nil, fmt.Errorf("unexpected content type %v, want SignedData", info.ContentType)
	}
	if len(info.Content.Bytes) == 0 {
		return nil, fmt.Errorf("ContentInfo has no content")
	}
	var sd signedData
	if _, err := asn1.Unmarshal(info.Content.Bytes, &sd); err != nil {
		return nil, fmt.Errorf("decode SignedData: %w", err)
	}
	return &sd, nil
}

// encapContent returns the DER bytes wrapped inside the eContent OCTET
// STRING, or nil when the envelope carries no encapsulated content.
func (sd *signedData) encapContent() ([]byte, error) {
	if len(sd.EncapContentInfo.Content.Bytes) == 0 {
		return nil, nil
	}
	var inner []byte
	if _, err := asn1.Unmarshal(sd.EncapContentInfo.Content.Bytes, &inner); err != nil {
		return nil, fmt.Errorf("decode eContent octet string: %w", err)
	}
	return inner, nil
}

// decodeMasterList interprets the encapsulated content as a CscaMasterList.
func decodeMasterList(der []byte) (*cscaMasterList, error) {
	var ml cscaMasterList
	if _, err := asn1.Unmarshal(der, &ml); err != nil {
		return nil, fmt.Errorf("decode CscaMasterList: %w", err)
	}
	return &ml, nil
}

// rawElements splits the contents of a constructed ASN.1 value into the
// full DER encoding of each child element, preserving order.
func rawElements(content []byte) ([][]byte, error) {
	var out [][]byte
	rest := content
	for len(rest) > 0 {
		var el asn1.RawValue
		var err error
		rest, err = asn1.Unmarshal(rest, &el)
		if err != nil {
			return nil, fmt.Errorf("split element %d: %w", len(out), err)
		}
		out = append(out, el.FullBytes)
	}
	return out, nil
}
