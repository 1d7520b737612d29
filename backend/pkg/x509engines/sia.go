package x509engines

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"

	"github.com/lamassuiot/rpki-core/core/pkg/models"
)

var siaMethodOIDs = map[models.SIAMethod]asn1.ObjectIdentifier{
	models.SIACARepository: {1, 3, 6, 1, 5, 5, 7, 48, 5},
	models.SIAManifest:     {1, 3, 6, 1, 5, 5, 7, 48, 10},
	models.SIASignedObject: {1, 3, 6, 1, 5, 5, 7, 48, 11},
	models.SIANotify:       {1, 3, 6, 1, 5, 5, 7, 48, 13},
}

type accessDescription struct {
	Method   asn1.ObjectIdentifier
	Location asn1.RawValue
}

func siaExtension(sia models.SIADescriptors) (*pkix.Extension, error) {
	descriptions := make([]accessDescription, 0, len(sia))
	for _, d := range sia {
		oid, ok := siaMethodOIDs[d.Method]
		if !ok {
			return nil, fmt.Errorf("unknown SIA method %q", d.Method)
		}
		descriptions = append(descriptions, accessDescription{
			Method:   oid,
			Location: asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 6, Bytes: []byte(d.Location)},
		})
	}

	value, err := asn1.Marshal(descriptions)
	if err != nil {
		return nil, fmt.Errorf("could not encode SIA: %w", err)
	}

	return &pkix.Extension{Id: OIDSubjectInfoAccess, Value: value}, nil
}

// ParseSIA returns the Subject Information Access descriptors of a
// certificate. Methods outside the RPKI profile are skipped.
func ParseSIA(exts []pkix.Extension) (models.SIADescriptors, error) {
	for _, ext := range exts {
		if !ext.Id.Equal(OIDSubjectInfoAccess) {
			continue
		}

		var descriptions []accessDescription
		if _, err := asn1.Unmarshal(ext.Value, &descriptions); err != nil {
			return nil, fmt.Errorf("malformed SIA: %w", err)
		}

		out := models.SIADescriptors{}
		for _, d := range descriptions {
			for method, oid := range siaMethodOIDs {
				if oid.Equal(d.Method) && d.Location.Tag == 6 {
					out = append(out, models.SIADescriptor{Method: method, Location: string(d.Location.Bytes)})
				}
			}
		}
		return out, nil
	}

	return models.SIADescriptors{}, nil
}
