package x509engines

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"net/netip"

	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"go4.org/netipx"
)

var (
	OIDIPAddrBlocks      = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 7}
	OIDAutonomousSysIDs  = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 8}
	OIDSubjectInfoAccess = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 11}
	OIDRPKICertPolicy    = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 14, 2}
)

var (
	afiIPv4 = []byte{0x00, 0x01}
	afiIPv6 = []byte{0x00, 0x02}
)

// resourceExtensions encodes the RFC 3779 IP address and AS identifier
// extensions. With inherit set, every family is marked as inherited from the
// issuer, which is what EE certificates of signed objects use.
func resourceExtensions(resources models.ResourceSet, inherit bool) ([]pkix.Extension, error) {
	var exts []pkix.Extension

	ipExt, err := ipAddrBlocksExtension(resources, inherit)
	if err != nil {
		return nil, err
	}
	if ipExt != nil {
		exts = append(exts, *ipExt)
	}

	asExt, err := asIdentifiersExtension(resources, inherit)
	if err != nil {
		return nil, err
	}
	if asExt != nil {
		exts = append(exts, *asExt)
	}

	if len(exts) == 0 {
		return nil, errors.New("resource certificates must carry at least one resource")
	}

	return exts, nil
}

type ipAddressFamily struct {
	AddressFamily []byte
	Choice        asn1.RawValue
}

type ipAddressRange struct {
	Min asn1.BitString
	Max asn1.BitString
}

func ipAddrBlocksExtension(resources models.ResourceSet, inherit bool) (*pkix.Extension, error) {
	var families []ipAddressFamily

	for _, fam := range []struct {
		afi    []byte
		ranges []netipx.IPRange
	}{
		{afi: afiIPv4, ranges: resources.IPv4Ranges()},
		{afi: afiIPv6, ranges: resources.IPv6Ranges()},
	} {
		if inherit {
			families = append(families, ipAddressFamily{AddressFamily: fam.afi, Choice: asn1.NullRawValue})
			continue
		}
		if len(fam.ranges) == 0 {
			continue
		}

		choice, err := encodeIPRanges(fam.ranges)
		if err != nil {
			return nil, err
		}
		families = append(families, ipAddressFamily{AddressFamily: fam.afi, Choice: asn1.RawValue{FullBytes: choice}})
	}

	if len(families) == 0 {
		return nil, nil
	}

	value, err := asn1.Marshal(families)
	if err != nil {
		return nil, fmt.Errorf("could not encode IP address blocks: %w", err)
	}

	return &pkix.Extension{Id: OIDIPAddrBlocks, Critical: true, Value: value}, nil
}

func encodeIPRanges(ranges []netipx.IPRange) ([]byte, error) {
	elems := make([]asn1.RawValue, 0, len(ranges))
	for _, r := range ranges {
		var (
			der []byte
			err error
		)
		if prefix, ok := r.Prefix(); ok {
			der, err = asn1.Marshal(prefixBitString(prefix))
		} else {
			der, err = asn1.Marshal(ipAddressRange{
				Min: trimmedBitString(r.From().AsSlice(), 0),
				Max: trimmedBitString(r.To().AsSlice(), 1),
			})
		}
		if err != nil {
			return nil, fmt.Errorf("could not encode %s: %w", r, err)
		}
		elems = append(elems, asn1.RawValue{FullBytes: der})
	}

	return asn1.Marshal(elems)
}

func prefixBitString(prefix netip.Prefix) asn1.BitString {
	bits := prefix.Bits()
	addr := prefix.Addr().AsSlice()
	return asn1.BitString{Bytes: addr[:(bits+7)/8], BitLength: bits}
}

// trimmedBitString drops the trailing bits equal to pad: zeros for the low
// end of a range, ones for the high end.
func trimmedBitString(addr []byte, pad byte) asn1.BitString {
	bits := len(addr) * 8
	for bits > 0 && bitAt(addr, bits-1) == pad {
		bits--
	}

	out := make([]byte, (bits+7)/8)
	copy(out, addr)
	if rem := bits % 8; rem != 0 {
		out[len(out)-1] &= byte(0xff << (8 - rem))
	}
	return asn1.BitString{Bytes: out, BitLength: bits}
}

func bitAt(b []byte, i int) byte {
	return (b[i/8] >> (7 - uint(i%8))) & 1
}

type asRange struct {
	Min *big.Int
	Max *big.Int
}

func asIdentifiersExtension(resources models.ResourceSet, inherit bool) (*pkix.Extension, error) {
	var choice []byte
	var err error

	switch {
	case inherit:
		choice = asn1.NullBytes
	case len(resources.ASNRanges()) == 0:
		return nil, nil
	default:
		elems := []asn1.RawValue{}
		for _, r := range resources.ASNRanges() {
			var der []byte
			if r.Start == r.End {
				der, err = asn1.Marshal(big.NewInt(int64(r.Start)))
			} else {
				der, err = asn1.Marshal(asRange{Min: big.NewInt(int64(r.Start)), Max: big.NewInt(int64(r.End))})
			}
			if err != nil {
				return nil, fmt.Errorf("could not encode %s: %w", r, err)
			}
			elems = append(elems, asn1.RawValue{FullBytes: der})
		}
		if choice, err = asn1.Marshal(elems); err != nil {
			return nil, err
		}
	}

	asnum, err := asn1.Marshal(asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: choice})
	if err != nil {
		return nil, err
	}

	value, err := asn1.Marshal(asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSequence, IsCompound: true, Bytes: asnum})
	if err != nil {
		return nil, fmt.Errorf("could not encode AS identifiers: %w", err)
	}

	return &pkix.Extension{Id: OIDAutonomousSysIDs, Critical: true, Value: value}, nil
}

// ParseResourceExtensions decodes the RFC 3779 extensions of a certificate.
// inherit reports whether any family is inherited from the issuer.
func ParseResourceExtensions(exts []pkix.Extension) (resources models.ResourceSet, inherit bool, err error) {
	var asns []models.ASNRange
	var ranges []netipx.IPRange

	for _, ext := range exts {
		switch {
		case ext.Id.Equal(OIDIPAddrBlocks):
			r, inh, err := parseIPAddrBlocks(ext.Value)
			if err != nil {
				return models.ResourceSet{}, false, err
			}
			ranges = append(ranges, r...)
			inherit = inherit || inh
		case ext.Id.Equal(OIDAutonomousSysIDs):
			a, inh, err := parseASIdentifiers(ext.Value)
			if err != nil {
				return models.ResourceSet{}, false, err
			}
			asns = append(asns, a...)
			inherit = inherit || inh
		}
	}

	return models.NewResourceSetFromRanges(asns, ranges...), inherit, nil
}

func parseIPAddrBlocks(der []byte) ([]netipx.IPRange, bool, error) {
	var families []ipAddressFamily
	if rest, err := asn1.Unmarshal(der, &families); err != nil || len(rest) > 0 {
		return nil, false, fmt.Errorf("malformed IP address blocks: %v", err)
	}

	var out []netipx.IPRange
	inherit := false
	for _, fam := range families {
		size := 0
		switch {
		case len(fam.AddressFamily) >= 2 && fam.AddressFamily[1] == afiIPv4[1]:
			size = 4
		case len(fam.AddressFamily) >= 2 && fam.AddressFamily[1] == afiIPv6[1]:
			size = 16
		default:
			return nil, false, fmt.Errorf("unsupported address family %x", fam.AddressFamily)
		}

		if fam.Choice.Tag == asn1.TagNull {
			inherit = true
			continue
		}

		var elems []asn1.RawValue
		if _, err := asn1.Unmarshal(fam.Choice.FullBytes, &elems); err != nil {
			return nil, false, fmt.Errorf("malformed address list: %w", err)
		}

		for _, elem := range elems {
			r, err := parseIPAddressOrRange(elem, size)
			if err != nil {
				return nil, false, err
			}
			out = append(out, r)
		}
	}

	return out, inherit, nil
}

func parseIPAddressOrRange(elem asn1.RawValue, size int) (netipx.IPRange, error) {
	if elem.Tag == asn1.TagBitString {
		var bs asn1.BitString
		if _, err := asn1.Unmarshal(elem.FullBytes, &bs); err != nil {
			return netipx.IPRange{}, err
		}
		addr, ok := netip.AddrFromSlice(expandBits(bs, size, 0))
		if !ok {
			return netipx.IPRange{}, errors.New("invalid address prefix")
		}
		return netipx.RangeOfPrefix(netip.PrefixFrom(addr, bs.BitLength)), nil
	}

	var r ipAddressRange
	if _, err := asn1.Unmarshal(elem.FullBytes, &r); err != nil {
		return netipx.IPRange{}, err
	}
	from, ok1 := netip.AddrFromSlice(expandBits(r.Min, size, 0))
	to, ok2 := netip.AddrFromSlice(expandBits(r.Max, size, 1))
	if !ok1 || !ok2 {
		return netipx.IPRange{}, errors.New("invalid address range")
	}
	return netipx.IPRangeFrom(from, to), nil
}

func expandBits(bs asn1.BitString, size int, pad byte) []byte {
	out := make([]byte, size)
	copy(out, bs.Bytes)
	if pad == 1 {
		for i := bs.BitLength; i < size*8; i++ {
			out[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return out
}

func parseASIdentifiers(der []byte) ([]models.ASNRange, bool, error) {
	var seq asn1.RawValue
	if _, err := asn1.Unmarshal(der, &seq); err != nil {
		return nil, false, fmt.Errorf("malformed AS identifiers: %w", err)
	}

	rest := seq.Bytes
	var out []models.ASNRange
	inherit := false
	for len(rest) > 0 {
		var tagged asn1.RawValue
		var err error
		if rest, err = asn1.Unmarshal(rest, &tagged); err != nil {
			return nil, false, err
		}
		// [1] holds routing domain identifiers, which RPKI does not use
		if tagged.Tag != 0 {
			continue
		}

		var choice asn1.RawValue
		if _, err := asn1.Unmarshal(tagged.Bytes, &choice); err != nil {
			return nil, false, err
		}
		if choice.Tag == asn1.TagNull {
			inherit = true
			continue
		}

		var elems []asn1.RawValue
		if _, err := asn1.Unmarshal(choice.FullBytes, &elems); err != nil {
			return nil, false, err
		}
		for _, elem := range elems {
			if elem.Tag == asn1.TagInteger {
				var id *big.Int
				if _, err := asn1.Unmarshal(elem.FullBytes, &id); err != nil {
					return nil, false, err
				}
				out = append(out, models.ASNRange{Start: uint32(id.Uint64()), End: uint32(id.Uint64())})
				continue
			}
			var r asRange
			if _, err := asn1.Unmarshal(elem.FullBytes, &r); err != nil {
				return nil, false, err
			}
			out = append(out, models.ASNRange{Start: uint32(r.Min.Uint64()), End: uint32(r.Max.Uint64())})
		}
	}

	return out, inherit, nil
}
