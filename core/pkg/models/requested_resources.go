package models

// RequestedResourceSets holds the subsets a delegated child asked for. A nil
// family means the child wants everything its parent can certify.
type RequestedResourceSets struct {
	ASN  *ResourceSet `json:"asn,omitempty"`
	IPv4 *ResourceSet `json:"ipv4,omitempty"`
	IPv6 *ResourceSet `json:"ipv6,omitempty"`
}

// CalculateEffectiveResources returns the requested resources limited to what
// is certifiable, family by family.
func (r RequestedResourceSets) CalculateEffectiveResources(certifiable ResourceSet) ResourceSet {
	pick := func(requested *ResourceSet, family ResourceSet) ResourceSet {
		if requested == nil {
			return family
		}
		return requested.Intersection(family)
	}

	return pick(r.ASN, certifiable.ASNOnly()).
		Union(pick(r.IPv4, certifiable.IPv4Only())).
		Union(pick(r.IPv6, certifiable.IPv6Only()))
}

// RequestedResourceSetsFrom splits a requested resource set into families. A
// family with no resources is treated as not requested.
func RequestedResourceSetsFrom(requested ResourceSet) RequestedResourceSets {
	var out RequestedResourceSets
	if asn := requested.ASNOnly(); !asn.IsEmpty() {
		out.ASN = &asn
	}
	if v4 := requested.IPv4Only(); !v4.IsEmpty() {
		out.IPv4 = &v4
	}
	if v6 := requested.IPv6Only(); !v6.IsEmpty() {
		out.IPv6 = &v6
	}
	return out
}

func (r RequestedResourceSets) Equal(other RequestedResourceSets) bool {
	eq := func(a, b *ResourceSet) bool {
		if a == nil || b == nil {
			return a == nil && b == nil
		}
		return a.Equal(*b)
	}
	return eq(r.ASN, other.ASN) && eq(r.IPv4, other.IPv4) && eq(r.IPv6, other.IPv6)
}
