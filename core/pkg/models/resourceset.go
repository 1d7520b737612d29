package models

import (
	"fmt"
	"math"
	"net/netip"
	"sort"
	"strconv"
	"strings"

	"go4.org/netipx"
)

// ASNRange is an inclusive range of autonomous system numbers.
type ASNRange struct {
	Start uint32
	End   uint32
}

func (r ASNRange) String() string {
	if r.Start == r.End {
		return fmt.Sprintf("AS%d", r.Start)
	}
	return fmt.Sprintf("AS%d-AS%d", r.Start, r.End)
}

// ResourceSet is an immutable set of Internet number resources: AS numbers,
// IPv4 and IPv6 addresses. The zero value is the empty set.
type ResourceSet struct {
	asns []ASNRange
	ips  netipx.IPSet
}

func NewResourceSet(asns []ASNRange, prefixes ...netip.Prefix) ResourceSet {
	var b netipx.IPSetBuilder
	for _, p := range prefixes {
		b.AddPrefix(p.Masked())
	}
	ips, _ := b.IPSet()
	return ResourceSet{asns: normalizeASNs(asns), ips: *ips}
}

// NewResourceSetFromRanges builds a set from AS number and IP address ranges.
func NewResourceSetFromRanges(asns []ASNRange, ranges ...netipx.IPRange) ResourceSet {
	var b netipx.IPSetBuilder
	for _, r := range ranges {
		b.AddRange(r)
	}
	ips, _ := b.IPSet()
	return ResourceSet{asns: normalizeASNs(asns), ips: *ips}
}

// AllResources is the set holding every AS number and every IPv4 and IPv6 address.
func AllResources() ResourceSet {
	return NewResourceSet(
		[]ASNRange{{Start: 0, End: math.MaxUint32}},
		netip.MustParsePrefix("0.0.0.0/0"),
		netip.MustParsePrefix("::/0"),
	)
}

// ParseResourceSet parses a comma separated list of resources, for example
// "AS64496-AS64511, AS65000, 10.0.0.0/8, 192.168.0.0-192.168.0.255, 2001:db8::/32".
func ParseResourceSet(s string) (ResourceSet, error) {
	var asns []ASNRange
	var b netipx.IPSetBuilder

	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		if strings.HasPrefix(strings.ToUpper(token), "AS") {
			r, err := parseASNRange(token)
			if err != nil {
				return ResourceSet{}, err
			}
			asns = append(asns, r)
			continue
		}

		if strings.Contains(token, "/") {
			p, err := netip.ParsePrefix(token)
			if err != nil {
				return ResourceSet{}, fmt.Errorf("invalid prefix %q: %w", token, err)
			}
			b.AddPrefix(p.Masked())
			continue
		}

		if strings.Contains(token, "-") {
			r, err := netipx.ParseIPRange(token)
			if err != nil {
				return ResourceSet{}, fmt.Errorf("invalid address range %q: %w", token, err)
			}
			b.AddRange(r)
			continue
		}

		ip, err := netip.ParseAddr(token)
		if err != nil {
			return ResourceSet{}, fmt.Errorf("invalid resource %q: %w", token, err)
		}
		b.Add(ip)
	}

	ips, err := b.IPSet()
	if err != nil {
		return ResourceSet{}, err
	}

	return ResourceSet{asns: normalizeASNs(asns), ips: *ips}, nil
}

// MustParseResourceSet is like ParseResourceSet but panics on malformed input.
func MustParseResourceSet(s string) ResourceSet {
	rs, err := ParseResourceSet(s)
	if err != nil {
		panic(err)
	}
	return rs
}

func parseASNRange(token string) (ASNRange, error) {
	parse := func(v string) (uint32, error) {
		v = strings.TrimSpace(v)
		if len(v) < 3 || !strings.EqualFold(v[:2], "AS") {
			return 0, fmt.Errorf("invalid AS number %q", v)
		}
		n, err := strconv.ParseUint(v[2:], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid AS number %q: %w", v, err)
		}
		return uint32(n), nil
	}

	bounds := strings.SplitN(token, "-", 2)
	start, err := parse(bounds[0])
	if err != nil {
		return ASNRange{}, err
	}
	end := start
	if len(bounds) == 2 {
		end, err = parse(bounds[1])
		if err != nil {
			return ASNRange{}, err
		}
	}
	if end < start {
		return ASNRange{}, fmt.Errorf("invalid AS range %q: end before start", token)
	}

	return ASNRange{Start: start, End: end}, nil
}

func normalizeASNs(in []ASNRange) []ASNRange {
	if len(in) == 0 {
		return nil
	}

	ranges := make([]ASNRange, len(in))
	copy(ranges, in)
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	out := []ASNRange{ranges[0]}
	for _, r := range ranges[1:] {
		last := &out[len(out)-1]
		if uint64(r.Start) <= uint64(last.End)+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

func intersectASNs(a, b []ASNRange) []ASNRange {
	var out []ASNRange
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := max(a[i].Start, b[j].Start)
		end := min(a[i].End, b[j].End)
		if start <= end {
			out = append(out, ASNRange{Start: start, End: end})
		}
		if a[i].End < b[j].End {
			i++
		} else {
			j++
		}
	}
	return out
}

func subtractASNs(a, b []ASNRange) []ASNRange {
	var out []ASNRange
	for _, r := range a {
		start := uint64(r.Start)
		end := uint64(r.End)
		for _, s := range b {
			if uint64(s.End) < start || uint64(s.Start) > end {
				continue
			}
			if uint64(s.Start) > start {
				out = append(out, ASNRange{Start: uint32(start), End: s.Start - 1})
			}
			start = uint64(s.End) + 1
			if start > end {
				break
			}
		}
		if start <= end {
			out = append(out, ASNRange{Start: uint32(start), End: uint32(end)})
		}
	}
	return out
}

func (rs ResourceSet) IsEmpty() bool {
	return len(rs.asns) == 0 && len(rs.ips.Ranges()) == 0
}

func (rs ResourceSet) Union(other ResourceSet) ResourceSet {
	var b netipx.IPSetBuilder
	b.AddSet(&rs.ips)
	b.AddSet(&other.ips)
	ips, _ := b.IPSet()
	return ResourceSet{asns: normalizeASNs(append(append([]ASNRange{}, rs.asns...), other.asns...)), ips: *ips}
}

func (rs ResourceSet) Intersection(other ResourceSet) ResourceSet {
	var b netipx.IPSetBuilder
	b.AddSet(&rs.ips)
	b.Intersect(&other.ips)
	ips, _ := b.IPSet()
	return ResourceSet{asns: intersectASNs(rs.asns, other.asns), ips: *ips}
}

func (rs ResourceSet) Difference(other ResourceSet) ResourceSet {
	var b netipx.IPSetBuilder
	b.AddSet(&rs.ips)
	b.RemoveSet(&other.ips)
	ips, _ := b.IPSet()
	return ResourceSet{asns: subtractASNs(rs.asns, other.asns), ips: *ips}
}

// Contains reports whether other is a subset of rs.
func (rs ResourceSet) Contains(other ResourceSet) bool {
	return other.Difference(rs).IsEmpty()
}

func (rs ResourceSet) Equal(other ResourceSet) bool {
	if len(rs.asns) != len(other.asns) {
		return false
	}
	for i := range rs.asns {
		if rs.asns[i] != other.asns[i] {
			return false
		}
	}
	return rs.ips.Equal(&other.ips)
}

func (rs ResourceSet) ASNRanges() []ASNRange {
	return append([]ASNRange{}, rs.asns...)
}

func (rs ResourceSet) IPv4Ranges() []netipx.IPRange {
	return rs.ipRanges(true)
}

func (rs ResourceSet) IPv6Ranges() []netipx.IPRange {
	return rs.ipRanges(false)
}

func (rs ResourceSet) ipRanges(v4 bool) []netipx.IPRange {
	var out []netipx.IPRange
	for _, r := range rs.ips.Ranges() {
		if r.From().Is4() == v4 {
			out = append(out, r)
		}
	}
	return out
}

// ASNOnly returns the AS number part of the set.
func (rs ResourceSet) ASNOnly() ResourceSet {
	return ResourceSet{asns: rs.ASNRanges()}
}

// IPv4Only returns the IPv4 part of the set.
func (rs ResourceSet) IPv4Only() ResourceSet {
	return rs.familyOnly(true)
}

// IPv6Only returns the IPv6 part of the set.
func (rs ResourceSet) IPv6Only() ResourceSet {
	return rs.familyOnly(false)
}

func (rs ResourceSet) familyOnly(v4 bool) ResourceSet {
	var b netipx.IPSetBuilder
	for _, r := range rs.ipRanges(v4) {
		b.AddRange(r)
	}
	ips, _ := b.IPSet()
	return ResourceSet{ips: *ips}
}

func (rs ResourceSet) String() string {
	var parts []string
	for _, r := range rs.asns {
		parts = append(parts, r.String())
	}
	for _, r := range rs.IPv4Ranges() {
		parts = append(parts, ipRangeString(r))
	}
	for _, r := range rs.IPv6Ranges() {
		parts = append(parts, ipRangeString(r))
	}
	return strings.Join(parts, ", ")
}

func ipRangeString(r netipx.IPRange) string {
	if p, ok := r.Prefix(); ok {
		return p.String()
	}
	return r.String()
}

func (rs ResourceSet) MarshalText() ([]byte, error) {
	return []byte(rs.String()), nil
}

func (rs *ResourceSet) UnmarshalText(text []byte) error {
	parsed, err := ParseResourceSet(string(text))
	if err != nil {
		return err
	}
	*rs = parsed
	return nil
}
