// Package ipnet provides family-aware IP address and CIDR network value types.
//
// Addresses and networks carry their address family explicitly and never compare
// across families: an IPv4 client is never contained in an IPv6 network and vice versa.
package ipnet

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/dspinhirne/netaddr-go"
)

var (
	ErrInvalidAddress = errors.New("invalid ip address")
	ErrInvalidNetwork = errors.New("invalid cidr network")
)

// Family is the IP protocol family of an address or network
type Family uint8

const (
	FamilyUnknown Family = 0
	FamilyIPv4    Family = 4
	FamilyIPv6    Family = 6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// maxPrefix returns the largest prefix length allowed for the family
func (f Family) maxPrefix() int {
	if f == FamilyIPv4 {
		return 32
	}
	return 128
}

// mappedPrefixBits is the length of the ::ffff:0:0/96 IPv4-mapped block
const mappedPrefixBits = 96

// Addr is a single normalized IP address.
type Addr struct {
	ip netip.Addr
}

// ParseAddr parses a textual IPv4 or IPv6 address. IPv4-mapped IPv6 addresses are
// unmapped to IPv4; zoned addresses are rejected.
func ParseAddr(s string) (Addr, error) {
	ip, err := parseRaw(s)
	if err != nil {
		return Addr{}, err
	}
	return Addr{ip: ip.Unmap()}, nil
}

// MustParseAddr is ParseAddr for constants in tests and defaults
func MustParseAddr(s string) Addr {
	a, err := ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

func parseRaw(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, fmt.Errorf("%w: empty value", ErrInvalidAddress)
	}

	ip, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if ip.Zone() != "" {
		return netip.Addr{}, fmt.Errorf("%w: zoned address %q", ErrInvalidAddress, s)
	}

	return ip, nil
}

// Family returns the address family
func (a Addr) Family() Family {
	switch {
	case !a.ip.IsValid():
		return FamilyUnknown
	case a.ip.Is4():
		return FamilyIPv4
	default:
		return FamilyIPv6
	}
}

// IsValid reports whether the address was parsed successfully
func (a Addr) IsValid() bool {
	return a.ip.IsValid()
}

// String returns the canonical textual form
func (a Addr) String() string {
	if !a.ip.IsValid() {
		return ""
	}
	return a.ip.String()
}

// Equal reports normalized equality; addresses of different families are never equal
func (a Addr) Equal(b Addr) bool {
	return a.Family() == b.Family() && a.ip == b.ip
}

// Network is a CIDR range: an address family, the masked network bits and the
// prefix length.
type Network struct {
	family Family
	prefix netip.Prefix
}

// ParseNetwork parses "network/prefix" notation. The prefix length is bounded by
// the family (32 for IPv4, 128 for IPv6) and host bits are masked off. An
// IPv4-mapped IPv6 network of /96 or longer becomes the IPv4 network it maps,
// matching how ParseAddr unmaps clients.
func ParseNetwork(s string) (Network, error) {
	s = strings.TrimSpace(s)
	slash := strings.IndexByte(s, '/')
	if slash < 0 {
		return Network{}, fmt.Errorf("%w: %q is missing a prefix length", ErrInvalidNetwork, s)
	}

	ip, err := parseRaw(s[:slash])
	if err != nil {
		return Network{}, fmt.Errorf("%w: %q: bad network address", ErrInvalidNetwork, s)
	}

	lenText := s[slash+1:]
	if lenText == "" || strings.IndexFunc(lenText, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return Network{}, fmt.Errorf("%w: %q: bad prefix length", ErrInvalidNetwork, s)
	}
	bits, err := strconv.Atoi(lenText)
	if err != nil {
		return Network{}, fmt.Errorf("%w: %q: bad prefix length", ErrInvalidNetwork, s)
	}

	family := FamilyIPv6
	if ip.Is4() {
		family = FamilyIPv4
	}
	if bits > family.maxPrefix() {
		return Network{}, fmt.Errorf("%w: %q: prefix length %d exceeds %d for %s",
			ErrInvalidNetwork, s, bits, family.maxPrefix(), family)
	}

	prefix, err := ip.Prefix(bits)
	if err != nil {
		return Network{}, fmt.Errorf("%w: %q: %v", ErrInvalidNetwork, s, err)
	}

	if family == FamilyIPv6 && bits >= mappedPrefixBits && prefix.Addr().Is4In6() {
		prefix = netip.PrefixFrom(prefix.Addr().Unmap(), bits-mappedPrefixBits).Masked()
		family = FamilyIPv4
	}

	return Network{family: family, prefix: prefix}, nil
}

// MustParseNetwork is ParseNetwork for constants in tests and defaults
func MustParseNetwork(s string) Network {
	n, err := ParseNetwork(s)
	if err != nil {
		panic(err)
	}
	return n
}

// Family returns the network's address family
func (n Network) Family() Family {
	return n.family
}

// Bits returns the prefix length
func (n Network) Bits() int {
	return n.prefix.Bits()
}

// String returns the masked network in CIDR notation
func (n Network) String() string {
	if !n.prefix.IsValid() {
		return ""
	}
	return n.prefix.String()
}

// Contains masks the client address to the network's prefix length and compares
// the result with the network bits. Cross-family checks always return false.
func (n Network) Contains(a Addr) bool {
	if !n.prefix.IsValid() || !a.IsValid() {
		return false
	}
	if a.Family() != n.family {
		return false
	}

	masked, err := a.ip.Prefix(n.prefix.Bits())
	if err != nil {
		return false
	}
	return masked.Addr() == n.prefix.Addr()
}

// IsNetworkNotation reports whether the value looks like CIDR notation
func IsNetworkNotation(s string) bool {
	return strings.Contains(s, "/")
}

// Set is a mixed list of single addresses and networks.
type Set struct {
	addrs    map[netip.Addr]struct{}
	networks []Network
	entries  []Network
}

// ParseSet parses addresses and CIDR networks. Blank values are skipped. The
// members are compacted: entries covered by another entry are dropped and
// adjacent IPv4 networks are merged.
func ParseSet(values []string) (*Set, error) {
	var members []Network

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}

		if IsNetworkNotation(v) {
			n, err := ParseNetwork(v)
			if err != nil {
				return nil, err
			}
			members = append(members, n)
			continue
		}

		a, err := ParseAddr(v)
		if err != nil {
			return nil, err
		}
		members = append(members, Network{family: a.Family(), prefix: netip.PrefixFrom(a.ip, a.Family().maxPrefix())})
	}

	set := &Set{addrs: make(map[netip.Addr]struct{})}
	for _, n := range compact(members) {
		set.entries = append(set.entries, n)
		if n.Bits() == n.family.maxPrefix() {
			set.addrs[n.prefix.Addr()] = struct{}{}
			continue
		}
		set.networks = append(set.networks, n)
	}

	return set, nil
}

// compact summarizes members with netaddr. IPv4 lists use netaddr's full
// summarization; IPv6 only drops covered subnets because netaddr's IPv6 sibling
// merge ignores the upper 64 bits for prefixes longer than /64.
func compact(members []Network) []Network {
	var (
		v4 netaddr.IPv4NetList
		v6 netaddr.IPv6NetList
	)
	for _, n := range members {
		if n.family == FamilyIPv4 {
			net, err := netaddr.ParseIPv4Net(n.String())
			if err != nil {
				return members
			}
			v4 = append(v4, net)
			continue
		}
		net, err := netaddr.ParseIPv6Net(n.String())
		if err != nil {
			return members
		}
		v6 = append(v6, net)
	}

	out := make([]Network, 0, len(members))
	for _, net := range v4.Summ() {
		n, err := ParseNetwork(net.String())
		if err != nil {
			return members
		}
		out = append(out, n)
	}
	for _, net := range discardIPv6Subnets(v6) {
		n, err := ParseNetwork(net.String())
		if err != nil {
			return members
		}
		out = append(out, n)
	}
	return out
}

// discardIPv6Subnets keeps the networks not contained in another listed network.
// Duplicates keep their first occurrence.
func discardIPv6Subnets(list netaddr.IPv6NetList) netaddr.IPv6NetList {
	var keep netaddr.IPv6NetList
	for i, net := range list {
		covered := false
		for j, other := range list {
			if i == j {
				continue
			}
			if related, rel := net.Rel(other); related && (rel < 0 || (rel == 0 && j < i)) {
				covered = true
				break
			}
		}
		if !covered {
			keep = append(keep, net)
		}
	}
	return keep
}

// Contains reports whether the address equals a listed address or falls in a listed network
func (s *Set) Contains(a Addr) bool {
	if s == nil || !a.IsValid() {
		return false
	}
	if _, ok := s.addrs[a.ip]; ok {
		return true
	}
	for _, n := range s.networks {
		if n.Contains(a) {
			return true
		}
	}
	return false
}

// Len returns the number of members left after compaction
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries returns the compacted members. Single addresses are rendered without
// a prefix length.
func (s *Set) Entries() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.entries))
	for _, n := range s.entries {
		if n.Bits() == n.family.maxPrefix() {
			out = append(out, n.prefix.Addr().String())
			continue
		}
		out = append(out, n.String())
	}
	return out
}
