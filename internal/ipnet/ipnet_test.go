package ipnet_test

import (
	"testing"

	"github.com/BradenHooton/sentinel/internal/ipnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddr(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantErr    bool
		wantString string
		wantFamily ipnet.Family
	}{
		{"ipv4", "192.168.1.10", false, "192.168.1.10", ipnet.FamilyIPv4},
		{"ipv4 with spaces", "  10.0.0.5 ", false, "10.0.0.5", ipnet.FamilyIPv4},
		{"ipv6", "2001:db8::1", false, "2001:db8::1", ipnet.FamilyIPv6},
		{"ipv6 uppercase", "2001:DB8::1", false, "2001:db8::1", ipnet.FamilyIPv6},
		{"ipv4 mapped ipv6 is unmapped", "::ffff:192.168.1.10", false, "192.168.1.10", ipnet.FamilyIPv4},
		{"empty", "", true, "", ipnet.FamilyUnknown},
		{"garbage", "not-an-ip", true, "", ipnet.FamilyUnknown},
		{"out of range octet", "256.1.1.1", true, "", ipnet.FamilyUnknown},
		{"cidr is not an address", "10.0.0.0/8", true, "", ipnet.FamilyUnknown},
		{"zoned", "fe80::1%eth0", true, "", ipnet.FamilyUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ipnet.ParseAddr(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ipnet.ErrInvalidAddress)
				assert.False(t, addr.IsValid())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantString, addr.String())
			assert.Equal(t, tt.wantFamily, addr.Family())
		})
	}
}

func TestParseNetwork(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantErr    bool
		wantString string
		wantBits   int
	}{
		{"ipv4 /24", "192.168.1.0/24", false, "192.168.1.0/24", 24},
		{"ipv4 host bits masked", "192.168.1.77/24", false, "192.168.1.0/24", 24},
		{"ipv4 /32", "10.0.0.5/32", false, "10.0.0.5/32", 32},
		{"ipv4 /0", "0.0.0.0/0", false, "0.0.0.0/0", 0},
		{"ipv6 /32", "2001:db8::/32", false, "2001:db8::/32", 32},
		{"ipv6 /128", "2001:db8::1/128", false, "2001:db8::1/128", 128},
		{"mapped network is unmapped", "::ffff:10.0.0.0/104", false, "10.0.0.0/8", 8},
		{"mapped host network", "::ffff:10.1.2.3/128", false, "10.1.2.3/32", 32},
		{"short prefix over mapped block stays ipv6", "::ffff:0:0/80", false, "::/80", 80},
		{"ipv4 prefix too long", "10.0.0.0/33", true, "", 0},
		{"ipv6 prefix too long", "2001:db8::/129", true, "", 0},
		{"missing prefix", "10.0.0.0", true, "", 0},
		{"empty prefix", "10.0.0.0/", true, "", 0},
		{"negative prefix", "10.0.0.0/-1", true, "", 0},
		{"signed prefix", "10.0.0.0/+8", true, "", 0},
		{"bad network", "10.0.0/8", true, "", 0},
		{"empty", "", true, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ipnet.ParseNetwork(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ipnet.ErrInvalidNetwork)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantString, n.String())
			assert.Equal(t, tt.wantBits, n.Bits())
		})
	}
}

func TestNetworkContains(t *testing.T) {
	tests := []struct {
		network string
		addr    string
		want    bool
	}{
		{"192.168.1.0/24", "192.168.1.200", true},
		{"192.168.1.0/24", "192.168.1.0", true},
		{"192.168.1.0/24", "192.168.2.1", false},
		{"10.0.0.0/8", "10.255.255.255", true},
		{"10.0.0.0/8", "11.0.0.1", false},
		{"0.0.0.0/0", "8.8.8.8", true},
		{"2001:db8::/32", "2001:db8::1", true},
		{"2001:db8::/32", "2001:db8:ffff::1", true},
		{"2001:db8::/32", "2001:db9::1", false},
		{"2000::/3", "2001:db8::1", true},
		// never across families
		{"0.0.0.0/0", "2001:db8::1", false},
		{"2000::/3", "192.168.1.1", false},
		{"2001:db8::/32", "::ffff:192.168.1.1", false},
		// mapped clients and mapped networks compare as IPv4
		{"192.168.1.0/24", "::ffff:192.168.1.9", true},
		{"::ffff:10.0.0.0/104", "10.0.0.7", true},
		{"::ffff:10.0.0.0/104", "::ffff:10.0.0.7", true},
		{"::ffff:10.0.0.0/104", "11.0.0.1", false},
		{"::ffff:0:0/96", "192.168.1.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.network+"_"+tt.addr, func(t *testing.T) {
			n := ipnet.MustParseNetwork(tt.network)
			a := ipnet.MustParseAddr(tt.addr)
			assert.Equal(t, tt.want, n.Contains(a))
		})
	}
}

func TestNetworkContains_ZeroValues(t *testing.T) {
	var n ipnet.Network
	assert.False(t, n.Contains(ipnet.MustParseAddr("10.0.0.1")))
	assert.False(t, ipnet.MustParseNetwork("10.0.0.0/8").Contains(ipnet.Addr{}))
}

func TestAddrEqual(t *testing.T) {
	assert.True(t, ipnet.MustParseAddr("10.0.0.1").Equal(ipnet.MustParseAddr("::ffff:10.0.0.1")))
	assert.True(t, ipnet.MustParseAddr("2001:db8::1").Equal(ipnet.MustParseAddr("2001:0db8:0:0::1")))
	assert.False(t, ipnet.MustParseAddr("10.0.0.1").Equal(ipnet.MustParseAddr("10.0.0.2")))
}

func TestParseSet(t *testing.T) {
	set, err := ipnet.ParseSet([]string{"127.0.0.1", " 10.0.0.0/8", "", "2001:db8::/48"})
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())

	assert.True(t, set.Contains(ipnet.MustParseAddr("127.0.0.1")))
	assert.True(t, set.Contains(ipnet.MustParseAddr("10.20.30.40")))
	assert.True(t, set.Contains(ipnet.MustParseAddr("2001:db8:0:1::5")))
	assert.False(t, set.Contains(ipnet.MustParseAddr("127.0.0.2")))
	assert.False(t, set.Contains(ipnet.MustParseAddr("2001:db8:1::5")))

	_, err = ipnet.ParseSet([]string{"10.0.0.0/40"})
	assert.ErrorIs(t, err, ipnet.ErrInvalidNetwork)

	_, err = ipnet.ParseSet([]string{"nope"})
	assert.ErrorIs(t, err, ipnet.ErrInvalidAddress)

	var empty *ipnet.Set
	assert.False(t, empty.Contains(ipnet.MustParseAddr("127.0.0.1")))
	assert.Equal(t, 0, empty.Len())
}

func TestParseNetwork_MappedFamily(t *testing.T) {
	n := ipnet.MustParseNetwork("::ffff:10.0.0.0/104")
	assert.Equal(t, ipnet.FamilyIPv4, n.Family())
}

func TestParseSet_Compacts(t *testing.T) {
	set, err := ipnet.ParseSet([]string{
		"10.0.0.0/25",
		"10.0.0.128/25",
		"10.0.0.5",
		"192.168.1.1",
		"192.168.1.1",
		"2001:db8::/32",
		"2001:db8:1::/48",
		"2001:db8::1",
		"2001:db9::1",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.0/24", "192.168.1.1", "2001:db8::/32", "2001:db9::1"}, set.Entries())
	assert.Equal(t, 4, set.Len())

	assert.True(t, set.Contains(ipnet.MustParseAddr("10.0.0.200")))
	assert.True(t, set.Contains(ipnet.MustParseAddr("10.0.0.5")))
	assert.True(t, set.Contains(ipnet.MustParseAddr("192.168.1.1")))
	assert.True(t, set.Contains(ipnet.MustParseAddr("2001:db8:1::9")))
	assert.True(t, set.Contains(ipnet.MustParseAddr("2001:db9::1")))
	assert.False(t, set.Contains(ipnet.MustParseAddr("10.0.1.1")))
	assert.False(t, set.Contains(ipnet.MustParseAddr("2001:db9::2")))
}

func TestParseSet_IPv6HostsAreNotMerged(t *testing.T) {
	set, err := ipnet.ParseSet([]string{"2001:db8::1", "2001:db9::1"})
	require.NoError(t, err)

	assert.Equal(t, 2, set.Len())
	assert.False(t, set.Contains(ipnet.MustParseAddr("2001:db8::")))
}
