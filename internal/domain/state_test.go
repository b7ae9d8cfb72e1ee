package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGatewayConfigMergeUpsertAndTombstone(t *testing.T) {
	full := GatewayConfig{
		51820: NetworkState{ListenPort: 51820, MTU: DefaultMTU},
		51821: NetworkState{ListenPort: 51821, MTU: DefaultMTU},
	}

	upserted := NetworkState{ListenPort: 51822, MTU: DefaultMTU}
	diff := GatewayConfigPartial{
		51821: nil,       // tombstone: delete
		51822: &upserted, // upsert: create
	}

	merged := full.Merge(diff)

	assert.Len(t, merged, 2)
	_, has51820 := merged[51820]
	_, has51821 := merged[51821]
	_, has51822 := merged[51822]
	assert.True(t, has51820)
	assert.False(t, has51821)
	assert.True(t, has51822)

	// original config is untouched
	assert.Len(t, full, 2)
}

func TestCIDRParsePreservesHostBits(t *testing.T) {
	c, err := ParseCIDR("10.0.0.5/24")
	assert := assert.New(t)
	assert.NoError(err)
	assert.Equal("10.0.0.5/24", c.String())
}

func TestEndpointTextRoundTrip(t *testing.T) {
	assert := assert.New(t)
	var e Endpoint
	assert.NoError(e.UnmarshalText([]byte("192.0.2.7:8080")))
	assert.Equal("192.0.2.7", e.Host)
	assert.Equal(uint16(8080), e.Port)
	assert.Equal("192.0.2.7:8080", e.String())
}
