package portproxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExposedPortFromStringFail(t *testing.T) {
	_, err := ExposedPortFromString("not-a-port", "")
	assert.NotNil(t, err)

	_, err = ExposedPortFromString("16686a:16686/tcp", "")
	assert.NotNil(t, err)

	_, err = ExposedPortFromString("16686:16686/definitelynot", "")
	assert.NotNil(t, err)

	_, err = ExposedPortFromString("166867:16686/tcp", "")
	assert.NotNil(t, err)
}

func TestExposedPortFromStringSuccess(t *testing.T) {
	ep, err := ExposedPortFromString("8080:80", "")
	assert.Nil(t, err)
	assert.Equal(t, "0.0.0.0", ep.HostAddress())
	assert.Equal(t, 8080, ep.HostPort())
	assert.Equal(t, 80, ep.GuestPort())
	assert.Equal(t, defaultProtocol, ep.Protocol())

	ep, err = ExposedPortFromString("53:53/udp", "127.0.0.1")
	assert.Nil(t, err)
	assert.Equal(t, "127.0.0.1", ep.HostAddress())
	assert.Equal(t, 53, ep.HostPort())
	assert.Equal(t, 53, ep.GuestPort())
	assert.Equal(t, "udp", ep.Protocol())

	assert.Equal(t, "127.0.0.1:53->53/udp", ep.String())
}
