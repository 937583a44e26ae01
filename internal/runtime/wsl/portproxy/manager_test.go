package portproxy

import (
	"context"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
)

func TestManagerPublishAndUnpublish(t *testing.T) {
	var calls [][]string
	mgr := &netshManager{
		logger: hclog.NewNullLogger(),
		runner: func(_ context.Context, args ...string) error {
			calls = append(calls, args)
			return nil
		},
	}

	port, err := ExposedPortFromString("8080:80", "127.0.0.1")
	assert.Nil(t, err)

	assert.Nil(t, mgr.Publish(context.Background(), "172.22.1.5", []ExposedPort{port}))
	assert.Equal(t, []string{"interface", "portproxy", "add", "v4tov4",
		"listenaddress=127.0.0.1", "listenport=8080",
		"connectaddress=172.22.1.5", "connectport=80"}, calls[0])

	assert.Nil(t, mgr.Unpublish(context.Background(), []ExposedPort{port}))
	assert.Equal(t, []string{"interface", "portproxy", "delete", "v4tov4",
		"listenaddress=127.0.0.1", "listenport=8080"}, calls[1])
}

func TestManagerUnpublishIgnoresMissingRule(t *testing.T) {
	mgr := &netshManager{
		logger: hclog.NewNullLogger(),
		runner: func(_ context.Context, args ...string) error {
			return assertErr
		},
	}
	port, err := ExposedPortFromString("53:53/udp", "")
	assert.Nil(t, err)

	assert.Nil(t, mgr.Unpublish(context.Background(), []ExposedPort{port}))
}

var assertErr = errNetshFailed("element not found")

type errNetshFailed string

func (e errNetshFailed) Error() string { return string(e) }
