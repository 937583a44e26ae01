package dockerfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasicDockerfile(t *testing.T) {
	src := `FROM alpine:3.18
ENV FOO=bar
LABEL maintainer=test
RUN apk add --no-cache curl
WORKDIR /app
COPY . /app
CMD ["/bin/sh"]
`
	spec, err := Parse(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, "alpine:3.18", spec.From)
	assert.Equal(t, "bar", spec.Env["FOO"])
	assert.Equal(t, []string{"/bin/sh"}, spec.Cmd)

	var kinds []string
	for _, i := range spec.Instructions {
		kinds = append(kinds, i.Kind)
	}
	assert.Equal(t, []string{"run", "workdir", "copy"}, kinds)
}

func TestParseMissingFromFails(t *testing.T) {
	_, err := Parse(strings.NewReader("RUN echo hi\n"))
	require.Error(t, err)
}

func TestParseSkipsUnsupportedInstructions(t *testing.T) {
	src := `FROM alpine
HEALTHCHECK CMD curl -f http://localhost/ || exit 1
ONBUILD RUN echo hi
MAINTAINER nobody
`
	spec, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	assert.Empty(t, spec.Instructions)
}
