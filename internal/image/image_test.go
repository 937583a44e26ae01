package image

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReferenceBareName(t *testing.T) {
	ref, err := ParseReference("alpine")
	require.NoError(t, err)
	assert.Equal(t, "library/alpine", ref.Repository)
	assert.Equal(t, "latest", ref.Tag)
	assert.Equal(t, "library/alpine:latest", ref.TagString())
}

func TestParseReferenceWithTag(t *testing.T) {
	ref, err := ParseReference("nginx:1.25")
	require.NoError(t, err)
	assert.Equal(t, "library/nginx", ref.Repository)
	assert.Equal(t, "1.25", ref.Tag)
}

func TestParseReferenceWithRegistryPort(t *testing.T) {
	ref, err := ParseReference("myregistry:5000/app:v2")
	require.NoError(t, err)
	assert.Equal(t, "myregistry:5000/app", ref.Repository)
	assert.Equal(t, "v2", ref.Tag)
}

func TestMergeRepoTags(t *testing.T) {
	merged := MergeRepoTags([]string{"library/alpine:latest"}, []string{"library/alpine:latest", "library/alpine:3.19"})
	assert.Equal(t, []string{"library/alpine:latest", "library/alpine:3.19"}, merged)
}
