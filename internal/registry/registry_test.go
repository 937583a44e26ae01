package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetManifestResolvesManifestList(t *testing.T) {
	const configDigest = "sha256:" + "a" + "bcdef0123456789012345678901234567890123456789012345678901234"
	const layerDigest = "sha256:" + "b" + "bcdef0123456789012345678901234567890123456789012345678901234"

	singleManifest := manifestV2{
		MediaType: mediaTypeManifestV2,
		Config:    descriptor{Digest: configDigest, Size: 1234},
		Layers:    []descriptor{{Digest: layerDigest, Size: 5678}},
	}
	singleBody, err := json.Marshal(singleManifest)
	require.NoError(t, err)

	list := manifestListV2{
		MediaType: mediaTypeManifestListV2,
		Manifests: []platformDescriptor{
			{MediaType: mediaTypeManifestV2, Digest: "sha256:windows-arch-digest", Platform: platform{OS: "windows", Architecture: "amd64"}},
			{MediaType: mediaTypeManifestV2, Digest: "sha256:linux-amd64-digest", Platform: platform{OS: "linux", Architecture: "amd64"}},
		},
	}
	listBody, err := json.Marshal(list)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/library/alpine/manifests/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", mediaTypeManifestListV2)
		w.Write(listBody)
	})
	mux.HandleFunc("/v2/library/alpine/manifests/sha256:linux-amd64-digest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", mediaTypeManifestV2)
		w.Write(singleBody)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(WithHost(srv.Listener.Addr().String()))
	c.baseURL = srv.URL + "/v2"
	c.http = newHTTPClient(http.DefaultTransport)

	manifest, err := c.GetManifest(context.Background(), "library/alpine", "latest")
	require.NoError(t, err)
	assert.Equal(t, configDigest, manifest.ConfigDigest)
	require.Len(t, manifest.Layers, 1)
	assert.Equal(t, layerDigest, manifest.Layers[0].Digest)
}

func TestGetManifestNoMatchingPlatform(t *testing.T) {
	list := manifestListV2{
		MediaType: mediaTypeManifestListV2,
		Manifests: []platformDescriptor{
			{Digest: "sha256:windows-digest", Platform: platform{OS: "windows", Architecture: "amd64"}},
		},
	}
	listBody, err := json.Marshal(list)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/library/nanoserver/manifests/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", mediaTypeManifestListV2)
		w.Write(listBody)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New()
	c.baseURL = srv.URL + "/v2"
	c.http = newHTTPClient(http.DefaultTransport)

	_, err = c.GetManifest(context.Background(), "library/nanoserver", "latest")
	require.Error(t, err)
}
