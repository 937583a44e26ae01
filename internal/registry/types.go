package registry

const (
	mediaTypeManifestV2      = "application/vnd.docker.distribution.manifest.v2+json"
	mediaTypeManifestListV2  = "application/vnd.docker.distribution.manifest.list.v2+json"
	mediaTypeOCIManifest     = "application/vnd.oci.image.manifest.v1+json"
	mediaTypeOCIManifestList = "application/vnd.oci.image.index.v1+json"
)

var manifestAcceptHeader = []string{
	mediaTypeManifestV2, mediaTypeManifestListV2, mediaTypeOCIManifest, mediaTypeOCIManifestList,
}

// manifestV2 is a single-platform image manifest.
type manifestV2 struct {
	MediaType string               `json:"mediaType"`
	Config    descriptor           `json:"config"`
	Layers    []descriptor         `json:"layers"`
}

// descriptor is a content-addressed reference to a blob.
type descriptor struct {
	MediaType string `json:"mediaType"`
	Digest    string `json:"digest"`
	Size      int64  `json:"size"`
}

// manifestListV2 is a fat manifest listing one manifest per platform.
type manifestListV2 struct {
	MediaType string               `json:"mediaType"`
	Manifests []platformDescriptor `json:"manifests"`
}

type platformDescriptor struct {
	MediaType string   `json:"mediaType"`
	Digest    string   `json:"digest"`
	Size      int64    `json:"size"`
	Platform  platform `json:"platform"`
}

type platform struct {
	Architecture string `json:"architecture"`
	OS           string `json:"os"`
}

// imageConfig is the subset of the OCI/Docker image config document
// furukawad persists and reports through the Docker API.
type imageConfig struct {
	Architecture string          `json:"architecture"`
	OS           string          `json:"os"`
	Created      string          `json:"created"`
	History      []configHistory `json:"history"`
}

type configHistory struct {
	CreatedBy string `json:"created_by"`
}
