// Package image models pulled OCI images as furukawad persists them: the
// config digest is the image id, and the ordered layer digest list is what
// the layer composer consumes to build a container's rootfs.
package image

import (
	"strings"

	"github.com/furukawa-project/furukawad/internal/apperr"
)

// Record is a persisted image.
type Record struct {
	ID        string
	RepoTags  []string
	ParentID  string
	Created   int64
	Size      int64
	Layers    []string
}

// Reference is a parsed "repo:tag" or "repo@sha256:..." string.
type Reference struct {
	Repository string
	Tag        string
	Digest     string
}

// ParseReference parses a Docker image reference of the form
// "[registry/]repository[:tag][@digest]". A bare "alpine" normalizes to
// the "library/alpine" repository Docker Hub uses for official images,
// with an implicit ":latest" tag.
func ParseReference(ref string) (Reference, error) {
	if ref == "" {
		return Reference{}, apperr.New(apperr.CodeInvalidArgument, "image reference must not be empty")
	}

	repo := ref
	var digest string
	if idx := strings.Index(repo, "@"); idx >= 0 {
		digest = repo[idx+1:]
		repo = repo[:idx]
	}

	tag := "latest"
	// Only split on the last colon, and only when it comes after the last
	// slash, so a registry host:port prefix (e.g. "myregistry:5000/app")
	// is not mistaken for a tag separator.
	if idx := strings.LastIndex(repo, ":"); idx > strings.LastIndex(repo, "/") {
		tag = repo[idx+1:]
		repo = repo[:idx]
	}

	if !strings.Contains(repo, "/") {
		repo = "library/" + repo
	}

	return Reference{Repository: repo, Tag: tag, Digest: digest}, nil
}

// TagString returns the canonical "repo:tag" form used in RepoTags lists.
func (r Reference) TagString() string {
	return r.Repository + ":" + r.Tag
}

// MergeRepoTags returns the union of existing and incoming, de-duplicated
// and order-preserving, the merge behavior re-pulling an already-known
// image id must perform.
func MergeRepoTags(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	var merged []string
	for _, t := range append(append([]string{}, existing...), incoming...) {
		if seen[t] {
			continue
		}
		seen[t] = true
		merged = append(merged, t)
	}
	return merged
}
