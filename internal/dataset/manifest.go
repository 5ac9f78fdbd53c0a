package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// FormatVersion is the dataset layout version written to manifest.json.
const FormatVersion = 1

// buildNamespace scopes build ids to this tool.
var buildNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("stele-slicer/build"))

// Page status values in the manifest.
const (
	PageDone   = "done"
	PageFailed = "failed"
)

// Manifest describes one dataset build.
type Manifest struct {
	Version         int         `json:"version"`
	Stele           string      `json:"stele"`
	PipelineVersion string      `json:"pipeline_version"`
	BuildID         string      `json:"build_id"`
	ParamsDigest    string      `json:"params_digest"`
	Records         int         `json:"records"`
	Pages           []PageEntry `json:"pages"`
}

// PageEntry records which reading indices a page produced.
type PageEntry struct {
	Index      int    `json:"index"`
	Image      string `json:"image"`
	Hash       string `json:"hash,omitempty"`
	FirstIndex int    `json:"first_index"`
	Count      int    `json:"count"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// BuildID derives a stable id from the inputs of a build, so rebuilding the
// same pages with the same parameters gives the same id.
func BuildID(stele, paramsDigest string, pageHashes []string) string {
	name := stele + "\x00" + paramsDigest + "\x00" + strings.Join(pageHashes, ",")
	return uuid.NewSHA1(buildNamespace, []byte(name)).String()
}

// Digest hashes the canonical JSON form of v.
func Digest(v any) (string, error) {
	data, err := MarshalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}
