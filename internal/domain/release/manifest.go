package release

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultHost is the release host used in download URL derivation.
const DefaultHost = "github.com"

// ErrInvalidTag indicates a tag that does not follow the vMAJOR.MINOR.PATCH form.
var ErrInvalidTag = errors.New("invalid tag")

var (
	// tagPattern pins the canonical release tag form, e.g. "v1.2.3".
	tagPattern = regexp.MustCompile(`^v\d+\.\d+\.\d+$`)
	// checksumPattern pins the stored digest form: 64 lowercase hex characters.
	checksumPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// ParseTag validates the canonical tag form and returns the bare version,
// i.e. the tag with the leading "v" stripped.
func ParseTag(tag string) (string, error) {
	if !tagPattern.MatchString(tag) {
		return "", fmt.Errorf("%w: %q must match vMAJOR.MINOR.PATCH", ErrInvalidTag, tag)
	}

	return strings.TrimPrefix(tag, "v"), nil
}

// Asset describes one packaged archive tracked by the manifest.
type Asset struct {
	// Target is the canonical target identifier the archive was built for.
	Target string `json:"target"`
	// Filename is the archive name under the dist directory, derived from
	// the tool name and the target aliases.
	Filename string `json:"filename"`
	// SHA256 is the lowercase hex digest of the archive, empty until built.
	SHA256 string `json:"sha256"`
	// URL is the canonical download location, empty until built.
	URL string `json:"url"`
}

// Built reports whether the asset carries its checksum and URL.
func (a *Asset) Built() bool {
	return a.SHA256 != "" && a.URL != ""
}

// Manifest is the persisted release state threaded through all stages.
// It is the pipeline's only cross-invocation memory.
type Manifest struct {
	// Tag is the release tag in canonical "vMAJOR.MINOR.PATCH" form.
	Tag string `json:"tag"`
	// Version is Tag with the leading "v" stripped, used in formula rendering.
	Version string `json:"version"`
	// Name is the tool identifier used in filename derivation.
	Name string `json:"name"`
	// Targets is the ordered target matrix fixed at plan time.
	Targets []string `json:"targets"`
	// Assets holds one record per target, in target order.
	Assets []Asset `json:"assets"`
}

// NewManifest builds the plan-time manifest for the given resolved targets:
// one asset per target with the derived filename and empty checksum/URL.
func NewManifest(tag, name string, targets []Target) (*Manifest, error) {
	version, err := ParseTag(tag)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{
		Tag:     tag,
		Version: version,
		Name:    name,
		Targets: make([]string, 0, len(targets)),
		Assets:  make([]Asset, 0, len(targets)),
	}

	for _, target := range targets {
		manifest.Targets = append(manifest.Targets, target.ID)
		manifest.Assets = append(manifest.Assets, Asset{
			Target:   target.ID,
			Filename: target.Filename(name),
		})
	}

	return manifest, nil
}

// Clone returns a deep copy so callers can stage changes without touching
// the loaded document until the whole stage succeeded.
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}

	cloned := *m
	cloned.Targets = append([]string(nil), m.Targets...)
	cloned.Assets = append([]Asset(nil), m.Assets...)

	return &cloned
}

// AssetFor returns a pointer into the asset table for the given target.
func (m *Manifest) AssetFor(target string) (*Asset, bool) {
	for i := range m.Assets {
		if m.Assets[i].Target == target {
			return &m.Assets[i], true
		}
	}

	return nil, false
}

// MissingChecksums lists targets whose assets have not been built yet,
// in manifest order.
func (m *Manifest) MissingChecksums() []string {
	var missing []string

	for i := range m.Assets {
		if !m.Assets[i].Built() {
			missing = append(missing, m.Assets[i].Target)
		}
	}

	return missing
}

// Complete reports whether every asset carries a checksum and URL.
func (m *Manifest) Complete() bool {
	return len(m.MissingChecksums()) == 0
}

// Validate checks the structural invariants of the document:
// canonical tag, matching version, one asset per target in target order,
// and checksum/URL fields that are either both empty or both populated.
func (m *Manifest) Validate() error {
	version, err := ParseTag(m.Tag)
	if err != nil {
		return err
	}

	if m.Version != version {
		return fmt.Errorf("version %q does not match tag %q", m.Version, m.Tag)
	}

	if m.Name == "" {
		return errors.New("name is empty")
	}

	if len(m.Targets) == 0 {
		return errors.New("no targets")
	}

	if len(m.Targets) != len(m.Assets) {
		return fmt.Errorf("targets and assets out of step: %d targets, %d assets",
			len(m.Targets), len(m.Assets))
	}

	seen := make(map[string]struct{}, len(m.Targets))

	for i, target := range m.Targets {
		if _, dup := seen[target]; dup {
			return fmt.Errorf("duplicate target %q", target)
		}

		seen[target] = struct{}{}

		asset := &m.Assets[i]
		if asset.Target != target {
			return fmt.Errorf("asset %d tracks %q, expected %q", i, asset.Target, target)
		}

		if asset.Filename == "" {
			return fmt.Errorf("asset %q has no filename", target)
		}

		if (asset.SHA256 == "") != (asset.URL == "") {
			return fmt.Errorf("asset %q has a checksum without a URL or a URL without a checksum", target)
		}

		if asset.SHA256 != "" && !checksumPattern.MatchString(asset.SHA256) {
			return fmt.Errorf("asset %q checksum is not 64 lowercase hex characters", target)
		}
	}

	return nil
}

// DownloadURL derives the canonical asset location on the release host.
func DownloadURL(host, repo, tag, filename string) string {
	return fmt.Sprintf("https://%s/%s/releases/download/%s/%s", host, repo, tag, filename)
}
