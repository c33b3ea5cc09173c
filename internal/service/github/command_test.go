package github

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slipway-sh/slipway/internal/domain/release"
	"github.com/slipway-sh/slipway/internal/errkind"
	"github.com/slipway-sh/slipway/internal/ghcli"
	"github.com/slipway-sh/slipway/internal/repository/manifest"
)

// fakeCreds is a credential source with a canned answer.
type fakeCreds struct {
	token string
	err   error
	calls int
}

func (f *fakeCreds) Token(_ context.Context) (string, error) {
	f.calls++

	return f.token, f.err
}

// fakeRelease records the remote calls the publisher makes.
type fakeRelease struct {
	existing  *ghcli.Release
	lookupErr error
	createErr error
	uploadErr error

	created    []string
	notesFiles []string
	notesBody  string
	uploads    [][]string
}

func (f *fakeRelease) ReleaseByTag(_ context.Context, repo, tag string) (*ghcli.Release, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}

	if f.existing != nil {
		return f.existing, nil
	}

	return nil, fmt.Errorf("%w for %s on %s", ghcli.ErrReleaseNotFound, tag, repo)
}

func (f *fakeRelease) CreateDraftRelease(_ context.Context, _, tag, notesFile string) error {
	f.created = append(f.created, tag)
	f.notesFiles = append(f.notesFiles, notesFile)

	// The notes file only lives for the duration of the call.
	if notesFile != "" {
		body, err := os.ReadFile(notesFile)
		if err == nil {
			f.notesBody = string(body)
		}
	}

	return f.createErr
}

func (f *fakeRelease) UploadAssets(_ context.Context, _, _ string, paths []string) error {
	f.uploads = append(f.uploads, paths)

	return f.uploadErr
}

// builtManifest saves a manifest with all checksums filled, as the build
// stage would leave it.
func builtManifest(t *testing.T, distDir, tag, name string, targets ...string) *release.Manifest {
	t.Helper()

	resolved, err := release.ResolveTargets(strings.Join(targets, ","))
	require.NoError(t, err)

	doc, err := release.NewManifest(tag, name, resolved)
	require.NoError(t, err)

	for i := range doc.Assets {
		doc.Assets[i].SHA256 = strings.Repeat("a", 64)
		doc.Assets[i].URL = release.DownloadURL(release.DefaultHost, "acme/"+name, tag, doc.Assets[i].Filename)
	}

	store := manifest.NewFileRepository(manifest.DefaultPath(distDir))
	require.NoError(t, store.Save(context.Background(), doc))

	return doc
}

// placeArchives creates a dist archive file for every manifest asset.
func placeArchives(t *testing.T, distDir string, doc *release.Manifest) {
	t.Helper()

	for i := range doc.Assets {
		path := filepath.Join(distDir, doc.Assets[i].Filename)
		require.NoError(t, os.WriteFile(path, []byte("archive"), 0o644))
	}
}

// testPublisher wires a publisher against fakes, returning the recorded
// token by pointer so tests can check what the client factory received.
func testPublisher(opts *Options, gh *fakeRelease, creds *fakeCreds) (*publisher, *string) {
	var seenToken string

	p := &publisher{
		opts:    opts,
		store:   manifest.NewFileRepository(manifest.DefaultPath(opts.DistDir)),
		creds:   creds,
		timeout: time.Second,
		newClient: func(token string) releaseClient {
			seenToken = token

			return gh
		},
	}

	return p, &seenToken
}

// TestRunCreatesDraftAndUploads checks the full publish flow on a fresh tag.
func TestRunCreatesDraftAndUploads(t *testing.T) {
	t.Parallel()

	distDir := t.TempDir()
	doc := builtManifest(t, distDir, "v1.2.3", "foo", "linux-amd64", "macos-arm64")
	placeArchives(t, distDir, doc)

	gh := &fakeRelease{}
	creds := &fakeCreds{token: "tok"}
	p, seenToken := testPublisher(&Options{Tag: "v1.2.3", Name: "foo", Repo: "acme/foo", DistDir: distDir}, gh, creds)

	require.NoError(t, p.run(context.Background()))

	require.Equal(t, 1, creds.calls)
	require.Equal(t, "tok", *seenToken)
	require.Equal(t, []string{"v1.2.3"}, gh.created)
	require.Equal(t, []string{""}, gh.notesFiles)

	require.Len(t, gh.uploads, 1)
	require.Equal(t, []string{
		filepath.Join(distDir, doc.Assets[0].Filename),
		filepath.Join(distDir, doc.Assets[1].Filename),
	}, gh.uploads[0])
}

// TestRunReusesExistingRelease checks that an existing release is not
// recreated and assets are still uploaded.
func TestRunReusesExistingRelease(t *testing.T) {
	t.Parallel()

	distDir := t.TempDir()
	doc := builtManifest(t, distDir, "v1.2.3", "foo", "linux-amd64")
	placeArchives(t, distDir, doc)

	gh := &fakeRelease{existing: &ghcli.Release{TagName: "v1.2.3", IsDraft: true, URL: "https://github.com/acme/foo/releases/v1.2.3"}}
	p, _ := testPublisher(&Options{Tag: "v1.2.3", Name: "foo", Repo: "acme/foo", DistDir: distDir}, gh, &fakeCreds{token: "tok"})

	require.NoError(t, p.run(context.Background()))

	require.Empty(t, gh.created)
	require.Len(t, gh.uploads, 1)
}

// TestRunManifestIncomplete checks that missing checksums abort the stage
// before any credential or network use, naming every unfinished target.
func TestRunManifestIncomplete(t *testing.T) {
	t.Parallel()

	distDir := t.TempDir()

	resolved, err := release.ResolveTargets("linux-amd64,macos-arm64")
	require.NoError(t, err)

	doc, err := release.NewManifest("v1.2.3", "foo", resolved)
	require.NoError(t, err)

	store := manifest.NewFileRepository(manifest.DefaultPath(distDir))
	require.NoError(t, store.Save(context.Background(), doc))

	gh := &fakeRelease{}
	creds := &fakeCreds{token: "tok"}
	p, _ := testPublisher(&Options{Tag: "v1.2.3", Name: "foo", Repo: "acme/foo", DistDir: distDir}, gh, creds)

	err = p.run(context.Background())
	require.Error(t, err)
	require.Equal(t, errkind.ManifestIncomplete, errkind.KindOf(err))
	require.Contains(t, err.Error(), "linux-amd64")
	require.Contains(t, err.Error(), "macos-arm64")
	require.Zero(t, creds.calls)
	require.Empty(t, gh.created)
	require.Empty(t, gh.uploads)
}

// TestRunMissingArchive checks that a manifest naming an absent archive
// fails before any remote call.
func TestRunMissingArchive(t *testing.T) {
	t.Parallel()

	distDir := t.TempDir()
	builtManifest(t, distDir, "v1.2.3", "foo", "linux-amd64")

	gh := &fakeRelease{}
	creds := &fakeCreds{token: "tok"}
	p, _ := testPublisher(&Options{Tag: "v1.2.3", Name: "foo", Repo: "acme/foo", DistDir: distDir}, gh, creds)

	err := p.run(context.Background())
	require.Error(t, err)
	require.Equal(t, errkind.InputNotFound, errkind.KindOf(err))
	require.Contains(t, err.Error(), "foo-linux-amd64.tar.gz")
	require.Zero(t, creds.calls)
}

// TestRunNoManifest checks the precondition when plan and build never ran.
func TestRunNoManifest(t *testing.T) {
	t.Parallel()

	distDir := t.TempDir()

	p, _ := testPublisher(&Options{Tag: "v1.2.3", Name: "foo", Repo: "acme/foo", DistDir: distDir}, &fakeRelease{}, &fakeCreds{token: "tok"})

	err := p.run(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, manifest.ErrNotFound)
	require.Equal(t, errkind.PreconditionFailed, errkind.KindOf(err))
}

// TestRunTagMismatch checks that a stale manifest is rejected.
func TestRunTagMismatch(t *testing.T) {
	t.Parallel()

	distDir := t.TempDir()
	doc := builtManifest(t, distDir, "v1.2.3", "foo", "linux-amd64")
	placeArchives(t, distDir, doc)

	p, _ := testPublisher(&Options{Tag: "v2.0.0", Name: "foo", Repo: "acme/foo", DistDir: distDir}, &fakeRelease{}, &fakeCreds{token: "tok"})

	err := p.run(context.Background())
	require.Error(t, err)
	require.Equal(t, errkind.PreconditionFailed, errkind.KindOf(err))
	require.Contains(t, err.Error(), "re-run plan")
}

// TestRunRendersReleaseNotes checks the notes template is rendered into the
// release body and the temporary file is cleaned up afterwards.
func TestRunRendersReleaseNotes(t *testing.T) {
	t.Parallel()

	distDir := t.TempDir()
	doc := builtManifest(t, distDir, "v1.2.3", "foo", "linux-amd64")
	placeArchives(t, distDir, doc)

	tmplPath := filepath.Join(t.TempDir(), "notes.md.tmpl")
	require.NoError(t, os.WriteFile(tmplPath, []byte("{{ .Name }} {{ .Version }} ships {{ len .Assets }} archive(s)."), 0o644))

	gh := &fakeRelease{}
	p, _ := testPublisher(&Options{Tag: "v1.2.3", Name: "foo", Repo: "acme/foo", DistDir: distDir, ReleaseNotes: tmplPath}, gh, &fakeCreds{token: "tok"})

	require.NoError(t, p.run(context.Background()))

	require.Len(t, gh.notesFiles, 1)
	require.NotEmpty(t, gh.notesFiles[0])
	require.Equal(t, "foo 1.2.3 ships 1 archive(s).", gh.notesBody)

	_, err := os.Stat(gh.notesFiles[0])
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRunSkipsMissingNotesTemplate checks the release is still created when
// the notes template does not exist.
func TestRunSkipsMissingNotesTemplate(t *testing.T) {
	t.Parallel()

	distDir := t.TempDir()
	doc := builtManifest(t, distDir, "v1.2.3", "foo", "linux-amd64")
	placeArchives(t, distDir, doc)

	gh := &fakeRelease{}
	p, _ := testPublisher(&Options{
		Tag:          "v1.2.3",
		Name:         "foo",
		Repo:         "acme/foo",
		DistDir:      distDir,
		ReleaseNotes: filepath.Join(distDir, "no-such-template.md"),
	}, gh, &fakeCreds{token: "tok"})

	require.NoError(t, p.run(context.Background()))
	require.Equal(t, []string{""}, gh.notesFiles)
}

// TestRunLookupErrorPropagates checks that remote failures other than a
// missing release abort the stage.
func TestRunLookupErrorPropagates(t *testing.T) {
	t.Parallel()

	distDir := t.TempDir()
	doc := builtManifest(t, distDir, "v1.2.3", "foo", "linux-amd64")
	placeArchives(t, distDir, doc)

	remoteErr := errkind.New(errkind.RemoteError, "gh release view: boom")
	gh := &fakeRelease{lookupErr: remoteErr}
	p, _ := testPublisher(&Options{Tag: "v1.2.3", Name: "foo", Repo: "acme/foo", DistDir: distDir}, gh, &fakeCreds{token: "tok"})

	err := p.run(context.Background())
	require.ErrorIs(t, err, remoteErr)
	require.Empty(t, gh.created)
	require.Empty(t, gh.uploads)
}

// TestRunUnauthenticated checks that a failed credential cascade stops the
// stage before any remote call.
func TestRunUnauthenticated(t *testing.T) {
	t.Parallel()

	distDir := t.TempDir()
	doc := builtManifest(t, distDir, "v1.2.3", "foo", "linux-amd64")
	placeArchives(t, distDir, doc)

	authErr := errkind.New(errkind.Unauthenticated, "no GitHub credential found")
	gh := &fakeRelease{}
	p, _ := testPublisher(&Options{Tag: "v1.2.3", Name: "foo", Repo: "acme/foo", DistDir: distDir}, gh, &fakeCreds{err: authErr})

	err := p.run(context.Background())
	require.ErrorIs(t, err, authErr)
	require.Empty(t, gh.created)
	require.Empty(t, gh.uploads)
}

// TestNewPublisherDefaults checks the dist directory default.
func TestNewPublisherDefaults(t *testing.T) {
	t.Parallel()

	p := newPublisher(&Options{Tag: "v1.0.0", Name: "foo"})
	require.Equal(t, manifest.DefaultDistDir, p.opts.DistDir)
	require.NotNil(t, p.creds)
	require.NotNil(t, p.newClient)
}
