// Package manifest implements persistence for the release Manifest.
//
// The FileRepository stores the document as indented JSON at a fixed
// location under the dist directory and is the only inter-stage channel:
// plan creates it, build rewrites it, github and tap read it. Loads
// distinguish a missing file (ErrNotFound, "run plan first") from a
// corrupted one (ErrMalformed), and saves are atomic via temp-and-rename.
package manifest
