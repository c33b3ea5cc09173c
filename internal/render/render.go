package render

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/slipway-sh/slipway/internal/domain/release"
)

//go:embed templates/formula.rb.tmpl
var defaultFormulaTemplate string

// FormulaData carries the scalar fields available to a formula template.
type FormulaData struct {
	// FormulaName is the formula file name without the .rb suffix.
	FormulaName string
	// Name is the installed binary name from the manifest.
	Name string
	// Version is the manifest version without the leading v.
	Version string
	// Desc is the one-line formula description.
	Desc string
	// Homepage is the project homepage URL.
	Homepage string
}

// ClassName derives the Ruby class name from the formula name, so foo-cli
// becomes FooCli.
func (d FormulaData) ClassName() string {
	parts := strings.FieldsFunc(d.FormulaName, func(r rune) bool {
		return r == '-' || r == '_'
	})

	var builder strings.Builder

	for _, part := range parts {
		builder.WriteString(strings.ToUpper(part[:1]))
		builder.WriteString(part[1:])
	}

	return builder.String()
}

// Formula renders the Homebrew formula for a manifest. An empty templatePath
// selects the built-in template, which expects the default target set; custom
// target matrices bring their own template file.
//
// The template sees the FormulaData fields plus two lookup helpers, urlFor
// and sha256For, both keyed by target. A lookup for a target the manifest
// does not carry fails the render.
func Formula(templatePath string, data FormulaData, manifest *release.Manifest) (string, error) {
	text := defaultFormulaTemplate

	if templatePath != "" {
		raw, err := os.ReadFile(templatePath)
		if err != nil {
			return "", fmt.Errorf("read formula template: %w", err)
		}

		text = string(raw)
	}

	funcs := template.FuncMap{
		"urlFor":    assetField(manifest, "url", func(a *release.Asset) string { return a.URL }),
		"sha256For": assetField(manifest, "sha256", func(a *release.Asset) string { return a.SHA256 }),
	}

	tmpl, err := template.New("formula").Funcs(funcs).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse formula template: %w", err)
	}

	var out strings.Builder

	if err = tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render formula: %w", err)
	}

	return out.String(), nil
}

// notesContext is the data a release notes template renders against.
type notesContext struct {
	Name    string
	Version string
	Assets  []release.Asset
}

// ReleaseNotes renders the release body text from a template file.
func ReleaseNotes(templatePath string, manifest *release.Manifest) (string, error) {
	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return "", fmt.Errorf("read release notes template: %w", err)
	}

	tmpl, err := template.New("release-notes").Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("parse release notes template: %w", err)
	}

	var out strings.Builder

	err = tmpl.Execute(&out, notesContext{
		Name:    manifest.Name,
		Version: manifest.Version,
		Assets:  manifest.Assets,
	})
	if err != nil {
		return "", fmt.Errorf("render release notes: %w", err)
	}

	return out.String(), nil
}

// assetField builds a template helper that reads one field of the asset for
// a target. Missing targets and unpopulated fields fail the render instead
// of leaking empty strings into the formula.
func assetField(manifest *release.Manifest, field string, pick func(*release.Asset) string) func(string) (string, error) {
	return func(target string) (string, error) {
		asset, ok := manifest.AssetFor(target)
		if !ok {
			return "", fmt.Errorf("no asset for target %q in manifest", target)
		}

		value := pick(asset)
		if value == "" {
			return "", fmt.Errorf("asset for target %q has an empty %s", target, field)
		}

		return value, nil
	}
}
