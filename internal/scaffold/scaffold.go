// Package scaffold generates new project skeletons that the rest of the
// tool can build and watch without further setup.
package scaffold

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"text/template"

	"github.com/sitewatch-dev/sitewatch/internal/errors"
)

// Config carries the values substituted into a template.
type Config struct {
	// ProjectName is the name of the project.
	ProjectName string

	// ModulePath is the Go module path.
	ModulePath string
}

// Template is a named set of project files. File contents are
// text/template bodies executed against a Config.
type Template struct {
	Name        string
	Description string
	Files       map[string]string
}

var templates = map[string]*Template{
	"minimal": minimalTemplate(),
	"styled":  styledTemplate(),
}

// Get returns a template by name.
func Get(name string) (*Template, error) {
	tmpl, ok := templates[name]
	if !ok {
		return nil, errors.New("E130").WithDetail("no template named " + name)
	}
	return tmpl, nil
}

// List returns the available template names, sorted.
func List() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create generates a project from the template under dir.
func (t *Template) Create(dir string, cfg Config) error {
	for relPath, content := range t.Files {
		tmpl, err := template.New(relPath).Parse(content)
		if err != nil {
			return errors.New("E131").WithDetail(relPath).Wrap(err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, cfg); err != nil {
			return errors.New("E131").WithDetail(relPath).Wrap(err)
		}

		fullPath := filepath.Join(dir, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			return errors.New("E131").WithDetail(relPath).Wrap(err)
		}
		if err := os.WriteFile(fullPath, buf.Bytes(), 0644); err != nil {
			return errors.New("E131").WithDetail(relPath).Wrap(err)
		}
	}
	return nil
}

// minimalTemplate is a server plus a wasm front, no style sheet.
func minimalTemplate() *Template {
	return &Template{
		Name:        "minimal",
		Description: "Server and wasm front, no style sheet",
		Files: map[string]string{
			"sitewatch.json": `{
  "name": "{{.ProjectName}}",
  "server": "./cmd/server",
  "front": "./src",
  "sourceDir": "src",
  "assetsDir": "assets"
}
`,
			"go.mod": `module {{.ModulePath}}

go 1.23
`,
			"cmd/server/main.go": serverMain,
			"src/main.go":        frontMain,
			"assets/robots.txt": `User-agent: *
Allow: /
`,
		},
	}
}

// styledTemplate adds a Tailwind entry file on top of minimal.
func styledTemplate() *Template {
	t := minimalTemplate()
	t.Name = "styled"
	t.Description = "Minimal plus a Tailwind style entry"

	files := make(map[string]string, len(t.Files)+1)
	for path, content := range t.Files {
		files[path] = content
	}
	files["sitewatch.json"] = `{
  "name": "{{.ProjectName}}",
  "server": "./cmd/server",
  "front": "./src",
  "sourceDir": "src",
  "styleFile": "styles/main.css",
  "assetsDir": "assets"
}
`
	files["styles/main.css"] = `@import "tailwindcss";
`
	t.Files = files
	return t
}

const serverMain = `package main

import (
	"log"
	"net/http"
	"os"
)

func main() {
	root := os.Getenv("SITE_ROOT")
	if root == "" {
		root = "dist/site"
	}
	addr := os.Getenv("SITE_ADDR")
	if addr == "" {
		addr = "127.0.0.1:3000"
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(root)))

	log.Printf("{{.ProjectName}} listening on http://%s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}
`

const frontMain = `//go:build js

package main

import "syscall/js"

func main() {
	doc := js.Global().Get("document")
	h1 := doc.Call("createElement", "h1")
	h1.Set("textContent", "{{.ProjectName}}")
	doc.Get("body").Call("appendChild", h1)

	// Keep the wasm module alive for event callbacks.
	select {}
}
`
