package styletool

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sitewatch-dev/sitewatch/internal/errors"
)

// Compiler compiles a style entry file to a single CSS output.
type Compiler struct {
	// Binary is the Tailwind binary used for .css entries. Nil means
	// NewBinary().
	Binary *Binary

	// ProjectDir is the working directory for the compile.
	ProjectDir string

	// Logf receives diagnostic output. Nil discards it.
	Logf func(format string, args ...any)
}

// Compile compiles input to output. CSS entries run through the Tailwind
// standalone binary (which passes plain CSS through untouched); Sass
// entries need a sass binary on PATH. Minify is applied for release
// builds. The tool writes to a temp file that is renamed over output
// only on success, so a failed or cancelled compile leaves the previous
// output in place.
func (c *Compiler) Compile(ctx context.Context, input, output string, minify bool) error {
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return errors.New("E144").WithDetail(output).Wrap(err)
	}

	tmp := output + ".tmp"
	var err error
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(input), "."))
	switch ext {
	case "css":
		err = c.compileTailwind(ctx, input, tmp, minify)
	case "scss", "sass":
		err = c.compileSass(ctx, input, tmp, minify)
	default:
		return errors.New("E144").
			WithDetail("unsupported style entry " + input).
			WithSuggestion("Use a .css, .scss or .sass file as the style entry")
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, output); err != nil {
		os.Remove(tmp)
		return errors.New("E144").WithDetail(output).Wrap(err)
	}
	return nil
}

func (c *Compiler) compileTailwind(ctx context.Context, input, output string, minify bool) error {
	binary := c.Binary
	if binary == nil {
		binary = NewBinary()
	}
	path, err := binary.EnsureInstalled(ctx, func(msg string) {
		if c.Logf != nil {
			c.Logf("style: %s", msg)
		}
	})
	if err != nil {
		return errors.New("E144").Wrap(err)
	}

	args := []string{"-i", input, "-o", output}
	if minify {
		args = append(args, "--minify")
	}
	return c.run(ctx, path, args)
}

func (c *Compiler) compileSass(ctx context.Context, input, output string, minify bool) error {
	path, err := exec.LookPath("sass")
	if err != nil {
		return errors.New("E144").
			WithDetail("no sass binary on PATH").
			WithSuggestion("Install dart-sass or switch the style entry to .css")
	}

	args := []string{"--no-source-map"}
	if minify {
		args = append(args, "--style=compressed")
	}
	args = append(args, input, output)
	return c.run(ctx, path, args)
}

func (c *Compiler) run(ctx context.Context, path string, args []string) error {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = c.ProjectDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.New("E144").
			WithDetail(strings.TrimSpace(stderr.String())).
			Wrap(err)
	}
	return nil
}
