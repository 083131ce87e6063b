package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sitewatch-dev/sitewatch/internal/config"
	"github.com/sitewatch-dev/sitewatch/internal/errors"
)

// Toolchain compiles the server and front targets.
type Toolchain interface {
	// CompileServer compiles the server package to the given output path.
	CompileServer(ctx context.Context, output string) error

	// CompileWasm compiles the front package to a WebAssembly artifact at
	// the given output path.
	CompileWasm(ctx context.Context, output string) error
}

// Bundler assembles the browser bundle in the pkg directory from a
// compiled wasm artifact.
type Bundler interface {
	Bundle(ctx context.Context, wasm string) error
}

// Optimizer post-processes the wasm artifact. Used for release builds.
type Optimizer interface {
	Optimize(ctx context.Context, wasm string) error
}

// StyleCompiler compiles the style entry to a single CSS output.
type StyleCompiler interface {
	Compile(ctx context.Context, input, output string, minify bool) error
}

// AssetSyncer mirrors the assets directory into the site root.
type AssetSyncer interface {
	Resync() error
}

// GoToolchain compiles both targets with the go tool.
type GoToolchain struct {
	Config  *config.Config
	Release bool
}

// CompileServer compiles the server package for the host platform. The
// binary is written to a temp path first and renamed into place so a
// failed compile never clobbers the previous binary.
func (t *GoToolchain) CompileServer(ctx context.Context, output string) error {
	args := []string{"build", "-o", output + ".tmp"}

	if tags := t.tags(t.Config.Build.ServerTags); tags != "" {
		args = append(args, "-tags", tags)
	}
	ldflags := t.Config.Build.LDFlags
	if t.Release {
		ldflags = strings.TrimSpace(ldflags + " -s -w")
		args = append(args, "-trimpath")
	}
	if ldflags != "" {
		args = append(args, "-ldflags", ldflags)
	}
	args = append(args, t.Config.Server)

	if err := t.run(ctx, "E140", args, nil); err != nil {
		return err
	}
	if err := os.Rename(output+".tmp", output); err != nil {
		return errors.New("E140").Wrap(err)
	}
	return nil
}

// CompileWasm compiles the front package for GOOS=js GOARCH=wasm.
func (t *GoToolchain) CompileWasm(ctx context.Context, output string) error {
	args := []string{"build", "-o", output + ".tmp"}

	if tags := t.tags(t.Config.Build.FrontTags); tags != "" {
		args = append(args, "-tags", tags)
	}
	if t.Release {
		args = append(args, "-trimpath", "-ldflags", "-s -w")
	}
	args = append(args, t.Config.Front)

	env := []string{"GOOS=js", "GOARCH=wasm"}
	if err := t.run(ctx, "E141", args, env); err != nil {
		return err
	}
	if err := os.Rename(output+".tmp", output); err != nil {
		return errors.New("E141").Wrap(err)
	}
	return nil
}

// tags joins the shared tags with the target-specific ones.
func (t *GoToolchain) tags(extra []string) string {
	all := append(append([]string{}, t.Config.Build.Tags...), extra...)
	return strings.Join(all, ",")
}

func (t *GoToolchain) run(ctx context.Context, code string, args, extraEnv []string) error {
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Dir = t.Config.Dir()
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	cmd.Env = append(cmd.Env, extraEnv...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		out := stderr.String()
		return errors.New(code).
			WithDetail(out).
			WithLocationFromOutput(out).
			Wrap(err)
	}
	return nil
}

// WasmBundler assembles the pkg directory: the wasm artifact, the Go
// wasm runtime shim and a small loader script.
type WasmBundler struct {
	Config *config.Config
	Logf   func(format string, args ...any)
}

// Bundle moves the compiled wasm into the pkg directory and writes the
// runtime shim and loader next to it.
func (b *WasmBundler) Bundle(ctx context.Context, wasm string) error {
	pkgDir := b.Config.PkgDir()
	if err := os.MkdirAll(pkgDir, 0755); err != nil {
		return errors.New("E142").WithDetail(pkgDir).Wrap(err)
	}

	name := b.Config.Build.OutputName
	if err := os.Rename(wasm, filepath.Join(pkgDir, name+".wasm")); err != nil {
		return errors.New("E142").Wrap(err)
	}

	if err := b.writeRuntimeShim(ctx, filepath.Join(pkgDir, "wasm_exec.js")); err != nil {
		return err
	}

	loader := fmt.Sprintf(loaderTemplate, b.Config.Site.PkgDir, name)
	if err := os.WriteFile(filepath.Join(pkgDir, name+".js"), []byte(loader), 0644); err != nil {
		return errors.New("E142").Wrap(err)
	}
	return nil
}

// writeRuntimeShim copies wasm_exec.js out of the active Go toolchain.
// Its location moved from misc/wasm to lib/wasm in Go 1.24.
func (b *WasmBundler) writeRuntimeShim(ctx context.Context, dest string) error {
	out, err := exec.CommandContext(ctx, "go", "env", "GOROOT").Output()
	if err != nil {
		return errors.New("E142").WithDetail("cannot resolve GOROOT").Wrap(err)
	}
	goroot := strings.TrimSpace(string(out))

	for _, rel := range []string{
		filepath.Join("lib", "wasm", "wasm_exec.js"),
		filepath.Join("misc", "wasm", "wasm_exec.js"),
	} {
		data, err := os.ReadFile(filepath.Join(goroot, rel))
		if err != nil {
			continue
		}
		return os.WriteFile(dest, data, 0644)
	}
	return errors.New("E142").WithDetail("wasm_exec.js not found in " + goroot)
}

const loaderTemplate = `(() => {
  const go = new Go();
  WebAssembly.instantiateStreaming(fetch("/%[1]s/%[2]s.wasm"), go.importObject)
    .then((result) => go.run(result.instance))
    .catch((err) => console.error("%[2]s failed to start:", err));
})();
`

// WasmOpt shrinks the wasm artifact with the binaryen wasm-opt tool.
// A missing tool is not fatal: the unoptimized artifact still works.
type WasmOpt struct {
	Logf func(format string, args ...any)
}

// Optimize runs wasm-opt -Oz in place.
func (o *WasmOpt) Optimize(ctx context.Context, wasm string) error {
	path, err := exec.LookPath("wasm-opt")
	if err != nil {
		if o.Logf != nil {
			o.Logf("build: wasm-opt not found, skipping optimization")
		}
		return nil
	}

	cmd := exec.CommandContext(ctx, path, "-Oz", "-o", wasm+".tmp", wasm)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.New("E143").
			WithDetail(strings.TrimSpace(stderr.String())).
			Wrap(err)
	}
	if err := os.Rename(wasm+".tmp", wasm); err != nil {
		return errors.New("E143").Wrap(err)
	}
	return nil
}
