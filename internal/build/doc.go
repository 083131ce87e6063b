// Package build produces the runnable site: the server binary, the
// WebAssembly bundle and the compiled style sheet, assembled under the
// site root.
//
// # Pipeline
//
// A run cleans stale outputs, resyncs assets, then executes the style,
// wasm and server stages in parallel. Cancelling the run's context
// stops it at the next stage boundary; in-flight compiles are killed
// through their command contexts. A cancelled run is a distinct
// outcome, not a failure.
//
// # Output Structure
//
//	dist/
//	├── bin/
//	│   └── <name>          # server binary
//	└── site/
//	    ├── index.html      # generated HTML shell
//	    ├── pkg/
//	    │   ├── <name>.wasm
//	    │   ├── <name>.js   # loader
//	    │   ├── <name>.css
//	    │   └── wasm_exec.js
//	    └── ...             # synced assets
package build
