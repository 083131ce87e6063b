package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Watch errors (E100-E109)
	// ============================================

	"E100": {
		Category: CategoryWatch,
		Message:  "Failed to start filesystem watcher",
		Detail:   "The operating system watch primitive could not be initialized. The watch session cannot continue.",
	},
	"E101": {
		Category:   CategoryWatch,
		Message:    "Watch root cannot be watched",
		Detail:     "One of the configured watch roots does not exist or is not readable.",
		Suggestion: "Check the source, style and assets paths in sitewatch.json",
	},
	"E102": {
		Category: CategoryClassify,
		Message:  "Malformed path in filesystem notification",
		Detail:   "The operating system reported an event with a path that is not valid UTF-8 or not absolute. The event was dropped.",
	},

	// ============================================
	// Asset sync errors (E110-E119)
	// ============================================

	"E110": {
		Category: CategorySync,
		Message:  "Asset copy failed",
		Detail:   "A file or directory could not be copied into the staging tree. A full resync will be attempted.",
	},
	"E111": {
		Category: CategorySync,
		Message:  "Asset remove failed",
		Detail:   "A stale file or directory could not be removed from the staging tree. A full resync will be attempted.",
	},
	"E112": {
		Category:   CategorySync,
		Message:    "Asset path is reserved",
		Detail:     "The assets directory contains an entry that collides with a reserved staging path and was skipped.",
		Suggestion: "Remove index.html and the bundle output directory from your assets directory",
	},

	// ============================================
	// Config errors (E120-E129)
	// ============================================

	"E120": {
		Category:   CategoryConfig,
		Message:    "Failed to read configuration",
		Suggestion: "Check that sitewatch.json is valid JSON",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
	},
	"E122": {
		Category:   CategoryConfig,
		Message:    "No project found",
		Detail:     "No sitewatch.json was found in the working directory or any parent directory.",
		Suggestion: "Create a sitewatch.json at your project root",
	},

	// ============================================
	// Scaffold errors (E130-E139)
	// ============================================

	"E130": {
		Category:   CategoryCLI,
		Message:    "Unknown project template",
		Suggestion: "Run 'sitewatch init --list' to see the available templates",
	},
	"E131": {
		Category: CategoryCLI,
		Message:  "Failed to create project",
	},

	// ============================================
	// Build errors (E140-E149)
	// ============================================

	"E140": {
		Category: CategoryBuild,
		Message:  "Server compilation failed",
	},
	"E141": {
		Category:   CategoryBuild,
		Message:    "WebAssembly compilation failed",
		Suggestion: "The front package must compile for GOOS=js GOARCH=wasm",
	},
	"E142": {
		Category: CategoryBuild,
		Message:  "WebAssembly bundling failed",
		Detail:   "The compiled module could not be bundled with its loader script.",
	},
	"E143": {
		Category:   CategoryBuild,
		Message:    "WebAssembly optimization failed",
		Suggestion: "Try installing binaryen manually: https://github.com/WebAssembly/binaryen",
	},
	"E144": {
		Category: CategoryBuild,
		Message:  "Style compilation failed",
	},
	"E145": {
		Category: CategoryBuild,
		Message:  "Failed to prepare staging directory",
	},
	"E146": {
		Category: CategoryBuild,
		Message:  "Failed to start server process",
	},

	// ============================================
	// Deploy errors (E150-E159)
	// ============================================

	"E150": {
		Category: CategoryDeploy,
		Message:  "Site upload failed",
	},
	"E151": {
		Category:   CategoryDeploy,
		Message:    "No deploy bucket configured",
		Suggestion: "Set deploy.bucket in sitewatch.json or pass --bucket",
	},
}
