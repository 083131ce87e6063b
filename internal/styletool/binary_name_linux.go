//go:build linux

package styletool

import "runtime"

func binaryName() string {
	if runtime.GOARCH == "arm64" {
		return "tailwindcss-linux-arm64"
	}
	return "tailwindcss-linux-x64"
}
