//go:build !darwin && !linux

package styletool

import "runtime"

func binaryName() string {
	if runtime.GOOS == "windows" {
		return "tailwindcss-windows-x64.exe"
	}
	return "tailwindcss-" + runtime.GOOS + "-" + runtime.GOARCH
}
