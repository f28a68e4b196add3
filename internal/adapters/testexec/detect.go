package testexec

import (
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

// PackageManager runs installs and package scripts.
type PackageManager string

const (
	Bun  PackageManager = "bun"
	PNPM PackageManager = "pnpm"
	Yarn PackageManager = "yarn"
	NPM  PackageManager = "npm"
)

var lockfiles = []struct {
	name string
	pm   PackageManager
}{
	{"bun.lockb", Bun},
	{"bun.lock", Bun},
	{"pnpm-lock.yaml", PNPM},
	{"yarn.lock", Yarn},
	{"package-lock.json", NPM},
}

// scriptPrecedence lists the package scripts tried, in order, to run end-to-end tests.
var scriptPrecedence = []string{"test:e2e", "e2e", "test:playwright", "playwright"}

func detectPackageManager(dir string) PackageManager {
	for _, lf := range lockfiles {
		if fileExists(filepath.Join(dir, lf.name)) {
			return lf.pm
		}
	}
	return NPM
}

// detectTestScript picks the first end-to-end script declared in package.json, defaulting to "test".
func detectTestScript(packageJSON []byte) string {
	scripts := gjson.GetBytes(packageJSON, "scripts")
	for _, name := range scriptPrecedence {
		if scripts.Get(gjson.Escape(name)).Exists() {
			return name
		}
	}
	return "test"
}

func installArgs(pm PackageManager, dir string) []string {
	switch pm {
	case Bun:
		return []string{"install"}
	case PNPM:
		return []string{"install", "--frozen-lockfile"}
	case Yarn:
		return []string{"install", "--frozen-lockfile"}
	default:
		if fileExists(filepath.Join(dir, "package-lock.json")) {
			return []string{"ci"}
		}
		return []string{"install"}
	}
}

// testArgs runs script with Playwright's JSON reporter. npm needs "--" to forward flags.
func testArgs(pm PackageManager, script string) []string {
	args := []string{"run", script}
	if pm == NPM {
		args = append(args, "--")
	}
	return append(args, "--reporter=json")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
