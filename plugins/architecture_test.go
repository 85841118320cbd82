package plugins

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"skylink/testutil"
)

var bundled = []string{"autolink", "smoothing"}

// TestPluginsUseOnlyPublicPackages keeps bundled plugins on the same surface
// third-party plugins get: skylink/pkg and the standard library.
func TestPluginsUseOnlyPublicPackages(t *testing.T) {
	forbidden := testutil.AnyOf(testutil.InternalImportForbidden, testutil.ThirdPartyImport)
	for _, name := range bundled {
		testutil.AssertNoDirectImports(t, name, forbidden, "plugin "+name+" must build against skylink/pkg only")
	}
}

func TestPluginPackagesPresent(t *testing.T) {
	for _, name := range bundled {
		if _, err := os.Stat(filepath.Join(name, "plugin.go")); err != nil {
			t.Fatalf("plugin %s missing: %v", name, err)
		}
	}
}

func TestPluginsHaveNoInternalDependencies(t *testing.T) {
	if testing.Short() {
		t.Skip("go list is slow")
	}
	skylinkInternal := func(path string) bool { return strings.HasPrefix(path, "skylink/internal/") }
	testutil.AssertNoTransitiveDependency(t, "./...", skylinkInternal, "plugins link skylink/internal transitively")
}
