package pluginapi

import (
	"strings"
	"testing"

	"skylink/testutil"
)

func TestPluginAPIImportsOnlyDomain(t *testing.T) {
	forbidden := testutil.AnyOf(
		testutil.InternalImportForbidden,
		testutil.ThirdPartyImport,
		func(path string) bool {
			return strings.HasPrefix(path, "skylink/") && path != "skylink/pkg/domain"
		},
	)
	testutil.AssertNoDirectImports(t, ".", forbidden, "pluginapi may depend on skylink/pkg/domain and the standard library only")
}
