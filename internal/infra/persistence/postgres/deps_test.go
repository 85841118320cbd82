package postgres

import (
	"strings"
	"testing"

	"skylink/testutil"
)

func TestImportsAreDomainOrStdlib(t *testing.T) {
	skylink := func(p string) bool { return strings.HasPrefix(p, "skylink/") }
	forbidden := testutil.AnyOf(
		testutil.Except(testutil.ThirdPartyImport, "github.com/jackc/pgx/v5/stdlib"),
		testutil.Except(skylink, "skylink/pkg/domain", "skylink/pkg/errors", "skylink/internal/infra/persistence/memory"),
	)
	testutil.AssertNoDirectImports(t, ".", forbidden, "postgres store wraps the memory cache and the pgx driver only")
}
