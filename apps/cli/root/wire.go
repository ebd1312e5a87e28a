package root

import (
	"github.com/zenGate-Global/palmyra-tenancy/apps/cli/cmd/auth"
	"github.com/zenGate-Global/palmyra-tenancy/apps/cli/cmd/migrate"
	tenantcmd "github.com/zenGate-Global/palmyra-tenancy/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(migrate.Command())
	Root().AddCommand(tenantcmd.Command())
}
