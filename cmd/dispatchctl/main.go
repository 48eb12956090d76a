// Command dispatchctl is the operator CLI for the dispatch platform:
// schema migration, tenant seeding, and audit-chain verification.
//
// Grounded on haasonsaas-nexus's cmd/nexus (buildRootCmd + one
// buildXCmd per subcommand, RunE closures over local flag vars) — kept
// HOW, replaced WHAT: nexus's channel/agent/memory command groups
// become this module's migrate/seed-tenant/verify-audit trio.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "dispatchctl",
		Short:        "Operate a dispatch platform deployment",
		Long:         "dispatchctl runs schema migrations, seeds tenants, and verifies the audit ledger's checksum chain against the database configured by DATABASE_URL/DB_* environment variables.",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		buildMigrateCmd(),
		buildSeedTenantCmd(),
		buildVerifyAuditCmd(),
	)
	return cmd
}
