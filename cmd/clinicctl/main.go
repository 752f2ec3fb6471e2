// Command clinicctl is the operator CLI for the scheduling assistant.
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Operator tools for the clinic scheduling assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(slotsCmd())
	root.AddCommand(resolveCmd())
	root.AddCommand(calendarCheckCmd())
	root.AddCommand(purgePatientCmd())
	return root
}
