package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/money626/epidemic-servey-chatbot/common/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "surveybot "+version.Current().String())
			return nil
		},
	}
}
