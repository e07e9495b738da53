package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/store"
)

func openStore(rootOpts *RootOptions) (*store.Store, error) {
	return store.New(rootOpts.Config.DatabasePath)
}

// NewAdminCommand manages operators outside of chat.
func NewAdminCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage operators",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <chat-user-id>...",
		Short: "Grant operator rights to chat identities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()
			for _, id := range args {
				if err := st.AddAdmin(commandContext(cmd), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "admin added: %s\n", id)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List operators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()
			admins, err := st.ListAdmins(commandContext(cmd))
			if err != nil {
				return err
			}
			for _, a := range admins {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", a.ChatUserID, a.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	})
	return cmd
}

// NewResetCommand wipes the roster, bindings and operators.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every user, binding and operator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Reset(commandContext(cmd)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "roster reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
