package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs the client command group. Connection flags are shared
// by publish, subscribe, consume and purge.
func NewRoot() *cobra.Command {
	conn := &connection{}
	root := &cobra.Command{
		Use:   "client",
		Short: "Publish, subscribe, consume and purge against a remq store",
	}
	conn.bind(root)
	root.AddCommand(
		newPublishCommand(conn),
		newSubscribeCommand(conn),
		newConsumeCommand(conn),
		newPurgeCommand(conn),
	)
	return root
}
