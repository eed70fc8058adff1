package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mintforge/internal/network"
)

func networksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List supported networks",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCHAIN ID\tTOKEN\tTESTNET\tEXPLORER")
			for _, net := range network.All() {
				fmt.Fprintf(w, "%s\t%d\t%s\t%v\t%s\n",
					net.Name, net.ChainID, net.NativeToken, net.Testnet, net.Explorer.BaseURL)
			}
			return w.Flush()
		},
	}
}
