package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	cusipmap "github.com/RxDataLab/go-cusipmap"
)

// --- Validate Command ---

var validateCmd = &cobra.Command{
	Use:     "validate <cusip>...",
	Short:   "Check candidate CUSIPs against the validator and the check digit",
	Example: `  cusipmap validate 037833100 68389X105 20240115`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CUSIP\tSTRICT\tLENIENT\tCHECK DIGIT")
		for _, arg := range args {
			candidate := strings.ToUpper(strings.TrimSpace(arg))
			check := "n/a"
			if len(candidate) == 9 {
				check = fmt.Sprint(cusipmap.HasValidCheckDigit(candidate))
			} else if len(candidate) == 8 {
				if digit, err := cusipmap.CheckDigit(candidate); err == nil {
					check = fmt.Sprintf("expects %d", digit)
				}
			}
			fmt.Fprintf(tw, "%s\t%t\t%t\t%s\n", candidate,
				cusipmap.IsValidCUSIP(candidate, true),
				cusipmap.IsValidCUSIP(candidate, false),
				check)
		}
		return tw.Flush()
	},
}
