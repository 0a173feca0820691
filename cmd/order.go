package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Rana718/seedgraph/internal/resolver"
)

var orderVerbose bool

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Show the order tables are populated in",
	Long: `Resolve the foreign key graph of the schema and print the insertion order.
Tables without a primary key are listed separately. Foreign keys that close a
cycle are reported as deferred (left NULL) or unsatisfiable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context(), false, false)
		if err != nil {
			return err
		}
		defer sess.Close()

		res, err := resolver.Resolve(sess.schema)
		if err != nil {
			return err
		}

		if orderVerbose {
			fmt.Print(res.Describe())
			return nil
		}

		color.Cyan("📋 Insertion order: %s", strings.Join(res.Order(), " → "))
		if keyless := res.Keyless(); len(keyless) > 0 {
			color.White("   Keyless: %s", strings.Join(keyless, ", "))
		}
		for _, e := range res.Deferred() {
			color.Yellow("⚠️  %s", e)
		}
		for _, e := range res.Unsatisfiable() {
			color.Red("❌ %s (seed %s first)", e, e.Principal)
		}
		return nil
	},
}

func init() {
	orderCmd.Flags().BoolVar(&orderVerbose, "verbose", false, "Print every edge with its kind")
	rootCmd.AddCommand(orderCmd)
}
