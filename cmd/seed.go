package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	seedApplySchema bool
	seedDump        bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the database with the configured row counts",
	Long: `Walk the tables in dependency order and generate the number of rows
given under "counts" in seedgraph.config.json.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context(), true, seedApplySchema)
		if err != nil {
			return err
		}
		defer sess.Close()

		counts, err := sess.cfg.CountsFor(sess.schema.Names())
		if err != nil {
			return err
		}
		if len(counts) == 0 {
			color.Yellow("⚠️  No counts configured, nothing to seed")
			return nil
		}

		g, err := sess.generator()
		if err != nil {
			return err
		}
		color.Cyan("🌱 Starting database seeding...")
		color.Cyan("📋 Insertion order: %s", strings.Join(g.DependencyOrder(), " → "))
		fmt.Println()

		results, err := g.Seed(cmd.Context(), counts)
		for _, r := range results {
			color.Green("  ✓ %s: %d row(s)", r.Entity, len(r.Records))
		}
		if err != nil {
			return fmt.Errorf("seeding stopped: %w", err)
		}
		fmt.Println()
		color.Green("✅ Seeding complete")

		if seedDump {
			for _, r := range results {
				if err := dump(os.Stdout, r.Entity, r.Records); err != nil {
					return err
				}
			}
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedApplySchema, "apply-schema", false, "Execute the schema files before seeding")
	seedCmd.Flags().BoolVar(&seedDump, "dump", false, "Print the generated rows as YAML")
	rootCmd.AddCommand(seedCmd)
}
