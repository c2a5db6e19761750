/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/interlinear/internal/store"
)

var glossaryCmd = &cobra.Command{
	Use:   "glossary",
	Short: "Manage the terminology glossary",
	Long: `Add, list, and delete glossary entries.

Glossary terms found in a sentence are passed to the translator so that
names and fixed vocabulary come out the same way every time.`,
}

var (
	glossarySource string
	glossaryTarget string
)

var glossaryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List glossary entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, db *store.Store) error {
			entries, err := db.ListGlossaryTerms(ctx, glossarySource, glossaryTarget)
			if err != nil {
				return fmt.Errorf("failed to list glossary: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("Glossary is empty.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSOURCE LANG\tTARGET LANG\tSOURCE TERM\tTARGET TERM")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.ID, e.SourceLang, e.TargetLang, e.SourceTerm, e.TargetTerm)
			}
			return w.Flush()
		})
	},
}

var glossaryAddCmd = &cobra.Command{
	Use:   "add <source-term> <target-term>",
	Short: "Add or update a glossary entry",
	Long: `Map a source-language term to a target-language term.

Example:
  interlinear glossary add "Kyiv" "Киев" --source en --target ru`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if glossarySource == "" || glossaryTarget == "" {
			return fmt.Errorf("--source and --target are required")
		}
		return withStore(func(ctx context.Context, db *store.Store) error {
			id, err := db.AddGlossaryTerm(ctx, glossarySource, glossaryTarget, args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to add glossary entry: %w", err)
			}
			fmt.Printf("Added %s: [%s→%s] %q → %q\n", id, glossarySource, glossaryTarget, args[0], args[1])
			return nil
		})
	},
}

var glossaryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a glossary entry by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, db *store.Store) error {
			ok, err := db.DeleteGlossaryTerm(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to delete glossary entry: %w", err)
			}
			if !ok {
				return fmt.Errorf("no glossary entry with id %s", args[0])
			}
			fmt.Printf("Deleted glossary entry: %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(glossaryCmd)

	for _, c := range []*cobra.Command{glossaryListCmd, glossaryAddCmd} {
		c.Flags().StringVarP(&glossarySource, "source", "s", "", "Source language code (e.g. en)")
		c.Flags().StringVarP(&glossaryTarget, "target", "t", "", "Target language code (e.g. ru)")
	}

	glossaryCmd.AddCommand(glossaryListCmd)
	glossaryCmd.AddCommand(glossaryAddCmd)
	glossaryCmd.AddCommand(glossaryDeleteCmd)
}
