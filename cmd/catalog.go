package cmd

import (
	"fmt"
	"os"

	"ddtcms/internal/catalog"
	"ddtcms/internal/config"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the local test catalog",
	}
	cmd.AddCommand(newCatalogReleasesCmd())
	cmd.AddCommand(newCatalogTestSetsCmd())
	return cmd
}

func newCatalogReleasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "releases",
		Short: "List releases in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCatalog()
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"ID", "Name", "Active", "Description"})
			for _, r := range store.Releases() {
				t.AppendRow(table.Row{r.ID, r.Name, r.Active, r.Description})
			}
			t.Render()
			return nil
		},
	}
}

func newCatalogTestSetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-sets",
		Short: "List test sets in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCatalog()
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"ID", "Name", "Release", "Cases"})
			for _, ts := range store.TestSets() {
				t.AppendRow(table.Row{ts.ID, ts.Name, ts.ReleaseID, len(ts.CaseIDs)})
			}
			t.Render()
			return nil
		},
	}
}

func openCatalog() (*catalog.Storage, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	store, err := catalog.NewStorage(cfg.Catalog.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return store, nil
}
