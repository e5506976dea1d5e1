package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"assetline/internal/domain"
	"assetline/internal/engine"
	"assetline/internal/lineage"
	"assetline/internal/relationship"
	"assetline/internal/repo"
)

func assetCmd() *cobra.Command {
	c := &cobra.Command{Use: "asset", Short: "Manage assets"}
	c.AddCommand(assetCreateCmd())
	c.AddCommand(assetImportCmd())
	c.AddCommand(assetListCmd())
	c.AddCommand(assetShowCmd())
	c.AddCommand(assetStatusCmd())
	c.AddCommand(assetVersionCmd())
	c.AddCommand(assetVersionsCmd())
	return c
}

type assetFlags struct {
	projectID, folderID, mediaType, uri, metadata string
}

func (f *assetFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.projectID, "project", "", "project id")
	cmd.Flags().StringVar(&f.folderID, "folder", "", "folder id")
	cmd.Flags().StringVar(&f.mediaType, "media-type", "", "media type, e.g. image/png")
	cmd.Flags().StringVar(&f.uri, "uri", "", "storage uri")
	cmd.Flags().StringVar(&f.metadata, "metadata", "", "metadata as a JSON object")
}

func (f assetFlags) newAsset(name string) lineage.NewAsset {
	return lineage.NewAsset{
		ProjectID:    optionalString(f.projectID),
		FolderID:     optionalString(f.folderID),
		Name:         name,
		MediaType:    f.mediaType,
		URI:          f.uri,
		MetadataJSON: optionalString(f.metadata),
	}
}

func assetCreateCmd() *cobra.Command {
	var f assetFlags
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an asset at version 1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				a, v, err := e.CreateAsset(ctx, user, f.newAsset(args[0]))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"asset": a, "version": v})
				}
				fmt.Printf("asset %s created (version %d)\n", a.ID, v.VersionNumber)
				return nil
			})
		},
	}
	f.bind(cmd)
	return cmd
}

// importEntry is one asset in an import manifest.
type importEntry struct {
	Name      string         `yaml:"name"`
	ProjectID string         `yaml:"project_id"`
	FolderID  string         `yaml:"folder_id"`
	MediaType string         `yaml:"media_type"`
	URI       string         `yaml:"uri"`
	Metadata  map[string]any `yaml:"metadata"`
}

func assetImportCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "import <manifest.yml>",
		Short: "Create every asset listed in a YAML manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var entries []importEntry
			if err := yaml.Unmarshal(data, &entries); err != nil {
				return fmt.Errorf("invalid manifest: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				created := make([]domain.Asset, len(entries))
				g, gctx := errgroup.WithContext(ctx)
				g.SetLimit(workers)
				for i, entry := range entries {
					i, entry := i, entry
					g.Go(func() error {
						in := lineage.NewAsset{
							ProjectID: optionalString(entry.ProjectID),
							FolderID:  optionalString(entry.FolderID),
							Name:      entry.Name,
							MediaType: entry.MediaType,
							URI:       entry.URI,
						}
						if entry.Metadata != nil {
							b, err := json.Marshal(entry.Metadata)
							if err != nil {
								return fmt.Errorf("entry %d: %w", i, err)
							}
							meta := string(b)
							in.MetadataJSON = &meta
						}
						a, _, err := e.CreateAsset(gctx, user, in)
						if err != nil {
							return fmt.Errorf("entry %d (%s): %w", i, entry.Name, err)
						}
						created[i] = a
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					return err
				}
				return printAssets(created)
			})
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent inserts")
	return cmd
}

func assetListCmd() *cobra.Command {
	var f repo.AssetFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				items, err := e.ListAssets(ctx, user, f)
				if err != nil {
					return err
				}
				return printAssets(items)
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.FolderID, "folder", "", "folder filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (active, archived, deleted)")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func assetShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				a, err := e.GetAsset(ctx, user, args[0])
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
}

func assetStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <active|archived|deleted>",
		Short: "Archive, restore or delete an asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				a, err := e.SetAssetStatus(ctx, user, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("asset %s is %s\n", a.ID, a.Status)
				return nil
			})
		},
	}
}

func assetVersionCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "version <id>",
		Short: "Record the next version of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				v, err := e.RecordAssetVersion(ctx, user, args[0], optionalString(notes))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				fmt.Printf("asset %s is now at version %d\n", v.AssetID, v.VersionNumber)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "version notes")
	return cmd
}

func assetVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <id>",
		Short: "List asset versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				versions, err := e.ListVersions(ctx, user, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(versions)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Version", "Task", "Notes", "Created"})
				for _, v := range versions {
					tw.AppendRow(table.Row{v.VersionNumber, deref(v.TaskID), deref(v.Notes), v.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func relCmd() *cobra.Command {
	c := &cobra.Command{Use: "rel", Short: "Manage lineage relationships"}
	var relType, notes string
	add := &cobra.Command{
		Use:   "add <parent-id> <child-id>",
		Short: "Record that child was produced from parent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				rel, err := e.CreateRelationship(ctx, user, relationship.CreateInput{
					ParentAssetID:    args[0],
					ChildAssetID:     args[1],
					RelationshipType: relType,
					Notes:            optionalString(notes),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rel)
				}
				fmt.Printf("relationship %s: %s -[%s]-> %s\n", rel.ID, rel.ParentAssetID, rel.RelationshipType, rel.ChildAssetID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&relType, "type", domain.RelDerivedFrom, "relationship type")
	add.Flags().StringVar(&notes, "notes", "", "notes")
	rm := &cobra.Command{
		Use:   "rm <parent-id> <child-id>",
		Short: "Delete a relationship",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				rel, err := e.DeleteRelationship(ctx, user, args[0], args[1])
				if err != nil {
					return err
				}
				out := map[string]string{"parent_asset_id": rel.ParentAssetID, "child_asset_id": rel.ChildAssetID, "action": "deleted"}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("deleted %s -> %s\n", rel.ParentAssetID, rel.ChildAssetID)
				return nil
			})
		},
	}
	list := &cobra.Command{
		Use:   "list <asset-id>",
		Short: "List edges touching an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				rels, err := e.ListAssetRelationships(ctx, user, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rels)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Parent", "Type", "Child", "Created"})
				for _, r := range rels {
					tw.AppendRow(table.Row{r.ID, r.ParentAssetID, r.RelationshipType, r.ChildAssetID, r.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	c.AddCommand(add, rm, list)
	return c
}

func lineageCmd() *cobra.Command {
	c := &cobra.Command{Use: "lineage", Short: "Walk and audit the lineage graph"}
	var maxDepth int
	for _, direction := range []string{"ancestors", "descendants"} {
		direction := direction
		walk := &cobra.Command{
			Use:   direction + " <asset-id>",
			Short: "List " + direction + " with their depth",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
					fn := e.Ancestors
					if direction == "descendants" {
						fn = e.Descendants
					}
					nodes, err := fn(ctx, user, args[0], maxDepth)
					if err != nil {
						return err
					}
					if viper.GetBool("json") {
						return printJSON(nodes)
					}
					tw := newTable()
					tw.AppendHeader(table.Row{"Depth", "ID", "Name", "Status"})
					for _, n := range nodes {
						tw.AppendRow(table.Row{n.Depth, n.ID, strings.Repeat("  ", n.Depth-1) + n.Name, n.Status})
					}
					tw.Render()
					return nil
				})
			},
		}
		walk.Flags().IntVar(&maxDepth, "max-depth", 0, "stop after this many hops (0 for the configured cap)")
		c.AddCommand(walk)
	}
	c.AddCommand(&cobra.Command{
		Use:   "audit",
		Short: "Re-check the whole graph for cycles, duplicates and dead endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				report, err := e.AuditLineage(ctx, user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Check", "Count"})
				tw.AppendRow(table.Row{"assets", report.Assets})
				tw.AppendRow(table.Row{"edges", report.Edges})
				tw.AppendRow(table.Row{"cycles", len(report.Cycles)})
				tw.AppendRow(table.Row{"dangling", len(report.Dangling)})
				tw.AppendRow(table.Row{"duplicates", len(report.Duplicates)})
				tw.Render()
				if !report.OK() {
					return fmt.Errorf("lineage audit found problems")
				}
				return nil
			})
		},
	})
	return c
}

func printAssets(items []domain.Asset) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Name", "Media type", "Status", "Created"})
	for _, a := range items {
		tw.AppendRow(table.Row{a.ID, a.Name, a.MediaType, a.Status, a.CreatedAt})
	}
	tw.Render()
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
