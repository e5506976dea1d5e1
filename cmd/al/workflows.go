package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"assetline/internal/domain"
	"assetline/internal/engine"
	"assetline/internal/relationship"
	"assetline/internal/repo"
	"assetline/internal/workflow"
)

func workflowCmd() *cobra.Command {
	c := &cobra.Command{Use: "workflow", Short: "Manage workflows"}
	c.AddCommand(workflowCreateCmd())
	c.AddCommand(workflowListCmd())
	c.AddCommand(workflowStatusCmd())
	c.AddCommand(workflowSetStatusCmd())
	c.AddCommand(workflowRecomputeCmd())
	c.AddCommand(workflowAddTaskCmd())
	c.AddCommand(workflowDeleteCmd())
	return c
}

func workflowCreateCmd() *cobra.Command {
	var priority int
	var assignee string
	var taskTypes []string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a workflow, optionally with tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := workflow.NewWorkflow{Name: args[0], AssignedTo: optionalString(assignee)}
			if cmd.Flags().Changed("priority") {
				in.Priority = &priority
			}
			for _, tt := range taskTypes {
				in.Tasks = append(in.Tasks, workflow.NewTask{TaskType: tt})
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				w, tasks, err := e.CreateWorkflow(ctx, user, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"workflow": w, "tasks": tasks})
				}
				fmt.Printf("workflow %s created with %d tasks\n", w.ID, len(tasks))
				printTasks(tasks)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&priority, "priority", 0, "priority (defaults to config)")
	cmd.Flags().StringVar(&assignee, "assigned-to", "", "assignee")
	cmd.Flags().StringSliceVar(&taskTypes, "task", nil, "task type, repeat in execution order")
	return cmd
}

func workflowListCmd() *cobra.Command {
	var f repo.WorkflowFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				items, err := e.ListWorkflows(ctx, user, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Priority", "Assignee", "Created"})
				for _, w := range items {
					tw.AppendRow(table.Row{w.ID, w.Name, w.Status, w.Priority, deref(w.AssignedTo), w.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.AssignedTo, "assigned-to", "", "assignee filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func workflowStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show workflow status and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				view, err := e.WorkflowStatus(ctx, user, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				p := view.Progress
				fmt.Printf("Workflow: %s (%s)\n", view.Workflow.Name, view.Workflow.Status)
				fmt.Printf("Progress: %d%% (%d/%d completed, %d in progress, %d failed, %d pending)\n",
					p.Percentage, p.Completed, p.TotalTasks, p.InProgress, p.Failed, p.Pending)
				if view.ResultData != nil {
					fmt.Printf("Result: %s\n", string(view.ResultData))
				}
				printTasks(view.Tasks)
				return nil
			})
		},
	}
}

func workflowSetStatusCmd() *cobra.Command {
	var result, errMsg string
	cmd := &cobra.Command{
		Use:   "set-status <id> <in_progress|completed|failed|cancelled>",
		Short: "Move a workflow to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				w, err := e.SetWorkflowStatus(ctx, user, workflow.WorkflowTransition{
					WorkflowID:     args[0],
					Status:         args[1],
					ResultDataJSON: optionalString(result),
					ErrorMessage:   optionalString(errMsg),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(w)
				}
				fmt.Printf("workflow %s is %s\n", w.ID, w.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&result, "result", "", "result data as JSON (completed only)")
	cmd.Flags().StringVar(&errMsg, "error", "", "error message (failed only)")
	return cmd
}

func workflowRecomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute <id>",
		Short: "Derive the workflow status from its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				w, changed, err := e.RecomputeWorkflowStatus(ctx, user, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"workflow": w, "changed": changed})
				}
				if !changed {
					fmt.Printf("workflow %s unchanged (%s)\n", w.ID, w.Status)
					return nil
				}
				fmt.Printf("workflow %s is now %s\n", w.ID, w.Status)
				return nil
			})
		},
	}
}

func workflowAddTaskCmd() *cobra.Command {
	var order int
	var assignee string
	cmd := &cobra.Command{
		Use:   "add-task <workflow-id> <task-type>",
		Short: "Append a task to a workflow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := workflow.NewTask{TaskType: args[1], AssignedTo: optionalString(assignee)}
			if cmd.Flags().Changed("order") {
				in.ExecutionOrder = &order
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				t, err := e.AddTask(ctx, user, args[0], in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("task %s added at position %d\n", t.ID, t.ExecutionOrder)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&order, "order", 0, "execution order (defaults to last)")
	cmd.Flags().StringVar(&assignee, "assigned-to", "", "assignee")
	return cmd
}

func workflowDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a workflow and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				return e.DeleteWorkflow(ctx, user, args[0])
			})
		},
	}
}

func taskCmd() *cobra.Command {
	c := &cobra.Command{Use: "task", Short: "Move tasks through their lifecycle"}
	c.AddCommand(taskStatusCmd())
	return c
}

func taskStatusCmd() *cobra.Command {
	var errMsg, assignee string
	var parents []string
	var target, name, mediaType, uri, relType, notes string
	cmd := &cobra.Command{
		Use:   "status <task-id> <in_progress|completed|failed>",
		Short: "Change a task status",
		Long: `Change a task status. When completing a task, --parent declares the assets
the output was derived from: --output records a new version of an existing
asset, otherwise --name creates a new one. The asset, its version and its
edges are written together with the status change or not at all.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{
				TaskID:       args[0],
				Status:       args[1],
				ErrorMessage: optionalString(errMsg),
				AssignedTo:   optionalString(assignee),
			}
			if len(parents) > 0 || target != "" || name != "" {
				opts.Derived = &relationship.DerivedAssetInput{
					ParentAssetIDs:   parents,
					AssetID:          target,
					RelationshipType: relType,
					Notes:            optionalString(notes),
				}
				opts.Derived.Asset.Name = name
				opts.Derived.Asset.MediaType = mediaType
				opts.Derived.Asset.URI = uri
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, user string) error {
				res, err := e.UpdateTaskStatus(ctx, user, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("task %s is %s (workflow %s)\n", res.Task.ID, res.Task.Status, res.Workflow.Status)
				if res.Derived != nil {
					fmt.Printf("produced asset %s at version %d with %d parent edge(s)\n",
						res.Derived.Asset.ID, res.Derived.Version.VersionNumber, len(res.Derived.Relationships))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&errMsg, "error", "", "error message (failed only)")
	cmd.Flags().StringVar(&assignee, "assigned-to", "", "reassign the task")
	cmd.Flags().StringSliceVar(&parents, "parent", nil, "parent asset id of the output, repeatable")
	cmd.Flags().StringVar(&target, "output", "", "existing asset that receives a new version")
	cmd.Flags().StringVar(&name, "name", "", "name of a new output asset")
	cmd.Flags().StringVar(&mediaType, "media-type", "", "media type of a new output asset")
	cmd.Flags().StringVar(&uri, "uri", "", "uri of a new output asset")
	cmd.Flags().StringVar(&relType, "type", domain.RelDerivedFrom, "relationship type for the parent edges")
	cmd.Flags().StringVar(&notes, "notes", "", "notes for the version and edges")
	return cmd
}

func printTasks(tasks []domain.WorkflowTask) {
	tw := newTable()
	tw.AppendHeader(table.Row{"#", "ID", "Type", "Status", "Assignee", "Output"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{t.ExecutionOrder, t.ID, t.TaskType, t.Status, deref(t.AssignedTo), deref(t.ProducedAssetID)})
	}
	tw.Render()
}
