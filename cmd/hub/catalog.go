package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"servicehub/internal/domain"
	"servicehub/internal/engine"
)

func workCmd() *cobra.Command {
	w := &cobra.Command{
		Use:   "work",
		Short: "Manage the work catalog",
		Long:  "Works are the services the marketplace offers, each split into jobs. Only catalog admins (catalog.admins in servicehub.yml) may change them.",
	}
	w.AddCommand(workCreateCmd())
	w.AddCommand(workListCmd())
	w.AddCommand(workShowCmd())
	w.AddCommand(workJobCmd())
	return w
}

// parseWorkJob reads ID=NAME, or just NAME to get a generated id.
func parseWorkJob(raw string) engine.WorkJobInput {
	if id, name, ok := strings.Cut(raw, "="); ok {
		return engine.WorkJobInput{ID: id, Name: name}
	}
	return engine.WorkJobInput{Name: raw}
}

func workCreateCmd() *cobra.Command {
	var id, name string
	var jobs []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add a work to the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.WorkCreateOptions{ID: id, Name: name, ActorID: actorID()}
			for _, raw := range jobs {
				opts.Jobs = append(opts.Jobs, parseWorkJob(raw))
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.CreateWork(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(w.View())
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "work id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "work name")
	cmd.Flags().StringArrayVar(&jobs, "job", nil, "job ID=NAME or NAME (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func workListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog works",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListWorks(ctx)
				if err != nil {
					return err
				}
				views := make([]domain.WorkView, 0, len(items))
				for _, w := range items {
					views = append(views, w.View())
				}
				if viper.GetBool("json") {
					return printJSON(views)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Jobs"})
				for _, v := range views {
					names := make([]string, 0, len(v.Jobs))
					for _, j := range v.Jobs {
						names = append(names, fmt.Sprintf("%s (%s)", j.Name, j.ID))
					}
					tw.AppendRow(table.Row{v.ID, v.Name, strings.Join(names, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func workShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a catalog work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.GetWork(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(w.View())
			})
		},
	}
}

func workJobCmd() *cobra.Command {
	j := &cobra.Command{Use: "job", Short: "Manage the jobs of a catalog work"}

	add := &cobra.Command{
		Use:   "add <work-id> <ID=NAME|NAME>",
		Short: "Add a job to a work",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.AddWorkJob(ctx, args[0], actorID(), parseWorkJob(args[1]))
				if err != nil {
					return err
				}
				return printJSONOrTable(w.View())
			})
		},
	}
	remove := &cobra.Command{
		Use:   "remove <work-id> <job-id>",
		Short: "Remove a job no provider prices",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.RemoveWorkJob(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(w.View())
			})
		},
	}
	j.AddCommand(add, remove)
	return j
}
