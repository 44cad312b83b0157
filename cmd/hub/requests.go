package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"servicehub/internal/domain"
	"servicehub/internal/engine"
	"servicehub/internal/repo"
)

func requestCmd() *cobra.Command {
	r := &cobra.Command{
		Use:   "request",
		Short: "Book and move service requests",
		Long: `A request is opened by its client and moves through the lifecycle one logged step at a time.
The client schedules, reschedules or cancels; the provider confirms, refuses and starts;
both finish and rate each other.`,
	}
	r.AddCommand(requestCreateCmd())
	r.AddCommand(requestListCmd())
	r.AddCommand(requestShowCmd())
	r.AddCommand(requestLogsCmd())
	for _, a := range domain.Actions {
		r.AddCommand(requestActionCmd(a))
	}
	return r
}

func requestCreateCmd() *cobra.Command {
	var opts engine.RequestCreateOptions
	var at string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a request with a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("--at must be RFC3339: %w", err)
			}
			opts.ScheduledAt = when
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.CreateRequest(ctx, opts)
				if err != nil {
					return err
				}
				return printRequest(req, opts.ActorID)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "request id (generated when empty)")
	cmd.Flags().StringVar(&opts.ClientID, "client", "", "client id (defaults to --actor-id)")
	cmd.Flags().StringVar(&opts.ProviderID, "provider", "", "provider id")
	cmd.Flags().StringVar(&opts.ProviderWorkID, "provider-work", "", "provider work id")
	cmd.Flags().StringVar(&at, "at", "", "scheduled time (RFC3339)")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("provider-work")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func requestListCmd() *cobra.Command {
	var f repo.RequestFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Status = strings.ToUpper(f.Status)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListRequests(ctx, actorID(), f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Client", "Provider", "Work", "Scheduled", "Status"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.ClientID, r.ProviderID, r.ProviderWorkID, r.ScheduledAt, r.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ClientID, "client", "", "client filter")
	cmd.Flags().StringVar(&f.ProviderID, "provider", "", "provider filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func requestShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a request and what you can do next",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.GetRequest(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printRequest(req, actorID())
			})
		},
	}
}

func requestLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <id>",
		Short: "Show the log trail of a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				logs, err := e.Logs(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				views := make([]domain.LogView, 0, len(logs))
				for _, l := range logs {
					views = append(views, l.View())
				}
				if viper.GetBool("json") {
					return printJSON(views)
				}
				printLogTable(views)
				return nil
			})
		},
	}
}

func requestActionCmd(action domain.Action) *cobra.Command {
	var at, reason string
	var rating float64
	cmd := &cobra.Command{
		Use:   string(action) + " <id>",
		Short: strings.ToUpper(string(action[:1])) + string(action[1:]) + " a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TransitionOptions{RequestID: args[0], Action: action, ActorID: actorID(), Reason: reason, Rating: rating}
			if action == domain.ActionReschedule {
				when, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at must be RFC3339: %w", err)
				}
				opts.ScheduledAt = when
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.Transition(ctx, opts)
				if err != nil {
					return err
				}
				return printRequest(req, opts.ActorID)
			})
		},
	}
	switch action {
	case domain.ActionReschedule:
		cmd.Flags().StringVar(&at, "at", "", "new scheduled time (RFC3339)")
		_ = cmd.MarkFlagRequired("at")
	case domain.ActionCancel:
		cmd.Flags().StringVar(&reason, "reason", "", "why the request is cancelled")
	case domain.ActionRate:
		cmd.Flags().Float64Var(&rating, "value", 0, "rating from 1 to 5")
		_ = cmd.MarkFlagRequired("value")
	}
	return cmd
}

func printRequest(req *domain.ServiceRequest, actorID string) error {
	v := req.View()
	available := req.Available(req.Participant(actorID))
	if viper.GetBool("json") {
		return printJSON(map[string]any{"request": v, "available": available})
	}
	fmt.Printf("%s  %s  client=%s provider=%s work=%s\n", v.ID, v.Status, v.ClientID, v.ProviderID, v.ProviderWorkID)
	fmt.Printf("scheduled %s  total %s\n", v.ScheduledAt, v.TotalCost.StringFixed(2))
	printLogTable(v.Logs)
	if len(available) > 0 {
		names := make([]string, 0, len(available))
		for _, a := range available {
			names = append(names, string(a))
		}
		fmt.Println("next:", strings.Join(names, ", "))
	}
	return nil
}

func printLogTable(logs []domain.LogView) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Status", "By", "At", "Reason"})
	for i, l := range logs {
		tw.AppendRow(table.Row{i + 1, l.Status, l.ByID, l.At, l.Reason})
	}
	tw.Render()
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The audit trail of every change: registrations, catalog edits, price lists and request transitions.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var follow bool
	var interval time.Duration
	var q engine.EventQuery
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q.Limit = n
				items, err := e.ListEvents(ctx, actorID(), q)
				if err != nil {
					return err
				}
				for i := len(items) - 1; i >= 0; i-- {
					printEvent(items[i])
				}
				if !follow {
					return nil
				}
				var cursor int64
				if len(items) > 0 {
					cursor = items[0].ID
				}
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
					next, err := e.EventsAfter(ctx, actorID(), cursor, 100)
					if err != nil {
						return err
					}
					for _, evt := range next {
						if matchesQuery(evt, q) {
							printEvent(evt)
						}
						cursor = evt.ID
					}
				}
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&q.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&q.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&q.EntityID, "entity-id", "", "entity id")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new events (catalog admins)")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval with --follow")
	return cmd
}

func matchesQuery(evt domain.Event, q engine.EventQuery) bool {
	return (q.Type == "" || evt.Type == q.Type) &&
		(q.EntityKind == "" || evt.EntityKind == q.EntityKind) &&
		(q.EntityID == "" || evt.EntityID == q.EntityID)
}

func printEvent(evt domain.Event) {
	if viper.GetBool("json") {
		_ = printJSON(evt)
		return
	}
	fmt.Printf("%d  %s  %-24s %s/%s by %s %s\n", evt.ID, evt.TS, evt.Type, evt.EntityKind, evt.EntityID, evt.ActorID, evt.Payload)
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the HTTP API",
	}

	var name string
	var save bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				plain, key, err := e.CreateAPIKey(ctx, actorID(), name)
				if err != nil {
					return err
				}
				if save {
					path := envPath(viper.GetString("workspace"))
					if err := setEnvValue(path, "SERVICEHUB_API_KEY", plain); err != nil {
						return err
					}
					fmt.Fprintln(os.Stderr, "saved SERVICEHUB_API_KEY to", path)
				}
				return printJSONOrTable(map[string]any{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "key": plain})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")
	create.Flags().BoolVar(&save, "save", false, "store the key in <workspace>/.env")

	list := &cobra.Command{
		Use:   "list",
		Short: "List your API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.ListAPIKeys(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, key := range keys {
					tw.AppendRow(table.Row{key.ID, key.Name, key.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke one of your API keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeAPIKey(ctx, args[0], actorID())
			})
		},
	}

	k.AddCommand(create, list, revoke)
	return k
}
