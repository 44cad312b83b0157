package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"servicehub/internal/domain"
	"servicehub/internal/engine"
)

type userFlags struct {
	id, name, document, email, contact, dob string
}

func (f *userFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "id", "", "participant id (defaults to --actor-id)")
	cmd.Flags().StringVar(&f.name, "name", "", "full name")
	cmd.Flags().StringVar(&f.document, "document", "", "CPF, e.g. 529.982.247-25")
	cmd.Flags().StringVar(&f.email, "email", "", "email address")
	cmd.Flags().StringVar(&f.contact, "contact", "", "phone, e.g. (11) 91234-5678")
	cmd.Flags().StringVar(&f.dob, "dob", "", "date of birth (YYYY-MM-DD)")
	for _, name := range []string{"name", "document", "email", "contact", "dob"} {
		_ = cmd.MarkFlagRequired(name)
	}
}

func (f *userFlags) input() (engine.UserInput, error) {
	dob, err := time.Parse(time.DateOnly, f.dob)
	if err != nil {
		return engine.UserInput{}, fmt.Errorf("--dob must be YYYY-MM-DD: %w", err)
	}
	return engine.UserInput{
		ID:       f.id,
		Name:     f.name,
		Document: f.document,
		Email:    f.email,
		Contact:  f.contact,
		DOB:      dob,
	}, nil
}

type profileFlags struct {
	name, email, contact string
}

func (f *profileFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "new name")
	cmd.Flags().StringVar(&f.email, "email", "", "new email")
	cmd.Flags().StringVar(&f.contact, "contact", "", "new phone")
}

func (f *profileFlags) update(cmd *cobra.Command) engine.ProfileUpdate {
	return engine.ProfileUpdate{
		Name:    optionalString(cmd, "name", f.name),
		Email:   optionalString(cmd, "email", f.email),
		Contact: optionalString(cmd, "contact", f.contact),
	}
}

func ratingCell(v domain.UserView) string {
	if v.Rating == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f (%d)", *v.Rating, v.RatingCount)
}

func clientCmd() *cobra.Command {
	c := &cobra.Command{Use: "client", Short: "Manage clients"}
	c.AddCommand(clientCreateCmd())
	c.AddCommand(clientListCmd())
	c.AddCommand(clientShowCmd())
	c.AddCommand(clientUpdateCmd())
	c.AddCommand(clientDeleteCmd())
	return c
}

func clientCreateCmd() *cobra.Command {
	var uf userFlags
	var addr engine.AddressInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := uf.input()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CreateClient(ctx, engine.ClientCreateOptions{User: user, Address: addr, ActorID: actorID()})
				if err != nil {
					return err
				}
				return printJSONOrTable(res.View())
			})
		},
	}
	uf.register(cmd)
	cmd.Flags().StringVar(&addr.CEP, "cep", "", "postal code (XXXXX-XXX)")
	cmd.Flags().IntVar(&addr.Number, "number", 0, "street number")
	cmd.Flags().StringVar(&addr.Complement, "complement", "", "address complement")
	_ = cmd.MarkFlagRequired("cep")
	_ = cmd.MarkFlagRequired("number")
	return cmd
}

func clientListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListClients(ctx)
				if err != nil {
					return err
				}
				views := make([]domain.ClientView, 0, len(items))
				for _, c := range items {
					views = append(views, c.View())
				}
				if viper.GetBool("json") {
					return printJSON(views)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "CEP", "Rating"})
				for _, v := range views {
					tw.AppendRow(table.Row{v.ID, v.Name, v.Email, v.Address.CEP, ratingCell(v.UserView)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func clientShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetClient(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c.View())
			})
		},
	}
}

func clientUpdateCmd() *cobra.Command {
	var pf profileFlags
	var addr engine.AddressInput
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update your client profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ClientUpdateOptions{ID: args[0], ActorID: actorID(), Profile: pf.update(cmd)}
			if cmd.Flags().Changed("cep") || cmd.Flags().Changed("number") || cmd.Flags().Changed("complement") {
				opts.Address = &addr
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.UpdateClient(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c.View())
			})
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&addr.CEP, "cep", "", "postal code (XXXXX-XXX)")
	cmd.Flags().IntVar(&addr.Number, "number", 0, "street number")
	cmd.Flags().StringVar(&addr.Complement, "complement", "", "address complement")
	return cmd
}

func clientDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete your client profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteClient(ctx, args[0], actorID())
			})
		},
	}
}

func providerCmd() *cobra.Command {
	p := &cobra.Command{Use: "provider", Short: "Manage providers and their price lists"}
	p.AddCommand(providerCreateCmd())
	p.AddCommand(providerListCmd())
	p.AddCommand(providerShowCmd())
	p.AddCommand(providerUpdateCmd())
	p.AddCommand(providerDeleteCmd())
	p.AddCommand(providerWorkCmd())
	p.AddCommand(providerJobCmd())
	return p
}

// parseJobFlag reads JOB_ID=COST@DURATION, e.g. j-kitchen=40.50@90m.
func parseJobFlag(raw string) (engine.ProviderWorkJobInput, error) {
	jobID, rest, ok := strings.Cut(raw, "=")
	if !ok || jobID == "" {
		return engine.ProviderWorkJobInput{}, fmt.Errorf("job %q: expected JOB_ID=COST@DURATION", raw)
	}
	costRaw, durRaw, ok := strings.Cut(rest, "@")
	if !ok {
		return engine.ProviderWorkJobInput{}, fmt.Errorf("job %q: expected JOB_ID=COST@DURATION", raw)
	}
	cost, err := decimal.NewFromString(costRaw)
	if err != nil {
		return engine.ProviderWorkJobInput{}, fmt.Errorf("job %q cost: %w", raw, err)
	}
	dur, err := time.ParseDuration(durRaw)
	if err != nil {
		return engine.ProviderWorkJobInput{}, fmt.Errorf("job %q duration: %w", raw, err)
	}
	return engine.ProviderWorkJobInput{JobID: jobID, Cost: cost, EstimatedDuration: dur}, nil
}

type workFlags struct {
	id, workID, minCost string
	jobs                []string
}

func (f *workFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "provider-work-id", "", "provider work id (generated when empty)")
	cmd.Flags().StringVar(&f.workID, "work", "", "catalog work id")
	cmd.Flags().StringVar(&f.minCost, "min-cost", "0", "minimum charge for the work")
	cmd.Flags().StringArrayVar(&f.jobs, "job", nil, "priced job JOB_ID=COST@DURATION (repeatable)")
	_ = cmd.MarkFlagRequired("work")
}

func (f *workFlags) input() (engine.ProviderWorkInput, error) {
	minCost, err := decimal.NewFromString(f.minCost)
	if err != nil {
		return engine.ProviderWorkInput{}, fmt.Errorf("--min-cost: %w", err)
	}
	in := engine.ProviderWorkInput{ID: f.id, WorkID: f.workID, MinCost: minCost}
	for _, raw := range f.jobs {
		job, err := parseJobFlag(raw)
		if err != nil {
			return in, err
		}
		in.Jobs = append(in.Jobs, job)
	}
	return in, nil
}

func providerCreateCmd() *cobra.Command {
	var uf userFlags
	var wf workFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a provider with its first work",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := uf.input()
			if err != nil {
				return err
			}
			work, err := wf.input()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProvider(ctx, engine.ProviderCreateOptions{
					User:    user,
					Works:   []engine.ProviderWorkInput{work},
					ActorID: actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p.View())
			})
		},
	}
	uf.register(cmd)
	wf.register(cmd)
	return cmd
}

func providerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProviders(ctx)
				if err != nil {
					return err
				}
				views := make([]domain.ProviderView, 0, len(items))
				for _, p := range items {
					views = append(views, p.View())
				}
				if viper.GetBool("json") {
					return printJSON(views)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Works", "Rating"})
				for _, v := range views {
					works := make([]string, 0, len(v.Works))
					for _, w := range v.Works {
						works = append(works, fmt.Sprintf("%s (%s)", w.WorkName, w.TotalCost.StringFixed(2)))
					}
					tw.AppendRow(table.Row{v.ID, v.Name, strings.Join(works, ", "), ratingCell(v.UserView)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func providerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a provider and its price list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProvider(ctx, args[0])
				if err != nil {
					return err
				}
				v := p.View()
				if viper.GetBool("json") {
					return printJSON(v)
				}
				fmt.Printf("%s  %s  rating %s\n", v.ID, v.Name, ratingCell(v.UserView))
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Work", "Job", "Cost", "Duration"})
				for _, w := range v.Works {
					for _, j := range w.Jobs {
						tw.AppendRow(table.Row{w.ID + " " + w.WorkName, j.ID + " " + j.JobName, j.Cost.StringFixed(2), time.Duration(j.EstimatedDurationSeconds) * time.Second})
					}
					tw.AppendRow(table.Row{w.ID, "total (min " + w.MinCost.StringFixed(2) + ")", w.TotalCost.StringFixed(2), time.Duration(w.EstimatedDurationSeconds) * time.Second})
					tw.AppendSeparator()
				}
				tw.Render()
				return nil
			})
		},
	}
}

func providerUpdateCmd() *cobra.Command {
	var pf profileFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update your provider profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProvider(ctx, engine.ProviderUpdateOptions{ID: args[0], ActorID: actorID(), Profile: pf.update(cmd)})
				if err != nil {
					return err
				}
				return printJSONOrTable(p.View())
			})
		},
	}
	pf.register(cmd)
	return cmd
}

func providerDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete your provider profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteProvider(ctx, args[0], actorID())
			})
		},
	}
}

func providerWorkCmd() *cobra.Command {
	w := &cobra.Command{Use: "work", Short: "Manage a provider's works"}

	var wf workFlags
	add := &cobra.Command{
		Use:   "add <provider-id>",
		Short: "Price a catalog work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := wf.input()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.AddProviderWork(ctx, args[0], actorID(), in)
				if err != nil {
					return err
				}
				return printJSONOrTable(p.View())
			})
		},
	}
	wf.register(add)

	remove := &cobra.Command{
		Use:   "remove <provider-id> <provider-work-id>",
		Short: "Stop offering a work",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RemoveProviderWork(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(p.View())
			})
		},
	}

	minCost := &cobra.Command{
		Use:   "min-cost <provider-id> <provider-work-id> <amount>",
		Short: "Change the minimum charge of a work",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ChangeProviderWorkMinCost(ctx, args[0], args[1], actorID(), amount)
				if err != nil {
					return err
				}
				return printJSONOrTable(p.View())
			})
		},
	}

	w.AddCommand(add, remove, minCost)
	return w
}

func providerJobCmd() *cobra.Command {
	j := &cobra.Command{Use: "job", Short: "Manage priced jobs of a provider work"}

	add := &cobra.Command{
		Use:   "add <provider-id> <provider-work-id> <JOB_ID=COST@DURATION>",
		Short: "Price another job of the work",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := parseJobFlag(args[2])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.AddProviderWorkJob(ctx, args[0], args[1], actorID(), in)
				if err != nil {
					return err
				}
				return printJSONOrTable(p.View())
			})
		},
	}

	var cost string
	var duration time.Duration
	update := &cobra.Command{
		Use:   "update <provider-id> <provider-work-id> <provider-job-id>",
		Short: "Change the cost and duration of a priced job",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(cost)
			if err != nil {
				return fmt.Errorf("--cost: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProviderWorkJob(ctx, args[0], args[1], actorID(), engine.ProviderWorkJobInput{
					ID:                args[2],
					Cost:              amount,
					EstimatedDuration: duration,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p.View())
			})
		},
	}
	update.Flags().StringVar(&cost, "cost", "", "job cost")
	update.Flags().DurationVar(&duration, "duration", 0, "estimated duration, e.g. 90m")
	_ = update.MarkFlagRequired("cost")
	_ = update.MarkFlagRequired("duration")

	remove := &cobra.Command{
		Use:   "remove <provider-id> <provider-work-id> <provider-job-id>",
		Short: "Remove a priced job",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RemoveProviderWorkJob(ctx, args[0], args[1], args[2], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(p.View())
			})
		},
	}

	j.AddCommand(add, update, remove)
	return j
}
