package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"

	"servicehub/internal/domain"
	"servicehub/internal/engine"
	"servicehub/internal/repo"
)

type bodyOutput[T any] struct {
	Body T `json:"body"`
}

func respond[T any](body T) *bodyOutput[T] {
	return &bodyOutput[T]{Body: body}
}

type idPath struct {
	ID string `path:"id"`
}

func registerClients(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-client",
		Method:        http.MethodPost,
		Path:          "/clients",
		Summary:       "Register a client",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateClientRequest `json:"body"`
	}) (*bodyOutput[domain.ClientView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		user, err := input.Body.UserRequest.input()
		if err != nil {
			return nil, handleError(err)
		}
		c, err := e.CreateClient(ctx, engine.ClientCreateOptions{
			User:    user,
			Address: input.Body.Address.input(),
			ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c.View()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-clients",
		Method:      http.MethodGet,
		Path:        "/clients",
		Summary:     "List clients",
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[listResponse[domain.ClientView]], error) {
		items, err := e.ListClients(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(listResponse[domain.ClientView]{Items: clientViews(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-client",
		Method:      http.MethodGet,
		Path:        "/clients/{id}",
		Summary:     "Get a client",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*bodyOutput[domain.ClientView], error) {
		c, err := e.GetClient(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c.View()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-client",
		Method:      http.MethodPatch,
		Path:        "/clients/{id}",
		Summary:     "Update a client profile or address",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateClientRequest `json:"body"`
	}) (*bodyOutput[domain.ClientView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.ClientUpdateOptions{
			ID:      input.ID,
			ActorID: actorID,
			Profile: input.Body.ProfileUpdateRequest.input(),
		}
		if input.Body.Address != nil {
			addr := input.Body.Address.input()
			opts.Address = &addr
		}
		c, err := e.UpdateClient(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c.View()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-client",
		Method:      http.MethodDelete,
		Path:        "/clients/{id}",
		Summary:     "Delete a client",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteClient(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerProviders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-provider",
		Method:        http.MethodPost,
		Path:          "/providers",
		Summary:       "Register a provider with its priced works",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateProviderRequest `json:"body"`
	}) (*bodyOutput[domain.ProviderView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		user, err := input.Body.UserRequest.input()
		if err != nil {
			return nil, handleError(err)
		}
		opts := engine.ProviderCreateOptions{User: user, ActorID: actorID}
		for _, w := range input.Body.Works {
			opts.Works = append(opts.Works, w.input())
		}
		p, err := e.CreateProvider(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p.View()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-providers",
		Method:      http.MethodGet,
		Path:        "/providers",
		Summary:     "List providers",
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[listResponse[domain.ProviderView]], error) {
		items, err := e.ListProviders(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(listResponse[domain.ProviderView]{Items: providerViews(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-provider",
		Method:      http.MethodGet,
		Path:        "/providers/{id}",
		Summary:     "Get a provider",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*bodyOutput[domain.ProviderView], error) {
		p, err := e.GetProvider(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p.View()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-provider",
		Method:      http.MethodPatch,
		Path:        "/providers/{id}",
		Summary:     "Update a provider profile",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body ProfileUpdateRequest `json:"body"`
	}) (*bodyOutput[domain.ProviderView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProvider(ctx, engine.ProviderUpdateOptions{
			ID:      input.ID,
			ActorID: actorID,
			Profile: input.Body.input(),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p.View()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-provider",
		Method:      http.MethodDelete,
		Path:        "/providers/{id}",
		Summary:     "Delete a provider",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProvider(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-provider-work",
		Method:        http.MethodPost,
		Path:          "/providers/{id}/works",
		Summary:       "Price a catalog work",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body ProviderWorkRequest `json:"body"`
	}) (*bodyOutput[domain.ProviderView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.AddProviderWork(ctx, input.ID, actorID, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p.View()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-provider-work",
		Method:      http.MethodPatch,
		Path:        "/providers/{id}/works/{workID}",
		Summary:     "Change the minimum cost of a priced work",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID     string                    `path:"id"`
		WorkID string                    `path:"workID"`
		Body   UpdateProviderWorkRequest `json:"body"`
	}) (*bodyOutput[domain.ProviderView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.ChangeProviderWorkMinCost(ctx, input.ID, input.WorkID, actorID, input.Body.MinCost)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p.View()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-provider-work",
		Method:      http.MethodDelete,
		Path:        "/providers/{id}/works/{workID}",
		Summary:     "Stop offering a priced work",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		WorkID string `path:"workID"`
	}) (*bodyOutput[domain.ProviderView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.RemoveProviderWork(ctx, input.ID, input.WorkID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p.View()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-provider-work-job",
		Method:        http.MethodPost,
		Path:          "/providers/{id}/works/{workID}/jobs",
		Summary:       "Price a job of an offered work",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID     string                 `path:"id"`
		WorkID string                 `path:"workID"`
		Body   ProviderWorkJobRequest `json:"body"`
	}) (*bodyOutput[domain.ProviderView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.AddProviderWorkJob(ctx, input.ID, input.WorkID, actorID, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p.View()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-provider-work-job",
		Method:      http.MethodPatch,
		Path:        "/providers/{id}/works/{workID}/jobs/{jobID}",
		Summary:     "Reprice a job",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID     string                       `path:"id"`
		WorkID string                       `path:"workID"`
		JobID  string                       `path:"jobID"`
		Body   UpdateProviderWorkJobRequest `json:"body"`
	}) (*bodyOutput[domain.ProviderView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProviderWorkJob(ctx, input.ID, input.WorkID, actorID, engine.ProviderWorkJobInput{
			ID:                input.JobID,
			Cost:              input.Body.Cost,
			EstimatedDuration: time.Duration(input.Body.EstimatedDurationSeconds) * time.Second,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p.View()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-provider-work-job",
		Method:      http.MethodDelete,
		Path:        "/providers/{id}/works/{workID}/jobs/{jobID}",
		Summary:     "Stop offering a job",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		WorkID string `path:"workID"`
		JobID  string `path:"jobID"`
	}) (*bodyOutput[domain.ProviderView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.RemoveProviderWorkJob(ctx, input.ID, input.WorkID, input.JobID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p.View()), nil
	})
}

func registerWorks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-work",
		Method:        http.MethodPost,
		Path:          "/works",
		Summary:       "Add a work to the catalog",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkRequest `json:"body"`
	}) (*bodyOutput[domain.WorkView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.WorkCreateOptions{ID: input.Body.ID, Name: input.Body.Name, ActorID: actorID}
		for _, j := range input.Body.Jobs {
			opts.Jobs = append(opts.Jobs, engine.WorkJobInput{ID: j.ID, Name: j.Name})
		}
		w, err := e.CreateWork(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(w.View()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-works",
		Method:      http.MethodGet,
		Path:        "/works",
		Summary:     "List the catalog",
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[listResponse[domain.WorkView]], error) {
		items, err := e.ListWorks(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(listResponse[domain.WorkView]{Items: workViews(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work",
		Method:      http.MethodGet,
		Path:        "/works/{id}",
		Summary:     "Get a catalog work",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*bodyOutput[domain.WorkView], error) {
		w, err := e.GetWork(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(w.View()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-work-job",
		Method:        http.MethodPost,
		Path:          "/works/{id}/jobs",
		Summary:       "Add a job to a catalog work",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body WorkJobRequest `json:"body"`
	}) (*bodyOutput[domain.WorkView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.AddWorkJob(ctx, input.ID, actorID, engine.WorkJobInput{ID: input.Body.ID, Name: input.Body.Name})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(w.View()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-work-job",
		Method:      http.MethodDelete,
		Path:        "/works/{id}/jobs/{jobID}",
		Summary:     "Remove a job from a catalog work",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		JobID string `path:"jobID"`
	}) (*bodyOutput[domain.WorkView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.RemoveWorkJob(ctx, input.ID, input.JobID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(w.View()), nil
	})
}

func registerRequests(api huma.API, e engine.Engine, log zerolog.Logger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-request",
		Method:        http.MethodPost,
		Path:          "/requests",
		Summary:       "Open a service request",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateServiceRequest `json:"body"`
	}) (*bodyOutput[RequestResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		created, err := e.CreateRequest(ctx, engine.RequestCreateOptions{
			ID:             input.Body.ID,
			ClientID:       input.Body.ClientID,
			ProviderID:     input.Body.ProviderID,
			ProviderWorkID: input.Body.ProviderWorkID,
			ScheduledAt:    input.Body.ScheduledAt,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, failed(log, "create-request", err)
		}
		return respond(requestResponse(created, actorID)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requests",
		Method:      http.MethodGet,
		Path:        "/requests",
		Summary:     "List the caller's service requests",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ClientID   string `query:"client_id"`
		ProviderID string `query:"provider_id"`
		Status     string `query:"status" doc:"CREATED, SCHEDULED, RESCHEDULED, CANCELLED, CONFIRMED, REFUSED, STARTED, FINISHED or RATED"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*bodyOutput[paginatedRequests], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.ListRequests(ctx, actorID, repo.RequestFilters{
			ClientID:        input.ClientID,
			ProviderID:      input.ProviderID,
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: cursorTS,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, failed(log, "list-requests", err)
		}
		resp := paginatedRequests{Items: []domain.RequestSummary{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return respond(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-request",
		Method:      http.MethodGet,
		Path:        "/requests/{id}",
		Summary:     "Get a service request",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*bodyOutput[RequestResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sr, err := e.GetRequest(ctx, input.ID, actorID)
		if err != nil {
			return nil, failed(log, "get-request", err)
		}
		return respond(requestResponse(sr, actorID)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-logs",
		Method:      http.MethodGet,
		Path:        "/requests/{id}/logs",
		Summary:     "Read the log trail of a service request",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*bodyOutput[listResponse[domain.LogView]], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		logs, err := e.Logs(ctx, input.ID, actorID)
		if err != nil {
			return nil, failed(log, "request-logs", err)
		}
		return respond(listResponse[domain.LogView]{Items: logViews(logs)}), nil
	})

	idOnly := func(in *idPath) engine.TransitionOptions {
		return engine.TransitionOptions{RequestID: in.ID}
	}
	registerTransition(api, e, log, domain.ActionSchedule, "Schedule a created request", idOnly)
	registerTransition(api, e, log, domain.ActionConfirm, "Confirm a scheduled request", idOnly)
	registerTransition(api, e, log, domain.ActionRefuse, "Refuse a scheduled request", idOnly)
	registerTransition(api, e, log, domain.ActionStart, "Start a confirmed request", idOnly)
	registerTransition(api, e, log, domain.ActionFinish, "Mark the caller's side as finished", idOnly)
	registerTransition(api, e, log, domain.ActionReschedule, "Move the scheduled time",
		func(in *struct {
			ID   string            `path:"id"`
			Body RescheduleRequest `json:"body"`
		}) engine.TransitionOptions {
			return engine.TransitionOptions{RequestID: in.ID, ScheduledAt: in.Body.ScheduledAt}
		})
	registerTransition(api, e, log, domain.ActionCancel, "Cancel a request",
		func(in *struct {
			ID   string         `path:"id"`
			Body *CancelRequest `json:"body"`
		}) engine.TransitionOptions {
			opts := engine.TransitionOptions{RequestID: in.ID}
			if in.Body != nil {
				opts.Reason = in.Body.Reason
			}
			return opts
		})
	registerTransition(api, e, log, domain.ActionRate, "Rate the other party",
		func(in *struct {
			ID   string      `path:"id"`
			Body RateRequest `json:"body"`
		}) engine.TransitionOptions {
			return engine.TransitionOptions{RequestID: in.ID, Rating: in.Body.Rating}
		})
}

// registerTransition exposes one lifecycle action as POST /requests/{id}/<action>.
func registerTransition[I any](api huma.API, e engine.Engine, log zerolog.Logger, action domain.Action, summary string, opts func(*I) engine.TransitionOptions) {
	op := "request-" + string(action)
	huma.Register(api, huma.Operation{
		OperationID: op,
		Method:      http.MethodPost,
		Path:        "/requests/{id}/" + string(action),
		Summary:     summary,
		Tags:        []string{"lifecycle"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *I) (*bodyOutput[RequestResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o := opts(input)
		o.Action = action
		o.ActorID = actorID
		sr, err := e.Transition(ctx, o)
		if err != nil {
			return nil, failed(log, op, err)
		}
		return respond(requestResponse(sr, actorID)), nil
	})
}
