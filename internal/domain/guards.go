package domain

// rule describes who may perform a transition and from which stages.
type rule struct {
	roles []Role
	from  []Status
	to    Status
	// once is scoped to the acting user unless global is set.
	once   bool
	global bool
	// notBeforeSchedule requires the clock to have reached the scheduled time.
	notBeforeSchedule bool
}

var lifecycle = map[Action]rule{
	ActionSchedule: {
		roles: []Role{RoleClient},
		from:  []Status{StatusCreated},
		to:    StatusScheduled,
	},
	ActionReschedule: {
		roles: []Role{RoleClient},
		from:  []Status{StatusScheduled, StatusRescheduled},
		to:    StatusRescheduled,
	},
	ActionCancel: {
		roles:  []Role{RoleClient},
		from:   []Status{StatusScheduled, StatusRescheduled, StatusConfirmed},
		to:     StatusCancelled,
		once:   true,
		global: true,
	},
	ActionConfirm: {
		roles: []Role{RoleProvider},
		from:  []Status{StatusScheduled, StatusRescheduled},
		to:    StatusConfirmed,
	},
	ActionRefuse: {
		roles: []Role{RoleProvider},
		from:  []Status{StatusScheduled, StatusRescheduled},
		to:    StatusRefused,
	},
	ActionStart: {
		roles:             []Role{RoleProvider},
		from:              []Status{StatusConfirmed},
		to:                StatusStarted,
		notBeforeSchedule: true,
	},
	ActionFinish: {
		roles: []Role{RoleClient, RoleProvider},
		from:  []Status{StatusStarted, StatusFinished},
		to:    StatusFinished,
		once:  true,
	},
	ActionRate: {
		roles: []Role{RoleClient, RoleProvider},
		from:  []Status{StatusFinished, StatusRated},
		to:    StatusRated,
		once:  true,
	},
}

// Allows reports whether the lifecycle permits moving from one stage to
// another through action, ignoring actor and time checks.
func Allows(action Action, from, to Status) bool {
	ru, ok := lifecycle[action]
	if !ok || ru.to != to {
		return false
	}
	return containsStatus(ru.from, from)
}

// ActionsFor lists, in lifecycle order, the transitions a role may ever perform.
func ActionsFor(role Role) []Action {
	var out []Action
	for _, a := range Actions {
		for _, allowed := range lifecycle[a].roles {
			if allowed == role {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// precondition is one link of a transition's check chain.
type precondition func(r *ServiceRequest, by *User) error

// chain returns the checks for a rule in the order they must run: actor,
// repetition, stage, time.
func (ru rule) chain(action Action) []precondition {
	checks := []precondition{actorIs(action, ru.roles)}
	if ru.once {
		checks = append(checks, notPerformed(action, ru.to, ru.global))
	}
	checks = append(checks, stageIn(action, ru.from))
	if ru.notBeforeSchedule {
		checks = append(checks, notBeforeSchedule(action))
	}
	return checks
}

// check must be called with r.mu held.
func (r *ServiceRequest) check(action Action, by *User) error {
	ru, ok := lifecycle[action]
	if !ok {
		return ValidationError{Field: "action", Reason: "unknown action " + string(action)}
	}
	for _, pre := range ru.chain(action) {
		if err := pre(r, by); err != nil {
			return err
		}
	}
	return nil
}

func actorIs(action Action, roles []Role) precondition {
	return func(r *ServiceRequest, by *User) error {
		role, ok := r.RoleOf(by)
		if ok {
			for _, allowed := range roles {
				if role == allowed {
					return nil
				}
			}
		}
		actorID := ""
		if by != nil {
			actorID = by.ID
		}
		return UnauthorizedActorError{Action: action, ActorID: actorID, Allowed: roles}
	}
}

func notPerformed(action Action, status Status, global bool) precondition {
	return func(r *ServiceRequest, by *User) error {
		if global {
			if r.logs.Exists(status, nil) {
				return AlreadyPerformedError{Action: action}
			}
			return nil
		}
		if r.logs.Exists(status, by) {
			return AlreadyPerformedError{Action: action, ActorID: by.ID}
		}
		return nil
	}
}

func stageIn(action Action, allowed []Status) precondition {
	return func(r *ServiceRequest, _ *User) error {
		cur, err := r.logs.Current()
		if err != nil {
			return err
		}
		if !containsStatus(allowed, cur.Status) {
			return InvalidStageError{Action: action, Current: cur.Status, Allowed: allowed}
		}
		return nil
	}
}

func notBeforeSchedule(action Action) precondition {
	return func(r *ServiceRequest, _ *User) error {
		now := r.now()
		if now.Before(r.scheduledAt) {
			return PrematureActionError{Action: action, ScheduledAt: r.scheduledAt, Now: now}
		}
		return nil
	}
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
