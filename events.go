package sharekit

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// MutationKind names the mutator that produced an event.
type MutationKind string

const (
	MutationShare     MutationKind = "share"
	MutationUnshare   MutationKind = "unshare"
	MutationUndoShare MutationKind = "undo_share"
	MutationBootstrap MutationKind = "bootstrap_ownership"
)

// ZoneOfInfluence describes the reach of one successful mutation: which
// users and resources may see different effective privilege afterwards.
// External consumers (bucket-policy sync, search-index refresh) subscribe to
// these; the engine defines the shape only.
type ZoneOfInfluence struct {
	ID        string        `json:"id"`
	Mutation  MutationKind  `json:"mutation"`
	Pair      Pair          `json:"pair"`
	Privilege PrivilegeCode `json:"privilege"`
	ActorID   string        `json:"actor_id"`
	RequestID string        `json:"request_id,omitempty"`
	At        time.Time     `json:"at"`

	// UserIDs are the users whose effective privilege may have changed.
	UserIDs []string `json:"user_ids"`

	// ResourceIDs are the resources whose audience may have changed.
	ResourceIDs []string `json:"resource_ids"`
}

// Notifier consumes zone-of-influence events after successful mutations.
// Delivery is best-effort and happens outside the mutator's transaction;
// a slow or failing notifier never rolls back a committed grant.
type Notifier interface {
	Notify(ctx context.Context, event ZoneOfInfluence)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event ZoneOfInfluence)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event ZoneOfInfluence) {
	f(ctx, event)
}

// noopNotifier drops all events. Used when no notifier is configured.
type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, ZoneOfInfluence) {}

// newZoneOfInfluence builds the event for one mutation, expanding the
// subject side to user IDs and the object side to resource IDs.
func newZoneOfInfluence(ctx context.Context, store *Store, mutation MutationKind, actorID string, p Pair, privilege PrivilegeCode, at time.Time) (ZoneOfInfluence, error) {
	event := ZoneOfInfluence{
		ID:        uuid.NewString(),
		Mutation:  mutation,
		Pair:      p,
		Privilege: privilege,
		ActorID:   actorID,
		RequestID: GetRequestID(ctx),
		At:        at,
	}

	users, err := affectedUsers(ctx, store, p)
	if err != nil {
		return event, err
	}
	event.UserIDs = users

	resources, err := affectedResources(ctx, store, p)
	if err != nil {
		return event, err
	}
	event.ResourceIDs = resources
	return event, nil
}

// affectedUsers expands the pair's subject to the set of users whose
// effective privilege the mutation can change.
func affectedUsers(ctx context.Context, store *Store, p Pair) ([]string, error) {
	set := make(map[string]struct{})
	switch p.Kind.Subject() {
	case SubjectUser:
		set[p.SubjectID] = struct{}{}
	case SubjectGroup:
		rows, err := store.ListByObject(ctx, PairUserGroup, p.SubjectID)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			set[row.SubjectID] = struct{}{}
		}
	case SubjectCommunity:
		groups, err := store.listCommunityGroups(ctx, []string{p.SubjectID})
		if err != nil {
			return nil, err
		}
		for _, m := range groups {
			rows, err := store.ListByObject(ctx, PairUserGroup, m.GroupID)
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				set[row.SubjectID] = struct{}{}
			}
		}
	}

	// Mutating group or community membership also affects members of the
	// object side: their community-mediated reach changes.
	if p.Kind == PairGroupCommunity {
		groups, err := store.listCommunityGroups(ctx, []string{p.ObjectID})
		if err != nil {
			return nil, err
		}
		for _, m := range groups {
			rows, err := store.ListByObject(ctx, PairUserGroup, m.GroupID)
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				set[row.SubjectID] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// affectedResources expands the pair's object to the set of resources whose
// audience the mutation can change.
func affectedResources(ctx context.Context, store *Store, p Pair) ([]string, error) {
	set := make(map[string]struct{})
	switch p.Kind.Object() {
	case ObjectResource:
		set[p.ObjectID] = struct{}{}
	case ObjectGroup:
		rows, err := store.ListBySubject(ctx, PairGroupResource, p.ObjectID)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			set[row.ObjectID] = struct{}{}
		}
	case ObjectCommunity:
		groups, err := store.listCommunityGroups(ctx, []string{p.ObjectID})
		if err != nil {
			return nil, err
		}
		for _, m := range groups {
			rows, err := store.ListBySubject(ctx, PairGroupResource, m.GroupID)
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				set[row.ObjectID] = struct{}{}
			}
		}
	}

	// A group joining a community also exposes the group's resources to
	// community peers.
	if p.Kind == PairGroupCommunity {
		rows, err := store.ListBySubject(ctx, PairGroupResource, p.SubjectID)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			set[row.ObjectID] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// logNotifier logs each event at debug level. Useful as a development
// default and in tests.
type logNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a Notifier that logs events through the given
// logger, or slog.Default() when nil.
func NewLogNotifier(logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &logNotifier{logger: logger}
}

func (n *logNotifier) Notify(ctx context.Context, event ZoneOfInfluence) {
	n.logger.DebugContext(ctx, "privilege mutation",
		"event_id", event.ID,
		"mutation", string(event.Mutation),
		"pair", event.Pair.String(),
		"privilege", event.Privilege.String(),
		"actor", event.ActorID,
		"users", len(event.UserIDs),
		"resources", len(event.ResourceIDs),
	)
}
