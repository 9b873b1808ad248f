package visibility

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quarryhost/quarry/pkg/models"
)

// ProjectGetter loads project rows by id. The filter uses it on the
// version path to resolve owning projects; implementations may serve reads
// from a cache, since briefly stale project rows only risk mis-hiding, not
// a missed enforcement.
type ProjectGetter interface {
	GetProjects(ctx context.Context, ids []int64) ([]*models.Project, error)
}

// Filter evaluates visibility for batches of entities. It is a pure
// function of request-scoped inputs plus current database state; it issues
// only reads and holds no locks.
type Filter struct {
	db       *sql.DB
	projects ProjectGetter
}

// NewFilter creates a Filter backed by db. projects resolves owning
// project rows for version checks.
func NewFilter(db *sql.DB, projects ProjectGetter) *Filter {
	return &Filter{db: db, projects: projects}
}

// FilterVisibleProjectIDs returns the ids of the projects the actor may
// observe. With hideUnlisted, only searchable statuses pass the public
// gate (listing surfaces); otherwise anything not explicitly hidden passes
// (direct-link access). Hidden projects are then checked for enlistment in
// one batch, for authenticated actors only. No ordering guarantee, no
// duplicates.
func (f *Filter) FilterVisibleProjectIDs(ctx context.Context, projects []*models.Project, actor *models.User, hideUnlisted bool) ([]int64, error) {
	visible := make([]int64, 0, len(projects))
	var check []*models.Project

	for _, project := range projects {
		public := !project.Status.IsHidden()
		if hideUnlisted {
			public = project.Status.IsSearchable()
		}
		if public || actor.IsMod() {
			visible = append(visible, project.ID)
		} else if actor != nil {
			check = append(check, project)
		}
	}

	if len(check) > 0 {
		enlisted, err := f.FilterEnlistedProjectIDs(ctx, check, actor)
		if err != nil {
			return nil, err
		}
		visible = append(visible, enlisted...)
	}

	return visible, nil
}

// IsVisibleProject reports whether the actor may observe a single project.
// Delegates to the batch form so singular and batch results cannot drift.
func (f *Filter) IsVisibleProject(ctx context.Context, project *models.Project, actor *models.User, hideUnlisted bool) (bool, error) {
	ids, err := f.FilterVisibleProjectIDs(ctx, []*models.Project{project}, actor, hideUnlisted)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// IsTeamMemberProject reports whether the actor has internal access to the
// project through its team or owning organization.
func (f *Filter) IsTeamMemberProject(ctx context.Context, project *models.Project, actor *models.User) (bool, error) {
	ids, err := f.FilterEnlistedProjectIDs(ctx, []*models.Project{project}, actor)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// FilterVisibleVersionIDs returns the ids of the versions the actor may
// observe. A version is visible iff it is not hidden and its owning
// project is visible, or the actor is a moderator, or the actor is
// enlisted on the owning project's team. A public version under a hidden
// project therefore stays hidden to outsiders.
func (f *Filter) FilterVisibleVersionIDs(ctx context.Context, versions []*models.Version, actor *models.User) ([]int64, error) {
	projectIDs := make([]int64, 0, len(versions))
	seen := make(map[int64]struct{}, len(versions))
	for _, v := range versions {
		if _, ok := seen[v.ProjectID]; !ok {
			seen[v.ProjectID] = struct{}{}
			projectIDs = append(projectIDs, v.ProjectID)
		}
	}

	owners, err := f.projects.GetProjects(ctx, projectIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load owning projects: %w", err)
	}

	// Loose mode on purpose: a version reached by direct link should not
	// vanish just because its project is unlisted.
	visibleProjects, err := f.FilterVisibleProjectIDs(ctx, owners, actor, false)
	if err != nil {
		return nil, err
	}
	visibleProjectSet := toSet(visibleProjects)

	enlisted, err := f.FilterEnlistedVersionIDs(ctx, versions, actor)
	if err != nil {
		return nil, err
	}
	enlistedSet := toSet(enlisted)

	visible := make([]int64, 0, len(versions))
	for _, v := range versions {
		_, projectVisible := visibleProjectSet[v.ProjectID]
		_, versionEnlisted := enlistedSet[v.ID]
		if (!v.Status.IsHidden() && projectVisible) || actor.IsMod() || versionEnlisted {
			visible = append(visible, v.ID)
		}
	}

	return visible, nil
}

// IsVisibleVersion reports whether the actor may observe a single version.
func (f *Filter) IsVisibleVersion(ctx context.Context, version *models.Version, actor *models.User) (bool, error) {
	ids, err := f.FilterVisibleVersionIDs(ctx, []*models.Version{version}, actor)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// IsTeamMemberVersion reports whether the actor has internal access to the
// version's owning project.
func (f *Filter) IsTeamMemberVersion(ctx context.Context, version *models.Version, actor *models.User) (bool, error) {
	ids, err := f.FilterEnlistedVersionIDs(ctx, []*models.Version{version}, actor)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// IsVisibleCollection reports whether the actor may observe a collection.
// Collections are simple: not hidden, or the actor is the owner or a mod.
// No team concept, no queries.
func IsVisibleCollection(collection *models.Collection, actor *models.User) bool {
	if !collection.Status.IsHidden() {
		return true
	}
	return actor.IsMod() || (actor != nil && actor.ID == collection.UserID)
}

// FilterVisibleCollections returns the subset of collections the actor may
// observe, preserving input order.
func FilterVisibleCollections(collections []*models.Collection, actor *models.User) []*models.Collection {
	visible := make([]*models.Collection, 0, len(collections))
	for _, c := range collections {
		if IsVisibleCollection(c, actor) {
			visible = append(visible, c)
		}
	}
	return visible
}

// IsVisibleOrganization reports whether the actor may observe an
// organization. Organizations with no public purpose are hidden to reduce
// clutter: visible iff the org owns at least one searchable project, or
// has more than one accepted member, or the viewer is a team member (any
// acceptance state) or a moderator.
func (f *Filter) IsVisibleOrganization(ctx context.Context, org *models.Organization, actor *models.User) (bool, error) {
	if actor.IsMod() {
		return true, nil
	}

	var hasSearchable bool
	err := f.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM projects
			WHERE organization_id = $1 AND status IN ('approved', 'archived')
		)`, org.ID).Scan(&hasSearchable)
	if err != nil {
		return false, fmt.Errorf("failed to check organization projects: %w", err)
	}
	if hasSearchable {
		return true, nil
	}

	var viewerID int64
	if actor != nil {
		viewerID = actor.ID
	}

	// Acceptance matters for the public-purpose count but not for the
	// viewer's own membership; an invited viewer already knows the org.
	var acceptedCount int
	var viewerIsMember bool
	err = f.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE accepted),
		       COALESCE(BOOL_OR(user_id = $2), FALSE)
		FROM team_members
		WHERE team_id = $1`, org.TeamID, viewerID).Scan(&acceptedCount, &viewerIsMember)
	if err != nil {
		return false, fmt.Errorf("failed to check organization members: %w", err)
	}

	return acceptedCount > 1 || (actor != nil && viewerIsMember), nil
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
