package visibility

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/quarryhost/quarry/pkg/models"
)

// FilterEnlistedProjectIDs returns the ids of the projects the actor has
// internal access to: membership of the project's own team, or membership
// of the team of the organization that owns it. Anonymous actors have no
// enlistment. Acceptance state is not checked; an invited member is
// already enlisted.
//
// The two membership branches are independent reads and run concurrently,
// keeping the round-trip bound at O(1) per batch however large the input.
// A project satisfying both branches appears once.
func (f *Filter) FilterEnlistedProjectIDs(ctx context.Context, projects []*models.Project, actor *models.User) ([]int64, error) {
	if actor == nil {
		return nil, nil
	}

	teamIDs := make([]int64, 0, len(projects))
	orgIDs := make([]int64, 0)
	for _, p := range projects {
		teamIDs = append(teamIDs, p.TeamID)
		if p.OrganizationID != nil {
			orgIDs = append(orgIDs, *p.OrganizationID)
		}
	}

	var direct, viaOrg []int64
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := f.db.QueryContext(gctx, `
			SELECT p.id
			FROM team_members tm
			INNER JOIN projects p ON p.team_id = tm.team_id
			WHERE tm.team_id = ANY($1) AND tm.user_id = $2`,
			pq.Array(teamIDs), actor.ID)
		if err != nil {
			return fmt.Errorf("failed to query direct team membership: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			direct = append(direct, id)
		}
		return rows.Err()
	})

	g.Go(func() error {
		if len(orgIDs) == 0 {
			return nil
		}
		rows, err := f.db.QueryContext(gctx, `
			SELECT p.id
			FROM team_members tm
			INNER JOIN organizations o ON o.team_id = tm.team_id
			INNER JOIN projects p ON p.organization_id = o.id
			WHERE o.id = ANY($1) AND tm.user_id = $2`,
			pq.Array(orgIDs), actor.ID)
		if err != nil {
			return fmt.Errorf("failed to query organization membership: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			viaOrg = append(viaOrg, id)
		}
		return rows.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Restrict to the requested batch and deduplicate; the organization
	// branch may return sibling projects outside the input.
	requested := make(map[int64]struct{}, len(projects))
	for _, p := range projects {
		requested[p.ID] = struct{}{}
	}

	enlisted := make([]int64, 0, len(direct)+len(viaOrg))
	seen := make(map[int64]struct{}, len(direct)+len(viaOrg))
	for _, id := range append(direct, viaOrg...) {
		if _, ok := requested[id]; !ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		enlisted = append(enlisted, id)
	}

	return enlisted, nil
}

// FilterEnlistedVersionIDs returns the ids of the versions whose owning
// project the actor is enlisted on. Enlistment on a version reduces to
// enlistment on its project; moderators are enlisted on everything.
func (f *Filter) FilterEnlistedVersionIDs(ctx context.Context, versions []*models.Version, actor *models.User) ([]int64, error) {
	if actor == nil {
		return nil, nil
	}

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

	enlistedProjects, err := f.FilterEnlistedProjectIDs(ctx, owners, actor)
	if err != nil {
		return nil, err
	}
	enlistedSet := toSet(enlistedProjects)

	enlisted := make([]int64, 0, len(versions))
	for _, v := range versions {
		if _, ok := enlistedSet[v.ProjectID]; actor.IsMod() || ok {
			enlisted = append(enlisted, v.ID)
		}
	}

	return enlisted, nil
}
