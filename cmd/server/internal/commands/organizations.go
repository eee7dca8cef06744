package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/outbox"
)

type OrganizationsCmd struct {
	SetPlan OrganizationsSetPlanCmd `cmd:"" name:"set-plan" help:"Change the plan and member quota of an organization"`
}

type OrganizationsSetPlanCmd struct {
	Slug     string `arg:"" help:"slug of the organization"`
	Plan     string `help:"plan name" required:""`
	MaxUsers int    `help:"member quota, 0 is unlimited" default:"0"`

	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
	Sync          SyncFlags          `embed:"" prefix:"sync-"`
}

func (c *OrganizationsSetPlanCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogger(globals)

	targets, err := c.Sync.load()
	if err != nil {
		return err
	}

	b, err := openPostgres(ctx, log, &c.PostgresStore, outbox.NewDispatcher(targets.Registry(), targets.Lanes))
	if err != nil {
		return err
	}
	defer b.close()

	org, err := setPlan(ctx, b, b.services(), c.Slug, c.Plan, c.MaxUsers)
	if err != nil {
		return fmt.Errorf("failed to set plan of %s: %w", c.Slug, err)
	}

	fmt.Printf("%s\t%s\t%d\n", org.Slug, org.Plan, org.MaxUsers)
	return nil
}

func setPlan(ctx context.Context, b *backend, svc *services, slug, plan string, maxUsers int) (*models.Organization, error) {
	org, err := b.organizations.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return svc.organizations.SetPlan(ctx, org.OrgID, plan, maxUsers)
}
