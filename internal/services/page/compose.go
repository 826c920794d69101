package page

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/galihcitta/confras/internal/models"
	"github.com/galihcitta/confras/internal/repository"
)

const DefaultTemplate = "event.html"

// Classification partitions a guest list by status. Anything that is not
// CONFIRMED counts as pending.
type Classification struct {
	Confirmed      []models.Guest
	Pending        []models.Guest
	ConfirmedCount int
	LimitReached   bool
}

func Classify(guests []models.Guest, guestLimit int) Classification {
	c := Classification{
		Confirmed: []models.Guest{},
		Pending:   []models.Guest{},
	}
	for _, g := range guests {
		if g.IsConfirmed() {
			c.Confirmed = append(c.Confirmed, g)
		} else {
			c.Pending = append(c.Pending, g)
		}
	}
	c.ConfirmedCount = len(c.Confirmed)
	c.LimitReached = c.ConfirmedCount >= guestLimit
	return c
}

// ConfirmedCount counts the tenant's confirmed guests. Unlike the page
// fetch, a backend failure is returned.
func (s *Service) ConfirmedCount(ctx context.Context, tenantID models.ID) (int, error) {
	guests, err := fetch[models.Guest](ctx, s.store, tenantID, models.CollectionGuests, repository.Query{
		Filters: []repository.Filter{{Field: "status", Value: string(models.GuestConfirmed)}},
	})
	if err != nil {
		return 0, err
	}
	return Classify(guests, 0).ConfirmedCount, nil
}

// Compose fetches the tenant's collections concurrently and builds the page
// view-model. The full guest list is only included for admin views.
func (s *Service) Compose(ctx context.Context, tenant *models.Tenant, admin bool) (*models.EventPage, error) {
	var (
		products []models.Product
		sections []models.Section
		guests   []models.Guest
		settings []models.VaquinhaSettings
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		products = Fetch[models.Product](gctx, s.store, tenant.ID, models.CollectionProducts, repository.Query{}, s.logger)
		return nil
	})
	g.Go(func() error {
		sections = Fetch[models.Section](gctx, s.store, tenant.ID, models.CollectionSections, repository.Query{}, s.logger)
		return nil
	})
	g.Go(func() error {
		guests = Fetch[models.Guest](gctx, s.store, tenant.ID, models.CollectionGuests, repository.Query{}, s.logger)
		return nil
	})
	g.Go(func() error {
		settings = Fetch[models.VaquinhaSettings](gctx, s.store, tenant.ID, models.CollectionSettings, repository.Query{Limit: 1}, s.logger)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	SortSections(sections)
	classes := Classify(guests, tenant.GuestLimit)

	page := &models.EventPage{
		Tenant:          tenant,
		Products:        products,
		Sections:        sections,
		ConfirmedGuests: classes.Confirmed,
		ConfirmedCount:  classes.ConfirmedCount,
		IsLimitReached:  classes.LimitReached,
		Template:        TemplateName(tenant),
		Admin:           admin,
	}
	if len(settings) > 0 {
		page.Settings = settings[0]
	}
	if admin {
		page.Guests = guests
		page.PendingGuests = classes.Pending
	}
	return page, nil
}

// SortSections orders sections by their sort index. Sections without one
// keep their relative order and go last.
func SortSections(sections []models.Section) {
	sort.SliceStable(sections, func(i, j int) bool {
		a, b := sections[i].Sort, sections[j].Sort
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
}

// TemplateName picks the tenant's template, falling back to the default.
// Whether it exists is only known at render time.
func TemplateName(tenant *models.Tenant) string {
	name := strings.TrimSpace(tenant.Template)
	if name == "" {
		return DefaultTemplate
	}
	if !strings.HasSuffix(name, ".html") {
		name += ".html"
	}
	return name
}
