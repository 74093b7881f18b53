package app_test

import (
	"context"
	"errors"
	"testing"

	"dbkompare-functions/internal/app"
	"dbkompare-functions/internal/domain"
)

func TestCreatePlansDefaultsAndListing(t *testing.T) {
	e := newEnv(t)
	svc := app.NewPlanService(e.store, e.log)
	ctx := context.Background()

	created, err := svc.CreatePlans(ctx, nil)
	if err != nil {
		t.Fatalf("create defaults: %v", err)
	}
	if len(created) != len(app.DefaultPlans) {
		t.Fatalf("created %d plans", len(created))
	}
	ids := map[string]bool{}
	for _, p := range created {
		if p.ID == "" || ids[p.ID] {
			t.Fatalf("plan ids must be unique and set: %q", p.ID)
		}
		ids[p.ID] = true
	}

	if _, err := svc.UpdatePlanStatus(ctx, app.UpdatePlanStatusRequest{PlanID: created[4].ID, Status: domain.StatusInactive}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	active, err := svc.ListPlans(ctx, domain.StatusActive)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != len(app.DefaultPlans)-1 {
		t.Fatalf("active plans = %d", len(active))
	}
	for i := 1; i < len(active); i++ {
		if active[i].Price < active[i-1].Price {
			t.Fatalf("plans not ordered by price")
		}
	}
	all, err := svc.ListPlans(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != len(app.DefaultPlans) {
		t.Fatalf("all plans = %d", len(all))
	}
}

func TestCreatePlansValidation(t *testing.T) {
	e := newEnv(t)
	svc := app.NewPlanService(e.store, e.log)
	ctx := context.Background()

	if _, err := svc.CreatePlans(ctx, []app.PlanInput{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty list, got %v", err)
	}
	_, err := svc.CreatePlans(ctx, []app.PlanInput{
		{Name: "Good", Price: 10, CertificationsUnlocked: 1},
		{Name: "  ", Price: 10},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
	all, _ := e.store.ListPlans(ctx, "")
	if len(all) != 0 {
		t.Fatalf("invalid batch must write nothing, found %d plans", len(all))
	}

	plans, err := svc.CreatePlans(ctx, []app.PlanInput{{Name: " Custom ", Price: 5, CertificationsUnlocked: 1, Features: []string{" fast "}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if plans[0].Name != "Custom" || plans[0].Status != domain.StatusActive || plans[0].Features[0] != "fast" {
		t.Fatalf("unexpected plan %+v", plans[0])
	}
}

func TestPlanLookups(t *testing.T) {
	e := newEnv(t)
	svc := app.NewPlanService(e.store, e.log)
	ctx := context.Background()

	if _, err := svc.ListPlans(ctx, "ARCHIVED"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for status, got %v", err)
	}
	if _, err := svc.GetPlan(ctx, ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for id, got %v", err)
	}
	if _, err := svc.GetPlan(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.UpdatePlanStatus(ctx, app.UpdatePlanStatusRequest{PlanID: "missing", Status: domain.StatusActive}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
	if _, err := svc.UpdatePlanStatus(ctx, app.UpdatePlanStatusRequest{PlanID: "p", Status: "GONE"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for status, got %v", err)
	}
}
