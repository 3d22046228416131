// Package storetest holds the behaviour every storage backend must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"cardstudio/core"
	"cardstudio/design"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type Store interface {
	core.DesignStore
	core.InvitationStore
	core.OrganizationStore
}

func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("DesignRoundTrip", func(t *testing.T) { testDesignRoundTrip(t, newStore(t)) })
	t.Run("DesignOwnership", func(t *testing.T) { testDesignOwnership(t, newStore(t)) })
	t.Run("DesignUpdateKeepsCreatedAt", func(t *testing.T) { testDesignUpdate(t, newStore(t)) })
	t.Run("DesignDelete", func(t *testing.T) { testDesignDelete(t, newStore(t)) })
	t.Run("InvitationLifecycle", func(t *testing.T) { testInvitationLifecycle(t, newStore(t)) })
	t.Run("InvitationConflict", func(t *testing.T) { testInvitationConflict(t, newStore(t)) })
	t.Run("MarkViewedOnce", func(t *testing.T) { testMarkViewedOnce(t, newStore(t)) })
	t.Run("MarkViewedConcurrent", func(t *testing.T) { testMarkViewedConcurrent(t, newStore(t)) })
	t.Run("Organizations", func(t *testing.T) { testOrganizations(t, newStore(t)) })
}

func sampleDesign(userID string) *core.Design {
	img := "https://cdn.example.com/bg.png"
	st := design.NewState()
	st.SetBackground("#fafafa")
	st.SetBackgroundImage(&img)
	st.AddText()
	st.AddItem(design.NewItem(core.KindVideo, "https://cdn.example.com/clip.mp4"))

	d := &core.Design{ID: design.NewID(), UserID: userID, Name: "Anniversaire"}
	if err := st.ApplyTo(d); err != nil {
		panic(err)
	}
	return d
}

func sampleInvitation(ownerID string) *core.Invitation {
	d := sampleDesign(ownerID)
	expires := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	return &core.Invitation{
		Token:      uuid.NewString(),
		OwnerID:    ownerID,
		DesignID:   d.ID,
		Recipient:  core.Recipient{Name: "Alice Martin", Email: "alice@example.com"},
		Items:      d.Items,
		Background: d.Background,
		Event:      &core.Event{Title: "Anniversaire", Date: "12 juin", Location: "Lyon"},
		Message:    "Bonjour {{prenom}}",
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		ExpiresAt:  &expires,
	}
}

func testDesignRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()
	d := sampleDesign("user-1")

	if err := s.Save(ctx, d); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if d.CreatedAt.IsZero() || d.UpdatedAt.IsZero() {
		t.Error("Save() did not set timestamps")
	}

	got, err := s.Get(ctx, "user-1", d.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != d.ID || got.UserID != "user-1" || got.Name != d.Name {
		t.Errorf("Get() metadata = %+v", got)
	}
	if len(got.Items) != 2 {
		t.Fatalf("Get() returned %d items, want 2", len(got.Items))
	}
	if got.Items[0].ID != d.Items[0].ID || got.Items[1].Kind != core.KindVideo {
		t.Errorf("items not preserved in order: %+v", got.Items)
	}
	if got.Items[1].VideoProps == nil || !got.Items[1].Muted {
		t.Errorf("video attributes lost: %+v", got.Items[1])
	}
	if got.Background.Color != "#fafafa" || got.Background.Image == nil {
		t.Errorf("background lost: %+v", got.Background)
	}

	list, err := s.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != d.ID {
		t.Fatalf("List() = %+v", list)
	}
	if len(list[0].Items) != 0 {
		t.Error("List() should not carry items")
	}
}

func testDesignOwnership(t *testing.T, s Store) {
	ctx := context.Background()
	d := sampleDesign("owner")
	if err := s.Save(ctx, d); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get(ctx, "intruder", d.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get() by another user error = %v, want ErrNotFound", err)
	}
	list, err := s.List(ctx, "intruder")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("List() for another user = %d designs", len(list))
	}
	if err := s.Delete(ctx, "intruder", d.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Delete() by another user error = %v, want ErrNotFound", err)
	}
}

func testDesignUpdate(t *testing.T, s Store) {
	ctx := context.Background()
	d := sampleDesign("user-1")
	if err := s.Save(ctx, d); err != nil {
		t.Fatal(err)
	}
	created := d.CreatedAt

	d.Name = "Mariage"
	d.Items = d.Items[:1]
	if err := s.Save(ctx, d); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "user-1", d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Mariage" || len(got.Items) != 1 {
		t.Errorf("update not stored: %+v", got)
	}
	if !got.CreatedAt.Equal(created) && got.CreatedAt.Sub(created).Abs() > time.Second {
		t.Errorf("CreatedAt changed from %v to %v", created, got.CreatedAt)
	}
}

func testDesignDelete(t *testing.T, s Store) {
	ctx := context.Background()
	d := sampleDesign("user-1")
	if err := s.Save(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "user-1", d.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "user-1", d.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "user-1", d.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func testInvitationLifecycle(t *testing.T, s Store) {
	ctx := context.Background()
	inv := sampleInvitation("owner")
	if err := s.CreateInvitation(ctx, inv); err != nil {
		t.Fatalf("CreateInvitation() error = %v", err)
	}

	got, err := s.FindInvitation(ctx, inv.Token)
	if err != nil {
		t.Fatalf("FindInvitation() error = %v", err)
	}
	if got.OwnerID != "owner" || got.Recipient != inv.Recipient || got.Message != inv.Message {
		t.Errorf("FindInvitation() = %+v", got)
	}
	if got.Event == nil || got.Event.Location != "Lyon" {
		t.Errorf("event lost: %+v", got.Event)
	}
	if len(got.Items) != len(inv.Items) || got.Items[0].ID != inv.Items[0].ID {
		t.Errorf("items lost: %+v", got.Items)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(*inv.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, inv.ExpiresAt)
	}
	if got.ViewedAt != nil {
		t.Error("new invitation should not be viewed")
	}

	other := sampleInvitation("someone-else")
	if err := s.CreateInvitation(ctx, other); err != nil {
		t.Fatal(err)
	}
	list, err := s.ListInvitations(ctx, "owner")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Token != inv.Token {
		t.Errorf("ListInvitations() = %+v", list)
	}

	if _, err := s.FindInvitation(ctx, uuid.NewString()); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FindInvitation(unknown) error = %v, want ErrNotFound", err)
	}
}

func testInvitationConflict(t *testing.T, s Store) {
	ctx := context.Background()
	inv := sampleInvitation("owner")
	if err := s.CreateInvitation(ctx, inv); err != nil {
		t.Fatal(err)
	}
	dup := sampleInvitation("owner")
	dup.Token = inv.Token
	if err := s.CreateInvitation(ctx, dup); !errors.Is(err, core.ErrConflict) {
		t.Errorf("duplicate token error = %v, want ErrConflict", err)
	}
}

func testMarkViewedOnce(t *testing.T, s Store) {
	ctx := context.Background()
	inv := sampleInvitation("owner")
	if err := s.CreateInvitation(ctx, inv); err != nil {
		t.Fatal(err)
	}

	first := time.Now().UTC().Truncate(time.Second)
	got, err := s.MarkViewed(ctx, inv.Token, first)
	if err != nil {
		t.Fatalf("MarkViewed() error = %v", err)
	}
	if got.ViewedAt == nil || !got.ViewedAt.Equal(first) {
		t.Fatalf("ViewedAt = %v, want %v", got.ViewedAt, first)
	}

	got, err = s.MarkViewed(ctx, inv.Token, first.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !got.ViewedAt.Equal(first) {
		t.Errorf("second view overwrote ViewedAt: %v", got.ViewedAt)
	}

	if _, err := s.MarkViewed(ctx, uuid.NewString(), first); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("MarkViewed(unknown) error = %v, want ErrNotFound", err)
	}
}

func testMarkViewedConcurrent(t *testing.T, s Store) {
	ctx := context.Background()
	inv := sampleInvitation("owner")
	if err := s.CreateInvitation(ctx, inv); err != nil {
		t.Fatal(err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	results := make([]time.Time, 8)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := s.MarkViewed(ctx, inv.Token, base.Add(time.Duration(i)*time.Second))
			if err != nil {
				t.Errorf("MarkViewed() error = %v", err)
				return
			}
			results[i] = *got.ViewedAt
		}(i)
	}
	wg.Wait()

	for i := range results {
		if !results[i].Equal(results[0]) {
			t.Fatalf("concurrent views recorded different timestamps: %v", results)
		}
	}
}

func testOrganizations(t *testing.T, s Store) {
	ctx := context.Background()
	org := &core.Organization{ID: design.NewID(), OwnerID: "owner", Name: "Les Dupont", Email: "contact@dupont.fr"}
	if err := s.SaveOrganization(ctx, org); err != nil {
		t.Fatalf("SaveOrganization() error = %v", err)
	}

	got, err := s.GetOrganization(ctx, "owner", org.ID)
	if err != nil {
		t.Fatalf("GetOrganization() error = %v", err)
	}
	if got.Name != "Les Dupont" || got.Email != "contact@dupont.fr" || got.OwnerID != "owner" {
		t.Errorf("GetOrganization() = %+v", got)
	}

	org.Name = "Famille Dupont"
	if err := s.SaveOrganization(ctx, org); err != nil {
		t.Fatal(err)
	}
	list, err := s.ListOrganizations(ctx, "owner")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "Famille Dupont" {
		t.Errorf("ListOrganizations() = %+v", list)
	}

	if _, err := s.GetOrganization(ctx, "intruder", org.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetOrganization() by another user error = %v", err)
	}
	if err := s.DeleteOrganization(ctx, "owner", org.ID); err != nil {
		t.Fatalf("DeleteOrganization() error = %v", err)
	}
	if err := s.DeleteOrganization(ctx, "owner", org.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second DeleteOrganization() error = %v, want ErrNotFound", err)
	}
}
