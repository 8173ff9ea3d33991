package subject

import "testing"

func TestMemoryStoreFindByIDOrName(t *testing.T) {
	store := NewMemoryStore(Seed())

	if _, ok := store.FindByID("physics"); !ok {
		t.Fatal("expected physics by id")
	}
	got, ok := store.FindByID("computer science")
	if !ok || got.ID != "computer-science" {
		t.Fatalf("expected lookup by name, got %+v ok=%v", got, ok)
	}
	if _, ok := store.FindByID("alchemy"); ok {
		t.Fatal("unexpected subject alchemy")
	}
}

func TestMemoryStoreListIsCopy(t *testing.T) {
	store := NewMemoryStore(Seed())
	list := store.List()
	list[0].Name = "mutated"

	if store.List()[0].Name == "mutated" {
		t.Fatal("List must not expose internal slice")
	}
}
