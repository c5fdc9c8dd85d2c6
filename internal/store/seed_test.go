package store

import "testing"

func TestLoadSeed(t *testing.T) {
	seed, err := LoadSeed(func(p string) (string, error) { return "h(" + p + ")", nil })
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if len(seed.Users) != 4 {
		t.Fatalf("expected 4 seeded users, got %d", len(seed.Users))
	}
	admin := seed.Users[3]
	if admin.Name != "administrator" || admin.Role != RoleAdmin || admin.PasswordHash != "h(password)" {
		t.Fatalf("unexpected administrator entry %+v", admin)
	}
	if seed.Users[0].Avatar != DefaultAvatar {
		t.Fatalf("expected default avatar, got %q", seed.Users[0].Avatar)
	}

	tree := NewTree(seed.Root)
	checkIntegrity(t, tree.Snapshot())
	if Count(tree.Snapshot()) != 12 {
		t.Fatalf("expected 12 seeded items, got %d", Count(tree.Snapshot()))
	}

	projects, ok := tree.Find("folder-projects")
	if !ok {
		t.Fatal("expected folder-projects")
	}
	if projects.DepartmentPermissions["Sales"] != AccessRead {
		t.Fatalf("expected Sales read grant, got %q", projects.DepartmentPermissions["Sales"])
	}
	nda, _ := tree.Find("doc-nda")
	if nda.Type != TypeDoc || nda.Content == "" {
		t.Fatalf("unexpected nda item %+v", nda)
	}
	parent, _ := tree.FindParent("doc-beta-report")
	if parent.ID != "project-beta" {
		t.Fatalf("expected project-beta parent, got %q", parent.ID)
	}
}

func TestParseSeedRejectsBadRoot(t *testing.T) {
	_, err := ParseSeed([]byte("tree:\n  id: other\n  type: folder\n"), nil)
	if err == nil {
		t.Fatal("expected error for non-root tree")
	}
}
