package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"docuflex/internal/ai"
	"docuflex/internal/authpw"
	"docuflex/internal/config"
	"docuflex/internal/extract"
	"docuflex/internal/history"
	"docuflex/internal/importer"
	"docuflex/internal/logging"
	"docuflex/internal/rbac"
	"docuflex/internal/search"
	"docuflex/internal/session"
	"docuflex/internal/store"
)

type fakeDownloader struct {
	mu   sync.Mutex
	fail map[string]bool
}

func (f *fakeDownloader) Download(_ context.Context, link extract.Link) (importer.Download, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[link.ID] {
		return importer.Download{}, importer.ErrDownloadFailed
	}
	return importer.Download{SizeLabel: "1.00 MB"}, nil
}

type fakeCompleter struct {
	completeFn func(ctx context.Context, system, prompt string) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f.completeFn(ctx, system, prompt)
}

func noSleep(context.Context, time.Duration) error { return nil }

type testEnv struct {
	svc     *Service
	tree    *store.Tree
	session *session.State
}

func newTestEnv(t *testing.T, mutate func(*Deps)) testEnv {
	t.Helper()
	hash := func(p string) (string, error) { return authpw.HashWithCost(p, bcrypt.MinCost) }
	seed, err := store.LoadSeed(hash)
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	users := store.NewUserRegistry(seed.Users, hash)
	admin, _ := users.Get("user-4")
	tree := store.NewTree(seed.Root)
	state := session.New(admin, store.RootID)
	recorder, err := history.New(nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}

	deps := Deps{
		Tree:       tree,
		Users:      users,
		Session:    state,
		Auth:       authpw.NewServiceWithCost(users, bcrypt.MinCost),
		Downloader: &fakeDownloader{},
		Import:     importer.Options{Sleep: noSleep},
		History:    recorder,
	}
	if mutate != nil {
		mutate(&deps)
	}
	svc := New(config.Config{AppName: "DocuFlex"}, deps, nil)
	if err := svc.RecordBaseline(); err != nil {
		t.Fatalf("baseline: %v", err)
	}
	return testEnv{svc: svc, tree: tree, session: state}
}

func (e testEnv) as(t *testing.T, userID string) {
	t.Helper()
	if _, err := e.svc.SwitchUser(userID); err != nil {
		t.Fatalf("switch to %s: %v", userID, err)
	}
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError %s, got %v", code, err)
	}
	if domainErr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, domainErr.Code, domainErr.Message)
	}
}

func TestShareScenarioGrantsWriteAccess(t *testing.T) {
	env := newTestEnv(t, nil)
	f1, err := env.svc.NewFolder("F1")
	if err != nil {
		t.Fatalf("new folder: %v", err)
	}
	if _, err := env.svc.Share(ShareInput{ItemID: f1.ID, Subject: "user-2", Access: "read"}); err != nil {
		t.Fatalf("share read: %v", err)
	}

	env.as(t, "user-2")
	if _, err := env.svc.Navigate(f1.ID); err != nil {
		t.Fatalf("expected user-2 to read F1, got %v", err)
	}
	_, err = env.svc.NewFolder("Drafts")
	expectCode(t, err, CodeForbidden)

	env.as(t, "user-4")
	if _, err := env.svc.Share(ShareInput{ItemID: f1.ID, Subject: "bob@example.com", Access: "write"}); err != nil {
		t.Fatalf("share write: %v", err)
	}

	env.as(t, "user-2")
	if env.session.ActiveID() != f1.ID {
		t.Fatalf("expected F1 to stay active, got %q", env.session.ActiveID())
	}
	drafts, err := env.svc.NewFolder("Drafts")
	if err != nil {
		t.Fatalf("expected write to succeed after grant, got %v", err)
	}
	if parent, _ := env.tree.FindParent(drafts.ID); parent.ID != f1.ID {
		t.Fatalf("expected Drafts under F1, got %q", parent.ID)
	}
	got, _ := env.tree.Find(f1.ID)
	if got.Permissions["user-2"] != store.AccessWrite {
		t.Fatalf("expected F1.Permissions[user-2] = write, got %q", got.Permissions["user-2"])
	}
}

func TestDepartmentGrantGivesReadOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	env.as(t, "user-3")

	projects, _ := env.tree.Find("folder-projects")
	charlie := env.svc.CurrentUser()
	if access := rbac.EffectiveAccess(charlie, projects); access != store.AccessRead {
		t.Fatalf("expected read via Sales grant, got %q", access)
	}
	if rbac.CanWrite(charlie, projects) {
		t.Fatal("expected CanWrite to be false for a department read grant")
	}

	if _, err := env.svc.Navigate("folder-projects"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	_, err := env.svc.NewFolder("Sales notes")
	expectCode(t, err, CodeForbidden)
	_, err = env.svc.Rename("folder-projects", "Mine")
	expectCode(t, err, CodeForbidden)
}

func TestShareDepartmentGrantAndRevoke(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.svc.Share(ShareInput{ItemID: "doc-nda", Subject: "Sales", Department: true, Access: "read"}); err != nil {
		t.Fatalf("share: %v", err)
	}
	env.as(t, "user-3")
	if _, err := env.svc.Open(context.Background(), "doc-nda"); err != nil {
		t.Fatalf("expected Sales to read doc-nda, got %v", err)
	}

	env.as(t, "user-4")
	if _, err := env.svc.Share(ShareInput{ItemID: "doc-nda", Subject: "Sales", Department: true, Access: "none"}); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	nda, _ := env.tree.Find("doc-nda")
	if _, ok := nda.DepartmentPermissions["Sales"]; ok {
		t.Fatal("expected Sales grant to be removed")
	}
}

func TestShareRejectsOwnerAndBadInput(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		in   ShareInput
		code string
	}{
		{name: "owner grant", in: ShareInput{ItemID: "doc-financials", Subject: "user-1", Access: "read"}, code: CodeValidation},
		{name: "unknown access", in: ShareInput{ItemID: "doc-financials", Subject: "user-2", Access: "owner"}, code: CodeValidation},
		{name: "unknown user", in: ShareInput{ItemID: "doc-financials", Subject: "nobody", Access: "read"}, code: CodeNotFound},
		{name: "unknown item", in: ShareInput{ItemID: "missing", Subject: "user-2", Access: "read"}, code: CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Share(tt.in)
			expectCode(t, err, tt.code)
		})
	}
}

func TestDeleteActiveFolderRepointsAndPurgesRecent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	for _, id := range []string{"doc-invoice", "doc-alpha-design", "doc-alpha-spec"} {
		if _, err := env.svc.Open(ctx, id); err != nil {
			t.Fatalf("open %s: %v", id, err)
		}
	}
	if _, err := env.svc.Navigate("project-alpha"); err != nil {
		t.Fatalf("navigate: %v", err)
	}

	result, err := env.svc.Delete(ctx, "folder-projects")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if env.session.ActiveID() != store.RootID || result.ActiveID != store.RootID {
		t.Fatalf("expected active item to move to root, got %q", env.session.ActiveID())
	}
	recent := env.session.Recent()
	if len(recent) != 1 || recent[0] != "doc-invoice" {
		t.Fatalf("expected recent [doc-invoice], got %v", recent)
	}
	for _, id := range []string{"folder-projects", "project-alpha", "doc-alpha-spec", "project-beta", "doc-beta-report"} {
		if _, ok := env.tree.Find(id); ok {
			t.Fatalf("expected %s to be gone", id)
		}
	}
	if len(result.Removed) != 6 {
		t.Fatalf("expected 6 removed ids, got %v", result.Removed)
	}
}

func TestDeleteRules(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.Delete(ctx, store.RootID)
	expectCode(t, err, CodeRootImmutable)

	env.as(t, "user-2")
	_, err = env.svc.Delete(ctx, "doc-financials")
	expectCode(t, err, CodeForbidden)

	if _, err := env.svc.Delete(ctx, "doc-beta-report"); err != nil {
		t.Fatalf("expected owner delete to succeed, got %v", err)
	}
	_, err = env.svc.Delete(ctx, "doc-beta-report")
	expectCode(t, err, CodeNotFound)
}

func TestSwitchUserFallsBackToRoot(t *testing.T) {
	tests := []struct {
		name       string
		activeID   string
		switchTo   string
		wantActive string
	}{
		{name: "lost access", activeID: "folder-legal", switchTo: "user-3", wantActive: store.RootID},
		{name: "department access kept", activeID: "folder-projects", switchTo: "user-3", wantActive: "folder-projects"},
		{name: "admin keeps everything", activeID: "folder-legal", switchTo: "user-1", wantActive: "folder-legal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			if _, err := env.svc.Navigate(tt.activeID); err != nil {
				t.Fatalf("navigate: %v", err)
			}
			env.as(t, tt.switchTo)
			if got := env.session.ActiveID(); got != tt.wantActive {
				t.Fatalf("expected active %q, got %q", tt.wantActive, got)
			}
		})
	}
}

func TestLoginUsesGenericFailure(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, tc := range []struct{ login, password string }{
		{"alice@example.com", "wrong-password"},
		{"nobody@example.com", "password123"},
	} {
		_, err := env.svc.Login(tc.login, tc.password)
		var domainErr *DomainError
		if !errors.As(err, &domainErr) || domainErr.Code != CodeInvalidCredentials {
			t.Fatalf("expected INVALID_CREDENTIALS for %s, got %v", tc.login, err)
		}
		if domainErr.Message != "Invalid username or password." {
			t.Fatalf("expected generic message, got %q", domainErr.Message)
		}
	}

	user, err := env.svc.Login("ALICE@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != "user-1" || env.svc.CurrentUser().ID != "user-1" {
		t.Fatalf("expected Alice to be current, got %q", env.svc.CurrentUser().ID)
	}
}

func TestViewerIsDeniedOutsideTheirGrants(t *testing.T) {
	env := newTestEnv(t, nil)
	env.as(t, "user-3")
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{name: "open unreadable", call: func() error { _, err := env.svc.Open(ctx, "doc-nda"); return err }},
		{name: "export unreadable", call: func() error { _, err := env.svc.Export(ctx, "doc-nda", "pdf"); return err }},
		{name: "email unreadable", call: func() error { _, err := env.svc.EmailLink("doc-nda", "x@example.com"); return err }},
		{name: "history unreadable", call: func() error { _, err := env.svc.History("doc-nda", 5); return err }},
		{name: "rename read-only", call: func() error { _, err := env.svc.Rename("img-team-photo", "x.png"); return err }},
		{name: "share read-only", call: func() error {
			_, err := env.svc.Share(ShareInput{ItemID: "img-team-photo", Subject: "user-2", Access: "write"})
			return err
		}},
		{name: "delete read-only", call: func() error { _, err := env.svc.Delete(ctx, "img-team-photo"); return err }},
		{name: "upload into read-only folder", call: func() error {
			_, err := env.svc.Upload(ctx, UploadInput{Name: "a.pdf", MimeType: "application/pdf", Data: []byte("%PDF")})
			return err
		}},
		{name: "admin settings", call: func() error { return env.svc.SetAppName("Mine") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectCode(t, tt.call(), CodeForbidden)
		})
	}
}

func TestUploadStoresInlinePayload(t *testing.T) {
	env := newTestEnv(t, nil)
	data := []byte("\x89PNG\r\n\x1a\nfake")

	item, err := env.svc.Upload(context.Background(), UploadInput{Name: "photo.png", MimeType: "image/png", Data: data})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(item.ID, "doc-") {
		t.Fatalf("expected doc- id, got %q", item.ID)
	}
	if item.Type != store.TypeImage || !strings.HasPrefix(item.URL, "data:image/png;base64,") {
		t.Fatalf("expected inline image, got type=%s url=%q", item.Type, item.URL)
	}
	if item.OwnerID != "user-4" || item.Permissions["user-4"] != store.AccessOwner {
		t.Fatalf("expected uploader to own the document, got %+v", item.Permissions)
	}
	root := env.tree.Snapshot()
	if root.Children[0].ID != item.ID {
		t.Fatalf("expected upload to be first child of root, got %q", root.Children[0].ID)
	}
	revisions, err := env.svc.History(item.ID, 0)
	if err != nil || len(revisions) != 1 {
		t.Fatalf("expected one revision, got %v (%v)", revisions, err)
	}
}

func TestItemNameValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: "   "},
		{name: "slash", input: "a/b"},
		{name: "too long", input: strings.Repeat("x", 256)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.NewFolder(tt.input)
			expectCode(t, err, CodeValidation)
		})
	}
	if _, err := env.svc.NewFolder(strings.Repeat("x", 255)); err != nil {
		t.Fatalf("expected 255 characters to be accepted, got %v", err)
	}
}

func TestOpenRecentBoundAndReopen(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	for _, id := range []string{"doc-alpha-spec", "doc-alpha-design", "doc-beta-report", "doc-nda", "doc-invoice"} {
		if _, err := env.svc.Open(ctx, id); err != nil {
			t.Fatalf("open %s: %v", id, err)
		}
	}
	if got := len(env.svc.Recent()); got != session.MaxRecent {
		t.Fatalf("expected %d recent documents, got %d", session.MaxRecent, got)
	}

	_, err := env.svc.OpenRecent(ctx, "doc-alpha-spec")
	expectCode(t, err, CodeNotFound)

	preview, err := env.svc.OpenRecent(ctx, "doc-beta-report")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if preview.URL != "https://placehold.co/800x1122.pdf" {
		t.Fatalf("expected pdf url in preview, got %q", preview.URL)
	}
	if env.session.Recent()[0] != "doc-beta-report" {
		t.Fatalf("expected reopened document first, got %v", env.session.Recent())
	}
	crumbs := env.svc.Breadcrumbs()
	if len(crumbs) != 3 || crumbs[2].ID != "project-beta" {
		t.Fatalf("expected breadcrumbs to end at project-beta, got %d items", len(crumbs))
	}
}

func TestFolderTreeHidesUnreadableSubtrees(t *testing.T) {
	env := newTestEnv(t, nil)
	env.as(t, "user-3")

	var ids []string
	for _, node := range env.svc.FolderTree() {
		ids = append(ids, node.Item.ID)
	}
	want := "root folder-projects project-alpha"
	if strings.Join(ids, " ") != want {
		t.Fatalf("expected folders %q, got %q", want, strings.Join(ids, " "))
	}
}

func TestImportSheetFilesEachLink(t *testing.T) {
	env := newTestEnv(t, nil)
	f := excelize.NewFile()
	_ = f.SetCellValue("Sheet1", "A1", "Contracts")
	_ = f.SetCellValue("Sheet1", "B1", "https://example.com/files/contract.pdf?v=2")
	_ = f.SetCellValue("Sheet1", "B2", "https://example.com/report.pdf")
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	job, err := env.svc.ImportSheet(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	job.Wait()
	if counts := job.Counts(); counts[importer.StatusSuccess] != 2 {
		t.Fatalf("expected 2 successes, got %v", counts)
	}

	names := map[string]string{}
	for _, u := range job.Units() {
		folder, ok := env.tree.Find(u.FolderID)
		if !ok {
			t.Fatalf("expected folder %s", u.FolderID)
		}
		doc, ok := env.tree.Find(u.DocumentID)
		if !ok || doc.Type != store.TypePDF || doc.URL != u.Link.URL {
			t.Fatalf("expected pdf for %s, got %+v", u.Link.URL, doc)
		}
		names[folder.Name] = doc.Name
	}
	if names["Contracts"] != "contract.pdf" || names["Imported Row 2"] != "report.pdf" {
		t.Fatalf("unexpected import layout %v", names)
	}

	_, err = env.svc.RetryImport(context.Background(), job.ID)
	expectCode(t, err, CodeValidation)
}

func TestImportSheetErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.ImportSheet(ctx, []byte("not a workbook"))
	expectCode(t, err, CodeBadSheet)

	f := excelize.NewFile()
	_ = f.SetCellValue("Sheet1", "A1", "just text")
	var buf bytes.Buffer
	_ = f.Write(&buf)
	_, err = env.svc.ImportSheet(ctx, buf.Bytes())
	expectCode(t, err, CodeNoLinks)

	env.as(t, "user-3")
	_, err = env.svc.ImportSheet(ctx, buf.Bytes())
	expectCode(t, err, CodeForbidden)
}

func TestKeywordSearchFiltersUnreadable(t *testing.T) {
	idx := search.NewService(nil, search.NewMemory(), nil)
	env := newTestEnv(t, func(d *Deps) { d.Search = idx })
	idx.ReindexAll(env.tree.Snapshot())

	resp, err := env.svc.KeywordSearch("agreement", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Total != 1 || resp.Results[0].ID != "doc-nda" {
		t.Fatalf("expected admin to find doc-nda, got %+v", resp.Results)
	}

	env.as(t, "user-3")
	resp, _ = env.svc.KeywordSearch("agreement", "")
	if resp.Total != 0 {
		t.Fatalf("expected no hits for user-3, got %+v", resp.Results)
	}

	_, err = env.svc.KeywordSearch("  ", "")
	expectCode(t, err, CodeValidation)
}

func TestSemanticSearchUsesReadableCorpus(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.svc.SemanticSearch(context.Background(), "revenue")
	expectCode(t, err, CodeAIUnavailable)
	_, err = env.svc.GenerateVideo(context.Background(), "a cat")
	expectCode(t, err, CodeAIUnavailable)

	var prompt string
	completer := &fakeCompleter{completeFn: func(_ context.Context, _, p string) (string, error) {
		prompt = p
		return `{"relevantPassages":["15% increase in revenue"],"reasoning":"mentions revenue"}`, nil
	}}
	env = newTestEnv(t, func(d *Deps) { d.AI = ai.NewSearcher(completer, nil, nil) })
	env.as(t, "user-3")

	answer, err := env.svc.SemanticSearch(context.Background(), "revenue")
	if err != nil {
		t.Fatalf("semantic search: %v", err)
	}
	if len(answer.RelevantPassages) != 1 {
		t.Fatalf("expected one passage, got %+v", answer)
	}
	if strings.Contains(prompt, "nda_template.doc") {
		t.Fatal("expected unreadable document to be left out of the corpus")
	}
	if !strings.Contains(prompt, "Document: team_photo.png") {
		t.Fatal("expected readable document in the corpus")
	}
}

func TestAdminUserManagement(t *testing.T) {
	env := newTestEnv(t, nil)

	added, err := env.svc.AddUser(UserInput{Name: "Dana", Email: "dana@example.com", Role: "superuser", Department: "Ops"})
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	if added.Role != store.RoleViewer {
		t.Fatalf("expected unknown role to normalize to viewer, got %q", added.Role)
	}

	_, err = env.svc.AddUser(UserInput{Name: "Eve", Email: "not-an-email", Department: "Ops"})
	expectCode(t, err, CodeValidation)

	updated, err := env.svc.UpdateUser("user-4", UserInput{Name: "Root", Email: "admin@internal.com", Role: "admin", Department: "IT"})
	if err != nil {
		t.Fatalf("update user: %v", err)
	}
	if env.svc.CurrentUser().Name != "Root" || updated.Name != "Root" {
		t.Fatalf("expected session to reflect the update, got %q", env.svc.CurrentUser().Name)
	}

	if err := env.svc.SetAppName("Vault"); err != nil {
		t.Fatalf("set app name: %v", err)
	}
	if env.svc.AppName() != "Vault" {
		t.Fatalf("expected Vault, got %q", env.svc.AppName())
	}

	env.as(t, "user-2")
	_, err = env.svc.AddUser(UserInput{Name: "Mallory", Email: "m@example.com", Department: "Ops"})
	expectCode(t, err, CodeForbidden)
}

func TestChangePasswordFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name                   string
		current, next, confirm string
	}{
		{name: "wrong current", current: "nope", next: "secret1", confirm: "secret1"},
		{name: "too short", current: "password", next: "abc", confirm: "abc"},
		{name: "mismatch", current: "password", next: "secret1", confirm: "secret2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectCode(t, env.svc.ChangePassword(tt.current, tt.next, tt.confirm), CodeValidation)
		})
	}

	if err := env.svc.ChangePassword("password", "secret1", "secret1"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := env.svc.Login("admin@internal.com", "secret1"); err != nil {
		t.Fatalf("expected login with new password, got %v", err)
	}
}

func TestShareIsRecordedInHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.svc.Share(ShareInput{ItemID: "doc-financials", Subject: "user-3", Access: "write"}); err != nil {
		t.Fatalf("share: %v", err)
	}
	revisions, err := env.svc.History("doc-financials", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(revisions) != 2 {
		t.Fatalf("expected baseline plus share, got %d revisions", len(revisions))
	}
	if revisions[0].Message != "Grant user-3 write" || revisions[0].Author != "administrator" {
		t.Fatalf("unexpected newest revision %+v", revisions[0])
	}
	found := false
	for _, c := range revisions[0].Changes {
		if c.Field == "permissions" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a permissions change, got %+v", revisions[0].Changes)
	}
}

func TestEmailLinkIsSimulatedWithoutSMTP(t *testing.T) {
	env := newTestEnv(t, nil)
	delivery, err := env.svc.EmailLink("doc-invoice", "someone@example.com")
	if err != nil {
		t.Fatalf("email: %v", err)
	}
	if !delivery.Simulated || delivery.Recipient != "someone@example.com" {
		t.Fatalf("expected simulated delivery, got %+v", delivery)
	}
	if !strings.Contains(delivery.Subject, "invoice-q2.pdf") {
		t.Fatalf("expected item name in subject, got %q", delivery.Subject)
	}
}

func TestExportRejectsBadFormatAndFolders(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	_, err := env.svc.Export(ctx, "doc-nda", "odt")
	expectCode(t, err, CodeValidation)
	_, err = env.svc.Export(ctx, "folder-legal", "pdf")
	expectCode(t, err, CodeValidation)
}

func TestRevisionReturnsSnapshotAtHash(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.svc.Share(ShareInput{ItemID: "doc-financials", Subject: "user-3", Access: "write"}); err != nil {
		t.Fatalf("share: %v", err)
	}
	revisions, err := env.svc.History("doc-financials", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}

	latest, err := env.svc.Revision("doc-financials", revisions[0].Hash)
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if latest.Permissions["user-3"] != "write" {
		t.Fatalf("expected user-3 write in latest snapshot, got %+v", latest.Permissions)
	}
	baseline, err := env.svc.Revision("doc-financials", revisions[1].Hash)
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if _, ok := baseline.Permissions["user-3"]; ok {
		t.Fatalf("expected no user-3 grant at baseline, got %+v", baseline.Permissions)
	}

	_, err = env.svc.Revision("doc-financials", "deadbee")
	expectCode(t, err, CodeNotFound)

	env.as(t, "user-3")
	_, err = env.svc.Revision("doc-nda", revisions[0].Hash)
	expectCode(t, err, CodeForbidden)
}

func TestAdminOnlyMaintenanceCommands(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.svc.SetLogLevel("warn"); err != nil {
		t.Fatalf("set level: %v", err)
	}
	defer logging.SetLevel("info")
	expectCode(t, env.svc.SetLogLevel("loud"), CodeValidation)

	n, err := env.svc.FlushAnswers(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected empty flush without a cache, got %d, %v", n, err)
	}

	env.as(t, "user-3")
	expectCode(t, env.svc.SetLogLevel("debug"), CodeForbidden)
	_, err = env.svc.FlushAnswers(context.Background())
	expectCode(t, err, CodeForbidden)
}

func TestRenameKeepsModified(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.svc.Rename("doc-financials", "financials-2024.xlsx"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	item, ok := env.tree.Find("doc-financials")
	if !ok {
		t.Fatalf("expected doc-financials to exist")
	}
	if item.Name != "financials-2024.xlsx" || item.Modified != "2024-05-11" {
		t.Fatalf("expected new name with original modified date, got %q %q", item.Name, item.Modified)
	}
}
