package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"go.uber.org/zap"

	"docuflex/internal/email"
	"docuflex/internal/extract"
	"docuflex/internal/history"
	"docuflex/internal/logging"
	"docuflex/internal/metrics"
	"docuflex/internal/rbac"
	"docuflex/internal/store"
	"docuflex/internal/util"
)

// Listing is the readable content of one folder.
type Listing struct {
	Folder *store.Item
	Items  []*store.Item
}

// Preview is what the viewer shows for an opened document.
type Preview struct {
	Item    *store.Item
	Content string
	URL     string
}

// FolderNode is one line of the folder tree.
type FolderNode struct {
	Item  *store.Item
	Depth int
}

func itemLink(id string) string {
	return linkScheme + id
}

// authorize looks up id and checks action for the current user.
func (s *Service) authorize(id string, action rbac.Action) (store.User, *store.Item, error) {
	user := s.session.CurrentUser()
	item, ok := s.tree.Find(id)
	if !ok {
		return user, nil, notFound("Item")
	}
	if !rbac.Can(user, item, action) {
		s.logger.Warn("permission denied",
			logging.UserID(user.ID),
			logging.ItemID(id),
			zap.String("action", string(action)),
		)
		return user, nil, forbidden(deniedMessage(action))
	}
	return user, item, nil
}

func deniedMessage(action rbac.Action) string {
	switch action {
	case rbac.ActionWrite:
		return "You do not have permission to modify this item"
	case rbac.ActionShare:
		return "Only the owner can change sharing"
	case rbac.ActionDelete:
		return "Only the owner can delete this item"
	default:
		return "You do not have access to this item"
	}
}

// currentFolderID is the active item when it is a folder, otherwise its
// parent.
func (s *Service) currentFolderID() string {
	active, ok := s.tree.Find(s.session.ActiveID())
	if !ok {
		return store.RootID
	}
	if active.IsFolder() {
		return active.ID
	}
	if parent, ok := s.tree.FindParent(active.ID); ok {
		return parent.ID
	}
	return store.RootID
}

func (s *Service) record(item *store.Item, author, message string) {
	if s.history == nil {
		return
	}
	if _, err := s.history.Record(item.ID, Snapshot(item), author, message); err != nil && !errors.Is(err, history.ErrUnchanged) {
		s.logger.Warn("history record failed", logging.ItemID(item.ID), zap.Error(err))
	}
}

// Snapshot converts an item into its recorded form.
func Snapshot(item *store.Item) history.Snapshot {
	snap := history.Snapshot{
		Name:     item.Name,
		Type:     string(item.Type),
		OwnerID:  item.OwnerID,
		Modified: item.Modified,
		Size:     item.Size,
		Content:  item.Content,
		URL:      item.URL,
	}
	if len(item.Permissions) > 0 {
		snap.Permissions = make(map[string]string, len(item.Permissions))
		for k, v := range item.Permissions {
			snap.Permissions[k] = string(v)
		}
	}
	if len(item.DepartmentPermissions) > 0 {
		snap.DepartmentPermissions = make(map[string]string, len(item.DepartmentPermissions))
		for k, v := range item.DepartmentPermissions {
			snap.DepartmentPermissions[k] = string(v)
		}
	}
	return snap
}

// RecordBaseline commits the whole tree as the first history revision.
func (s *Service) RecordBaseline() error {
	if s.history == nil {
		return nil
	}
	items := make(map[string]history.Snapshot)
	root := s.tree.Snapshot()
	items[root.ID] = Snapshot(root)
	for _, item := range store.Flatten(root) {
		items[item.ID] = Snapshot(item)
	}
	_, err := s.history.Baseline(items, systemAuthor)
	return err
}

// Navigate makes a readable folder active.
func (s *Service) Navigate(id string) (Listing, error) {
	_, item, err := s.authorize(id, rbac.ActionRead)
	if err != nil {
		return Listing{}, err
	}
	if !item.IsFolder() {
		return Listing{}, mapError(store.ErrNotFolder)
	}
	s.session.SetActive(item.ID)
	return s.ListChildren(), nil
}

// Up navigates to the parent of the current folder.
func (s *Service) Up() (Listing, error) {
	parent, ok := s.tree.FindParent(s.currentFolderID())
	if !ok {
		return s.ListChildren(), nil
	}
	return s.Navigate(parent.ID)
}

// ListChildren lists the readable children of the current folder.
func (s *Service) ListChildren() Listing {
	user := s.session.CurrentUser()
	folder, ok := s.tree.Find(s.currentFolderID())
	if !ok {
		folder = s.tree.Snapshot()
	}
	return Listing{Folder: folder, Items: rbac.Filter(user, folder.Children)}
}

// Breadcrumbs is the path from the root to the current folder.
func (s *Service) Breadcrumbs() []*store.Item {
	path, ok := s.tree.Path(s.currentFolderID())
	if !ok {
		return []*store.Item{s.tree.Snapshot()}
	}
	return path
}

// FolderTree lists the folders the current user can read, depth first. An
// unreadable folder hides its whole subtree.
func (s *Service) FolderTree() []FolderNode {
	user := s.session.CurrentUser()
	var nodes []FolderNode
	var visit func(item *store.Item, depth int)
	visit = func(item *store.Item, depth int) {
		if !item.IsFolder() || !rbac.CanRead(user, item) {
			return
		}
		nodes = append(nodes, FolderNode{Item: item, Depth: depth})
		for _, child := range item.Children {
			visit(child, depth+1)
		}
	}
	visit(s.tree.Snapshot(), 0)
	return nodes
}

// Recent resolves the recent list, skipping ids that are gone or no longer
// readable.
func (s *Service) Recent() []*store.Item {
	user := s.session.CurrentUser()
	var out []*store.Item
	for _, id := range s.session.Recent() {
		if item, ok := s.tree.Find(id); ok && rbac.CanRead(user, item) {
			out = append(out, item)
		}
	}
	return out
}

// Open previews a document and records it as recently opened. Opening a
// folder navigates into it.
func (s *Service) Open(ctx context.Context, id string) (Preview, error) {
	_, item, err := s.authorize(id, rbac.ActionRead)
	if err != nil {
		return Preview{}, err
	}
	if item.IsFolder() {
		listing, err := s.Navigate(id)
		return Preview{Item: listing.Folder}, err
	}
	s.session.SetActive(item.ID)
	s.session.RecordOpened(item.ID)
	preview := Preview{Item: item, Content: item.Content}
	if item.URL != "" && (item.Type == store.TypeImage || item.Type == store.TypePDF) {
		preview.URL = s.resolveURL(ctx, item)
	}
	return preview, nil
}

// OpenRecent reopens a document from the recent list.
func (s *Service) OpenRecent(ctx context.Context, id string) (Preview, error) {
	found := false
	for _, recent := range s.session.Recent() {
		if recent == id {
			found = true
			break
		}
	}
	if !found {
		return Preview{}, notFound("Recent document")
	}
	if _, ok := s.tree.Find(id); !ok {
		s.session.Forget(id)
		return Preview{}, notFound("Item")
	}
	return s.Open(ctx, id)
}

func (s *Service) resolveURL(ctx context.Context, item *store.Item) string {
	if item.URL == "" || strings.HasPrefix(item.URL, "http://") || strings.HasPrefix(item.URL, "https://") {
		return item.URL
	}
	u, err := s.blob.URL(ctx, item.URL)
	if err != nil {
		s.logger.Warn("resolve payload url failed", logging.ItemID(item.ID), zap.Error(err))
		return item.URL
	}
	return u
}

type UploadInput struct {
	Name     string
	MimeType string
	Data     []byte
}

// Upload files a new document into the current folder.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*store.Item, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Validate(in.Name, itemNameRules()...); err != nil {
		return nil, invalid(err)
	}
	user, folder, err := s.authorize(s.currentFolderID(), rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	if in.MimeType == "" {
		in.MimeType = extract.DetectMimeType(in.Name, in.Data)
	}

	extracted := s.extractor.Extract(in.Name, in.MimeType, in.Data)
	item := &store.Item{
		ID:          util.NewID("doc"),
		Name:        in.Name,
		Type:        extracted.Type,
		Modified:    util.DateLabel(s.now()),
		Size:        extracted.SizeLabel,
		OwnerID:     user.ID,
		Permissions: store.Permissions{user.ID: store.AccessOwner},
		Content:     extracted.Content,
	}
	if extracted.Inline {
		ref, err := s.blob.Put(ctx, item.ID+"/"+in.Name, extracted.MimeType, in.Data)
		if err != nil {
			return nil, fmt.Errorf("store upload payload: %w", err)
		}
		item.URL = ref
	}
	if err := s.tree.Insert(folder.ID, item); err != nil {
		return nil, mapError(err)
	}
	metrics.RecordUpload(len(in.Data))
	s.record(item, user.Name, "Upload "+item.Name)
	s.logger.Info("document uploaded", logging.ItemID(item.ID), logging.UserID(user.ID), zap.String("type", string(item.Type)))
	return item, nil
}

// NewFolder creates a folder in the current folder.
func (s *Service) NewFolder(name string) (*store.Item, error) {
	name = strings.TrimSpace(name)
	if err := validation.Validate(name, itemNameRules()...); err != nil {
		return nil, invalid(err)
	}
	user, parent, err := s.authorize(s.currentFolderID(), rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	folder := &store.Item{
		ID:          util.NewID("folder"),
		Name:        name,
		Type:        store.TypeFolder,
		Modified:    util.DateLabel(s.now()),
		Size:        "---",
		OwnerID:     user.ID,
		Permissions: store.Permissions{user.ID: store.AccessOwner},
		Children:    []*store.Item{},
	}
	if err := s.tree.Insert(parent.ID, folder); err != nil {
		return nil, mapError(err)
	}
	s.record(folder, user.Name, "Create folder "+name)
	return folder, nil
}

func (s *Service) Rename(id, name string) (*store.Item, error) {
	name = strings.TrimSpace(name)
	if err := validation.Validate(name, itemNameRules()...); err != nil {
		return nil, invalid(err)
	}
	user, item, err := s.authorize(id, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	if err := s.tree.Update(id, store.ItemPatch{Name: &name}); err != nil {
		return nil, mapError(err)
	}
	renamed, _ := s.tree.Find(id)
	s.record(renamed, user.Name, fmt.Sprintf("Rename %q to %q", item.Name, name))
	return renamed, nil
}

// ShareInput grants or revokes access. Access is read, write or none;
// none removes the grant. Subject is a user id, email or name, or a
// department label when Department is set.
type ShareInput struct {
	ItemID     string
	Subject    string
	Department bool
	Access     string
	Notify     bool
}

type ShareResult struct {
	Item     *store.Item
	Delivery *email.Delivery
}

func (s *Service) Share(in ShareInput) (ShareResult, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Access = strings.ToLower(strings.TrimSpace(in.Access))
	if err := validation.ValidateStruct(&in,
		validation.Field(&in.ItemID, validation.Required),
		validation.Field(&in.Subject, validation.Required),
		validation.Field(&in.Access, validation.Required, validation.In("read", "write", "none")),
	); err != nil {
		return ShareResult{}, invalid(err)
	}
	owner, item, err := s.authorize(in.ItemID, rbac.ActionShare)
	if err != nil {
		return ShareResult{}, err
	}
	access := store.Access(in.Access)

	var patch store.ItemPatch
	var grantee store.User
	subject := in.Subject
	if in.Department {
		perms := item.DepartmentPermissions.Clone()
		if perms == nil {
			perms = store.DepartmentPermissions{}
		}
		if access == store.AccessNone {
			delete(perms, subject)
		} else {
			perms[subject] = access
		}
		patch.DepartmentPermissions = perms
	} else {
		var ok bool
		grantee, ok = s.users.Get(subject)
		if !ok {
			grantee, ok = s.users.FindByLogin(subject)
		}
		if !ok {
			return ShareResult{}, notFound("User")
		}
		if grantee.ID == item.OwnerID || item.Permissions[grantee.ID] == store.AccessOwner {
			return ShareResult{}, validationError("The owner's access cannot be changed", nil)
		}
		subject = grantee.ID
		perms := item.Permissions.Clone()
		if perms == nil {
			perms = store.Permissions{}
		}
		if access == store.AccessNone {
			delete(perms, subject)
		} else {
			perms[subject] = access
		}
		patch.Permissions = perms
	}

	if err := s.tree.Update(item.ID, patch); err != nil {
		return ShareResult{}, mapError(err)
	}
	shared, _ := s.tree.Find(item.ID)
	message := fmt.Sprintf("Grant %s %s", subject, access)
	if access == store.AccessNone {
		message = "Revoke " + subject
	}
	s.record(shared, owner.Name, message)
	s.logger.Info("sharing changed", logging.ItemID(item.ID), zap.String("subject", subject), zap.String("access", string(access)))

	result := ShareResult{Item: shared}
	if in.Notify && !in.Department && access != store.AccessNone && grantee.Email != "" {
		delivery, err := s.email.SendShareNotice(grantee.Email, email.ShareNoticeData{
			AppName:     s.AppName(),
			OwnerName:   owner.Name,
			GranteeName: grantee.Name,
			ItemName:    shared.Name,
			Access:      string(access),
			Link:        itemLink(shared.ID),
		})
		if err != nil {
			s.logger.Warn("share notice failed", logging.ItemID(item.ID), zap.Error(err))
		} else {
			result.Delivery = &delivery
		}
	}
	return result, nil
}

// EmailLink sends a link to a readable item.
func (s *Service) EmailLink(id, to string) (email.Delivery, error) {
	to = strings.TrimSpace(to)
	if err := validation.Validate(to, validation.Required.Error("recipient is required"), is.EmailFormat); err != nil {
		return email.Delivery{}, invalid(err)
	}
	user, item, err := s.authorize(id, rbac.ActionRead)
	if err != nil {
		return email.Delivery{}, err
	}
	delivery, err := s.email.SendItemLink(to, email.ItemLinkData{
		AppName:    s.AppName(),
		SenderName: user.Name,
		ItemName:   item.Name,
		Link:       itemLink(item.ID),
	})
	if err != nil {
		return email.Delivery{}, fmt.Errorf("send item link: %w", err)
	}
	return delivery, nil
}

type DeleteResult struct {
	Removed  []string
	ActiveID string
}

// Delete removes an item and its subtree. The session is kept consistent:
// removed ids leave the recent list and an active item inside the subtree
// moves to the deleted node's parent.
func (s *Service) Delete(ctx context.Context, id string) (DeleteResult, error) {
	if id == store.RootID {
		return DeleteResult{}, mapError(store.ErrRoot)
	}
	user, item, err := s.authorize(id, rbac.ActionDelete)
	if err != nil {
		return DeleteResult{}, err
	}
	parent, ok := s.tree.FindParent(id)
	if !ok {
		return DeleteResult{}, notFound("Item")
	}
	removed, err := s.tree.Delete(id)
	if err != nil {
		return DeleteResult{}, mapError(err)
	}

	subtree := append([]*store.Item{removed}, store.Flatten(removed)...)
	ids := make([]string, 0, len(subtree))
	for _, it := range subtree {
		ids = append(ids, it.ID)
	}

	active := s.session.ActiveID()
	for _, removedID := range ids {
		if removedID == active {
			s.session.SetActive(parent.ID)
			break
		}
	}
	s.session.Forget(ids...)

	for _, it := range subtree {
		if it.IsFolder() || it.URL == "" {
			continue
		}
		if err := s.blob.Delete(ctx, it.URL); err != nil {
			s.logger.Warn("payload delete failed", logging.ItemID(it.ID), zap.Error(err))
		}
	}
	if s.history != nil {
		if _, err := s.history.Remove(ids, user.Name, "Delete "+item.Name); err != nil && !errors.Is(err, history.ErrUnchanged) {
			s.logger.Warn("history remove failed", logging.ItemID(id), zap.Error(err))
		}
	}
	s.logger.Info("item deleted", logging.ItemID(id), logging.UserID(user.ID), zap.Int("removed", len(ids)))
	return DeleteResult{Removed: ids, ActiveID: s.session.ActiveID()}, nil
}
