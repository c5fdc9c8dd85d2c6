package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"docuflex/internal/ai"
	"docuflex/internal/export"
	"docuflex/internal/extract"
	"docuflex/internal/history"
	"docuflex/internal/importer"
	"docuflex/internal/logging"
	"docuflex/internal/metrics"
	"docuflex/internal/rbac"
	"docuflex/internal/search"
	"docuflex/internal/store"
	"docuflex/internal/util"
)

// KeywordSearch matches names and content. Hits the current user cannot
// read are dropped.
func (s *Service) KeywordSearch(text, itemType string) (search.Response, error) {
	text = strings.TrimSpace(text)
	if err := validation.Validate(text, validation.Required.Error("search text is required")); err != nil {
		return search.Response{}, invalid(err)
	}
	user := s.session.CurrentUser()
	return s.search.Search(search.Query{
		Text:       text,
		FilterType: itemType,
		Allow: func(id string) bool {
			item, ok := s.tree.Find(id)
			return ok && rbac.CanRead(user, item)
		},
	}), nil
}

// SemanticSearch asks the model about every document the current user can
// read.
func (s *Service) SemanticSearch(ctx context.Context, query string) (ai.Answer, error) {
	query = strings.TrimSpace(query)
	if err := validation.Validate(query, validation.Required.Error("search query is required")); err != nil {
		return ai.Answer{}, invalid(err)
	}
	if !s.ai.Available() {
		return ai.Answer{}, mapError(ai.ErrUnavailable)
	}
	user := s.session.CurrentUser()
	readable := rbac.Filter(user, store.Flatten(s.tree.Snapshot()))
	answer, err := s.ai.Search(ctx, query, ai.BuildCorpus(readable))
	if err != nil {
		return ai.Answer{}, mapError(err)
	}
	return answer, nil
}

// GenerateVideo turns a prompt into a data:video/mp4 URI.
func (s *Service) GenerateVideo(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if err := validation.Validate(prompt, validation.Required.Error("prompt is required")); err != nil {
		return "", invalid(err)
	}
	if !s.video.Available() {
		return "", mapError(ai.ErrUnavailable)
	}
	uri, err := s.video.GenerateVideo(ctx, prompt)
	if err != nil {
		return "", mapError(err)
	}
	return uri, nil
}

// ImportSheet scans a workbook for links and starts importing them into
// the current folder. Units keep running after the call returns; ctx must
// outlive the job.
func (s *Service) ImportSheet(ctx context.Context, data []byte) (*importer.Job, error) {
	user, folder, err := s.authorize(s.currentFolderID(), rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	links, err := extract.ScanLinks(bytes.NewReader(data))
	if err != nil {
		return nil, mapError(err)
	}
	job := s.importer.NewJob(folder.ID, user.ID, links)
	if _, err := s.importer.Start(ctx, job, false); err != nil {
		return nil, mapError(err)
	}
	s.logger.Info("sheet import started", zap.String("job_id", job.ID), logging.ItemID(folder.ID), zap.Int("links", len(links)))
	return job, nil
}

func (s *Service) ImportStatus(jobID string) (*importer.Job, error) {
	job, err := s.importer.Job(jobID)
	if err != nil {
		return nil, mapError(err)
	}
	return job, nil
}

// RetryImport re-runs the failed units of a job.
func (s *Service) RetryImport(ctx context.Context, jobID string) (int, error) {
	job, err := s.importer.Job(jobID)
	if err != nil {
		return 0, mapError(err)
	}
	if _, _, err := s.authorize(job.ParentID, rbac.ActionWrite); err != nil {
		return 0, err
	}
	n, err := s.importer.Start(ctx, job, true)
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

// FileImport files one downloaded link: a folder named after the row, and
// a pdf document inside it.
func (s *Service) FileImport(_ context.Context, req importer.FileRequest) (string, string, error) {
	today := util.DateLabel(s.now())
	perms := store.Permissions{req.OwnerID: store.AccessOwner}
	folder := &store.Item{
		ID:          util.NewID("folder"),
		Name:        req.Link.FolderName,
		Type:        store.TypeFolder,
		Modified:    today,
		Size:        "---",
		OwnerID:     req.OwnerID,
		Permissions: perms,
		Children:    []*store.Item{},
	}
	if err := s.tree.Insert(req.ParentID, folder); err != nil {
		return "", "", err
	}
	doc := &store.Item{
		ID:          util.NewID("doc"),
		Name:        extract.FileNameFromURL(req.Link.URL),
		Type:        store.TypePDF,
		Modified:    today,
		Size:        req.Download.SizeLabel,
		OwnerID:     req.OwnerID,
		Permissions: perms.Clone(),
		Content:     "Imported from " + req.Link.URL,
		URL:         req.Link.URL,
	}
	if err := s.tree.Insert(folder.ID, doc); err != nil {
		return folder.ID, "", err
	}
	author := req.OwnerID
	if owner, ok := s.users.Get(req.OwnerID); ok {
		author = owner.Name
	}
	s.record(folder, author, "Import folder "+folder.Name)
	s.record(doc, author, "Import "+doc.Name)
	return folder.ID, doc.ID, nil
}

// Export renders a readable document to pdf or docx.
func (s *Service) Export(ctx context.Context, id, format string) (*export.Result, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, mapError(err)
	}
	_, item, err := s.authorize(id, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	if item.IsFolder() {
		return nil, validationError("Folders cannot be exported", nil)
	}
	result, err := s.export.Export(ctx, s.exportDocument(ctx, item), f)
	if err != nil {
		s.logger.Error("export failed", logging.ItemID(id), zap.String("format", format), zap.Error(err))
		return nil, mapError(err)
	}
	return result, nil
}

func (s *Service) exportDocument(ctx context.Context, item *store.Item) export.Document {
	doc := export.Document{
		ID:       item.ID,
		Title:    item.Name,
		Type:     string(item.Type),
		Content:  item.Content,
		URL:      s.resolveURL(ctx, item),
		Author:   item.OwnerID,
		Modified: item.Modified,
		Size:     item.Size,
	}
	if owner, ok := s.users.Get(item.OwnerID); ok {
		doc.Author = owner.Name
	}
	userIDs := make([]string, 0, len(item.Permissions))
	for id := range item.Permissions {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)
	for _, id := range userIDs {
		subject := id
		if u, ok := s.users.Get(id); ok {
			subject = u.Name
		}
		doc.Grants = append(doc.Grants, export.Grant{Subject: subject, Access: string(item.Permissions[id])})
	}
	departments := make([]string, 0, len(item.DepartmentPermissions))
	for dept := range item.DepartmentPermissions {
		departments = append(departments, dept)
	}
	sort.Strings(departments)
	for _, dept := range departments {
		doc.Grants = append(doc.Grants, export.Grant{Subject: "Department: " + dept, Access: string(item.DepartmentPermissions[dept])})
	}
	return doc
}

// History lists the recorded revisions of a readable item.
func (s *Service) History(id string, limit int) ([]history.Revision, error) {
	if _, _, err := s.authorize(id, rbac.ActionRead); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []history.Revision{}, nil
	}
	revisions, err := s.history.History(id, limit)
	if err != nil {
		return nil, mapError(err)
	}
	return revisions, nil
}

// Revision returns an item as it was recorded at hash.
func (s *Service) Revision(id, hash string) (history.Snapshot, error) {
	if _, _, err := s.authorize(id, rbac.ActionRead); err != nil {
		return history.Snapshot{}, err
	}
	if s.history == nil {
		return history.Snapshot{}, notFound("Revision")
	}
	snap, err := s.history.At(id, strings.TrimSpace(hash))
	if err != nil {
		return history.Snapshot{}, mapError(err)
	}
	return snap, nil
}

// FlushAnswers clears cached semantic search answers.
func (s *Service) FlushAnswers(ctx context.Context) (int, error) {
	if err := s.requireAdmin(); err != nil {
		return 0, err
	}
	n, err := s.ai.FlushCache(ctx)
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

type Stats struct {
	Folders       int
	Documents     int
	ByType        map[store.ItemType]int
	Readable      int
	Users         int
	SearchBackend string
	BlobBackend   string
}

// Stats counts the tree as a whole and as seen by the current user.
func (s *Service) Stats() Stats {
	user := s.session.CurrentUser()
	stats := Stats{
		ByType:        map[store.ItemType]int{},
		Users:         len(s.users.List()),
		SearchBackend: s.search.Backend(),
		BlobBackend:   s.blob.Type(),
	}
	for _, item := range store.Flatten(s.tree.Snapshot()) {
		if item.IsFolder() {
			stats.Folders++
		} else {
			stats.Documents++
		}
		stats.ByType[item.Type]++
		if rbac.CanRead(user, item) {
			stats.Readable++
		}
	}
	return stats
}

// WriteMetrics dumps the process metrics. Admin only.
func (s *Service) WriteMetrics(w io.Writer) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}
	if err := metrics.WriteText(w); err != nil {
		return domainError(http.StatusInternalServerError, CodeServerError, err.Error(), nil)
	}
	return nil
}
