// Package history keeps a revision log of tree items in an in-memory git
// repository. Each item is one JSON file; every recorded change is a
// commit touching that file.
package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"go.uber.org/zap"

	"docuflex/internal/logging"
)

// ErrUnchanged is returned by Record when the snapshot matches the last
// recorded revision.
var ErrUnchanged = errors.New("no changes to record")

// ErrRevisionNotFound is returned by At for an unknown hash, or a commit in
// which the item did not exist.
var ErrRevisionNotFound = errors.New("revision not found")

// Snapshot is the recorded state of one item.
type Snapshot struct {
	Name                  string            `json:"name"`
	Type                  string            `json:"type"`
	OwnerID               string            `json:"ownerId"`
	Modified              string            `json:"modified,omitempty"`
	Size                  string            `json:"size,omitempty"`
	Content               string            `json:"content,omitempty"`
	URL                   string            `json:"url,omitempty"`
	Permissions           map[string]string `json:"permissions,omitempty"`
	DepartmentPermissions map[string]string `json:"departmentPermissions,omitempty"`
}

// Change is one field that differs between two revisions.
type Change struct {
	Field  string
	Before string
	After  string
}

// Revision describes one commit in an item's log, newest first.
type Revision struct {
	Hash    string
	Message string
	Author  string
	When    time.Time
	Changes []Change
}

// Recorder owns the repository. All access is serialized.
type Recorder struct {
	mu     sync.Mutex
	repo   *git.Repository
	fs     billy.Filesystem
	now    func() time.Time
	logger *zap.Logger
}

func New(logger *zap.Logger) (*Recorder, error) {
	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return &Recorder{repo: repo, fs: fs, now: time.Now, logger: logging.OrNop(logger).Named("history")}, nil
}

func itemPath(itemID string) string {
	return path.Join("items", itemID+".json")
}

// Baseline writes every snapshot in a single commit.
func (r *Recorder) Baseline(items map[string]Snapshot, author string) (Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	worktree, err := r.repo.Worktree()
	if err != nil {
		return Revision{}, fmt.Errorf("open worktree: %w", err)
	}

	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := r.writeLocked(worktree, id, items[id]); err != nil {
			return Revision{}, err
		}
	}
	return r.commitLocked(worktree, author, "Import baseline")
}

// Record commits snap as the new state of itemID.
func (r *Recorder) Record(itemID string, snap Snapshot, author, message string) (Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload, err := encode(snap)
	if err != nil {
		return Revision{}, err
	}
	if existing, err := util.ReadFile(r.fs, itemPath(itemID)); err == nil && bytes.Equal(existing, payload) {
		return Revision{}, ErrUnchanged
	}

	worktree, err := r.repo.Worktree()
	if err != nil {
		return Revision{}, fmt.Errorf("open worktree: %w", err)
	}
	if err := r.writeLocked(worktree, itemID, snap); err != nil {
		return Revision{}, err
	}
	rev, err := r.commitLocked(worktree, author, message)
	if err != nil {
		return Revision{}, err
	}
	r.logger.Debug("revision recorded", logging.ItemID(itemID), zap.String("hash", rev.Hash))
	return rev, nil
}

// Remove deletes the files of itemIDs in one commit. Ids that were never
// recorded are skipped.
func (r *Recorder) Remove(itemIDs []string, author, message string) (Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	worktree, err := r.repo.Worktree()
	if err != nil {
		return Revision{}, fmt.Errorf("open worktree: %w", err)
	}
	removed := 0
	for _, id := range itemIDs {
		if _, err := r.fs.Stat(itemPath(id)); err != nil {
			continue
		}
		if _, err := worktree.Remove(itemPath(id)); err != nil {
			return Revision{}, fmt.Errorf("git rm %s: %w", id, err)
		}
		removed++
	}
	if removed == 0 {
		return Revision{}, ErrUnchanged
	}
	return r.commitLocked(worktree, author, message)
}

// History lists the revisions that touched itemID, newest first. limit <= 0
// means no limit.
func (r *Recorder) History(itemID string, limit int) ([]Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	file := itemPath(itemID)
	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash(), FileName: &file})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	var commits []*object.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		commits = append(commits, c)
		if limit > 0 && len(commits) > limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}

	// One extra commit is read so the oldest listed revision can be diffed.
	revisions := make([]Revision, 0, len(commits))
	for i, c := range commits {
		if limit > 0 && i >= limit {
			break
		}
		rev := toRevision(c)
		after, _ := readSnapshot(c, file)
		var before *Snapshot
		if i+1 < len(commits) {
			before, _ = readSnapshot(commits[i+1], file)
		}
		rev.Changes = Diff(before, after)
		revisions = append(revisions, rev)
	}
	return revisions, nil
}

// At returns the state of itemID as of the given commit.
func (r *Recorder) At(itemID, hash string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	resolved, err := r.repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: %v", ErrRevisionNotFound, hash, err)
	}
	c, err := r.repo.CommitObject(*resolved)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	snap, err := readSnapshot(c, itemPath(itemID))
	if err != nil {
		return Snapshot{}, err
	}
	if snap == nil {
		return Snapshot{}, fmt.Errorf("%w: %s has no %s", ErrRevisionNotFound, hash, itemID)
	}
	return *snap, nil
}

func (r *Recorder) writeLocked(worktree *git.Worktree, itemID string, snap Snapshot) error {
	payload, err := encode(snap)
	if err != nil {
		return err
	}
	if err := util.WriteFile(r.fs, itemPath(itemID), payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", itemID, err)
	}
	if _, err := worktree.Add(itemPath(itemID)); err != nil {
		return fmt.Errorf("git add %s: %w", itemID, err)
	}
	return nil
}

func (r *Recorder) commitLocked(worktree *git.Worktree, author, message string) (Revision, error) {
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@docuflex.local", sanitizeEmail(author)),
			When:  r.now(),
		},
	})
	if err != nil {
		return Revision{}, fmt.Errorf("commit: %w", err)
	}
	c, err := r.repo.CommitObject(hash)
	if err != nil {
		return Revision{}, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(c), nil
}

func encode(snap Snapshot) ([]byte, error) {
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return append(payload, '\n'), nil
}

// readSnapshot returns nil when the file does not exist at c.
func readSnapshot(c *object.Commit, file string) (*Snapshot, error) {
	f, err := c.File(file)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", file, err)
	}
	contents, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(contents), &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", file, err)
	}
	return &snap, nil
}

func toRevision(c *object.Commit) Revision {
	return Revision{
		Hash:    c.Hash.String()[:7],
		Message: c.Message,
		Author:  c.Author.Name,
		When:    c.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
