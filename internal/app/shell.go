package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"docuflex/internal/blob"
	"docuflex/internal/email"
	"docuflex/internal/history"
	"docuflex/internal/importer"
	"docuflex/internal/logging"
	"docuflex/internal/rbac"
	"docuflex/internal/store"
)

var errQuit = errors.New("quit")

// Shell is the line-oriented front end over a Service. One command per
// line; arguments with spaces are double-quoted.
type Shell struct {
	service   *Service
	in        io.Reader
	out       io.Writer
	readFile  func(string) ([]byte, error)
	writeFile func(string, []byte) error
	logger    *zap.Logger
}

func NewShell(service *Service, in io.Reader, out io.Writer, logger *zap.Logger) *Shell {
	return &Shell{
		service:   service,
		in:        in,
		out:       out,
		readFile:  os.ReadFile,
		writeFile: func(path string, data []byte) error { return os.WriteFile(path, data, 0o644) },
		logger:    logging.OrNop(logger).Named("shell"),
	}
}

// Run reads commands until EOF, quit, or ctx is done. Command errors are
// printed and never end the loop.
func (sh *Shell) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(sh.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	sh.prompt()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-readErr
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			args, err := splitArgs(line)
			if err != nil {
				sh.writeError(validationError(err.Error(), nil))
				sh.prompt()
				continue
			}
			if len(args) > 0 {
				if err := sh.Exec(ctx, args); err != nil {
					if errors.Is(err, errQuit) {
						return nil
					}
					sh.writeError(err)
				}
			}
			sh.prompt()
		}
	}
}

func (sh *Shell) prompt() {
	user := sh.service.CurrentUser()
	folder, _ := sh.service.tree.Find(sh.service.currentFolderID())
	name := store.RootID
	if folder != nil {
		name = folder.Name
	}
	fmt.Fprintf(sh.out, "%s@%s:%s> ", user.Name, sh.service.AppName(), name)
}

func (sh *Shell) writeError(err error) {
	domainErr := mapError(err)
	sh.logger.Debug("command failed", zap.String("code", domainErr.Code), zap.Error(err))
	fmt.Fprintf(sh.out, "error [%s]: %s\n", domainErr.Code, domainErr.Message)
}

func usage(text string) error {
	return validationError("usage: "+text, nil)
}

// Exec runs one parsed command.
func (sh *Shell) Exec(ctx context.Context, args []string) error {
	s := sh.service
	cmd, rest := strings.ToLower(args[0]), args[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprint(sh.out, helpText)
		return nil

	case "quit", "exit":
		return errQuit

	case "whoami":
		u := s.CurrentUser()
		fmt.Fprintf(sh.out, "%s <%s> %s, %s (%s)\n", u.Name, u.Email, u.Role, u.Department, u.ID)
		return nil

	case "users":
		tw := tabwriter.NewWriter(sh.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tROLE\tDEPARTMENT")
		for _, u := range s.Users() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Role, u.Department)
		}
		return tw.Flush()

	case "login":
		if len(rest) != 2 {
			return usage("login <email-or-name> <password>")
		}
		u, err := s.Login(rest[0], rest[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Signed in as %s\n", u.Name)
		return nil

	case "switch":
		if len(rest) != 1 {
			return usage("switch <user-id>")
		}
		u, err := s.SwitchUser(rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Now acting as %s\n", u.Name)
		return nil

	case "profile":
		if len(rest) != 2 {
			return usage("profile <name> <email>")
		}
		u, err := s.UpdateProfile(ProfileInput{Name: rest[0], Email: rest[1]})
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Profile updated: %s <%s>\n", u.Name, u.Email)
		return nil

	case "passwd":
		if len(rest) != 3 {
			return usage("passwd <current> <new> <confirm>")
		}
		if err := s.ChangePassword(rest[0], rest[1], rest[2]); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "Password changed")
		return nil

	case "adduser":
		if len(rest) != 4 {
			return usage("adduser <name> <email> <role> <department>")
		}
		u, err := s.AddUser(UserInput{Name: rest[0], Email: rest[1], Role: rest[2], Department: rest[3]})
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Added %s (%s), default password %q\n", u.Name, u.ID, store.DefaultPassword)
		return nil

	case "edituser":
		if len(rest) != 5 {
			return usage("edituser <user-id> <name> <email> <role> <department>")
		}
		u, err := s.UpdateUser(rest[0], UserInput{Name: rest[1], Email: rest[2], Role: rest[3], Department: rest[4]})
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Updated %s (%s)\n", u.Name, u.ID)
		return nil

	case "appname":
		if len(rest) != 1 {
			return usage("appname <name>")
		}
		return s.SetAppName(rest[0])

	case "ls":
		sh.printListing(s.ListChildren())
		return nil

	case "cd":
		if len(rest) != 1 {
			return usage("cd <folder-id> | .. | /")
		}
		var listing Listing
		var err error
		switch rest[0] {
		case "..":
			listing, err = s.Up()
		case "/":
			listing, err = s.Navigate(store.RootID)
		default:
			listing, err = s.Navigate(rest[0])
		}
		if err != nil {
			return err
		}
		sh.printListing(listing)
		return nil

	case "pwd":
		names := make([]string, 0)
		for _, item := range s.Breadcrumbs() {
			names = append(names, item.Name)
		}
		fmt.Fprintln(sh.out, strings.Join(names, " / "))
		return nil

	case "tree":
		for _, node := range s.FolderTree() {
			fmt.Fprintf(sh.out, "%s%s (%s)\n", strings.Repeat("  ", node.Depth), node.Item.Name, node.Item.ID)
		}
		return nil

	case "recent":
		for i, item := range s.Recent() {
			fmt.Fprintf(sh.out, "%d. %s (%s)\n", i+1, item.Name, item.ID)
		}
		return nil

	case "open", "reopen":
		if len(rest) != 1 {
			return usage(cmd + " <item-id>")
		}
		open := s.Open
		if cmd == "reopen" {
			open = s.OpenRecent
		}
		preview, err := open(ctx, rest[0])
		if err != nil {
			return err
		}
		sh.printPreview(preview)
		return nil

	case "upload":
		if len(rest) < 1 || len(rest) > 2 {
			return usage("upload <path> [name]")
		}
		data, err := sh.readFile(rest[0])
		if err != nil {
			return validationError(fmt.Sprintf("cannot read %s: %v", rest[0], err), nil)
		}
		name := filepath.Base(rest[0])
		if len(rest) == 2 {
			name = rest[1]
		}
		item, err := s.Upload(ctx, UploadInput{Name: name, Data: data})
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Uploaded %s as %s (%s, %s)\n", item.Name, item.ID, item.Type, item.Size)
		return nil

	case "mkdir":
		if len(rest) != 1 {
			return usage("mkdir <name>")
		}
		folder, err := s.NewFolder(rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Created folder %s (%s)\n", folder.Name, folder.ID)
		return nil

	case "rename":
		if len(rest) != 2 {
			return usage("rename <item-id> <name>")
		}
		item, err := s.Rename(rest[0], rest[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Renamed to %s\n", item.Name)
		return nil

	case "share", "share-dept":
		notify := len(rest) == 4 && rest[3] == "--notify"
		if len(rest) != 3 && !notify {
			return usage(cmd + " <item-id> <subject> <read|write|none> [--notify]")
		}
		result, err := s.Share(ShareInput{
			ItemID:     rest[0],
			Subject:    rest[1],
			Department: cmd == "share-dept",
			Access:     rest[2],
			Notify:     notify,
		})
		if err != nil {
			return err
		}
		sh.printGrants(result.Item)
		if result.Delivery != nil {
			sh.printDelivery(*result.Delivery)
		}
		return nil

	case "email":
		if len(rest) != 2 {
			return usage("email <item-id> <recipient>")
		}
		delivery, err := s.EmailLink(rest[0], rest[1])
		if err != nil {
			return err
		}
		sh.printDelivery(delivery)
		return nil

	case "rm":
		if len(rest) != 1 {
			return usage("rm <item-id>")
		}
		result, err := s.Delete(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Deleted %d item(s)\n", len(result.Removed))
		return nil

	case "search":
		if len(rest) == 0 {
			return usage("search [--type=<type>] <text>")
		}
		itemType := ""
		if t, ok := strings.CutPrefix(rest[0], "--type="); ok {
			itemType, rest = t, rest[1:]
		}
		resp, err := s.KeywordSearch(strings.Join(rest, " "), itemType)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%d result(s) via %s\n", resp.Total, resp.Backend)
		for _, r := range resp.Results {
			fmt.Fprintf(sh.out, "  %s [%s] %s\n    %s\n", r.Name, r.Type, r.ID, r.Snippet)
		}
		return nil

	case "ask":
		if len(rest) == 0 {
			return usage("ask <question>")
		}
		answer, err := s.SemanticSearch(ctx, strings.Join(rest, " "))
		if err != nil {
			return err
		}
		for _, passage := range answer.RelevantPassages {
			fmt.Fprintf(sh.out, "> %s\n", passage)
		}
		fmt.Fprintf(sh.out, "\n%s\n", answer.Reasoning)
		return nil

	case "video":
		if len(rest) < 2 {
			return usage("video <output.mp4> <prompt>")
		}
		fmt.Fprintln(sh.out, "Generating video, this can take a few minutes...")
		uri, err := s.GenerateVideo(ctx, strings.Join(rest[1:], " "))
		if err != nil {
			return err
		}
		_, data, err := blob.DecodeDataURI(uri)
		if err != nil {
			return err
		}
		if err := sh.writeFile(rest[0], data); err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Saved %s\n", rest[0])
		return nil

	case "import":
		if len(rest) != 1 {
			return usage("import <workbook.xlsx>")
		}
		data, err := sh.readFile(rest[0])
		if err != nil {
			return validationError(fmt.Sprintf("cannot read %s: %v", rest[0], err), nil)
		}
		job, err := s.ImportSheet(ctx, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Import %s started with %d link(s)\n", job.ID, len(job.Units()))
		return nil

	case "imports":
		if len(rest) != 1 {
			return usage("imports <job-id>")
		}
		job, err := s.ImportStatus(rest[0])
		if err != nil {
			return err
		}
		sh.printJob(job)
		return nil

	case "retry":
		if len(rest) != 1 {
			return usage("retry <job-id>")
		}
		n, err := s.RetryImport(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Retrying %d failed link(s)\n", n)
		return nil

	case "export":
		if len(rest) < 2 || len(rest) > 3 {
			return usage("export <item-id> <pdf|docx> [path]")
		}
		result, err := s.Export(ctx, rest[0], rest[1])
		if err != nil {
			return err
		}
		path := result.Filename
		if len(rest) == 3 {
			path = rest[2]
		}
		if err := sh.writeFile(path, result.Data); err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Wrote %s (%d bytes)\n", path, len(result.Data))
		return nil

	case "history":
		if len(rest) < 1 || len(rest) > 2 {
			return usage("history <item-id> [limit]")
		}
		limit := 10
		if len(rest) == 2 {
			n, err := strconv.Atoi(rest[1])
			if err != nil {
				return usage("history <item-id> [limit]")
			}
			limit = n
		}
		revisions, err := s.History(rest[0], limit)
		if err != nil {
			return err
		}
		for _, rev := range revisions {
			fmt.Fprintf(sh.out, "%s %s %s: %s\n", rev.Hash, rev.When.Format("2006-01-02 15:04"), rev.Author, rev.Message)
			for _, c := range rev.Changes {
				fmt.Fprintf(sh.out, "    %s: %q -> %q\n", c.Field, c.Before, c.After)
			}
		}
		return nil

	case "stats":
		st := s.Stats()
		fmt.Fprintf(sh.out, "folders=%d documents=%d readable=%d users=%d search=%s blob=%s\n",
			st.Folders, st.Documents, st.Readable, st.Users, st.SearchBackend, st.BlobBackend)
		for _, t := range []store.ItemType{store.TypePDF, store.TypeImage, store.TypeDoc, store.TypeExcel} {
			fmt.Fprintf(sh.out, "  %s: %d\n", t, st.ByType[t])
		}
		return nil

	case "metrics":
		return s.WriteMetrics(sh.out)

	case "revision":
		if len(rest) != 2 {
			return usage("revision <item-id> <hash>")
		}
		snap, err := s.Revision(rest[0], rest[1])
		if err != nil {
			return err
		}
		sh.printSnapshot(rest[1], snap)
		return nil

	case "flushai":
		n, err := s.FlushAnswers(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Removed %d cached answer(s)\n", n)
		return nil

	case "loglevel":
		if len(rest) != 1 {
			return usage("loglevel <debug|info|warn|error>")
		}
		if err := s.SetLogLevel(rest[0]); err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Log level set to %s\n", strings.ToLower(rest[0]))
		return nil
	}

	return validationError(fmt.Sprintf("unknown command %q, try help", cmd), nil)
}

func (sh *Shell) printListing(listing Listing) {
	fmt.Fprintf(sh.out, "%s (%s)\n", listing.Folder.Name, listing.Folder.ID)
	if len(listing.Items) == 0 {
		fmt.Fprintln(sh.out, "  (empty)")
		return
	}
	user := sh.service.CurrentUser()
	tw := tabwriter.NewWriter(sh.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tNAME\tTYPE\tMODIFIED\tSIZE\tOWNER\tACCESS")
	for _, item := range listing.Items {
		owner := item.OwnerID
		if u, ok := sh.service.users.Get(item.OwnerID); ok {
			owner = u.Name
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			item.ID, item.Name, item.Type, item.Modified, item.Size, owner, accessLabel(user, item))
	}
	_ = tw.Flush()
}

func (sh *Shell) printPreview(p Preview) {
	if p.Item == nil {
		return
	}
	fmt.Fprintf(sh.out, "%s [%s] %s, %s\n", p.Item.Name, p.Item.Type, p.Item.Modified, p.Item.Size)
	if p.URL != "" {
		url := p.URL
		if strings.HasPrefix(url, "data:") && len(url) > 80 {
			url = url[:80] + "..."
		}
		fmt.Fprintf(sh.out, "url: %s\n", url)
	}
	if p.Content != "" {
		fmt.Fprintf(sh.out, "\n%s\n", p.Content)
	}
}

func (sh *Shell) printGrants(item *store.Item) {
	fmt.Fprintf(sh.out, "Sharing for %s:\n", item.Name)
	for _, id := range sortedKeys(item.Permissions) {
		name := id
		if u, ok := sh.service.users.Get(id); ok {
			name = u.Name
		}
		fmt.Fprintf(sh.out, "  %s: %s\n", name, item.Permissions[id])
	}
	for _, dept := range sortedKeys(item.DepartmentPermissions) {
		fmt.Fprintf(sh.out, "  department %s: %s\n", dept, item.DepartmentPermissions[dept])
	}
}

func (sh *Shell) printSnapshot(hash string, snap history.Snapshot) {
	fmt.Fprintf(sh.out, "%s at %s [%s] owner %s\n", snap.Name, hash, snap.Type, snap.OwnerID)
	if snap.Modified != "" || snap.Size != "" {
		fmt.Fprintf(sh.out, "modified %s, %s\n", snap.Modified, snap.Size)
	}
	for _, id := range sortedKeys(snap.Permissions) {
		fmt.Fprintf(sh.out, "  %s: %s\n", id, snap.Permissions[id])
	}
	for _, dept := range sortedKeys(snap.DepartmentPermissions) {
		fmt.Fprintf(sh.out, "  department %s: %s\n", dept, snap.DepartmentPermissions[dept])
	}
	if snap.Content != "" {
		fmt.Fprintf(sh.out, "\n%s\n", snap.Content)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (sh *Shell) printDelivery(d email.Delivery) {
	if d.Simulated {
		fmt.Fprintf(sh.out, "Email to %s simulated (SMTP not configured): %s\n", d.Recipient, d.Subject)
		return
	}
	fmt.Fprintf(sh.out, "Email sent to %s: %s\n", d.Recipient, d.Subject)
}

func (sh *Shell) printJob(job *importer.Job) {
	counts := job.Counts()
	state := "finished"
	if job.Running() {
		state = "running"
	}
	fmt.Fprintf(sh.out, "Import %s %s: %d success, %d failed, %d pending, %d downloading\n", job.ID, state,
		counts[importer.StatusSuccess], counts[importer.StatusFailed], counts[importer.StatusPending], counts[importer.StatusDownloading])
	for _, u := range job.Units() {
		line := fmt.Sprintf("  %-11s %s  %s", u.Status, u.Link.FolderName, u.Link.URL)
		if u.Err != "" {
			line += "  (" + u.Err + ")"
		}
		fmt.Fprintln(sh.out, line)
	}
	if !job.Running() && job.HasFailed() {
		fmt.Fprintf(sh.out, "Some links failed, run: retry %s\n", job.ID)
	}
}

func accessLabel(user store.User, item *store.Item) string {
	return string(rbac.EffectiveAccess(user, item))
}

// splitArgs splits a command line on spaces, keeping double-quoted runs
// together.
func splitArgs(line string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuotes, hasToken := false, false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			hasToken = true
		case (r == ' ' || r == '\t') && !inQuotes:
			if hasToken {
				args = append(args, current.String())
				current.Reset()
				hasToken = false
			}
		default:
			current.WriteRune(r)
			hasToken = true
		}
	}
	if inQuotes {
		return nil, errors.New("unterminated quote")
	}
	if hasToken {
		args = append(args, current.String())
	}
	return args, nil
}

const helpText = `Session:
  login <email-or-name> <password>   switch <user-id>   whoami   users
  profile <name> <email>             passwd <current> <new> <confirm>
Browse:
  ls   cd <folder-id>|..|/   pwd   tree   recent   open <id>   reopen <id>
Edit:
  upload <path> [name]   mkdir <name>   rename <id> <name>   rm <id>
  share <id> <user> <read|write|none> [--notify]
  share-dept <id> <department> <read|write|none>
  email <id> <recipient>
Find:
  search [--type=<type>] <text>   ask <question>
Import and export:
  import <workbook.xlsx>   imports <job-id>   retry <job-id>
  export <id> <pdf|docx> [path]   history <id> [limit]
  revision <id> <hash>
AI:
  video <output.mp4> <prompt>
Admin:
  adduser <name> <email> <role> <department>
  edituser <user-id> <name> <email> <role> <department>
  appname <name>   stats   metrics   loglevel <level>   flushai
  quit
`
