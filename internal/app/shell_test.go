package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		wantErr bool
	}{
		{line: "ls", want: []string{"ls"}},
		{line: `  mkdir   "Q3 Plans" `, want: []string{"mkdir", "Q3 Plans"}},
		{line: `rename doc-1 ""`, want: []string{"rename", "doc-1", ""}},
		{line: `login "Alice Johnson" pass\tword`, want: []string{"login", "Alice Johnson", `pass\tword`}},
		{line: `mkdir "unterminated`, wantErr: true},
		{line: "", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := splitArgs(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestShellRunsScript(t *testing.T) {
	env := newTestEnv(t, nil)
	script := strings.Join([]string{
		"login alice@example.com password123",
		`mkdir "Q3 Plans"`,
		"cd folder-legal",
		"pwd",
		"switch user-3",
		"whoami",
		"open doc-nda",
		"frobnicate",
		"quit",
		"ls",
	}, "\n")
	var out bytes.Buffer
	sh := NewShell(env.svc, strings.NewReader(script), &out, nil)
	if err := sh.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	output := out.String()
	for _, want := range []string{
		"Signed in as Alice Johnson",
		"Created folder Q3 Plans",
		"My Drive / Legal",
		"Now acting as Charlie Brown",
		"Charlie Brown <charlie@example.com> viewer, Sales (user-3)",
		"error [FORBIDDEN]: You do not have access to this item",
		`error [VALIDATION_ERROR]: unknown command "frobnicate", try help`,
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, output)
		}
	}
	if strings.Contains(output, "(empty)") || strings.Count(output, "Q3 Plans") != 1 {
		t.Fatalf("expected commands after quit to be ignored, got:\n%s", output)
	}
}

func TestShellUploadAndExportUseInjectedFiles(t *testing.T) {
	env := newTestEnv(t, nil)
	var out bytes.Buffer
	sh := NewShell(env.svc, strings.NewReader(""), &out, nil)
	files := map[string][]byte{"/tmp/in/diagram.png": []byte("\x89PNG\r\n\x1a\n")}
	sh.readFile = func(path string) ([]byte, error) { return files[path], nil }
	sh.writeFile = func(path string, data []byte) error {
		files[path] = data
		return nil
	}

	if err := sh.Exec(context.Background(), []string{"upload", "/tmp/in/diagram.png"}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.Contains(out.String(), "Uploaded diagram.png as doc-") {
		t.Fatalf("unexpected upload output %q", out.String())
	}

	err := sh.Exec(context.Background(), []string{"share", "doc-nda"})
	expectCode(t, err, CodeValidation)
}

func TestShellRunStopsOnCancelWithoutInput(t *testing.T) {
	env := newTestEnv(t, nil)
	in, w := io.Pipe()
	defer w.Close()
	var out bytes.Buffer
	sh := NewShell(env.svc, in, &out, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sh.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected Run to return after cancel while waiting for input")
	}
}

func TestShellPrintsGrantsInStableOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	var out bytes.Buffer
	sh := NewShell(env.svc, strings.NewReader(""), &out, nil)
	ctx := context.Background()

	if err := sh.Exec(ctx, []string{"share-dept", "doc-financials", "Sales", "read"}); err != nil {
		t.Fatalf("share-dept: %v", err)
	}
	if err := sh.Exec(ctx, []string{"share-dept", "doc-financials", "Engineering", "read"}); err != nil {
		t.Fatalf("share-dept: %v", err)
	}
	for i := 0; i < 5; i++ {
		out.Reset()
		if err := sh.Exec(ctx, []string{"share", "doc-financials", "user-3", "read"}); err != nil {
			t.Fatalf("share: %v", err)
		}
		got := out.String()
		order := []string{"Alice Johnson: owner", "Bob Williams: read", "Charlie Brown: read", "department Engineering: read", "department Sales: read"}
		last := -1
		for _, want := range order {
			idx := strings.Index(got, want)
			if idx <= last {
				t.Fatalf("expected %q after previous grants, got:\n%s", want, got)
			}
			last = idx
		}
	}
}

func TestShellRevisionAndAdminCommands(t *testing.T) {
	env := newTestEnv(t, nil)
	var out bytes.Buffer
	sh := NewShell(env.svc, strings.NewReader(""), &out, nil)
	ctx := context.Background()

	if err := sh.Exec(ctx, []string{"share", "doc-financials", "user-3", "write"}); err != nil {
		t.Fatalf("share: %v", err)
	}
	revisions, err := env.svc.History("doc-financials", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	baseline := revisions[len(revisions)-1].Hash

	out.Reset()
	if err := sh.Exec(ctx, []string{"revision", "doc-financials", baseline}); err != nil {
		t.Fatalf("revision: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "financials.xlsx at "+baseline) || !strings.Contains(got, "user-2: read") {
		t.Fatalf("unexpected revision output:\n%s", got)
	}
	if strings.Contains(got, "user-3") {
		t.Fatalf("expected baseline to predate the user-3 grant, got:\n%s", got)
	}

	out.Reset()
	if err := sh.Exec(ctx, []string{"flushai"}); err != nil {
		t.Fatalf("flushai: %v", err)
	}
	if !strings.Contains(out.String(), "Removed 0 cached answer(s)") {
		t.Fatalf("unexpected flushai output %q", out.String())
	}

	expectCode(t, sh.Exec(ctx, []string{"loglevel", "loud"}), CodeValidation)
	expectCode(t, sh.Exec(ctx, []string{"revision", "doc-financials"}), CodeValidation)
}
