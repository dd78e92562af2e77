package methods

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/shell-bridge/backend/internal/protocol"
)

// fileEntry is one row in a directory listing.
type fileEntry struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	IsDirectory  bool   `json:"isDirectory"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modifiedTime"`
}

// searchHit is one match from SearchFiles.
type searchHit struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Content string `json:"content,omitempty"`
}

// ReadFile returns the full contents of a file as a string.
func (c *Core) ReadFile(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	path := req.Params.String("path", "")
	if path == "" {
		c.badRequest(w, req.ID, "File path is required")
		return
	}

	// Filesystem failures, missing paths included, surface as internal
	// errors; 404 is reserved for unknown process and session keys.
	data, err := os.ReadFile(path)
	if err != nil {
		c.fail(w, req.ID, err)
		return
	}

	c.reply(w, req.ID, map[string]any{"content": string(data)})
}

// WriteFile writes content to a file, creating parent directories as
// needed.
func (c *Core) WriteFile(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	path := req.Params.String("path", "")
	if path == "" {
		c.badRequest(w, req.ID, "File path is required")
		return
	}
	content := req.Params.String("content", "")

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			c.fail(w, req.ID, err)
			return
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		c.fail(w, req.ID, err)
		return
	}

	c.reply(w, req.ID, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Wrote %d bytes to %s", len(content), path),
	})
}

// ListDirectory lists the immediate entries of a directory.
func (c *Core) ListDirectory(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	path := req.Params.String("path", ".")

	entries, err := os.ReadDir(path)
	if err != nil {
		c.fail(w, req.ID, err)
		return
	}

	items := make([]fileEntry, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		items = append(items, fileEntry{
			Name:         entry.Name(),
			Path:         filepath.Join(path, entry.Name()),
			IsDirectory:  entry.IsDir(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().UTC().Format("2006-01-02T15:04:05Z"),
		})
	}

	c.reply(w, req.ID, map[string]any{"items": items})
}

// CreateDirectory creates a directory and any missing parents.
func (c *Core) CreateDirectory(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	path := req.Params.String("path", "")
	if path == "" {
		c.badRequest(w, req.ID, "Directory path is required")
		return
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		c.fail(w, req.ID, err)
		return
	}

	c.reply(w, req.ID, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Directory %s created", path),
	})
}

// DeleteFile removes a file or directory tree.
func (c *Core) DeleteFile(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	path := req.Params.String("path", "")
	if path == "" {
		c.badRequest(w, req.ID, "File path is required")
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		c.fail(w, req.ID, err)
		return
	}
	if info.IsDir() {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		c.fail(w, req.ID, err)
		return
	}

	c.reply(w, req.ID, map[string]any{
		"success": true,
		"message": fmt.Sprintf("%s deleted", path),
	})
}

// RenameFile moves a file or directory, creating the target's parent if
// missing.
func (c *Core) RenameFile(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	oldPath := req.Params.String("oldPath", "")
	if oldPath == "" {
		c.badRequest(w, req.ID, "Old path is required")
		return
	}
	newPath := req.Params.String("newPath", "")
	if newPath == "" {
		c.badRequest(w, req.ID, "New path is required")
		return
	}

	if _, err := os.Stat(oldPath); err != nil {
		c.fail(w, req.ID, err)
		return
	}
	if dir := filepath.Dir(newPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			c.fail(w, req.ID, err)
			return
		}
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		c.fail(w, req.ID, err)
		return
	}

	c.reply(w, req.ID, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Renamed %s to %s", oldPath, newPath),
	})
}

// SearchFiles walks a tree matching file names against a glob pattern,
// optionally returning file contents with each hit.
func (c *Core) SearchFiles(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	root := req.Params.String("path", ".")
	pattern := req.Params.String("pattern", "*")
	includeContent := req.Params.Bool("includeContent", false)
	maxDepth := req.Params.Int("maxDepth", -1)

	var hits []searchHit
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if maxDepth >= 0 && p != root && pathDepth(root, p) > maxDepth {
				return fs.SkipDir
			}
			return nil
		}
		matched, matchErr := filepath.Match(pattern, d.Name())
		if matchErr != nil || !matched {
			return matchErr
		}
		hit := searchHit{Path: p, Name: d.Name()}
		if includeContent {
			if data, readErr := os.ReadFile(p); readErr == nil {
				hit.Content = string(data)
			}
		}
		hits = append(hits, hit)
		return nil
	})
	if err != nil {
		c.fail(w, req.ID, err)
		return
	}

	if hits == nil {
		hits = []searchHit{}
	}
	c.reply(w, req.ID, map[string]any{"files": hits})
}

// pathDepth counts path segments of p below root.
func pathDepth(root, p string) int {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}
