// Package gitsource keeps a local checkout of a remote git repository of
// content files.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"
)

// Syncer clones or pulls repositories.
type Syncer struct {
	log      *zap.Logger
	progress io.Writer
}

// New returns a Syncer. progress receives git's progress output and may be
// nil.
func New(log *zap.Logger, progress io.Writer) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{log: log, progress: progress}
}

// Sync clones url into localPath if it doesn't exist there yet, or pulls the
// latest changes if it does.
func (s *Syncer) Sync(ctx context.Context, url, localPath string) error {
	_, err := os.Stat(localPath)
	switch {
	case os.IsNotExist(err):
		s.log.Info("cloning repository", zap.String("url", url), zap.String("path", localPath))
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(localPath), err)
		}
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
			URL:      url,
			Progress: s.progress,
		})
		if err != nil {
			os.RemoveAll(localPath)
			return fmt.Errorf("failed to clone repo %s: %w", url, err)
		}
	case err == nil:
		s.log.Info("pulling repository", zap.String("path", localPath))
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}
		err = worktree.PullContext(ctx, &git.PullOptions{
			RemoteName: "origin",
			Progress:   s.progress,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}
	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}
	return nil
}

// IsURL reports whether target looks like a remote git repository rather
// than a local path.
func IsURL(target string) bool {
	if strings.HasPrefix(target, "git@") || strings.HasSuffix(target, ".git") {
		return true
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "ssh", "git":
		return u.Host != ""
	}
	return false
}

// LocalPath maps a repository URL to a checkout directory under baseDir:
// https://github.com/acme/prep.git becomes baseDir/github.com/acme/prep.
func LocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || parsedURL.Scheme == "" {
		// scp-like syntax: git@host:owner/repo.git
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 && hostAndUser[1] != "" {
					return join(baseDir, hostAndUser[1], strings.TrimSuffix(parts[1], ".git"))
				}
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	if parsedURL.Host == "" {
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	return join(baseDir, parsedURL.Hostname(), strings.TrimSuffix(parsedURL.Path, ".git"))
}

func join(baseDir, host, repoPath string) (string, error) {
	p := filepath.Join(baseDir, host, filepath.FromSlash(repoPath))
	rel, err := filepath.Rel(baseDir, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("git URL escapes cache dir: %s/%s", host, repoPath)
	}
	return p, nil
}
