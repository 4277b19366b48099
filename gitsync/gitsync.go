// Package gitsync is the publish step: stage artifacts, commit, push. It is
// a boundary around the git CLI; failures come back as errors and callers
// report them as degraded success ("created but not pushed").
package gitsync

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	retry "github.com/StirlingMarketingGroup/go-retry"
)

const pushAttempts = 3

type Syncer struct {
	dir     string
	author  string
	email   string
	enabled bool
	logger  *slog.Logger
}

func New(dir, author, email string, enabled bool, logger *slog.Logger) *Syncer {
	return &Syncer{dir: dir, author: author, email: email, enabled: enabled, logger: logger}
}

// PublishPage stages the page, the homepage document, and any media files,
// commits, and pushes.
func (s *Syncer) PublishPage(filename, title string, mediaFiles []string) error {
	if !s.enabled {
		return nil
	}

	paths := []string{"Pages/" + filename, "index.html"}
	for _, media := range mediaFiles {
		paths = append(paths, strings.TrimPrefix(media, "../"))
	}
	for _, path := range paths {
		if err := s.git("add", path); err != nil {
			// The homepage and media adds are best-effort; only the page
			// itself is required to stage.
			if path == paths[0] {
				return fmt.Errorf("git add %s: %w", path, err)
			}
			if s.logger != nil {
				s.logger.Warn("git add failed", "path", path, "err", err)
			}
		}
	}

	message := fmt.Sprintf("Add new page: %s", title)
	if len(mediaFiles) > 0 {
		message = fmt.Sprintf("Add new page with media: %s", title)
	}
	if err := s.commit(message); err != nil {
		return err
	}
	return s.push()
}

// PublishDeletion removes the page from git, stages the homepage, commits,
// and pushes.
func (s *Syncer) PublishDeletion(filename, title string) error {
	if !s.enabled {
		return nil
	}

	if err := s.git("rm", "--ignore-unmatch", "Pages/"+filename); err != nil {
		return fmt.Errorf("git rm: %w", err)
	}
	if err := s.git("add", "index.html"); err != nil {
		return fmt.Errorf("git add index.html: %w", err)
	}
	if err := s.commit(fmt.Sprintf("Delete page: %s", title)); err != nil {
		return err
	}
	return s.push()
}

func (s *Syncer) commit(message string) error {
	err := s.git("-c", "user.name="+s.author, "-c", "user.email="+s.email, "commit", "-m", message)
	if err != nil {
		return fmt.Errorf("git commit: %w", err)
	}
	return nil
}

func (s *Syncer) push() error {
	err := retry.Retry(func() error {
		return s.git("push")
	}, pushAttempts, func(err error) error {
		if s.logger != nil {
			s.logger.Warn("git push failed, retrying", "err", err)
		}
		return nil
	}, func() error {
		return nil
	})
	if err != nil {
		return fmt.Errorf("git push: %w", err)
	}
	return nil
}

func (s *Syncer) git(args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = s.dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	if s.logger != nil {
		s.logger.Debug("git", "args", strings.Join(args, " "))
	}
	return nil
}
