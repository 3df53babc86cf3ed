package domain

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ProjectName identifies one deployed application. It is derived from the
// repository URL and names every per-project resource: the local working
// copy, the remote project directory, the image and container, and the
// proxy site file.
type ProjectName string

// ProjectNameFromRepo derives the project name: the last path segment of
// the repository URL, lowercased, with a trailing ".git" stripped.
func ProjectNameFromRepo(repoURL string) (ProjectName, error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("parse repository url: %w", err)
	}
	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	base = strings.ToLower(strings.TrimSuffix(base, ".git"))
	if base == "" || base == "." || base == "/" {
		return "", fmt.Errorf("repository url %q has no usable name segment", repoURL)
	}
	for _, r := range base {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '.' || r == '-' || r == '_' {
			continue
		}
		return "", fmt.Errorf("repository name %q contains unsupported character %q", base, r)
	}
	return ProjectName(base), nil
}

func (n ProjectName) String() string { return string(n) }

// RemoteDir returns the project directory on the target host for the
// given SSH user.
func (n ProjectName) RemoteDir(sshUser string) string {
	if sshUser == "root" {
		return "/root/" + string(n)
	}
	return "/home/" + sshUser + "/" + string(n)
}
