package telemetry

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrMissingCommitHash indicates an associate-commit request with no hash.
var ErrMissingCommitHash = errors.New("commit_hash is required")

// ErrMissingGitCommitSource indicates an associate-commit request with no
// commit_source; unlike commit_author/commit_timestamp it is a required
// field (§4.3, scenario S5).
var ErrMissingGitCommitSource = errors.New("commit_source is required")

// CommitAssociation is the result of applying an associate-commit request to
// a Run (§4.3, scenario S5). It is idempotent per (event_id, commit_hash):
//   - no_commit -> associated: first association.
//   - associated with the same hash: no-op acknowledgment, UpdatedAt untouched.
//   - associated with a different hash: authoritative overwrite, UpdatedAt bumped.
type CommitAssociation struct {
	Hash      string
	Source    GitCommitSource
	Author    string
	Timestamp *time.Time
	Changed   bool // false when the request repeats the already-stored hash
}

// AssociateCommit applies an associate-commit request to r in place,
// returning the resulting association. now is the caller-supplied current
// time, injected for testability.
func AssociateCommit(r *Run, hash, author string, source GitCommitSource, timestamp *time.Time, now time.Time) (CommitAssociation, error) {
	if err := ValidateCommitHash(hash); err != nil {
		return CommitAssociation{}, err
	}

	if source == "" {
		return CommitAssociation{}, ErrMissingGitCommitSource
	}

	if !source.IsValid() {
		return CommitAssociation{}, ErrInvalidGitCommitSource
	}

	if r.GitCommitHash == hash {
		return CommitAssociation{
			Hash:      r.GitCommitHash,
			Source:    r.GitCommitSource,
			Author:    r.GitCommitAuthor,
			Timestamp: r.GitCommitTimestamp,
			Changed:   false,
		}, nil
	}

	r.GitCommitHash = hash
	r.GitCommitAuthor = author
	r.GitCommitSource = source
	r.GitCommitTimestamp = timestamp
	r.UpdatedAt = now

	return CommitAssociation{
		Hash:      hash,
		Source:    source,
		Author:    author,
		Timestamp: timestamp,
		Changed:   true,
	}, nil
}

// gitHost identifies a supported hosting platform and how it builds a
// commit URL from a repo URL and hash.
type gitHost struct {
	domain     string
	commitPath func(repoURL, hash string) string
}

var gitHosts = []gitHost{
	{
		domain: "github.com",
		commitPath: func(repoURL, hash string) string {
			return fmt.Sprintf("%s/commit/%s", repoURL, hash)
		},
	},
	{
		domain: "gitlab.com",
		commitPath: func(repoURL, hash string) string {
			return fmt.Sprintf("%s/-/commit/%s", repoURL, hash)
		},
	},
	{
		domain: "bitbucket.org",
		commitPath: func(repoURL, hash string) string {
			return fmt.Sprintf("%s/commits/%s", repoURL, hash)
		},
	},
}

// NormalizeRepoURL converts a git_repo value (SSH or HTTPS form) into its
// canonical HTTPS web URL, e.g.:
//
//	git@github.com:org/repo.git   -> https://github.com/org/repo
//	https://github.com/org/repo.git -> https://github.com/org/repo
//
// Returns false if the host is not one of the recognized platforms (§4.3:
// "unknown host -> null").
func NormalizeRepoURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	host, path, ok := splitGitRemote(raw)
	if !ok {
		return "", false
	}

	if _, ok := hostEntry(host); !ok {
		return "", false
	}

	path = strings.TrimSuffix(path, ".git")
	path = strings.Trim(path, "/")

	return fmt.Sprintf("https://%s/%s", host, path), true
}

// splitGitRemote extracts the host and repo path from either SSH
// (git@host:org/repo.git) or HTTPS (https://host/org/repo.git) remote forms.
func splitGitRemote(raw string) (host, path string, ok bool) {
	if strings.HasPrefix(raw, "git@") {
		rest := strings.TrimPrefix(raw, "git@")
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 {
			return "", "", false
		}

		return parts[0], parts[1], true
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", false
	}

	return u.Host, u.Path, true
}

func hostEntry(host string) (gitHost, bool) {
	for _, h := range gitHosts {
		if h.domain == host {
			return h, true
		}
	}

	return gitHost{}, false
}

// CommitURL derives the web URL for a specific commit on a run's repo
// (§4.3 GET .../commit-url). Returns false when either the repo or the hash
// is absent, or the host is unrecognized.
func CommitURL(gitRepo, hash string) (string, bool) {
	if hash == "" {
		return "", false
	}

	repoURL, ok := NormalizeRepoURL(gitRepo)
	if !ok {
		return "", false
	}

	host, _, ok := splitGitRemote(gitRepo)
	if !ok {
		return "", false
	}

	entry, ok := hostEntry(host)
	if !ok {
		return "", false
	}

	return entry.commitPath(repoURL, hash), true
}

// RepoURL derives the web URL for a run's repo (§4.3 GET .../repo-url).
func RepoURL(gitRepo string) (string, bool) {
	return NormalizeRepoURL(gitRepo)
}
