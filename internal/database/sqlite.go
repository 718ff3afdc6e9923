package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	*sqlStore
}

func OpenSQLite(dsn string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Enable WAL mode and foreign keys
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %s: %w", pragma, err)
		}
	}
	return &SQLiteDB{sqlStore: &sqlStore{db: db, dialect: dialectSQLite}}, nil
}

// sqliteDSN applies the connection pragmas to every pooled connection and makes
// transactions take the write lock up front so writers queue on busy_timeout.
func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
}

func (s *SQLiteDB) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	bio TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	company TEXT NOT NULL DEFAULT '',
	website TEXT NOT NULL DEFAULT '',
	twitter_username TEXT NOT NULL DEFAULT '',
	is_admin BOOLEAN NOT NULL DEFAULT FALSE,
	followers_count INTEGER NOT NULL DEFAULT 0,
	following_count INTEGER NOT NULL DEFAULT 0,
	public_repos_count INTEGER NOT NULL DEFAULT 0,
	private_repos_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS user_follows (
	follower_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	following_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (follower_id, following_id)
);
CREATE INDEX IF NOT EXISTS idx_user_follows_following ON user_follows(following_id);

CREATE TABLE IF NOT EXISTS ssh_keys (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	public_key TEXT NOT NULL,
	fingerprint TEXT NOT NULL UNIQUE,
	key_type TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	last_used DATETIME
);

CREATE TABLE IF NOT EXISTS access_tokens (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	token_hash TEXT NOT NULL UNIQUE,
	token_prefix TEXT NOT NULL,
	scopes TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL,
	last_used DATETIME,
	expires_at DATETIME
);

CREATE TABLE IF NOT EXISTS orgs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	website TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	owner_id INTEGER NOT NULL REFERENCES users(id),
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS org_members (
	org_id INTEGER NOT NULL REFERENCES orgs(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role TEXT NOT NULL CHECK (role IN ('owner', 'admin', 'member')),
	joined_at DATETIME NOT NULL,
	PRIMARY KEY (org_id, user_id)
);

CREATE TABLE IF NOT EXISTS repositories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	org_id INTEGER REFERENCES orgs(id) ON DELETE SET NULL,
	parent_id INTEGER REFERENCES repositories(id) ON DELETE SET NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_private BOOLEAN NOT NULL DEFAULT FALSE,
	is_fork BOOLEAN NOT NULL DEFAULT FALSE,
	default_branch TEXT NOT NULL DEFAULT 'main',
	language TEXT NOT NULL DEFAULT '',
	homepage TEXT NOT NULL DEFAULT '',
	topics TEXT NOT NULL DEFAULT '[]',
	has_issues BOOLEAN NOT NULL DEFAULT TRUE,
	archived BOOLEAN NOT NULL DEFAULT FALSE,
	stars_count INTEGER NOT NULL DEFAULT 0,
	forks_count INTEGER NOT NULL DEFAULT 0,
	watchers_count INTEGER NOT NULL DEFAULT 0,
	open_issues_count INTEGER NOT NULL DEFAULT 0,
	issue_seq INTEGER NOT NULL DEFAULT 0,
	pull_seq INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	pushed_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_repositories_owner_name ON repositories(owner_id, name) WHERE org_id IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_repositories_org_name ON repositories(org_id, name) WHERE org_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_repositories_parent ON repositories(parent_id);

CREATE TABLE IF NOT EXISTS collaborators (
	repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	permission TEXT NOT NULL CHECK (permission IN ('read', 'write', 'admin')),
	added_at DATETIME NOT NULL,
	PRIMARY KEY (repo_id, user_id)
);

CREATE TABLE IF NOT EXISTS branches (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	commit_sha TEXT NOT NULL,
	protected BOOLEAN NOT NULL DEFAULT FALSE,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(repo_id, name)
);

CREATE TABLE IF NOT EXISTS commits (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	sha TEXT NOT NULL,
	author_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
	author_name TEXT NOT NULL,
	author_email TEXT NOT NULL,
	committer_name TEXT NOT NULL,
	committer_email TEXT NOT NULL,
	message TEXT NOT NULL,
	parent_shas TEXT NOT NULL DEFAULT '[]',
	tree_sha TEXT NOT NULL DEFAULT '',
	additions INTEGER NOT NULL DEFAULT 0,
	deletions INTEGER NOT NULL DEFAULT 0,
	committed_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE(repo_id, sha)
);
CREATE INDEX IF NOT EXISTS idx_commits_repo_committed ON commits(repo_id, committed_at);

CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	branch_id INTEGER NOT NULL REFERENCES branches(id) ON DELETE CASCADE,
	path TEXT NOT NULL,
	name TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	sha TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	is_binary BOOLEAN NOT NULL DEFAULT FALSE,
	last_commit_id INTEGER REFERENCES commits(id) ON DELETE SET NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(branch_id, path)
);

CREATE TABLE IF NOT EXISTS issues (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	number INTEGER NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL CHECK (state IN ('open', 'closed')),
	author_id INTEGER NOT NULL REFERENCES users(id),
	locked BOOLEAN NOT NULL DEFAULT FALSE,
	comments_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	closed_at DATETIME,
	UNIQUE(repo_id, number)
);

CREATE TABLE IF NOT EXISTS issue_assignees (
	issue_id INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	PRIMARY KEY (issue_id, user_id)
);

CREATE TABLE IF NOT EXISTS pull_requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	number INTEGER NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL CHECK (state IN ('open', 'closed', 'merged')),
	author_id INTEGER NOT NULL REFERENCES users(id),
	head_repo_id INTEGER REFERENCES repositories(id) ON DELETE SET NULL,
	head_branch TEXT NOT NULL,
	base_branch TEXT NOT NULL,
	head_sha TEXT NOT NULL DEFAULT '',
	base_sha TEXT NOT NULL DEFAULT '',
	draft BOOLEAN NOT NULL DEFAULT FALSE,
	locked BOOLEAN NOT NULL DEFAULT FALSE,
	merged_by_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
	merged_at DATETIME,
	merge_commit_sha TEXT NOT NULL DEFAULT '',
	comments_count INTEGER NOT NULL DEFAULT 0,
	commits_count INTEGER NOT NULL DEFAULT 0,
	additions INTEGER NOT NULL DEFAULT 0,
	deletions INTEGER NOT NULL DEFAULT 0,
	changed_files INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	closed_at DATETIME,
	UNIQUE(repo_id, number)
);

CREATE TABLE IF NOT EXISTS pull_request_assignees (
	pull_request_id INTEGER NOT NULL REFERENCES pull_requests(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	PRIMARY KEY (pull_request_id, user_id)
);

CREATE TABLE IF NOT EXISTS pull_request_reviewers (
	pull_request_id INTEGER NOT NULL REFERENCES pull_requests(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	PRIMARY KEY (pull_request_id, user_id)
);

CREATE TABLE IF NOT EXISTS labels (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	color TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	UNIQUE(repo_id, name)
);

CREATE TABLE IF NOT EXISTS issue_labels (
	issue_id INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	label_id INTEGER NOT NULL REFERENCES labels(id) ON DELETE CASCADE,
	added_at DATETIME NOT NULL,
	PRIMARY KEY (issue_id, label_id)
);

CREATE TABLE IF NOT EXISTS pull_request_labels (
	pull_request_id INTEGER NOT NULL REFERENCES pull_requests(id) ON DELETE CASCADE,
	label_id INTEGER NOT NULL REFERENCES labels(id) ON DELETE CASCADE,
	added_at DATETIME NOT NULL,
	PRIMARY KEY (pull_request_id, label_id)
);

CREATE TABLE IF NOT EXISTS comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	issue_id INTEGER REFERENCES issues(id) ON DELETE CASCADE,
	pull_request_id INTEGER REFERENCES pull_requests(id) ON DELETE CASCADE,
	author_id INTEGER NOT NULL REFERENCES users(id),
	body TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	CHECK ((issue_id IS NULL) <> (pull_request_id IS NULL))
);
CREATE INDEX IF NOT EXISTS idx_comments_issue ON comments(issue_id);
CREATE INDEX IF NOT EXISTS idx_comments_pull_request ON comments(pull_request_id);

CREATE TABLE IF NOT EXISTS reviews (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pull_request_id INTEGER NOT NULL REFERENCES pull_requests(id) ON DELETE CASCADE,
	reviewer_id INTEGER NOT NULL REFERENCES users(id),
	body TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL CHECK (state IN ('pending', 'commented', 'approved', 'changes_requested', 'dismissed')),
	commit_sha TEXT NOT NULL DEFAULT '',
	submitted_at DATETIME,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS review_comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	review_id INTEGER NOT NULL REFERENCES reviews(id) ON DELETE CASCADE,
	pull_request_id INTEGER NOT NULL REFERENCES pull_requests(id) ON DELETE CASCADE,
	author_id INTEGER NOT NULL REFERENCES users(id),
	body TEXT NOT NULL,
	path TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	line INTEGER NOT NULL DEFAULT 0,
	commit_sha TEXT NOT NULL DEFAULT '',
	in_reply_to_id INTEGER REFERENCES review_comments(id) ON DELETE SET NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_review_comments_reply ON review_comments(in_reply_to_id);

CREATE TABLE IF NOT EXISTS stars (
	repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (repo_id, user_id)
);

CREATE TABLE IF NOT EXISTS watches (
	repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (repo_id, user_id)
);

CREATE TABLE IF NOT EXISTS releases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	tag_name TEXT NOT NULL,
	target_commitish TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	draft BOOLEAN NOT NULL DEFAULT FALSE,
	prerelease BOOLEAN NOT NULL DEFAULT FALSE,
	author_id INTEGER NOT NULL REFERENCES users(id),
	created_at DATETIME NOT NULL,
	published_at DATETIME,
	UNIQUE(repo_id, tag_name)
);

CREATE TABLE IF NOT EXISTS release_assets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	release_id INTEGER NOT NULL REFERENCES releases(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
	size INTEGER NOT NULL DEFAULT 0,
	download_count INTEGER NOT NULL DEFAULT 0,
	storage_key TEXT NOT NULL,
	uploader_id INTEGER NOT NULL REFERENCES users(id),
	created_at DATETIME NOT NULL,
	UNIQUE(release_id, name)
);

CREATE TABLE IF NOT EXISTS webhooks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT 'json',
	secret TEXT NOT NULL DEFAULT '',
	events TEXT NOT NULL DEFAULT '[]',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	subject TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	unread BOOLEAN NOT NULL DEFAULT TRUE,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, unread, created_at);

CREATE TABLE IF NOT EXISTS activities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	event_type TEXT NOT NULL,
	repo_id INTEGER REFERENCES repositories(id) ON DELETE SET NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	public BOOLEAN NOT NULL DEFAULT TRUE,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activities_user ON activities(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_activities_repo ON activities(repo_id, created_at);
`
