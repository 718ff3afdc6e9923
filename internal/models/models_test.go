package models

import "testing"

func TestIsIssueState(t *testing.T) {
	tests := []struct {
		name  string
		state string
		want  bool
	}{
		{name: "open", state: IssueStateOpen, want: true},
		{name: "closed", state: IssueStateClosed, want: true},
		{name: "empty", state: "", want: false},
		{name: "other", state: "draft", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsIssueState(tc.state); got != tc.want {
				t.Fatalf("IsIssueState(%q) = %v, want %v", tc.state, got, tc.want)
			}
		})
	}
}

func TestIsPullRequestState(t *testing.T) {
	tests := []struct {
		name  string
		state string
		want  bool
	}{
		{name: "open", state: PullRequestStateOpen, want: true},
		{name: "closed", state: PullRequestStateClosed, want: true},
		{name: "merged", state: PullRequestStateMerged, want: true},
		{name: "empty", state: "", want: false},
		{name: "other", state: "ready", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsPullRequestState(tc.state); got != tc.want {
				t.Fatalf("IsPullRequestState(%q) = %v, want %v", tc.state, got, tc.want)
			}
		})
	}
}

func TestIsReviewState(t *testing.T) {
	tests := []struct {
		name  string
		state string
		want  bool
	}{
		{name: "pending", state: ReviewStatePending, want: true},
		{name: "approved", state: ReviewStateApproved, want: true},
		{name: "changes_requested", state: ReviewStateChangesRequested, want: true},
		{name: "commented", state: ReviewStateCommented, want: true},
		{name: "dismissed", state: ReviewStateDismissed, want: true},
		{name: "empty", state: "", want: false},
		{name: "other", state: "merged", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsReviewState(tc.state); got != tc.want {
				t.Fatalf("IsReviewState(%q) = %v, want %v", tc.state, got, tc.want)
			}
		})
	}
}

func TestIsOrgRole(t *testing.T) {
	for _, role := range []string{OrgRoleOwner, OrgRoleAdmin, OrgRoleMember} {
		if !IsOrgRole(role) {
			t.Fatalf("IsOrgRole(%q) = false, want true", role)
		}
	}
	if IsOrgRole("write") {
		t.Fatal("IsOrgRole(\"write\") = true, want false")
	}
}

func TestPermissionAtLeast(t *testing.T) {
	tests := []struct {
		have, want string
		ok         bool
	}{
		{have: PermissionAdmin, want: PermissionWrite, ok: true},
		{have: PermissionWrite, want: PermissionWrite, ok: true},
		{have: PermissionWrite, want: PermissionAdmin, ok: false},
		{have: PermissionRead, want: PermissionWrite, ok: false},
		{have: "", want: PermissionRead, ok: false},
		{have: "owner", want: PermissionRead, ok: false},
	}

	for _, tc := range tests {
		if got := PermissionAtLeast(tc.have, tc.want); got != tc.ok {
			t.Fatalf("PermissionAtLeast(%q, %q) = %v, want %v", tc.have, tc.want, got, tc.ok)
		}
	}
	if !IsPermission(PermissionRead) || IsPermission("none") {
		t.Fatal("IsPermission mismatch")
	}
}

func TestRepositoryFullName(t *testing.T) {
	r := Repository{OwnerName: "octo", Name: "hello"}
	if got := r.FullName(); got != "octo/hello" {
		t.Fatalf("FullName() = %q, want octo/hello", got)
	}
}
