package service

import (
	"github.com/google/go-github/v57/github"

	"github.com/odvcencio/codehub/internal/auth"
	"github.com/odvcencio/codehub/internal/database"
	"github.com/odvcencio/codehub/internal/storage"
)

// Services wires every domain service over one database and blob store.
type Services struct {
	Access        *AccessService
	Activity      *ActivityService
	Notifications *NotificationService
	Users         *UserService
	Orgs          *OrgService
	Repos         *RepoService
	Issues        *IssueService
	Pulls         *PullService
	Labels        *LabelService
	Releases      *ReleaseService
	Webhooks      *WebhookService
	Reconcile     *ReconcileService
	Import        *ImportService
}

// New builds the service set. A nil GitHub client disables repository import.
func New(db database.DB, authSvc *auth.Service, blobs storage.Backend, gh *github.Client) *Services {
	access := NewAccessService(db)
	activity := NewActivityService(db, access)
	notify := NewNotificationService(db)
	s := &Services{
		Access:        access,
		Activity:      activity,
		Notifications: notify,
		Users:         NewUserService(db, authSvc, activity),
		Orgs:          NewOrgService(db),
		Repos:         NewRepoService(db, access, activity, blobs),
		Issues:        NewIssueService(db, access, notify, activity),
		Pulls:         NewPullService(db, access, notify, activity),
		Labels:        NewLabelService(db, access),
		Releases:      NewReleaseService(db, access, notify, activity, blobs),
		Webhooks:      NewWebhookService(db, access),
		Reconcile:     NewReconcileService(db),
	}
	if gh != nil {
		s.Import = NewImportService(gh, s.Repos, s.Labels)
	}
	return s
}
