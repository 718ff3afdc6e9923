package api

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odvcencio/codehub/internal/auth"
	"github.com/odvcencio/codehub/internal/database"
	"github.com/odvcencio/codehub/internal/service"
)

type middlewareFunc func(http.Handler) http.Handler

// ServerOptions tunes the HTTP edge. The zero value disables rate limiting and
// uses the default body limit and admin allowlist.
type ServerOptions struct {
	TrustedProxies     []string
	AdminCIDRs         []string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
	MaxBodyBytes       int64
	EnablePprof        bool

	// Registerer and Gatherer default to the prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

type Server struct {
	db               database.DB
	authSvc          *auth.Service
	svc              *service.Services
	mux              *http.ServeMux
	handler          http.Handler
	opts             ServerOptions
	clientIPs        clientIPResolver
	adminRouteAccess adminRouteAccess
	limiter          *rateLimiter
	metrics          *httpMetrics
}

func NewServer(db database.DB, authSvc *auth.Service, svc *service.Services, opts ServerOptions) *Server {
	if len(opts.AdminCIDRs) == 0 {
		opts.AdminCIDRs = defaultAdminRouteCIDRs
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = maxAPIBodyBytes
	}
	s := &Server{
		db:        db,
		authSvc:   authSvc,
		svc:       svc,
		mux:       http.NewServeMux(),
		opts:      opts,
		clientIPs: newClientIPResolver(opts.TrustedProxies),
	}
	s.adminRouteAccess = newAdminRouteAccess(opts.AdminCIDRs, s.clientIPs.clientIPFromRequest)
	if opts.Registerer != nil {
		s.metrics = newHTTPMetrics(opts.Registerer)
	} else {
		s.metrics = getDefaultHTTPMetrics()
	}
	if opts.RateLimitRPS > 0 {
		s.limiter = newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst, s.clientIPs.clientIPFromRequest)
	}
	s.routes()
	s.handler = s.buildHandler()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops background maintenance of the rate limiter.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.stop()
	}
}

func (s *Server) buildHandler() http.Handler {
	mws := []middlewareFunc{routeCaptureMiddleware, requestIDMiddleware, recoverMiddleware}
	if s.limiter != nil {
		mws = append(mws, s.limiter.middleware)
	}
	mws = append(mws,
		corsMiddleware(s.opts.CORSAllowedOrigins),
		func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) },
		requestTracingMiddleware,
		func(next http.Handler) http.Handler { return requestMetricsMiddleware(s.metrics, next) },
		requestLoggingMiddleware,
		requestBodyLimitMiddleware(s.opts.MaxBodyBytes),
		auth.Middleware(s.authSvc, s.svc.Users),
		auth.RequireScope,
	)
	return chainMiddleware(captureRoutePattern(s.mux), mws...)
}

// chainMiddleware wraps h so that the first middleware is outermost.
func chainMiddleware(h http.Handler, mws ...middlewareFunc) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", metricsHandler(s.opts.Gatherer))

	// Auth
	s.mux.HandleFunc("POST /api/v1/auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/v1/auth/refresh", s.requireAuth(s.handleRefreshToken))

	// Current user
	s.mux.HandleFunc("GET /api/v1/user", s.requireAuth(s.handleGetCurrentUser))
	s.mux.HandleFunc("PATCH /api/v1/user", s.requireAuth(s.handleUpdateProfile))
	s.mux.HandleFunc("GET /api/v1/user/repos", s.requireAuth(s.handleListCurrentUserRepos))
	s.mux.HandleFunc("GET /api/v1/user/orgs", s.requireAuth(s.handleListCurrentUserOrgs))
	s.mux.HandleFunc("GET /api/v1/user/ssh-keys", s.requireAuth(s.handleListSSHKeys))
	s.mux.HandleFunc("POST /api/v1/user/ssh-keys", s.requireAuth(s.handleCreateSSHKey))
	s.mux.HandleFunc("DELETE /api/v1/user/ssh-keys/{id}", s.requireAuth(s.handleDeleteSSHKey))
	s.mux.HandleFunc("GET /api/v1/user/tokens", s.requireAuth(s.handleListAccessTokens))
	s.mux.HandleFunc("POST /api/v1/user/tokens", s.requireAuth(s.handleCreateAccessToken))
	s.mux.HandleFunc("DELETE /api/v1/user/tokens/{id}", s.requireAuth(s.handleDeleteAccessToken))
	s.mux.HandleFunc("PUT /api/v1/user/following/{username}", s.requireAuth(s.handleFollow))
	s.mux.HandleFunc("DELETE /api/v1/user/following/{username}", s.requireAuth(s.handleUnfollow))
	s.mux.HandleFunc("GET /api/v1/user/dashboard", s.requireAuth(s.handleDashboard))

	// Notifications
	s.mux.HandleFunc("GET /api/v1/notifications", s.requireAuth(s.handleListNotifications))
	s.mux.HandleFunc("GET /api/v1/notifications/count", s.requireAuth(s.handleCountUnreadNotifications))
	s.mux.HandleFunc("PATCH /api/v1/notifications/{id}", s.requireAuth(s.handleSetNotificationUnread))
	s.mux.HandleFunc("PUT /api/v1/notifications/read", s.requireAuth(s.handleMarkAllNotificationsRead))

	// Users
	s.mux.HandleFunc("GET /api/v1/users", s.handleListUsers)
	s.mux.HandleFunc("GET /api/v1/users/{username}", s.handleGetUser)
	s.mux.HandleFunc("GET /api/v1/users/{username}/repos", s.handleListOwnerRepos)
	s.mux.HandleFunc("GET /api/v1/users/{username}/starred", s.handleListStarred)
	s.mux.HandleFunc("GET /api/v1/users/{username}/followers", s.handleListFollowers)
	s.mux.HandleFunc("GET /api/v1/users/{username}/following", s.handleListFollowing)
	s.mux.HandleFunc("GET /api/v1/users/{username}/following/{target}", s.handleCheckFollowing)
	s.mux.HandleFunc("GET /api/v1/users/{username}/events", s.handleUserEvents)
	s.mux.HandleFunc("GET /api/v1/users/{username}/orgs", s.handleListUserOrgs)

	// Organizations
	s.mux.HandleFunc("POST /api/v1/orgs", s.requireAuth(s.handleCreateOrg))
	s.mux.HandleFunc("GET /api/v1/orgs/{org}", s.handleGetOrg)
	s.mux.HandleFunc("PATCH /api/v1/orgs/{org}", s.requireAuth(s.handleUpdateOrg))
	s.mux.HandleFunc("DELETE /api/v1/orgs/{org}", s.requireAuth(s.handleDeleteOrg))
	s.mux.HandleFunc("GET /api/v1/orgs/{org}/members", s.handleListOrgMembers)
	s.mux.HandleFunc("PUT /api/v1/orgs/{org}/members/{username}", s.requireAuth(s.handleSetOrgMember))
	s.mux.HandleFunc("DELETE /api/v1/orgs/{org}/members/{username}", s.requireAuth(s.handleRemoveOrgMember))
	s.mux.HandleFunc("GET /api/v1/orgs/{org}/repos", s.handleListOrgRepos)

	// Repositories
	s.mux.HandleFunc("POST /api/v1/repos", s.requireAuth(s.handleCreateRepo))
	s.mux.HandleFunc("GET /api/v1/repositories", s.handleListPublicRepos)
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}", s.handleGetRepo)
	s.mux.HandleFunc("PATCH /api/v1/repos/{owner}/{repo}", s.requireAuth(s.handleUpdateRepo))
	s.mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}", s.requireAuth(s.handleDeleteRepo))
	s.mux.HandleFunc("PUT /api/v1/repos/{owner}/{repo}/topics", s.requireAuth(s.handleSetTopics))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/permission", s.handleGetPermission)
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/events", s.handleRepoEvents)
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/forks", s.requireAuth(s.handleForkRepo))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/forks", s.handleListForks)
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/collaborators", s.requireAuth(s.handleListCollaborators))
	s.mux.HandleFunc("PUT /api/v1/repos/{owner}/{repo}/collaborators/{username}", s.requireAuth(s.handleSetCollaborator))
	s.mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/collaborators/{username}", s.requireAuth(s.handleRemoveCollaborator))

	// Branches, commits and files
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/branches", s.handleListBranches)
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/branches", s.requireAuth(s.handleCreateBranch))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/branches/{branch...}", s.handleGetBranch)
	s.mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/branches/{branch...}", s.requireAuth(s.handleDeleteBranch))
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/push", s.requireAuth(s.handlePush))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/commits", s.handleListCommits)
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/commits/{sha}", s.handleGetCommit)
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/tree/{ref}", s.handleListFiles)
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/contents/{path...}", s.handleGetFile)

	// Stars and watches
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/stargazers", s.handleListStargazers)
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/star", s.requireAuth(s.handleIsStarred))
	s.mux.HandleFunc("PUT /api/v1/repos/{owner}/{repo}/star", s.requireAuth(s.handleStar))
	s.mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/star", s.requireAuth(s.handleUnstar))
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/star/toggle", s.requireAuth(s.handleToggleStar))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/subscribers", s.handleListWatchers)
	s.mux.HandleFunc("PUT /api/v1/repos/{owner}/{repo}/subscription", s.requireAuth(s.handleWatch))
	s.mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/subscription", s.requireAuth(s.handleUnwatch))
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/subscription/toggle", s.requireAuth(s.handleToggleWatch))

	// Labels
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/labels", s.handleListRepoLabels)
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/labels", s.requireAuth(s.handleCreateLabel))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/labels/{name}", s.handleGetLabel)
	s.mux.HandleFunc("PATCH /api/v1/repos/{owner}/{repo}/labels/{name}", s.requireAuth(s.handleUpdateLabel))
	s.mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/labels/{name}", s.requireAuth(s.handleDeleteLabel))

	// Issues
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/issues", s.requireAuth(s.handleCreateIssue))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/issues", s.handleListIssues)
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/issues/{number}", s.handleGetIssue)
	s.mux.HandleFunc("PATCH /api/v1/repos/{owner}/{repo}/issues/{number}", s.requireAuth(s.handleUpdateIssue))
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/issues/{number}/comments", s.requireAuth(s.handleCreateIssueComment))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/issues/{number}/comments", s.handleListIssueComments)
	s.mux.HandleFunc("PATCH /api/v1/repos/{owner}/{repo}/issues/comments/{id}", s.requireAuth(s.handleEditIssueComment))
	s.mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/issues/comments/{id}", s.requireAuth(s.handleDeleteIssueComment))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/issues/{number}/assignees", s.handleListIssueAssignees)
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/issues/{number}/assignees", s.requireAuth(s.handleAddIssueAssignees))
	s.mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/issues/{number}/assignees/{username}", s.requireAuth(s.handleRemoveIssueAssignee))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/issues/{number}/labels", s.handleListIssueLabels)
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/issues/{number}/labels", s.requireAuth(s.handleAddIssueLabels))
	s.mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/issues/{number}/labels/{name}", s.requireAuth(s.handleRemoveIssueLabel))

	// Pull requests
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/pulls", s.requireAuth(s.handleCreatePR))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/pulls", s.handleListPRs)
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/pulls/{number}", s.handleGetPR)
	s.mux.HandleFunc("PATCH /api/v1/repos/{owner}/{repo}/pulls/{number}", s.requireAuth(s.handleUpdatePR))
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/pulls/{number}/merge", s.requireAuth(s.handleMergePR))
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/pulls/{number}/comments", s.requireAuth(s.handleCreatePRComment))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/pulls/{number}/comments", s.handleListPRComments)
	s.mux.HandleFunc("PATCH /api/v1/repos/{owner}/{repo}/pulls/comments/{id}", s.requireAuth(s.handleEditPRComment))
	s.mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/pulls/comments/{id}", s.requireAuth(s.handleDeletePRComment))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/pulls/{number}/requested_reviewers", s.handleListPRReviewers)
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/pulls/{number}/requested_reviewers", s.requireAuth(s.handleRequestPRReviewers))
	s.mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/pulls/{number}/requested_reviewers/{username}", s.requireAuth(s.handleRemovePRReviewer))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/pulls/{number}/assignees", s.handleListPRAssignees)
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/pulls/{number}/assignees", s.requireAuth(s.handleAddPRAssignees))
	s.mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/pulls/{number}/assignees/{username}", s.requireAuth(s.handleRemovePRAssignee))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/pulls/{number}/labels", s.handleListPRLabels)
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/pulls/{number}/labels", s.requireAuth(s.handleAddPRLabels))
	s.mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/pulls/{number}/labels/{name}", s.requireAuth(s.handleRemovePRLabel))

	// Reviews
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/pulls/{number}/reviews", s.handleListReviews)
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/pulls/{number}/reviews", s.requireAuth(s.handleCreateReview))
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/pulls/{number}/reviews/{id}/events", s.requireAuth(s.handleSubmitReview))
	s.mux.HandleFunc("PUT /api/v1/repos/{owner}/{repo}/pulls/{number}/reviews/{id}/dismissals", s.requireAuth(s.handleDismissReview))
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/pulls/{number}/reviews/{id}/comments", s.requireAuth(s.handleCreateReviewComment))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/pulls/{number}/review-comments", s.handleListReviewComments)
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/pulls/{number}/review-comments/{id}/thread", s.handleListReviewThread)

	// Releases
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/releases", s.handleListReleases)
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/releases", s.requireAuth(s.handleCreateRelease))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/releases/tags/{tag}", s.handleGetRelease)
	s.mux.HandleFunc("PATCH /api/v1/repos/{owner}/{repo}/releases/tags/{tag}", s.requireAuth(s.handleUpdateRelease))
	s.mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/releases/tags/{tag}", s.requireAuth(s.handleDeleteRelease))
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/releases/tags/{tag}/assets", s.requireAuth(s.handleUploadReleaseAsset))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/releases/tags/{tag}/assets/{id}", s.handleDownloadReleaseAsset)
	s.mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/releases/tags/{tag}/assets/{id}", s.requireAuth(s.handleDeleteReleaseAsset))

	// Webhooks
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/hooks", s.requireAuth(s.handleListWebhooks))
	s.mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/hooks", s.requireAuth(s.handleCreateWebhook))
	s.mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/hooks/{id}", s.requireAuth(s.handleGetWebhook))
	s.mux.HandleFunc("PATCH /api/v1/repos/{owner}/{repo}/hooks/{id}", s.requireAuth(s.handleUpdateWebhook))
	s.mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/hooks/{id}", s.requireAuth(s.handleDeleteWebhook))

	// Site administration
	s.mux.Handle("GET /api/v1/admin/health", s.adminRouteAccess.wrap(s.requireSiteAdmin(s.handleAdminHealth)))
	s.mux.Handle("POST /api/v1/admin/reconcile", s.adminRouteAccess.wrap(s.requireSiteAdmin(s.handleAdminReconcile)))
	s.mux.Handle("POST /api/v1/admin/import", s.requireAuth(s.handleImport))
	if s.opts.EnablePprof {
		s.registerPprofRoutes()
	}
}

func (s *Server) requireAuth(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.GetClaims(r.Context()) == nil {
			jsonError(w, "authentication required", http.StatusUnauthorized)
			return
		}
		fn(w, r)
	}
}

// requireSiteAdmin admits only authenticated site administrators.
func (s *Server) requireSiteAdmin(fn http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := s.actor(w, r)
		if !ok {
			return
		}
		if !actor.IsAdmin {
			jsonError(w, "site administrator required", http.StatusForbidden)
			return
		}
		fn(w, r)
	})
}
