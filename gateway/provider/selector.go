package provider

import (
	"context"
	"net/http"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/zentria/wagate/core/config"
	domainProvider "github.com/zentria/wagate/gateway/domain/provider"
	"github.com/zentria/wagate/gateway/domain/session"
	"github.com/zentria/wagate/gateway/repository"
)

// WorkspaceCredentialsSource supplies the cloud-API credentials the adapter
// factory needs; the gateway never mutates workspace records.
type WorkspaceCredentialsSource interface {
	GetCredentials(ctx context.Context, workspaceID string) (repository.WorkspaceCredentials, error)
}

// AdapterFactory builds a ready-to-use adapter from a session record.
// Construction is stateless per call; adapters hold configuration only.
type AdapterFactory struct {
	workspaces WorkspaceCredentialsSource
	cloudCfg   config.CloudAPIConfig
	security   config.SecurityConfig
	instances  config.InstancesConfig
	httpClient *http.Client
}

func NewAdapterFactory(workspaces WorkspaceCredentialsSource, cfg *config.Config) *AdapterFactory {
	return &AdapterFactory{
		workspaces: workspaces,
		cloudCfg:   cfg.CloudAPI,
		security:   cfg.Security,
		instances:  cfg.Instances,
		httpClient: &http.Client{Timeout: cfg.Instances.SendTimeout},
	}
}

// ForSession instantiates the adapter matching the session's provider kind.
func (f *AdapterFactory) ForSession(ctx context.Context, s *session.Session) (domainProvider.Adapter, error) {
	switch s.Provider {
	case session.ProviderCloudAPI:
		creds, err := f.workspaces.GetCredentials(ctx, s.WorkspaceID)
		if err != nil {
			return nil, err
		}
		if !creds.Enabled {
			return nil, repository.ErrWorkspaceDisabled
		}
		return NewCloudAPIAdapter(f.cloudCfg.BaseURL, creds.CloudAPIToken, creds.PhoneNumberID,
			&http.Client{Timeout: f.cloudCfg.Timeout}), nil
	case session.ProviderBrowserAutomation:
		return NewBrowserAdapter(s.Instance.URL, s.ID, s.WorkspaceID,
			f.security.WorkerAPIToken, f.security.HMACSecret, f.httpClient), nil
	default:
		return nil, session.ErrSessionNotFound
	}
}

// Selector resolves which session (and therefore which adapter) carries a
// given send. It is a pure selection layer: it never mutates session status,
// so it is safe to call mid-send and concurrently across workspaces.
type Selector struct {
	sessions session.Repository
	factory  *AdapterFactory
}

func NewSelector(sessions session.Repository, factory *AdapterFactory) *Selector {
	return &Selector{sessions: sessions, factory: factory}
}

// Select returns the adapter for an explicit session, or picks one for the
// workspace: the primary connected session wins; otherwise the connected
// session with the highest health score, ties broken by lowest session ID.
func (sel *Selector) Select(ctx context.Context, workspaceID, sessionID string) (domainProvider.Adapter, *session.Session, error) {
	if sessionID != "" {
		s, err := sel.sessions.GetByID(ctx, sessionID)
		if err != nil {
			return nil, nil, err
		}
		if s.Status != session.StatusConnected {
			return nil, nil, session.ErrSessionNotActive
		}
		adapter, err := sel.factory.ForSession(ctx, s)
		if err != nil {
			return nil, nil, err
		}
		return adapter, s, nil
	}

	candidates, err := sel.sessions.ConnectedByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}
	if len(candidates) == 0 {
		return nil, nil, session.ErrNoActiveSession
	}

	// Repository ordering is is_primary desc, health_score desc, id asc;
	// the head is the selection result.
	chosen := candidates[0]
	logrus.WithFields(logrus.Fields{
		"workspace_id": workspaceID,
		"session_id":   chosen.ID,
		"primary":      chosen.IsPrimary,
		"health":       chosen.HealthScore,
	}).Debug("[SELECTOR] Session selected")

	adapter, err := sel.factory.ForSession(ctx, chosen)
	if err != nil {
		return nil, nil, err
	}
	return adapter, chosen, nil
}

// Failover selects among the other connected sessions of the workspace,
// ranked strictly by health score descending (primary preference does not
// apply after a known failure), ties broken by lowest session ID. The failed
// session's status is left untouched; marking it is the health monitor's job.
func (sel *Selector) Failover(ctx context.Context, workspaceID, failedSessionID string) (domainProvider.Adapter, *session.Session, error) {
	candidates, err := sel.sessions.ConnectedByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}

	alternatives := make([]*session.Session, 0, len(candidates))
	for _, s := range candidates {
		if s.ID != failedSessionID {
			alternatives = append(alternatives, s)
		}
	}
	if len(alternatives) == 0 {
		return nil, nil, session.ErrNoBackupProvider
	}

	sort.Slice(alternatives, func(i, j int) bool {
		if alternatives[i].HealthScore != alternatives[j].HealthScore {
			return alternatives[i].HealthScore > alternatives[j].HealthScore
		}
		return alternatives[i].ID < alternatives[j].ID
	})

	chosen := alternatives[0]
	logrus.WithFields(logrus.Fields{
		"workspace_id": workspaceID,
		"failed":       failedSessionID,
		"session_id":   chosen.ID,
		"health":       chosen.HealthScore,
	}).Info("[SELECTOR] Failover selection")

	adapter, err := sel.factory.ForSession(ctx, chosen)
	if err != nil {
		return nil, nil, err
	}
	return adapter, chosen, nil
}
