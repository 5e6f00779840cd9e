package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"ms-ledger/internal/config"
	"ms-ledger/internal/logger"
)

// OrganizerVerifier asks the event service whether a user belongs to the
// organization running an event. In dev mode every user is an organizer.
type OrganizerVerifier struct {
	Cfg    config.AuthConfig
	Client *http.Client
	Cache  *RedisTokenCache
	Logger *logger.Logger
}

func NewOrganizerVerifier(cfg config.AuthConfig, client *http.Client, cache *RedisTokenCache, log *logger.Logger) *OrganizerVerifier {
	return &OrganizerVerifier{Cfg: cfg, Client: client, Cache: cache, Logger: log}
}

// IsOrganizer reports whether userID is a member of organizationID.
func (v *OrganizerVerifier) IsOrganizer(ctx context.Context, organizationID, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	if v.Cfg.DevMode {
		return true, nil
	}
	if v.Cfg.EventServiceURL == "" {
		v.Logger.Error("CONFIG", "EVENT_SERVICE_URL environment variable not set")
		return false, fmt.Errorf("EVENT_SERVICE_URL not set")
	}

	token, err := GetM2MToken(ctx, v.Cfg, v.Client, v.Cache, v.Logger)
	if err != nil {
		return false, fmt.Errorf("get M2M token: %w", err)
	}

	q := url.Values{}
	q.Set("organizationId", organizationID)
	q.Set("userId", userID)
	requestURL := fmt.Sprintf("%s/internal/v1/organizations/verify-ownership?%s", v.Cfg.EventServiceURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Add("Authorization", "Bearer "+token)

	resp, err := v.Client.Do(req)
	if err != nil {
		v.Logger.Error("HTTP", fmt.Sprintf("Organization ownership request failed: %v", err))
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("organization ownership verification failed with status: %s", resp.Status)
	}

	var isMember bool
	if err := json.NewDecoder(resp.Body).Decode(&isMember); err != nil {
		return false, fmt.Errorf("decode ownership response: %w", err)
	}

	v.Logger.Debug("AUTH", fmt.Sprintf("User %s membership of organization %s: %v", userID, organizationID, isMember))
	return isMember, nil
}
