package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"ms-ledger/internal/config"
	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"
)

// GetM2MToken returns a client-credentials token for service calls, reusing
// a cached one while it is still valid.
func GetM2MToken(ctx context.Context, cfg config.AuthConfig, client *http.Client, cache *RedisTokenCache, log *logger.Logger) (string, error) {
	if cache != nil {
		cached, err := cache.GetToken(ctx)
		if err != nil {
			log.Warn("AUTH", fmt.Sprintf("Token cache read failed: %v", err))
		} else if cached != nil {
			return cached.Token, nil
		}
	}

	tokenResp, err := requestM2MToken(ctx, cfg, client, log)
	if err != nil {
		return "", err
	}

	if cache != nil {
		if err := cache.SetToken(ctx, tokenResp.AccessToken, tokenResp.ExpiresIn); err != nil {
			log.Warn("AUTH", fmt.Sprintf("Token cache write failed: %v", err))
		}
	}
	return tokenResp.AccessToken, nil
}

func requestM2MToken(ctx context.Context, cfg config.AuthConfig, client *http.Client, log *logger.Logger) (*models.M2MTokenResponse, error) {
	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", cfg.KeycloakURL, cfg.KeycloakRealm)
	log.Debug("AUTH", fmt.Sprintf("Requesting M2M token from: %s", tokenURL))

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", cfg.ClientID)
	data.Set("client_secret", cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		log.Error("AUTH", fmt.Sprintf("HTTP request to Keycloak failed: %v", err))
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Error("AUTH", fmt.Sprintf("Keycloak token request failed: %s %s", resp.Status, string(body)))
		return nil, fmt.Errorf("failed to get token, status: %s", resp.Status)
	}

	var tokenResp models.M2MTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response carried no access token")
	}
	log.LogSecurity("M2M_TOKEN", fmt.Sprintf("Obtained service token for %s", cfg.ClientID))
	return &tokenResp, nil
}
