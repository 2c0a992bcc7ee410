// Package notify carries the fire-and-forget post-publish hook: the
// publish webhook. It absorbs its own errors; a failing hook never
// affects a committed publish. There is no off-site backup scheduler.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xrey167/molthub/orm"
)

// Webhook POSTs a JSON event to a configured URL after each publish.
type Webhook struct {
	URL    string
	client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		URL:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type publishEvent struct {
	Event       string    `json:"event"`
	Slug        string    `json:"slug"`
	Version     string    `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	PublishedAt time.Time `json:"publishedAt"`
}

func (w *Webhook) Published(ctx context.Context, skill *orm.Skill, version *orm.SkillVersion) {
	payload, err := json.Marshal(publishEvent{
		Event:       "skill.published",
		Slug:        skill.Slug,
		Version:     version.Version,
		Fingerprint: version.Fingerprint,
		PublishedAt: version.CreatedAt,
	})
	if err != nil {
		log.Error().Err(err).Msg("webhook payload marshal failed")

		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		log.Error().Err(err).Msg("webhook request build failed")

		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("slug", skill.Slug).Msg("publish webhook failed")

		return
	}
	_ = resp.Body.Close()

	log.Debug().
		Str("slug", skill.Slug).
		Str("version", version.Version).
		Int("status", resp.StatusCode).
		Msg("publish webhook delivered")
}
