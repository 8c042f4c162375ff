// Package lifecycle owns the session state machine: start, stop, probe
// and outbound send for every registered entity. It is the only writer
// of the registry and of the persisted status mirror.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/telegate/telegate/internal/fanout"
	"github.com/telegate/telegate/internal/ingest"
	"github.com/telegate/telegate/internal/provider"
	"github.com/telegate/telegate/internal/registry"
	"github.com/telegate/telegate/internal/store"
	"github.com/telegate/telegate/internal/telegram"
	"github.com/telegate/telegate/internal/transport"
	"github.com/telegate/telegate/internal/vault"
)

// Error taxonomy surfaced to the API layer.
var (
	ErrNotFound    = errors.New("lifecycle: entity not found")
	ErrNotRunning  = errors.New("lifecycle: session not running")
	ErrBadSecret   = errors.New("lifecycle: webhook secret mismatch")
	ErrUnsupported = errors.New("lifecycle: operation not supported for this entity kind")
)

// NotifyEntityStatus is the notification kind for lifecycle transitions.
const NotifyEntityStatus = "entity_status"

// Cache mirrors status snapshots and persists pull cursors. The Redis
// cache implements it; when disabled everything degrades to no-ops.
type Cache interface {
	SetStatus(ctx context.Context, entity telegram.EntityRef, status string)
	transport.CursorStore
}

// Options carries the controller's wiring knobs.
type Options struct {
	PublicURL    string // externally reachable base for webhook paths
	BridgeURL    string // MTProto bridge endpoint for account streams
	ProbeTimeout time.Duration
	SendTimeout  time.Duration
	QueueSize    int // push adapter delivery queue depth
}

// Controller drives sessions. All public methods are safe for concurrent
// use; per-entity serialization comes from the registry's registration
// semantics, not from a big lock.
type Controller struct {
	opts  Options
	vault vault.Vault
	store store.Gateway
	reg   *registry.Registry
	api   *provider.BotAPI
	sink  transport.Sink
	cache Cache
	pub   fanout.Publisher

	mu      sync.RWMutex
	pushers map[telegram.EntityRef]*transport.Push
}

// New wires a controller.
func New(opts Options, v vault.Vault, st store.Gateway, reg *registry.Registry,
	api *provider.BotAPI, sink transport.Sink, cache Cache, pub fanout.Publisher) *Controller {
	if opts.ProbeTimeout == 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	if opts.SendTimeout == 0 {
		opts.SendTimeout = 15 * time.Second
	}
	return &Controller{
		opts:    opts,
		vault:   v,
		store:   st,
		reg:     reg,
		api:     api,
		sink:    sink,
		cache:   cache,
		pub:     pub,
		pushers: make(map[telegram.EntityRef]*transport.Push),
	}
}

// Start brings an entity's session up: probe the credential, register
// the session, launch the adapter. Starting an already running entity is
// a success no-op. A failed probe never registers anything.
func (c *Controller) Start(ctx context.Context, ref telegram.EntityRef) error {
	ent, err := c.store.GetEntity(ctx, ref)
	if err != nil {
		return err
	}
	if ent == nil {
		return ErrNotFound
	}
	if _, ok := c.reg.Get(ref); ok {
		log.Printf("[Lifecycle] %s already has a session, start is a no-op", ref)
		return nil
	}

	secret, err := c.decryptCredential(ent)
	if err != nil {
		return err
	}

	probeCtx, cancelProbe := context.WithTimeout(ctx, c.opts.ProbeTimeout)
	defer cancelProbe()
	if err := c.probe(probeCtx, ref, secret); err != nil {
		c.setStatus(ctx, ref, string(registry.StatusError))
		return fmt.Errorf("start %s: %w", ref, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	adapter := c.buildAdapter(ref, secret)
	session := registry.NewSession(ref, adapter.Transport(), cancel)
	if !c.reg.Register(session) {
		cancel()
		log.Printf("[Lifecycle] %s: lost registration race, keeping existing session", ref)
		return nil
	}

	if push, ok := adapter.(*transport.Push); ok {
		url := fmt.Sprintf("%s/webhook/%s/%d/%s", c.opts.PublicURL, ref.Kind, ref.ID, transport.WebhookSecret(ref.ID))
		if err := c.api.SetWebhook(probeCtx, secret, url); err != nil {
			c.reg.Unregister(ref)
			cancel()
			return fmt.Errorf("start %s: register webhook: %w", ref, err)
		}
		c.mu.Lock()
		c.pushers[ref] = push
		c.mu.Unlock()
	}

	session.SetStatus(registry.StatusActive)
	c.setStatus(ctx, ref, string(registry.StatusActive))

	go func() {
		err := adapter.Run(runCtx)
		session.Finish()
		if err != nil {
			// The session stays registered in Error state until an
			// explicit stop; there is no automatic restart.
			log.Printf("[Lifecycle] %s: adapter failed: %v", ref, err)
			session.SetStatus(registry.StatusError)
			c.setStatus(context.Background(), ref, string(registry.StatusError))
		}
	}()

	log.Printf("[Lifecycle] %s started (%s transport)", ref, adapter.Transport())
	return nil
}

// Stop tears a session down and blocks until its adapter has exited.
// Stopping an entity with no session is a success no-op.
func (c *Controller) Stop(ctx context.Context, ref telegram.EntityRef) error {
	session, ok := c.reg.Get(ref)
	if !ok {
		log.Printf("[Lifecycle] %s has no session, stop is a no-op", ref)
		return nil
	}

	session.Cancel()
	select {
	case <-session.Done():
	case <-ctx.Done():
		return fmt.Errorf("stop %s: %w", ref, ctx.Err())
	}

	if session.Transport == telegram.TransportPush {
		c.mu.Lock()
		delete(c.pushers, ref)
		c.mu.Unlock()
		c.removeWebhook(ctx, ref)
	}

	c.reg.Unregister(ref)
	c.setStatus(ctx, ref, string(registry.StatusInactive))
	log.Printf("[Lifecycle] %s stopped", ref)
	return nil
}

// TestResult is the outcome of a connectivity probe.
type TestResult struct {
	Entity    telegram.EntityRef `json:"entity"`
	Transport telegram.Transport `json:"transport"`
	OK        bool               `json:"ok"`
	Detail    string             `json:"detail,omitempty"`
}

// Test probes the entity's credential without touching session state.
func (c *Controller) Test(ctx context.Context, ref telegram.EntityRef) (*TestResult, error) {
	ent, err := c.store.GetEntity(ctx, ref)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return nil, ErrNotFound
	}
	secret, err := c.decryptCredential(ent)
	if err != nil {
		return nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.opts.ProbeTimeout)
	defer cancel()

	res := &TestResult{Entity: ref, Transport: telegram.TransportFor(ref.Kind)}
	if ref.Kind == telegram.EntityBot {
		info, err := c.api.GetMe(probeCtx, secret)
		if err != nil {
			res.Detail = err.Error()
			return res, nil
		}
		res.OK = true
		res.Detail = "@" + info.Username
		return res, nil
	}

	if err := provider.ProbeStream(probeCtx, c.opts.BridgeURL, secret); err != nil {
		res.Detail = err.Error()
		return res, nil
	}
	res.OK = true
	res.Detail = "stream reachable"
	return res, nil
}

// EnsureActive reports whether the entity currently holds an active
// session.
func (c *Controller) EnsureActive(ref telegram.EntityRef) error {
	if !c.reg.IsActive(ref) {
		return ErrNotRunning
	}
	return nil
}

// Send delivers an outbound text message through the entity's provider
// and persists it as an outgoing row. Bot entities only, and only while
// the session is active.
func (c *Controller) Send(ctx context.Context, ref telegram.EntityRef, chatID int64, text string) (*store.Message, error) {
	if ref.Kind != telegram.EntityBot {
		return nil, ErrUnsupported
	}
	ent, err := c.store.GetEntity(ctx, ref)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return nil, ErrNotFound
	}
	if err := c.EnsureActive(ref); err != nil {
		return nil, err
	}
	token, err := c.decryptCredential(ent)
	if err != nil {
		return nil, err
	}

	msgID, err := c.sendWithRetry(ctx, ref, token, chatID, text)
	if err != nil {
		return nil, err
	}

	chat, err := c.store.UpsertChat(ctx, ref, chatID, "", "")
	if err != nil {
		return nil, err
	}
	msg, created, err := c.store.UpsertMessage(ctx, chat.RowID, telegram.MessageInfo{
		ProviderID: msgID,
		FromID:     ref.ID,
		Direction:  telegram.Outgoing,
		Text:       text,
	})
	if err != nil {
		return nil, err
	}
	if created {
		notif := telegram.NotificationEvent{
			Kind:      ingest.NotifyNewMessage,
			Entity:    ref,
			ChatRowID: chat.RowID,
			ChatID:    chat.ChatID,
			MessageID: msg.MessageID,
			Title:     chat.Title,
			Content:   msg.Preview(),
		}
		if err := c.pub.Publish(ctx, notif); err != nil {
			log.Printf("[Lifecycle] %s: send notification failed: %v", ref, err)
		}
	}
	return msg, nil
}

// DeliverWebhook routes one webhook body to the entity's push adapter.
func (c *Controller) DeliverWebhook(ref telegram.EntityRef, secret string, upd *telegram.Update) error {
	if ref.Kind != telegram.EntityBot {
		return ErrNotFound
	}
	if secret != transport.WebhookSecret(ref.ID) {
		return ErrBadSecret
	}
	c.mu.RLock()
	push, ok := c.pushers[ref]
	c.mu.RUnlock()
	if !ok {
		return ErrNotRunning
	}
	push.Deliver(upd)
	return nil
}

// EntityStatus is one row of the status report.
type EntityStatus struct {
	Entity    telegram.EntityRef `json:"entity"`
	Username  string             `json:"username,omitempty"`
	Transport telegram.Transport `json:"transport"`
	Status    string             `json:"status"`
	StartedAt *time.Time         `json:"started_at,omitempty"`
}

// Status reports every stored entity with its live session state when
// one exists, falling back to the persisted mirror.
func (c *Controller) Status(ctx context.Context) ([]EntityStatus, error) {
	entities, err := c.store.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]EntityStatus, 0, len(entities))
	for _, ent := range entities {
		row := EntityStatus{
			Entity:    ent.Ref,
			Username:  ent.Username,
			Transport: telegram.TransportFor(ent.Ref.Kind),
			Status:    ent.Status,
		}
		if session, ok := c.reg.Get(ent.Ref); ok {
			row.Status = string(session.Status())
			started := session.StartedAt
			row.StartedAt = &started
		}
		out = append(out, row)
	}
	return out, nil
}

// ResumeActive restarts every entity whose persisted status is active,
// typically after a process restart. Failures are logged per entity and
// do not stop the sweep.
func (c *Controller) ResumeActive(ctx context.Context) {
	entities, err := c.store.ListEntities(ctx)
	if err != nil {
		log.Printf("[Lifecycle] resume sweep failed: %v", err)
		return
	}
	for _, ent := range entities {
		if ent.Status != string(registry.StatusActive) {
			continue
		}
		if err := c.Start(ctx, ent.Ref); err != nil {
			log.Printf("[Lifecycle] resume %s failed: %v", ent.Ref, err)
		}
	}
}

// StopAll stops every live session, for shutdown.
func (c *Controller) StopAll(ctx context.Context) {
	for _, ref := range c.reg.ListActive() {
		if err := c.Stop(ctx, ref); err != nil {
			log.Printf("[Lifecycle] shutdown stop %s failed: %v", ref, err)
		}
	}
}

// --- internal ---

// sendWithRetry tries the provider call once more on a transport error.
// Auth rejections are final.
func (c *Controller) sendWithRetry(ctx context.Context, ref telegram.EntityRef, token string, chatID int64, text string) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, c.opts.SendTimeout)
		msgID, err := c.api.SendMessage(sendCtx, token, chatID, text)
		cancel()
		if err == nil {
			return msgID, nil
		}
		lastErr = err
		if errors.Is(err, provider.ErrUnauthorized) || ctx.Err() != nil {
			break
		}
		log.Printf("[Lifecycle] %s: send attempt %d failed: %v", ref, attempt+1, err)
	}
	return 0, fmt.Errorf("send via %s: %w", ref, lastErr)
}

func (c *Controller) decryptCredential(ent *store.Entity) (string, error) {
	enc := ent.CredentialEnc
	if ent.Ref.Kind == telegram.EntityAccount {
		enc = ent.SessionEnc
		if enc == "" {
			return "", fmt.Errorf("%s has no session string", ent.Ref)
		}
	}
	secret, err := c.vault.Decrypt(enc)
	if err != nil {
		return "", fmt.Errorf("decrypt credential for %s: %w", ent.Ref, err)
	}
	return secret, nil
}

func (c *Controller) probe(ctx context.Context, ref telegram.EntityRef, secret string) error {
	if ref.Kind == telegram.EntityBot {
		_, err := c.api.GetMe(ctx, secret)
		return err
	}
	return provider.ProbeStream(ctx, c.opts.BridgeURL, secret)
}

func (c *Controller) buildAdapter(ref telegram.EntityRef, secret string) transport.Adapter {
	if ref.Kind == telegram.EntityBot {
		return transport.NewPush(ref, c.sink, c.opts.QueueSize)
	}
	return transport.NewPull(ref, c.opts.BridgeURL, secret, c.sink, c.cache)
}

func (c *Controller) removeWebhook(ctx context.Context, ref telegram.EntityRef) {
	ent, err := c.store.GetEntity(ctx, ref)
	if err != nil || ent == nil {
		return
	}
	token, err := c.decryptCredential(ent)
	if err != nil {
		log.Printf("[Lifecycle] %s: cannot decrypt token to remove webhook: %v", ref, err)
		return
	}
	delCtx, cancel := context.WithTimeout(ctx, c.opts.ProbeTimeout)
	defer cancel()
	if err := c.api.DeleteWebhook(delCtx, token); err != nil {
		log.Printf("[Lifecycle] %s: webhook removal failed: %v", ref, err)
	}
}

func (c *Controller) setStatus(ctx context.Context, ref telegram.EntityRef, status string) {
	if err := c.store.UpdateEntityStatus(ctx, ref, status); err != nil {
		log.Printf("[Lifecycle] %s: status persist failed: %v", ref, err)
	}
	c.cache.SetStatus(ctx, ref, status)
	notif := telegram.NotificationEvent{
		Kind:    NotifyEntityStatus,
		Entity:  ref,
		Title:   "Entity status",
		Content: status,
	}
	if err := c.pub.Publish(ctx, notif); err != nil {
		log.Printf("[Lifecycle] %s: status notification failed: %v", ref, err)
	}
}
