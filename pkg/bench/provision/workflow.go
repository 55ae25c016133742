package provision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voicebench/voicebench/pkg/bench/internal"
)

// WorkflowConfig tunes the provisioning sequence.
type WorkflowConfig struct {
	// FreshWindow is how recent an import's imported_at must be for the
	// resource to count as freshly created (and therefore need configuring).
	FreshWindow time.Duration

	// MaxConfigureAttempts bounds the configure retry loop.
	MaxConfigureAttempts int

	// InitialBackoff is the delay after the first failed configure attempt;
	// it doubles after each subsequent failure.
	InitialBackoff time.Duration
}

// DefaultWorkflowConfig returns the standard provisioning knobs: a 60s
// freshness window and up to 5 configure attempts backed off 500ms doubling.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		FreshWindow:          60 * time.Second,
		MaxConfigureAttempts: 5,
		InitialBackoff:       500 * time.Millisecond,
	}
}

// Request describes one import to provision.
type Request struct {
	// Provider names the external platform the resource lives on.
	Provider string
	// ImportID is the external identifier to import.
	ImportID string
	// SecretName names the remote secret wrapping the credential.
	SecretName string
}

// Result is the terminal provisioning state: a usable resource, plus a
// non-nil ConfigWarning when post-import configuration failed but the
// import itself remains usable.
type Result struct {
	Resource      Resource
	Configured    bool
	ConfigWarning error
}

// Workflow runs the strictly sequential secret → import → configure setup.
// Only the configure step is retried, to absorb the remote's read-after-write
// inconsistency (a brief 404 right after creation). Secret or import
// failures abort provisioning outright.
type Workflow struct {
	client *Client
	clock  internal.Clock
	sleep  internal.Sleeper
	log    *slog.Logger
	cfg    WorkflowConfig
}

// NewWorkflow creates a workflow over the given API client.
func NewWorkflow(client *Client, log *slog.Logger, cfg WorkflowConfig) *Workflow {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxConfigureAttempts < 1 {
		cfg.MaxConfigureAttempts = 1
	}
	return &Workflow{
		client: client,
		clock:  internal.SystemClock{},
		sleep:  internal.SystemClock{},
		log:    log,
		cfg:    cfg,
	}
}

// Provision executes the full sequence and returns the usable resource.
func (w *Workflow) Provision(ctx context.Context, req Request) (Result, error) {
	secretRef, err := w.client.CreateSecret(ctx, req.SecretName)
	if err != nil {
		return Result{}, fmt.Errorf("creating secret: %w", err)
	}
	w.log.Info("secret created", "name", req.SecretName)

	res, err := w.client.Import(ctx, req.Provider, secretRef, req.ImportID)
	if err != nil {
		return Result{}, fmt.Errorf("importing %s: %w", req.ImportID, err)
	}
	w.log.Info("resource imported", "id", res.ID, "name", res.Name)

	if !w.isFresh(res) {
		w.log.Info("resource predates this import, skipping configuration", "id", res.ID)
		return Result{Resource: res}, nil
	}

	if err := w.configureWithRetry(ctx, res); err != nil {
		// The import itself is usable; configuration failure only degrades it.
		w.log.Warn("configuration failed, imported resource left as-is",
			"id", res.ID, "error", err)
		return Result{Resource: res, ConfigWarning: err}, nil
	}
	return Result{Resource: res, Configured: true}, nil
}

// isFresh reports whether the import created the resource just now, as
// opposed to returning one imported on a previous run.
func (w *Workflow) isFresh(res Resource) bool {
	if res.ImportedAt.IsZero() {
		return false
	}
	return w.clock.Now().Sub(res.ImportedAt) < w.cfg.FreshWindow
}

// configureWithRetry applies the post-import configuration, retrying only
// 404s: the remote may briefly not know a resource it just created. The
// retry loop is a bounded counter with a doubling delay, never open-ended.
func (w *Workflow) configureWithRetry(ctx context.Context, res Resource) error {
	patch := w.configPatch(res)

	delay := w.cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxConfigureAttempts; attempt++ {
		err := w.client.UpdateResource(ctx, res.ID, patch)
		if err == nil {
			w.log.Info("resource configured", "id", res.ID, "attempt", attempt)
			return nil
		}
		if !IsNotFound(err) {
			// Anything other than read-after-write lag is not worth retrying.
			return err
		}
		lastErr = err
		if attempt < w.cfg.MaxConfigureAttempts {
			w.log.Debug("resource not visible yet, backing off",
				"id", res.ID, "attempt", attempt, "delay", delay)
			if err := w.sleep.Sleep(ctx, delay); err != nil {
				return fmt.Errorf("configure interrupted during backoff: %w", err)
			}
			delay *= 2
		}
	}
	return fmt.Errorf("configure not applied after %d attempts: %w", w.cfg.MaxConfigureAttempts, lastErr)
}

// configPatch builds the benchmark-ready configuration: a collision-resistant
// rename, the voice capability this tool depends on, and display defaults.
func (w *Workflow) configPatch(res Resource) map[string]any {
	suffix := fmt.Sprintf("%s-%s",
		w.clock.Now().UTC().Format("20060102-150405"),
		uuid.NewString()[:8])
	return map[string]any{
		"name":          fmt.Sprintf("%s-%s", res.Name, suffix),
		"voice_enabled": true,
		"display": map[string]any{
			"theme":  "default",
			"layout": "standard",
		},
	}
}
