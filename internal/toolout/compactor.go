// Package toolout keeps oversized tool results out of the context window.
// Large outputs are stored as blobs and replaced in-line by a short summary
// carrying a ref://<id> token.
package toolout

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

const (
	// DefaultThreshold is the output size above which compaction applies.
	DefaultThreshold = 4000
	// MaxSummaryChars bounds the in-context summary, reference included.
	MaxSummaryChars = 2000
	// DefaultRetention is how long stored blobs live before cleanup.
	DefaultRetention = 24 * time.Hour
)

// RefPattern matches blob references embedded in message content.
var RefPattern = regexp.MustCompile(`ref://([0-9a-fA-F-]{36})`)

// Compactor swaps large tool outputs for blob references.
type Compactor struct {
	blobs     store.BlobStore
	threshold int
	retention time.Duration
	logger    *slog.Logger
}

// Option tunes a Compactor.
type Option func(*Compactor)

// WithThreshold overrides the compaction size threshold.
func WithThreshold(n int) Option {
	return func(c *Compactor) { c.threshold = n }
}

// WithRetention overrides the blob retention window.
func WithRetention(d time.Duration) Option {
	return func(c *Compactor) { c.retention = d }
}

// New builds a compactor over the blob store.
func New(blobs store.BlobStore, logger *slog.Logger, opts ...Option) *Compactor {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Compactor{
		blobs:     blobs,
		threshold: DefaultThreshold,
		retention: DefaultRetention,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compact stores the output as a blob when it exceeds the threshold and
// returns the in-context replacement. Small outputs pass through unchanged.
func (c *Compactor) Compact(ctx context.Context, toolName, sessionKey, output string) (string, error) {
	if len(output) <= c.threshold {
		return output, nil
	}

	blob := store.ToolBlob{
		ID:         store.GenNewID(),
		ToolName:   toolName,
		Output:     output,
		SessionKey: sessionKey,
		CreatedAt:  time.Now(),
		CharCount:  len(output),
	}
	blob.Summary = summarize(output, blob.ID)
	if err := c.blobs.SaveBlob(ctx, blob); err != nil {
		return "", fmt.Errorf("compact %s output: %w", toolName, err)
	}
	c.logger.Debug("tool output compacted",
		"tool", toolName, "chars", blob.CharCount, "ref", blob.ID)
	return blob.Summary, nil
}

// Resolve fetches the full output behind a reference token or bare blob id.
func (c *Compactor) Resolve(ctx context.Context, ref string) (store.ToolBlob, error) {
	id := ref
	if m := RefPattern.FindStringSubmatch(ref); m != nil {
		id = m[1]
	}
	return c.blobs.GetBlob(ctx, id)
}

// ExpandRefs replaces every ref:// token in content with the stored output.
// Unresolvable references are left in place.
func (c *Compactor) ExpandRefs(ctx context.Context, content string) string {
	return RefPattern.ReplaceAllStringFunc(content, func(ref string) string {
		blob, err := c.Resolve(ctx, ref)
		if err != nil {
			c.logger.Warn("blob reference unresolvable", "ref", ref, "error", err)
			return ref
		}
		return blob.Output
	})
}

// Cleanup deletes blobs older than the retention window.
func (c *Compactor) Cleanup(ctx context.Context) (int, error) {
	return c.blobs.CleanupBlobs(ctx, time.Now().Add(-c.retention))
}

// summarize builds the in-context stand-in: a head excerpt of the output
// ending with the full-output reference, at most MaxSummaryChars total.
func summarize(output, id string) string {
	ref := fmt.Sprintf("[Full output: ref://%s]", id)
	budget := MaxSummaryChars - len(ref) - 2
	head := strings.TrimSpace(output)
	if len(head) > budget {
		head = head[:budget]
		// Break on a line boundary when one is near.
		if i := strings.LastIndexByte(head, '\n'); i > budget/2 {
			head = head[:i]
		}
		head = strings.TrimRight(head, " \t\n") + "…"
	}
	return head + "\n" + ref
}
