package structure

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/errors"
	"github.com/c360/kgraph/metric"
	"github.com/c360/kgraph/types"
)

// DocumentChange is the before/after shape of one written document. A create
// has no before, a delete has no after, an update has both.
type DocumentChange struct {
	Before *types.CacheEvictionPlan
	After  *types.CacheEvictionPlan
}

// CacheControllerConfig bounds the deferred eviction backlog.
type CacheControllerConfig struct {
	DeferDelay time.Duration `yaml:"deferDelay"`
	DeferLimit int           `yaml:"deferLimit"`
}

// MarshalYAML writes the delay as a duration string so saved documents can
// be read back; the decoder rejects bare nanosecond integers.
func (c CacheControllerConfig) MarshalYAML() (any, error) {
	return struct {
		DeferDelay string `yaml:"deferDelay"`
		DeferLimit int    `yaml:"deferLimit"`
	}{c.DeferDelay.String(), c.DeferLimit}, nil
}

// DefaultCacheControllerConfig returns the default deferral bounds.
func DefaultCacheControllerConfig() CacheControllerConfig {
	return CacheControllerConfig{
		DeferDelay: 30 * time.Second,
		DeferLimit: 1000,
	}
}

// CacheController translates document writes into structure cache evictions.
// It compares the before and after shape of every written document and
// evicts exactly the reflection entries whose answers may have changed.
// Spaces flagged for deferral batch their evictions: bulk ingests into such
// spaces would otherwise thrash the caches on every write.
type CacheController struct {
	repository *Repository
	logger     *slog.Logger
	metrics    *metric.Metrics
	config     CacheControllerConfig

	mu       sync.Mutex
	deferred map[deferredEviction]time.Time
}

type deferredEviction struct {
	kind     string
	stage    types.Stage
	space    types.SpaceName
	typeName string
	property string
}

const (
	evictKindSpaces      = "spaces"
	evictKindTypes       = "types"
	evictKindProperties  = "properties"
	evictKindTargetTypes = "targetTypes"
)

// NewCacheController wires a cache controller.
func NewCacheController(repository *Repository, config CacheControllerConfig, logger *slog.Logger, metrics *metric.MetricsRegistry) (*CacheController, error) {
	if repository == nil {
		return nil, errors.WrapInvalid(nil, "structure", "NewCacheController", "repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.DeferDelay <= 0 {
		config.DeferDelay = DefaultCacheControllerConfig().DeferDelay
	}
	if config.DeferLimit <= 0 {
		config.DeferLimit = DefaultCacheControllerConfig().DeferLimit
	}
	c := &CacheController{
		repository: repository,
		logger:     logger.With("component", "cacheController"),
		config:     config,
		deferred:   map[deferredEviction]time.Time{},
	}
	if metrics != nil {
		c.metrics = metrics.CoreMetrics()
	}
	return c, nil
}

// Evict applies the evictions required by a batch of document writes at a
// stage.
func (c *CacheController) Evict(ctx context.Context, stage types.Stage, changes []DocumentChange) error {
	if len(changes) == 0 {
		return nil
	}
	deferredSpaces, err := c.deferredSpaces(ctx)
	if err != nil {
		return err
	}
	relevantEdges, err := c.relevantEdgeSet(ctx, stage)
	if err != nil {
		return err
	}

	evictions := map[deferredEviction]bool{}
	add := func(kind string, space types.SpaceName, typeName, property string) {
		evictions[deferredEviction{kind: kind, stage: stage, space: space, typeName: typeName, property: property}] = true
	}

	spaceListChanged, err := c.spaceListChanged(ctx, stage, changes)
	if err != nil {
		return err
	}
	if spaceListChanged {
		add(evictKindSpaces, "", "", "")
	}

	for _, change := range changes {
		switch {
		case change.Before == nil && change.After != nil:
			c.collectSide(add, *change.After, relevantEdges)
		case change.Before != nil && change.After == nil:
			c.collectSide(add, *change.Before, relevantEdges)
		case change.Before != nil && change.After != nil:
			c.collectUpdate(add, *change.Before, *change.After, relevantEdges)
		}
	}

	now := time.Now()
	for eviction := range evictions {
		if eviction.kind != evictKindSpaces && deferredSpaces[eviction.space] {
			c.deferEviction(eviction, now)
			continue
		}
		c.applyEviction(eviction)
	}
	c.recordBacklog()
	return nil
}

// collectSide registers the evictions for one side of a create or delete:
// the reflected types of its space, the properties of each of its types, and
// the target types of every (type, edge property) pair.
func (c *CacheController) collectSide(add func(kind string, space types.SpaceName, typeName, property string), plan types.CacheEvictionPlan, relevantEdges map[string]bool) {
	if len(plan.Types) > 0 {
		add(evictKindTypes, types.SpaceName(plan.Space), "", "")
	}
	for _, typeName := range plan.Types {
		add(evictKindProperties, types.SpaceName(plan.Space), typeName, "")
	}
	c.collectTargets(add, plan, relevantEdges)
}

// collectTargets registers target-type evictions for every property of the
// plan that is backed by a relevant edge collection.
func (c *CacheController) collectTargets(add func(kind string, space types.SpaceName, typeName, property string), plan types.CacheEvictionPlan, relevantEdges map[string]bool) {
	for _, property := range plan.Properties {
		if !relevantEdges[aql.FromProperty(property).Name] {
			continue
		}
		for _, typeName := range plan.Types {
			add(evictKindTargetTypes, types.SpaceName(plan.Space), typeName, property)
		}
	}
}

func (c *CacheController) collectUpdate(add func(kind string, space types.SpaceName, typeName, property string), before, after types.CacheEvictionPlan, relevantEdges map[string]bool) {
	// Edge values can move without the type or property lists changing, so
	// target-type reflections are stale after every update. The plan does
	// not carry edge values, so both snapshots are invalidated wholesale.
	c.collectTargets(add, before, relevantEdges)
	c.collectTargets(add, after, relevantEdges)

	if before.SameShape(after) {
		return
	}

	changedTypes := symmetricDifference(before.Types, after.Types)
	if len(changedTypes) > 0 {
		add(evictKindTypes, types.SpaceName(before.Space), "", "")
		add(evictKindTypes, types.SpaceName(after.Space), "", "")
	}

	propertiesChanged := !sameStringSet(before.Properties, after.Properties)
	// Types whose property view changed: the changed types always, and
	// every before+after type when the property list itself changed.
	typesForProperties := changedTypes
	if propertiesChanged {
		typesForProperties = unionStrings(before.Types, after.Types)
	}
	for _, typeName := range typesForProperties {
		add(evictKindProperties, types.SpaceName(before.Space), typeName, "")
		add(evictKindProperties, types.SpaceName(after.Space), typeName, "")
	}
}

func (c *CacheController) applyEviction(eviction deferredEviction) {
	switch eviction.kind {
	case evictKindSpaces:
		c.repository.EvictReflectedSpaces(eviction.stage)
	case evictKindTypes:
		c.repository.EvictReflectedTypesInSpace(eviction.stage, eviction.space)
	case evictKindProperties:
		c.repository.EvictReflectedPropertiesOfTypeInSpace(eviction.stage, eviction.space, eviction.typeName)
	case evictKindTargetTypes:
		c.repository.EvictReflectedTargetTypes(eviction.stage, eviction.space, eviction.typeName, eviction.property)
	}
}

func (c *CacheController) refreshEviction(ctx context.Context, eviction deferredEviction) error {
	switch eviction.kind {
	case evictKindSpaces:
		return c.repository.RefreshReflectedSpaces(ctx, eviction.stage)
	case evictKindTypes:
		return c.repository.RefreshReflectedTypesInSpace(ctx, eviction.stage, eviction.space)
	case evictKindProperties:
		return c.repository.RefreshReflectedPropertiesOfTypeInSpace(ctx, eviction.stage, eviction.space, eviction.typeName)
	case evictKindTargetTypes:
		return c.repository.RefreshReflectedTargetTypes(ctx, eviction.stage, eviction.space, eviction.typeName, eviction.property)
	}
	return nil
}

func (c *CacheController) deferEviction(eviction deferredEviction, now time.Time) {
	c.mu.Lock()
	if _, pending := c.deferred[eviction]; !pending {
		c.deferred[eviction] = now
	}
	c.mu.Unlock()
}

// CheckDeferred flushes deferred evictions that are old enough, or all of
// them when the backlog outgrew its limit. Flushing refreshes the affected
// entries instead of just evicting them, so readers of deferring spaces
// never pay the recomputation cost themselves.
func (c *CacheController) CheckDeferred(ctx context.Context) error {
	c.mu.Lock()
	flushAll := len(c.deferred) > c.config.DeferLimit
	cutoff := time.Now().Add(-c.config.DeferDelay)
	var due []deferredEviction
	for eviction, since := range c.deferred {
		if flushAll || since.Before(cutoff) {
			due = append(due, eviction)
			delete(c.deferred, eviction)
		}
	}
	c.mu.Unlock()

	var firstErr error
	for _, eviction := range due {
		if err := c.refreshEviction(ctx, eviction); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if len(due) > 0 {
		c.logger.Info("flushed deferred cache evictions", "count", len(due))
	}
	c.recordBacklog()
	return firstErr
}

// Run flushes deferred evictions periodically until ctx ends.
func (c *CacheController) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.CheckDeferred(ctx); err != nil {
				c.logger.Warn("deferred cache eviction failed", "error", err)
			}
		}
	}
}

// PendingDeferred returns the current deferred eviction backlog size.
func (c *CacheController) PendingDeferred() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deferred)
}

func (c *CacheController) recordBacklog() {
	if c.metrics != nil {
		c.metrics.RecordDeferredEvictions(c.PendingDeferred())
	}
}

func (c *CacheController) relevantEdgeSet(ctx context.Context, stage types.Stage) (map[string]bool, error) {
	edges, err := c.repository.RelevantEdgeCollections(ctx, stage)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(edges))
	for _, edge := range edges {
		set[edge.Name] = true
	}
	return set, nil
}

func (c *CacheController) deferredSpaces(ctx context.Context) (map[types.SpaceName]bool, error) {
	spaces, err := c.repository.Spaces(ctx)
	if err != nil {
		return nil, err
	}
	deferring := map[types.SpaceName]bool{}
	for _, space := range spaces {
		if space.DeferCache {
			deferring[space.Name] = true
		}
	}
	return deferring, nil
}

// spaceListChanged reports whether a write batch may have created the first
// document of a space or deleted the last one.
func (c *CacheController) spaceListChanged(ctx context.Context, stage types.Stage, changes []DocumentChange) (bool, error) {
	var hasDelete bool
	var createdSpaces []types.SpaceName
	for _, change := range changes {
		if change.Before != nil && change.After == nil {
			hasDelete = true
		}
		if change.Before == nil && change.After != nil {
			createdSpaces = append(createdSpaces, types.SpaceName(change.After.Space))
		}
	}
	if hasDelete {
		return true, nil
	}
	if len(createdSpaces) == 0 {
		return false, nil
	}
	known, err := c.repository.ReflectedSpaces(ctx, stage)
	if err != nil {
		return false, err
	}
	knownSet := map[types.SpaceName]bool{}
	for _, space := range known {
		knownSet[space] = true
	}
	for _, space := range createdSpaces {
		if !knownSet[space] {
			return true, nil
		}
	}
	return false, nil
}

func symmetricDifference(a, b []string) []string {
	inA := map[string]bool{}
	for _, s := range a {
		inA[s] = true
	}
	inB := map[string]bool{}
	for _, s := range b {
		inB[s] = true
	}
	var diff []string
	for _, s := range a {
		if !inB[s] {
			diff = append(diff, s)
		}
	}
	for _, s := range b {
		if !inA[s] {
			diff = append(diff, s)
		}
	}
	return diff
}

func sameStringSet(a, b []string) bool {
	return len(symmetricDifference(a, b)) == 0
}

func unionStrings(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
