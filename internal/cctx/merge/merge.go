// Package merge combines permission rules from a source document into a
// target document with deduplication, and records enough metadata inside the
// target to reverse each merge precisely.
package merge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/cctx/internal/cctx/domain"
)

// HistoryKey is the reserved top-level key under which a document carries
// its merge history. It is stripped whenever a document is shown to the
// user as content.
const HistoryKey = "_mergeHistory"

const (
	permissionsKey = "permissions"
	allowKey       = "allow"
	denyKey        = "deny"
	envKey         = "env"

	allowPrefix = "allow:"
	denyPrefix  = "deny:"
	envPrefix   = "env:"
)

// Record describes one completed merge into a document. KeysAdded holds the
// exact entries newly inserted by that merge (not the full source list),
// which is what makes unmerge precise rather than destructive.
type Record struct {
	SourceID     string   `json:"source_id"`
	Timestamp    string   `json:"timestamp"`
	KeysAdded    []string `json:"keys_added"`
	FullSettings bool     `json:"full_settings"`
}

// History returns the merge records embedded in doc, oldest first. A missing
// history key yields an empty slice.
func History(doc map[string]any) ([]Record, error) {
	raw, ok := doc[HistoryKey]
	if !ok {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize merge history: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("merge history: %w: %v", domain.ErrInvalidFormat, err)
	}
	return records, nil
}

func setHistory(doc map[string]any, records []Record) {
	if len(records) == 0 {
		delete(doc, HistoryKey)
		return
	}
	doc[HistoryKey] = records
}

// StripHistory returns a copy of doc without the reserved history key.
func StripHistory(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == HistoryKey {
			continue
		}
		out[k] = v
	}
	return out
}

// Apply merges source into target and appends the resulting record to the
// target's embedded history. With full false only the permission lists are
// merged; with full true missing env variables and missing other top-level
// keys are copied as well. Pre-existing entries keep their order, new
// entries are appended in source order, and entries already present are
// skipped, so applying the same source twice adds nothing the second time.
func Apply(target, source map[string]any, sourceID string, full bool, now time.Time) (Record, error) {
	var added []string

	permAdded, err := mergePermissions(target, source)
	if err != nil {
		return Record{}, err
	}
	added = append(added, permAdded...)

	if full {
		added = append(added, mergeEnv(target, source)...)
		added = append(added, mergeRemaining(target, source)...)
	}

	record := Record{
		SourceID:     sourceID,
		Timestamp:    now.Format(time.RFC3339),
		KeysAdded:    added,
		FullSettings: full,
	}

	history, err := History(target)
	if err != nil {
		return Record{}, err
	}
	setHistory(target, append(history, record))
	return record, nil
}

// Revert undoes the most recent merge from sourceID with a matching full
// flag: exactly the entries listed in that record are removed from target,
// and the record is deleted from the history. Removal is by value, so a
// rule independently reintroduced after the tracked merge is still removed;
// this is a deliberate simplification of the design, not a bug.
func Revert(target map[string]any, sourceID string, full bool) (Record, error) {
	history, err := History(target)
	if err != nil {
		return Record{}, err
	}

	idx := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].SourceID == sourceID && history[i].FullSettings == full {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Record{}, fmt.Errorf("source %q: %w", sourceID, domain.ErrNoMergeRecord)
	}

	record := history[idx]
	for _, key := range record.KeysAdded {
		switch {
		case strings.HasPrefix(key, allowPrefix):
			removeRule(target, allowKey, strings.TrimPrefix(key, allowPrefix))
		case strings.HasPrefix(key, denyPrefix):
			removeRule(target, denyKey, strings.TrimPrefix(key, denyPrefix))
		case strings.HasPrefix(key, envPrefix):
			if env, ok := target[envKey].(map[string]any); ok {
				delete(env, strings.TrimPrefix(key, envPrefix))
			}
		default:
			delete(target, key)
		}
	}

	setHistory(target, append(history[:idx], history[idx+1:]...))
	return record, nil
}

func mergePermissions(target, source map[string]any) ([]string, error) {
	sourcePerms, ok := source[permissionsKey].(map[string]any)
	if !ok {
		return nil, nil
	}

	var added []string
	for _, list := range []string{allowKey, denyKey} {
		sourceRules, ok := stringRules(sourcePerms[list])
		if !ok {
			continue
		}
		perms := ensurePermissions(target)
		targetList, ok := perms[list].([]any)
		if !ok && perms[list] != nil {
			return nil, fmt.Errorf("target permissions.%s: %w: not an array", list, domain.ErrInvalidFormat)
		}

		seen := make(map[string]struct{}, len(targetList))
		for _, v := range targetList {
			if s, ok := v.(string); ok {
				seen[s] = struct{}{}
			}
		}

		for _, rule := range sourceRules {
			if _, dup := seen[rule]; dup {
				continue
			}
			seen[rule] = struct{}{}
			targetList = append(targetList, rule)
			added = append(added, list+":"+rule)
		}
		perms[list] = targetList
	}
	return added, nil
}

func mergeEnv(target, source map[string]any) []string {
	sourceEnv, ok := source[envKey].(map[string]any)
	if !ok || len(sourceEnv) == 0 {
		return nil
	}

	targetEnv, ok := target[envKey].(map[string]any)
	if !ok {
		targetEnv = map[string]any{}
		target[envKey] = targetEnv
	}

	var added []string
	for _, key := range sortedKeys(sourceEnv) {
		if _, exists := targetEnv[key]; exists {
			continue
		}
		targetEnv[key] = sourceEnv[key]
		added = append(added, envPrefix+key)
	}
	return added
}

func mergeRemaining(target, source map[string]any) []string {
	var added []string
	for _, key := range sortedKeys(source) {
		switch key {
		case permissionsKey, envKey, HistoryKey:
			continue
		}
		if _, exists := target[key]; exists {
			continue
		}
		target[key] = source[key]
		added = append(added, key)
	}
	return added
}

func ensurePermissions(target map[string]any) map[string]any {
	if perms, ok := target[permissionsKey].(map[string]any); ok {
		return perms
	}
	perms := map[string]any{}
	target[permissionsKey] = perms
	return perms
}

func removeRule(target map[string]any, list, rule string) {
	perms, ok := target[permissionsKey].(map[string]any)
	if !ok {
		return
	}
	rules, ok := perms[list].([]any)
	if !ok {
		return
	}
	kept := rules[:0]
	for _, v := range rules {
		if s, ok := v.(string); ok && s == rule {
			continue
		}
		kept = append(kept, v)
	}
	perms[list] = kept
}

// stringRules extracts the string entries of a JSON array value. Non-string
// entries are ignored, matching the opaque treatment of the host schema.
func stringRules(v any) ([]string, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	rules := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			rules = append(rules, s)
		}
	}
	return rules, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
