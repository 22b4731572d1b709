// ABOUTME: VPN configuration operations: create, get, update, delete, list
// ABOUTME: Configs live at configs/<id> as JSON objects keyed by allocator-issued IDs

package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const configsPrefix = "configs/"

// Data is an opaque configuration document. Numbers decode as json.Number so
// large integers round trip without precision loss.
type Data = map[string]any

// Config is a stored configuration and its ID.
type Config struct {
	ID   int64
	Data Data
}

func configKey(id int64) string {
	return configsPrefix + strconv.FormatInt(id, 10)
}

// parseConfigKey extracts the ID from a scanned key. Only canonical positive
// decimal suffixes are accepted, so two keys can never claim the same ID.
func parseConfigKey(key string) (int64, bool) {
	suffix, ok := strings.CutPrefix(key, configsPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil || id <= 0 || strconv.FormatInt(id, 10) != suffix {
		return 0, false
	}
	return id, true
}

// CreateConfig stores data under a freshly allocated ID and returns the ID.
// If the write fails after allocation the ID is burned, never reissued.
func (r *Registry) CreateConfig(ctx context.Context, data Data) (id int64, err error) {
	defer r.track("create_config")(&err)

	raw, err := encodeData(data)
	if err != nil {
		return 0, err
	}

	id, err = r.alloc.NextID(ctx)
	if err != nil {
		return 0, fmt.Errorf("creating config: %w", err)
	}

	// The allocator guarantees the key is fresh. Create-if-absent still
	// guards against a counter that was reset beneath existing configs.
	created, err := r.store.CompareAndSwap(ctx, configKey(id), nil, raw)
	if err != nil {
		r.logger.Warn("config write failed after allocation", "id", id, "error", err)
		return 0, fmt.Errorf("creating config %d: %w", id, err)
	}
	if !created {
		return 0, fmt.Errorf("creating config %d: %w", id, ErrAlreadyExists)
	}

	r.logger.Debug("config created", "id", id)
	return id, nil
}

// GetConfig returns the config with id. found is false if it was never
// created or has been deleted.
func (r *Registry) GetConfig(ctx context.Context, id int64) (cfg Config, found bool, err error) {
	defer r.track("get_config")(&err)

	// No ID below 1 is ever issued.
	if id <= 0 {
		return Config{}, false, nil
	}

	key := configKey(id)
	raw, found, err := r.store.Get(ctx, key)
	if err != nil {
		return Config{}, false, fmt.Errorf("getting config %d: %w", id, err)
	}
	if !found {
		return Config{}, false, nil
	}

	data, err := decodeData(key, raw)
	if err != nil {
		return Config{}, false, err
	}
	return Config{ID: id, Data: data}, true, nil
}

// UpdateConfig replaces the config at id wholesale. It returns false if no
// config exists there and never recreates one deleted concurrently.
func (r *Registry) UpdateConfig(ctx context.Context, id int64, data Data) (updated bool, err error) {
	defer r.track("update_config")(&err)

	if id <= 0 {
		return false, nil
	}
	raw, err := encodeData(data)
	if err != nil {
		return false, err
	}

	key := configKey(id)
	return r.retryCAS(ctx, "updating config", func() (bool, error) {
		current, found, err := r.store.Get(ctx, key)
		if err != nil {
			return false, fmt.Errorf("updating config %d: %w", id, err)
		}
		if !found {
			return false, nil
		}
		swapped, err := r.store.CompareAndSwap(ctx, key, current, raw)
		if err != nil {
			return false, fmt.Errorf("updating config %d: %w", id, err)
		}
		if !swapped {
			return false, errLostRace
		}
		return true, nil
	})
}

// DeleteConfig removes the config at id and reports whether it existed.
func (r *Registry) DeleteConfig(ctx context.Context, id int64) (deleted bool, err error) {
	defer r.track("delete_config")(&err)

	if id <= 0 {
		return false, nil
	}

	key := configKey(id)
	return r.retryCAS(ctx, "deleting config", func() (bool, error) {
		current, found, err := r.store.Get(ctx, key)
		if err != nil {
			return false, fmt.Errorf("deleting config %d: %w", id, err)
		}
		if !found {
			return false, nil
		}
		removed, err := r.store.CompareAndDelete(ctx, key, current)
		if err != nil {
			return false, fmt.Errorf("deleting config %d: %w", id, err)
		}
		if !removed {
			return false, errLostRace
		}
		return true, nil
	})
}

// ListConfigs returns every stored config keyed by ID. Entries with a
// malformed key or undecodable value are skipped with a warning. A store
// failure part way through returns the error and no partial result.
func (r *Registry) ListConfigs(ctx context.Context) (configs map[int64]Data, err error) {
	defer r.track("list_configs")(&err)

	configs = make(map[int64]Data)
	for entry, err := range r.store.Scan(ctx, configsPrefix) {
		if err != nil {
			return nil, fmt.Errorf("listing configs: %w", err)
		}
		id, ok := parseConfigKey(entry.Key)
		if !ok {
			r.logger.Warn("skipping config with malformed key", "key", entry.Key)
			continue
		}
		data, err := decodeData(entry.Key, entry.Value)
		if err != nil {
			r.logger.Warn("skipping corrupt config", "id", id, "error", err)
			continue
		}
		configs[id] = data
	}
	return configs, nil
}
